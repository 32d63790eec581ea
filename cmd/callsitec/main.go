// callsitec compiles IR programs into call-site bytecode units, runs them
// and reports inline cache statistics.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/callsite/config"
	"github.com/chazu/callsite/vm"
)

type command struct {
	name  string
	usage string
	run   func(env *env, args []string) error
}

var commands = []command{
	{"compile", "compile [-o dir] files...   compile YAML programs to .csu units", runCompile},
	{"run", "run [-stats] file            run a YAML program or .csu unit", runRun},
	{"disasm", "disasm file                  print the bytecode of every body", runDisasm},
	{"stats", "stats file                   run and print inline cache statistics", runStats},
}

// env is the state shared by every subcommand.
type env struct {
	cfg   *config.Config
	color bool
}

func main() {
	verbose := flag.Int("v", -1, "Log verbosity (overrides callsite.toml)")
	configPath := flag.String("config", "", "Configuration file (default: nearest callsite.toml)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: callsitec [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(os.Stderr, "  %s\n", c.usage)
		}
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose >= 0 {
		cfg.Log.Verbosity = *verbose
	}
	commonlog.Configure(cfg.Log.Verbosity, nil)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	e := &env{cfg: cfg, color: isatty.IsTerminal(os.Stdout.Fd())}
	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(e, args); err != nil {
			reportError(err)
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
	flag.Usage()
	os.Exit(2)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FindAndLoad(".")
}

func reportError(err error) {
	var raised *vm.RaisedError
	if errors.As(err, &raised) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", raised)
		if bt := raised.FormatBacktrace(); bt != "" {
			fmt.Fprintln(os.Stderr, bt)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
