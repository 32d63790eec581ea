package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/chazu/callsite/compiler"
	"github.com/chazu/callsite/config"
	"github.com/chazu/callsite/ir"
	"github.com/chazu/callsite/vm"
)

// UnitExt is the extension of persisted units.
const UnitExt = ".csu"

// loadUnit compiles a YAML program or reads a persisted unit.
func (e *env) loadUnit(path string) (*compiler.Unit, error) {
	if filepath.Ext(path) == UnitExt {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return compiler.UnmarshalUnit(data)
	}
	p, err := ir.LoadProgram(path)
	if err != nil {
		return nil, err
	}
	return compiler.CompileProgram(p, e.cfg.CompilerOptions())
}

func runCompile(e *env, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	outDir := fs.String("o", "", "Output directory (default: next to the source)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("compile: no input files")
	}

	outputs := make([]string, fs.NArg())
	var g errgroup.Group
	for k, path := range fs.Args() {
		k, path := k, path
		g.Go(func() error {
			u, err := e.loadUnit(path)
			if err != nil {
				return err
			}
			data, err := compiler.MarshalUnit(u)
			if err != nil {
				return err
			}
			out := strings.TrimSuffix(path, filepath.Ext(path)) + UnitExt
			if *outDir != "" {
				out = filepath.Join(*outDir, filepath.Base(out))
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return err
			}
			outputs[k] = fmt.Sprintf("%s -> %s (unit %s, %d bytes)", path, out, u.ID, len(data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, line := range outputs {
		fmt.Println(line)
	}
	return nil
}

func runRun(e *env, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	stats := fs.Bool("stats", false, "Print inline cache statistics after the run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run: expected one file")
	}
	u, result, err := e.execute(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(vm.Inspect(result))
	if *stats {
		return e.printStats(os.Stdout, u)
	}
	return nil
}

func runStats(e *env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("stats: expected one file")
	}
	u, _, err := e.execute(args[0])
	if err != nil {
		return err
	}
	return e.printStats(os.Stdout, u)
}

func runDisasm(e *env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("disasm: expected one file")
	}
	u, err := e.loadUnit(args[0])
	if err != nil {
		return err
	}
	e.header(os.Stdout, "main")
	printCode(u.Main)
	for _, c := range u.Classes {
		for _, m := range c.Methods {
			sep := "#"
			if m.ClassMethod {
				sep = "."
			}
			e.header(os.Stdout, c.Name+sep+m.Name)
			printCode(m.Code)
		}
	}
	return nil
}

func printCode(c *vm.Code) {
	fmt.Println(c.Disassemble())
}

func (e *env) header(w io.Writer, title string) {
	if e.color {
		fmt.Fprintf(w, "\x1b[1;36m== %s ==\x1b[0m\n", title)
		return
	}
	fmt.Fprintf(w, "== %s ==\n", title)
}

func (e *env) execute(path string) (*compiler.Unit, vm.Value, error) {
	u, err := e.loadUnit(path)
	if err != nil {
		return nil, nil, err
	}
	in := e.cfg.NewVM().NewInterpreter()
	result, err := u.Run(in)
	if err != nil {
		return nil, nil, err
	}
	return u, result, nil
}

func (e *env) printStats(w io.Writer, u *compiler.Unit) error {
	stats := vm.CollectICStats(u.Codes()...)
	if e.cfg.Output.Format == config.FormatYAML {
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(stats)
	}
	fmt.Fprintf(w, "unit %s\n", u.ID)
	fmt.Fprintf(w, "  call sites:  %d\n", stats.TotalCallSites)
	fmt.Fprintf(w, "  monomorphic: %d\n", stats.Monomorphic)
	fmt.Fprintf(w, "  polymorphic: %d\n", stats.Polymorphic)
	fmt.Fprintf(w, "  megamorphic: %d\n", stats.Megamorphic)
	fmt.Fprintf(w, "  empty:       %d\n", stats.Empty)
	fmt.Fprintf(w, "  missing:     %d\n", stats.MethodMissing)
	fmt.Fprintf(w, "  hit rate:    %.1f%% (%d hits, %d misses)\n", stats.HitRate, stats.TotalHits, stats.TotalMisses)
	return nil
}
