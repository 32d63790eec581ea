// Package config handles callsite.toml compiler and runtime settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/callsite/compiler"
	"github.com/chazu/callsite/vm"
)

// FileName is the name FindAndLoad looks for.
const FileName = "callsite.toml"

// Config represents a callsite.toml file.
type Config struct {
	Cache      Cache      `toml:"cache"`
	FastPath   FastPath   `toml:"fastpath"`
	ArrayDeref ArrayDeref `toml:"arrayderef"`
	Log        Log        `toml:"log"`
	Output     Output     `toml:"output"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// Cache configures inline cache cells.
type Cache struct {
	Capacity int `toml:"capacity"`
}

// FastPath toggles the inline arithmetic specializations.
type FastPath struct {
	Fixnum bool `toml:"fixnum"`
	Float  bool `toml:"float"`
}

// ArrayDeref configures array dereference sites.
type ArrayDeref struct {
	FrozenStringHash bool `toml:"frozen-string-hash"`
}

// Log configures the logging backend.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Output configures how the CLI reports results.
type Output struct {
	Format string `toml:"format"`
}

// Output formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Cache:      Cache{Capacity: vm.MaxPICEntries},
		FastPath:   FastPath{Fixnum: true, Float: true},
		ArrayDeref: ArrayDeref{FrozenStringHash: true},
		Output:     Output{Format: FormatText},
	}
}

// Load parses a configuration file. Keys the file leaves out keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes configuration text over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports settings out of range.
func (c *Config) Validate() error {
	if c.Cache.Capacity < 1 || c.Cache.Capacity > vm.MaxPICEntries {
		return fmt.Errorf("cache capacity %d out of range 1..%d", c.Cache.Capacity, vm.MaxPICEntries)
	}
	switch c.Output.Format {
	case FormatText, FormatYAML:
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	if c.Log.Verbosity < 0 {
		return fmt.Errorf("negative log verbosity %d", c.Log.Verbosity)
	}
	return nil
}

// FindAndLoad walks up from startDir to find a callsite.toml file, then
// loads it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// CompilerOptions returns the emitter options the configuration selects.
func (c *Config) CompilerOptions() compiler.Options {
	return compiler.Options{
		FixnumFastPath: c.FastPath.Fixnum,
		FloatFastPath:  c.FastPath.Float,
		HashFastPath:   c.ArrayDeref.FrozenStringHash,
	}
}

// NewVM creates a runtime with the configured cache settings.
func (c *Config) NewVM() *vm.VM {
	v := vm.NewVM()
	v.CacheCapacity = c.Cache.Capacity
	v.HashFastPath = c.ArrayDeref.FrozenStringHash
	return v
}
