package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/callsite/vm"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[cache]
capacity = 2

[fastpath]
fixnum = true
float = false

[arrayderef]
frozen-string-hash = false

[log]
verbosity = 2

[output]
format = "yaml"
`
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Cache.Capacity != 2 {
		t.Errorf("cache capacity = %d, want 2", c.Cache.Capacity)
	}
	if !c.FastPath.Fixnum || c.FastPath.Float {
		t.Errorf("fastpath = %+v, want fixnum only", c.FastPath)
	}
	if c.ArrayDeref.FrozenStringHash {
		t.Error("arrayderef frozen-string-hash = true, want false")
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", c.Log.Verbosity)
	}
	if c.Output.Format != FormatYAML {
		t.Errorf("output format = %q, want yaml", c.Output.Format)
	}

	opts := c.CompilerOptions()
	if !opts.FixnumFastPath || opts.FloatFastPath || opts.HashFastPath {
		t.Errorf("compiler options = %+v", opts)
	}
	v := c.NewVM()
	if v.CacheCapacity != 2 || v.HashFastPath {
		t.Errorf("vm settings = capacity %d, hash fast path %t", v.CacheCapacity, v.HashFastPath)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := Parse([]byte("[log]\nverbosity = 1\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.Cache.Capacity != vm.MaxPICEntries {
		t.Errorf("cache capacity = %d, want %d", c.Cache.Capacity, vm.MaxPICEntries)
	}
	if !c.FastPath.Fixnum || !c.FastPath.Float || !c.ArrayDeref.FrozenStringHash {
		t.Errorf("fast paths should default on: %+v", c)
	}
	if c.Output.Format != FormatText {
		t.Errorf("output format = %q, want text", c.Output.Format)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"zero capacity", "[cache]\ncapacity = 0\n"},
		{"capacity too large", "[cache]\ncapacity = 100\n"},
		{"unknown format", "[output]\nformat = \"xml\"\n"},
		{"unknown key", "[cache]\nsize = 3\n"},
		{"bad syntax", "[cache\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.toml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[cache]\ncapacity = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Cache.Capacity != 1 {
		t.Errorf("cache capacity = %d, want 1", c.Cache.Capacity)
	}
	if c.Path != filepath.Join(root, FileName) {
		t.Errorf("path = %q", c.Path)
	}
}

func TestFindAndLoadNone(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Cache.Capacity != vm.MaxPICEntries {
		t.Errorf("expected defaults, got capacity %d", c.Cache.Capacity)
	}
}
