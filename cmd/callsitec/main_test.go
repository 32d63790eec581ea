package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/chazu/callsite/config"
	"github.com/chazu/callsite/vm"
)

func testEnv() *env {
	return &env{cfg: config.Default()}
}

func TestExecuteShapes(t *testing.T) {
	e := testEnv()
	u, result, err := e.execute(filepath.Join("testdata", "shapes.yaml"))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	want := `["area 9!", 10.0, true, true, [5, 6, 7]]`
	if got := vm.Inspect(result); got != want {
		t.Errorf("result = %s, want %s", got, want)
	}

	stats := vm.CollectICStats(u.Codes()...)
	if stats.TotalCallSites == 0 {
		t.Error("expected populated call sites after the run")
	}
	if stats.Megamorphic != 0 {
		t.Errorf("megamorphic sites = %d, want 0", stats.Megamorphic)
	}
}

func TestCompileThenRunUnit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shapes.yaml")
	data, err := os.ReadFile(filepath.Join("testdata", "shapes.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	e := testEnv()
	if err := runCompile(e, []string{src}); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	unitPath := filepath.Join(dir, "shapes"+UnitExt)
	if _, err := os.Stat(unitPath); err != nil {
		t.Fatalf("unit not written: %v", err)
	}

	_, result, err := e.execute(unitPath)
	if err != nil {
		t.Fatalf("execute unit failed: %v", err)
	}
	if got := vm.Inspect(result); !strings.HasPrefix(got, `["area 9!"`) {
		t.Errorf("result = %s", got)
	}
}

// countSites returns the number of call sites in the bodies and their
// nested blocks.
func countSites(codes ...*vm.Code) int {
	n := 0
	for _, c := range codes {
		n += len(c.CallSites) + countSites(c.Blocks...)
	}
	return n
}

func TestPrintStatsYAML(t *testing.T) {
	e := testEnv()
	e.cfg.Output.Format = config.FormatYAML
	u, _, err := e.execute(filepath.Join("testdata", "shapes.yaml"))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	var buf bytes.Buffer
	if err := e.printStats(&buf, u); err != nil {
		t.Fatalf("printStats failed: %v", err)
	}
	var stats vm.ICStats
	if err := yaml.Unmarshal(buf.Bytes(), &stats); err != nil {
		t.Fatalf("stats output is not YAML: %v\n%s", err, buf.String())
	}

	// Every site in shapes.yaml runs once, and nothing reaches method_missing.
	sites := countSites(u.Codes()...)
	if stats.TotalCallSites != sites {
		t.Errorf("call_sites = %d, want %d", stats.TotalCallSites, sites)
	}
	if stats.Empty != 0 || stats.MethodMissing != 0 {
		t.Errorf("empty = %d, method_missing = %d, want 0 and 0", stats.Empty, stats.MethodMissing)
	}
	if got := stats.Monomorphic + stats.Polymorphic + stats.Megamorphic; got != sites {
		t.Errorf("populated sites = %d, want %d", got, sites)
	}
	if stats.TotalHits+stats.TotalMisses == 0 || stats.HitRate < 0 || stats.HitRate > 100 {
		t.Errorf("hits = %d, misses = %d, hit_rate = %v", stats.TotalHits, stats.TotalMisses, stats.HitRate)
	}
}

func TestDisasmHeader(t *testing.T) {
	var buf bytes.Buffer
	e := testEnv()
	e.header(&buf, "Square#area")
	if buf.String() != "== Square#area ==\n" {
		t.Errorf("header = %q", buf.String())
	}
	e.color = true
	buf.Reset()
	e.header(&buf, "x")
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Error("colour header should contain an escape sequence")
	}
}
