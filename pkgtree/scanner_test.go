package pkgtree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rescript-lang/rewatch/buildstate"
	"github.com/rescript-lang/rewatch/config"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("// test"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanPackageGroupsImplAndInterface(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "A.res"))
	writeFile(t, filepath.Join(dir, "src", "A.resi"))
	writeFile(t, filepath.Join(dir, "src", "B.res"))

	cfg := &config.Config{Name: "root", Sources: []config.Source{{Dir: "src"}}}
	b := buildstate.New(dir)
	pkg := buildstate.NewPackage("root", dir, cfg)
	b.AddPackage(pkg)

	if err := ScanPackage(b, pkg, ScanOptions{}); err != nil {
		t.Fatal(err)
	}

	a, ok := b.Module("A")
	if !ok {
		t.Fatal("expected module A")
	}
	if a.Interface == nil {
		t.Error("expected A to have an interface")
	}
	if _, ok := b.Module("B"); !ok {
		t.Error("expected module B")
	}
}

func TestScanPackageSkipsDevUnlessRequested(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "test", "T.res"))

	cfg := &config.Config{Name: "root", Sources: []config.Source{{Dir: "test", Type: config.TypeDev}}}
	b := buildstate.New(dir)
	pkg := buildstate.NewPackage("root", dir, cfg)
	b.AddPackage(pkg)

	if err := ScanPackage(b, pkg, ScanOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Module("T"); ok {
		t.Error("dev source should be skipped by default")
	}

	b2 := buildstate.New(dir)
	pkg2 := buildstate.NewPackage("root", dir, cfg)
	b2.AddPackage(pkg2)
	if err := ScanPackage(b2, pkg2, ScanOptions{BuildDevDeps: true}); err != nil {
		t.Fatal(err)
	}
	if _, ok := b2.Module("T"); !ok {
		t.Error("dev source should be included with BuildDevDeps")
	}
}

func TestScanPackageAddsNamespaceAggregator(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "A.res"))

	cfg := &config.Config{Name: "my-pkg", Sources: []config.Source{{Dir: "src"}}}
	cfg.NamespaceRaw = &config.NamespaceConfig{Set: true, IsBool: true, BoolVal: true}

	b := buildstate.New(dir)
	pkg := buildstate.NewPackage("my-pkg", dir, cfg)
	b.AddPackage(pkg)

	if err := ScanPackage(b, pkg, ScanOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Module("MyPkg"); !ok {
		t.Error("expected namespace aggregator module MyPkg")
	}
	if _, ok := b.Module("A-MyPkg"); !ok {
		t.Error("expected namespaced module A-MyPkg")
	}
}
