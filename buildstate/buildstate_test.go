package buildstate

import (
	"testing"

	"github.com/rescript-lang/rewatch/config"
)

func testConfig(name string, bsDeps ...string) *config.Config {
	return &config.Config{Name: name, BsDependencies: bsDeps}
}

func TestAddModuleRejectsDuplicateNames(t *testing.T) {
	b := New("/proj")
	b.AddPackage(NewPackage("root", "/proj", testConfig("root")))

	if err := b.AddModule(NewModule("A", "root", SourceFile)); err != nil {
		t.Fatal(err)
	}
	if err := b.AddModule(NewModule("A", "root", SourceFile)); err == nil {
		t.Error("expected error on duplicate module name")
	}
}

func TestAddDepMaintainsReciprocalEdges(t *testing.T) {
	b := New("/proj")
	b.AddPackage(NewPackage("root", "/proj", testConfig("root")))
	a := NewModule("A", "root", SourceFile)
	c := NewModule("B", "root", SourceFile)
	b.AddModule(a)
	b.AddModule(c)

	a.AddDep(c)

	if err := CheckReciprocalEdges(b); err != nil {
		t.Error(err)
	}
	if err := CheckNoSelfDeps(b); err != nil {
		t.Error(err)
	}
}

func TestAddDepIgnoresSelfEdge(t *testing.T) {
	b := New("/proj")
	b.AddPackage(NewPackage("root", "/proj", testConfig("root")))
	a := NewModule("A", "root", SourceFile)
	b.AddModule(a)

	a.AddDep(a)

	if len(a.Deps) != 0 {
		t.Errorf("self-dep should be ignored, got %v", a.Deps)
	}
}

func TestCrossPackageVisibilityRejectsUndeclaredEdge(t *testing.T) {
	b := New("/proj")
	b.AddPackage(NewPackage("root", "/proj", testConfig("root")))
	b.AddPackage(NewPackage("dep02", "/proj/dep02", testConfig("dep02")))

	a := NewModule("A", "root", SourceFile)
	other := NewModule("X-Dep02", "dep02", SourceFile)
	b.AddModule(a)
	b.AddModule(other)
	a.AddDep(other)

	if err := CheckCrossPackageVisibility(b); err == nil {
		t.Error("expected cross-package visibility violation")
	}
}

func TestCrossPackageVisibilityAllowsDeclaredEdge(t *testing.T) {
	b := New("/proj")
	b.AddPackage(NewPackage("root", "/proj", testConfig("root", "dep01")))
	b.AddPackage(NewPackage("dep01", "/proj/dep01", testConfig("dep01")))

	a := NewModule("A", "root", SourceFile)
	other := NewModule("B-Dep01", "dep01", SourceFile)
	b.AddModule(a)
	b.AddModule(other)
	a.AddDep(other)

	if err := CheckCrossPackageVisibility(b); err != nil {
		t.Error(err)
	}
}

func TestRemoveModuleClearsPackageMembership(t *testing.T) {
	b := New("/proj")
	pkg := NewPackage("root", "/proj", testConfig("root"))
	b.AddPackage(pkg)
	b.AddModule(NewModule("A", "root", SourceFile))

	removed := b.RemoveModule("A")
	if removed == nil {
		t.Fatal("expected removed module")
	}
	if b.HasModuleName("A") {
		t.Error("module name should be gone from global set")
	}
	if _, ok := pkg.ModuleNames["A"]; ok {
		t.Error("module name should be gone from package set")
	}
}
