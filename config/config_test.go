package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rescript-lang/rewatch/namespace"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadShorthandSources(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rescript.json", `{
		"name": "my-pkg",
		"sources": "src"
	}`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Sources) != 1 || c.Sources[0].Dir != "src" {
		t.Errorf("Sources = %+v", c.Sources)
	}
}

func TestLoadQualifiedSourcesWithSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rescript.json", `{
		"name": "my-pkg",
		"sources": {"dir": "src", "subdirs": true, "type": "dev"}
	}`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Sources) != 1 {
		t.Fatalf("Sources = %+v", c.Sources)
	}
	s := c.Sources[0]
	if s.Dir != "src" || s.Type != TypeDev || s.SubdirsRecurse == nil || !*s.SubdirsRecurse {
		t.Errorf("Source = %+v", s)
	}
}

func TestLoadPrefersRescriptJSON(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rescript.json", `{"name": "new", "sources": "src"}`)
	writeConfig(t, dir, "bsconfig.json", `{"name": "old", "sources": "src"}`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "new" {
		t.Errorf("Name = %q, want new (rescript.json should win)", c.Name)
	}
}

func TestGetNamespaceBoolTrue(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rescript.json", `{"name": "my-pkg", "sources": "src", "namespace": true}`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	ns := c.GetNamespace()
	if ns.Kind != namespace.Plain || ns.Name != "MyPkg" {
		t.Errorf("GetNamespace() = %+v", ns)
	}
}

func TestGetNamespaceExplicitUpperFlat(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rescript.json", `{"name": "my-pkg", "sources": "src", "namespace": "MYNS"}`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	ns := c.GetNamespace()
	if ns.Name != "MYNS" {
		t.Errorf("GetNamespace().Name = %q, want MYNS", ns.Name)
	}
}

func TestGetNamespaceAbsent(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rescript.json", `{"name": "my-pkg", "sources": "src"}`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.GetNamespace().HasNamespace() {
		t.Error("expected no namespace")
	}
}

func TestUncurriedExplicitOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rescript.json", `{"name": "p", "sources": "src", "uncurried": false}`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	c.CompilerVersion = "11.1.0"
	got, err := c.UncurriedDefault()
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("explicit uncurried:false should not be overridden by version default")
	}
}

func TestUncurriedVersionGatedDefault(t *testing.T) {
	c := &Config{CompilerVersion: "11.0.0"}
	got, err := c.UncurriedDefault()
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("rescript 11+ should default uncurried to true")
	}

	c2 := &Config{CompilerVersion: "10.1.4"}
	got2, err := c2.UncurriedDefault()
	if err != nil {
		t.Fatal(err)
	}
	if got2 {
		t.Error("rescript <11 should default uncurried to false")
	}
}

func TestFlattenFlags(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`"-w +a-4"`),
		json.RawMessage(`["-open", "Belt"]`),
	}
	got, err := FlattenFlags(raw)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-w", "+a-4", "-open", "Belt"}
	if len(got) != len(want) {
		t.Fatalf("FlattenFlags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FlattenFlags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFlattenPpxFlagsResolvesRelativePath(t *testing.T) {
	raw := []json.RawMessage{json.RawMessage(`"./ppx/main.exe"`)}
	got, err := FlattenPpxFlags("node_modules", raw, "my-pkg")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-ppx", "node_modules/my-pkg/./ppx/main.exe"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("FlattenPpxFlags = %v, want %v", got, want)
	}
}

func TestHasGentypeConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rescript.json", `{"name": "p", "sources": "src", "gentypeconfig": {}}`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !c.HasGentypeConfig() {
		t.Error("expected HasGentypeConfig true")
	}
}

func TestFindMissingConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := Find(dir); err == nil {
		t.Error("expected error for missing config file")
	}
}
