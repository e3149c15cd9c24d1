package astdeps

import (
	"os"
	"testing"

	"github.com/rescript-lang/rewatch/buildstate"
	"github.com/rescript-lang/rewatch/config"
)

func testPackage(t *testing.T, cfg *config.Config) *buildstate.Package {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "root"
	}
	return buildstate.NewPackage(cfg.Name, t.TempDir(), cfg)
}

func TestFlagsForJsxVersion(t *testing.T) {
	v := 4
	pkg := testPackage(t, &config.Config{Jsx: &config.JSXConfig{Version: &v}})

	_, jsx, _, _, _ := FlagsFor(pkg)

	if len(jsx) != 2 || jsx[0] != "-bs-jsx" || jsx[1] != "4" {
		t.Fatalf("jsx = %v, want [-bs-jsx 4]", jsx)
	}
}

func TestFlagsForNoJsx(t *testing.T) {
	pkg := testPackage(t, &config.Config{})

	_, jsx, _, _, _ := FlagsFor(pkg)

	if len(jsx) != 0 {
		t.Fatalf("jsx = %v, want empty", jsx)
	}
}

func TestFlagsForGentype(t *testing.T) {
	pkg := testPackage(t, &config.Config{GentypeConfig: []byte(`{}`)})

	_, _, _, _, gentype := FlagsFor(pkg)

	if !gentype {
		t.Error("gentype = false, want true when gentypeconfig is present")
	}
}

func TestFilterBisectDropsBisectPpxByDefault(t *testing.T) {
	os.Unsetenv("BISECT_ENABLE")
	flags := []string{"-ppx", "/node_modules/bisect_ppx/ppx", "-ppx", "/node_modules/other/ppx"}

	out := filterBisect(flags)

	if len(out) != 2 || out[0] != "-ppx" || out[1] != "/node_modules/other/ppx" {
		t.Fatalf("out = %v, want the bisect pair dropped", out)
	}
}

func TestFilterBisectKeepsBisectWhenEnabled(t *testing.T) {
	os.Setenv("BISECT_ENABLE", "1")
	defer os.Unsetenv("BISECT_ENABLE")
	flags := []string{"-ppx", "/node_modules/bisect_ppx/ppx"}

	out := filterBisect(flags)

	if len(out) != 2 {
		t.Fatalf("out = %v, want the bisect pair kept", out)
	}
}

func TestCompilerInvocationArgsOrder(t *testing.T) {
	inv := CompilerInvocation{
		PpxFlags:   []string{"-ppx", "/a"},
		JsxFlags:   []string{"-bs-jsx", "4"},
		Uncurried:  true,
		BscFlags:   []string{"-w", "+a"},
		Gentype:    true,
		OutputPath: "out",
		SourcePath: "src.res",
	}

	args := inv.Args()

	want := []string{"-ppx", "/a", "-bs-jsx", "4", "-uncurried", "-w", "+a", "-bs-gentype"}
	if len(args) < len(want) {
		t.Fatalf("args = %v, too short, want prefix %v", args, want)
	}
	for i, w := range want {
		if args[i] != w {
			t.Fatalf("args[%d] = %q, want %q (full args %v)", i, args[i], w, args)
		}
	}
}
