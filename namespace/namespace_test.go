package namespace

import "testing"

func TestSuffix(t *testing.T) {
	cases := []struct {
		ns     Namespace
		suffix string
		ok     bool
	}{
		{NoNamespace, "", false},
		{New("Foo"), "Foo", true},
		{NewWithEntry("Foo", "Index"), "@Foo", true},
	}
	for _, c := range cases {
		suffix, ok := c.ns.Suffix()
		if suffix != c.suffix || ok != c.ok {
			t.Errorf("Suffix(%+v) = %q, %v; want %q, %v", c.ns, suffix, ok, c.suffix, c.ok)
		}
	}
}

func TestModuleName(t *testing.T) {
	plain := New("MyPkg")
	if got := plain.ModuleName("Foo"); got != "Foo-MyPkg" {
		t.Errorf("ModuleName = %q, want Foo-MyPkg", got)
	}

	withEntry := NewWithEntry("MyPkg", "Index")
	if got := withEntry.ModuleName("Index"); got != "Index" {
		t.Errorf("entry module should not be suffixed, got %q", got)
	}
	// WithEntry uses the same "@Name" suffix as Suffix() itself, so a
	// resolver candidate built as base+"-"+Suffix() matches what scanning
	// actually produced here.
	if got := withEntry.ModuleName("Other"); got != "Other-@MyPkg" {
		t.Errorf("ModuleName = %q, want Other-@MyPkg", got)
	}
	if suffix, _ := withEntry.Suffix(); withEntry.ModuleName("Other") != "Other-"+suffix {
		t.Errorf("ModuleName must stay in lockstep with Suffix(): got %q", withEntry.ModuleName("Other"))
	}

	if got := NoNamespace.ModuleName("Foo"); got != "Foo" {
		t.Errorf("no-namespace ModuleName should be identity, got %q", got)
	}
}

func TestFromPackageName(t *testing.T) {
	cases := map[string]string{
		"@myscope/my-pkg": "MyscopeMyPkg",
		"simple-name":     "SimpleName",
		"under_score":     "UnderScore",
	}
	for in, want := range cases {
		if got := FromPackageName(in); got != want {
			t.Errorf("FromPackageName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsUpperFlat(t *testing.T) {
	if !IsUpperFlat("FOO") {
		t.Error("FOO should be upper-flat")
	}
	if !IsUpperFlat("FOO123") {
		t.Error("FOO123 should be upper-flat")
	}
	if IsUpperFlat("Foo") {
		t.Error("Foo should not be upper-flat")
	}
	if IsUpperFlat("") {
		t.Error("empty string should not be upper-flat")
	}
}
