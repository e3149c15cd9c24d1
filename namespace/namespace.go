// Package namespace models a package's optional namespace aggregator.
//
// A namespace turns every module a package owns into a submodule of a
// single synthetic "aggregator" module (an mlmap), so that other
// packages can depend on "the namespace" as one name. It is a sum type
// with three shapes; ground truth is rescript's own namespace.rs /
// bsconfig.rs handling of the `namespace` and `namespace-entry` config
// fields, reproduced in buildstate.Package and config.Config.
package namespace

import "strings"

// Kind distinguishes the three namespace shapes a package can have.
type Kind int

const (
	// None means the package has no namespace; its modules are
	// addressed directly by their file-derived names.
	None Kind = iota
	// Plain means every non-entry module in the package is suffixed
	// with "-Namespace" and an aggregator module named Namespace exists.
	Plain
	// WithEntry is Plain plus a designated entry module that is
	// promoted as the namespace's own public surface.
	WithEntry
)

// Namespace is the resolved namespace for one package.
type Namespace struct {
	Kind  Kind
	Name  string // PascalCase or explicit upper-flat namespace name
	Entry string // only meaningful when Kind == WithEntry
}

// NoNamespace is the zero-value "no namespace" namespace, usable directly.
var NoNamespace = Namespace{Kind: None}

// New builds a Namespace(name) with no promoted entry.
func New(name string) Namespace {
	return Namespace{Kind: Plain, Name: name}
}

// NewWithEntry builds a NamespaceWithEntry{name, entry}.
func NewWithEntry(name, entry string) Namespace {
	return Namespace{Kind: WithEntry, Name: name, Entry: entry}
}

// Suffix returns the dependency-resolution / filename suffix associated
// with this namespace: "" for None, "Name" for Plain, "@Name" for
// WithEntry. A second return value reports whether the namespace is
// set at all (mirrors the Rust `to_suffix() -> Option<String>`).
func (n Namespace) Suffix() (string, bool) {
	switch n.Kind {
	case Plain:
		return n.Name, true
	case WithEntry:
		return "@" + n.Name, true
	default:
		return "", false
	}
}

// IsEntry reports whether moduleName is this namespace's promoted entry
// module.
func (n Namespace) IsEntry(moduleName string) bool {
	return n.Kind == WithEntry && n.Entry == moduleName
}

// HasNamespace reports whether the package carries any namespace at all.
func (n Namespace) HasNamespace() bool {
	return n.Kind != None
}

// ModuleName derives the global module name for a file-basename-derived
// module name (already capitalized), applying Suffix() unless this
// module is the namespace's own entry point. Using Suffix() here keeps
// this in lockstep with every other consumer of the suffix (notably
// astdeps.resolveToken's namespaced-candidate lookup): Plain gets "-Name",
// WithEntry gets "-@Name", matching the Rust original's to_suffix()
// being the single source of truth for both scanning and resolution.
func (n Namespace) ModuleName(base string) string {
	if !n.HasNamespace() {
		return base
	}
	if n.IsEntry(base) {
		return base
	}
	suffix, _ := n.Suffix()
	return base + "-" + suffix
}

// AggregatorModuleName returns the synthetic mlmap module name this
// namespace contributes to the build, or "" if there is none.
func (n Namespace) AggregatorModuleName() string {
	suffix, ok := n.Suffix()
	if !ok {
		return ""
	}
	return suffix
}

// IsUpperFlat reports whether s is non-empty and contains no lowercase
// ASCII letter, the shape config.go treats as "already a valid namespace name, don't
// pascal-case it".
func IsUpperFlat(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
	}
	return true
}

// PascalCase upper-cases the first rune of each '_'/'-'-delimited word
// and strips the delimiters, e.g. "my-pkg_name" -> "MyPkgName". This
// mirrors convert_case::Case::Pascal as used by namespace_from_package_name
// and the explicit-string namespace branch in config.rs.
func PascalCase(s string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || r == '/' || r == '.':
			upperNext = true
		case upperNext:
			b.WriteRune(toUpper(r))
			upperNext = false
		default:
			b.WriteRune(toLower(r))
		}
	}
	return b.String()
}

// FromPackageName derives the default namespace name for a package,
// stripping a leading scope ('@') and flattening path separators before
// pascal-casing, mirroring namespace_from_package_name in config.rs.
func FromPackageName(packageName string) string {
	s := strings.ReplaceAll(packageName, "@", "")
	s = strings.ReplaceAll(s, "/", "_")
	return PascalCase(s)
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
