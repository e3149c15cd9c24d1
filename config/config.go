// Package config loads and normalizes a package's per-package JSON build
// configuration (rescript.json / bsconfig.json, first found wins), and
// derives the package's Namespace from it.
//
// Grounded on _examples/original_source/src/bsconfig.rs (field shapes)
// and src/config.rs (namespace derivation, JSX/uncurried defaults), in
// the JSON-decode idiom of the teacher's manifest.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/rescript-lang/rewatch/namespace"
)

// FileNames are tried in order at a package directory; the first that
// exists wins (rescript.json takes precedence over the legacy bsconfig.json).
var FileNames = []string{"rescript.json", "bsconfig.json"}

// SourceType distinguishes normal sources from dev-only ones.
type SourceType string

const (
	TypeLib SourceType = ""
	TypeDev SourceType = "dev"
)

// Source is the sum type described by spec.md 4.1: either a bare string
// shorthand for a directory, or a qualified object with subdirs/type.
type Source struct {
	// Dir is always populated, whether the source was a shorthand
	// string or a qualified object.
	Dir string
	// SubdirsRecurse is set when a recurse flag was given and
	// SubdirsQualified when a list of nested Source descriptors was; both
	// are nil when "subdirs" is absent.
	SubdirsRecurse   *bool
	SubdirsQualified []Source
	Type             SourceType
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var shorthand string
	if err := json.Unmarshal(data, &shorthand); err == nil {
		s.Dir = shorthand
		return nil
	}

	var qualified struct {
		Dir     string          `json:"dir"`
		Subdirs json.RawMessage `json:"subdirs"`
		Type    string          `json:"type"`
	}
	if err := json.Unmarshal(data, &qualified); err != nil {
		return errors.Wrap(err, "source must be a string or an object with a \"dir\" field")
	}
	s.Dir = qualified.Dir
	s.Type = SourceType(qualified.Type)

	if len(qualified.Subdirs) == 0 || string(qualified.Subdirs) == "null" {
		return nil
	}

	var recurse bool
	if err := json.Unmarshal(qualified.Subdirs, &recurse); err == nil {
		s.SubdirsRecurse = &recurse
		return nil
	}

	var children []Source
	if err := json.Unmarshal(qualified.Subdirs, &children); err != nil {
		return errors.Wrap(err, "subdirs must be a bool or a list of source descriptors")
	}
	s.SubdirsQualified = children
	return nil
}

// PackageSpec is one entry of "package-specs".
type PackageSpec struct {
	Module   string `json:"module"`
	InSource bool   `json:"in-source"`
	Suffix   string `json:"suffix,omitempty"`
}

// unmarshalOneOrMorePackageSpecs accepts either a single PackageSpec or a list; the field
// is always normalized to Config.PackageSpecs ([]PackageSpec).
func unmarshalOneOrMorePackageSpecs(data []byte) ([]PackageSpec, error) {
	var one PackageSpec
	if err := json.Unmarshal(data, &one); err == nil && one.Module != "" {
		return []PackageSpec{one}, nil
	}
	var many []PackageSpec
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, err
	}
	return many, nil
}

// JSXConfig is the "jsx" field.
type JSXConfig struct {
	Version        *int     `json:"version,omitempty"`
	Module         string   `json:"module,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	V3Dependencies []string `json:"v3-dependencies,omitempty"`
}

// Reason carries the legacy "reason" field's JSX version.
type Reason struct {
	ReactJSX int `json:"react-jsx"`
}

// NamespaceConfig is the sum type of the "namespace" field: absent,
// a bool, or a string.
type NamespaceConfig struct {
	Set      bool
	BoolVal  bool
	IsBool   bool
	StrVal   string
}

func (n *NamespaceConfig) UnmarshalJSON(data []byte) error {
	n.Set = true
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		n.IsBool = true
		n.BoolVal = b
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "namespace must be a bool or a string")
	}
	n.StrVal = s
	return nil
}

// Config is the normalized representation of one package's
// rescript.json / bsconfig.json, per spec.md 4.1's field table.
type Config struct {
	Name               string            `json:"name"`
	RawSources         json.RawMessage   `json:"sources"`
	RawPackageSpecs    json.RawMessage   `json:"package-specs,omitempty"`
	Suffix             string            `json:"suffix,omitempty"`
	PinnedDependencies []string          `json:"pinned-dependencies,omitempty"`
	BsDependencies     []string          `json:"bs-dependencies,omitempty"`
	BsDevDependencies  []string          `json:"bs-dev-dependencies,omitempty"`
	PpxFlags           []json.RawMessage `json:"ppx-flags,omitempty"`
	BscFlags           []json.RawMessage `json:"bsc-flags,omitempty"`
	Reason             *Reason           `json:"reason,omitempty"`
	NamespaceRaw       *NamespaceConfig  `json:"namespace,omitempty"`
	NamespaceEntry     string            `json:"namespace-entry,omitempty"`
	Jsx                *JSXConfig        `json:"jsx,omitempty"`
	Uncurried          *bool             `json:"uncurried,omitempty"`
	AllowedDependents  []string          `json:"allowed-dependents,omitempty"`
	GentypeConfig      json.RawMessage   `json:"gentypeconfig,omitempty"`
	CompilerVersion    string            `json:"compiler-version,omitempty"`

	// Derived, filled in by Load after the raw JSON is parsed.
	Sources      []Source      `json:"-"`
	PackageSpecs []PackageSpec `json:"-"`
}

// Find locates the first of FileNames present in dir, returning its
// full path. Mirrors packages::read_config's rescript.json-then-bsconfig.json
// precedence.
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Errorf("no %s found in %s", strings.Join(FileNames, " or "), dir)
}

// Load reads and parses the config file for the package at dir.
func Load(dir string) (*Config, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	return loadFile(path)
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "could not parse %s", path)
	}

	sources, err := unmarshalOneOrMoreSources(c.RawSources)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid \"sources\" in %s", path)
	}
	c.Sources = sources

	if len(c.RawPackageSpecs) > 0 {
		specs, err := unmarshalOneOrMorePackageSpecs(c.RawPackageSpecs)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid \"package-specs\" in %s", path)
		}
		c.PackageSpecs = specs
	}

	return &c, nil
}

func unmarshalOneOrMoreSources(data json.RawMessage) ([]Source, error) {
	if len(data) == 0 {
		return nil, errors.New("\"sources\" is required")
	}
	var one Source
	if err := json.Unmarshal(data, &one); err == nil && one.Dir != "" {
		return []Source{one}, nil
	}
	var many []Source
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, err
	}
	return many, nil
}

// HasGentypeConfig reports whether the "gentypeconfig" key was present,
// toggling the -bs-gentype compiler flag.
func (c *Config) HasGentypeConfig() bool {
	return len(c.GentypeConfig) > 0
}

// GetNamespace derives the package's Namespace per the branch table in
// spec.md 4.1 / config.rs:293-336.
func (c *Config) GetNamespace() namespace.Namespace {
	defaultName := namespace.FromPackageName(c.Name)

	if c.NamespaceRaw == nil || !c.NamespaceRaw.Set {
		return namespace.NoNamespace
	}

	var name string
	switch {
	case c.NamespaceRaw.IsBool:
		if !c.NamespaceRaw.BoolVal {
			return namespace.NoNamespace
		}
		name = defaultName
	default:
		switch c.NamespaceRaw.StrVal {
		case "true":
			name = defaultName
		default:
			if namespace.IsUpperFlat(c.NamespaceRaw.StrVal) {
				name = c.NamespaceRaw.StrVal
			} else {
				name = namespace.PascalCase(c.NamespaceRaw.StrVal)
			}
		}
	}

	if c.NamespaceEntry != "" {
		return namespace.NewWithEntry(name, c.NamespaceEntry)
	}
	return namespace.New(name)
}

// UncurriedDefault resolves the "uncurried" override, falling back to a
// compiler-version-gated default (rescript >= 11 defaults to true) when
// unset, using semver to compare rather than hand-parsing the major
// version string, per SPEC_FULL's Masterminds/semver wiring.
func (c *Config) UncurriedDefault() (bool, error) {
	if c.Uncurried != nil {
		return *c.Uncurried, nil
	}
	if c.CompilerVersion == "" {
		return false, nil
	}
	v, err := semver.NewVersion(normalizeVersion(c.CompilerVersion))
	if err != nil {
		return false, errors.Wrapf(err, "could not parse compiler version %q", c.CompilerVersion)
	}
	floor := semver.MustParse("11.0.0")
	return !v.LessThan(floor), nil
}

// normalizeVersion strips a leading "v" and keeps at most three
// dot-separated components so compiler version strings can be fed to
// semver.NewVersion; a version with a non-numeric component becomes
// "0.0.0".
func normalizeVersion(v string) string {
	v = strings.TrimPrefix(v, "v")
	parts := strings.SplitN(v, ".", 4)
	if len(parts) > 3 {
		v = strings.Join(parts[:3], ".")
	}
	for i, p := range parts {
		if i > 2 {
			break
		}
		if _, err := strconv.Atoi(p); err != nil {
			return "0.0.0"
		}
	}
	return v
}

// FlattenFlags flattens a ppx-flags/bsc-flags entry list, where each
// entry is either a scalar string or a list of strings, into one flat
// list of arguments, splitting on spaces — mirrors bsconfig.rs's
// flatten_flags.
func FlattenFlags(raw []json.RawMessage) ([]string, error) {
	var out []string
	for _, entry := range raw {
		var single string
		if err := json.Unmarshal(entry, &single); err == nil {
			out = append(out, strings.Fields(single)...)
			continue
		}
		var many []string
		if err := json.Unmarshal(entry, &many); err != nil {
			return nil, errors.Wrap(err, "flag entry must be a string or list of strings")
		}
		for _, m := range many {
			out = append(out, strings.Fields(m)...)
		}
	}
	return out, nil
}

// FlattenPpxFlags flattens ppx-flags into -ppx <absolute-path> pairs,
// rewriting relative (dot-prefixed) plugin paths to live under the
// package's own directory and everything else under the workspace's
// node_modules, mirroring bsconfig.rs's flatten_ppx_flags.
func FlattenPpxFlags(nodeModulesDir string, raw []json.RawMessage, packageName string) ([]string, error) {
	var out []string
	for _, entry := range raw {
		var single string
		if err := json.Unmarshal(entry, &single); err == nil {
			out = append(out, "-ppx", resolvePpxPath(nodeModulesDir, packageName, single))
			continue
		}
		var many []string
		if err := json.Unmarshal(entry, &many); err != nil {
			return nil, errors.Wrap(err, "ppx-flags entry must be a string or list of strings")
		}
		if len(many) == 0 {
			continue
		}
		resolved := append([]string{resolvePpxPath(nodeModulesDir, packageName, many[0])}, many[1:]...)
		out = append(out, "-ppx", strings.Join(resolved, " "))
	}
	return out, nil
}

func resolvePpxPath(nodeModulesDir, packageName, p string) string {
	if strings.HasPrefix(p, ".") {
		return nodeModulesDir + "/" + packageName + "/" + p
	}
	return nodeModulesDir + "/" + p
}

// String implements fmt.Stringer for debugging/log output.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Name: %s, Sources: %d}", c.Name, len(c.Sources))
}
