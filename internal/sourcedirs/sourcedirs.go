// Package sourcedirs emits P/lib/bs/.sourcedirs.json, the external
// collaborator interface editor tooling reads to know a package's
// resolved source directories (spec.md 6's external-collaborator
// surface, given concrete shape here per SPEC_FULL).
package sourcedirs

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rescript-lang/rewatch/buildstate"
	"github.com/rescript-lang/rewatch/internal/fs"
)

// Document is the emitted .sourcedirs.json shape: every directory a
// package's normalized source tree references, plus the names of its
// declared bs-dependencies (not their directories).
type Document struct {
	Dirs         []string `json:"dirs"`
	Dependencies []string `json:"dependencies"`
}

// Write emits the document for pkg under its build directory.
func Write(pkg *buildstate.Package) error {
	doc := Document{}
	for _, desc := range pkg.Sources {
		doc.Dirs = append(doc.Dirs, filepath.Join(pkg.Path, desc.Dir))
	}
	doc.Dependencies = append(doc.Dependencies, pkg.Config.BsDependencies...)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling sourcedirs document")
	}

	dir := filepath.Join(pkg.Path, "lib", "bs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	path := filepath.Join(dir, ".sourcedirs.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	// Write-then-rename instead of a direct write: a reader racing the
	// watcher's rebuild never observes a half-written document.
	if err := fs.RenameWithFallback(tmp, path); err != nil {
		return errors.Wrapf(err, "publishing %s", path)
	}
	return nil
}
