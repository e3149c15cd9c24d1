package artifacts

import (
	"path/filepath"

	"github.com/rescript-lang/rewatch/buildstate"
)

// DeletedModule is one entry of A \ S: an artifact whose source no
// longer exists in the module table.
type DeletedModule struct {
	ModuleName  string
	PackageName string
}

// Reconcile compares the artifact scan against the current module table
// and seeds parse-dirty/compile-dirty flags (C5), returning the modules
// whose sources were deleted so callers can propagate dirtiness to their
// former dependents and purge stale outputs. Pass a non-nil cache to
// consult it as a fast path in place of the AST mtime comparison
// (the cache is a speed optimization over mtimes, never a replacement
// source of truth).
func Reconcile(b *buildstate.BuildState, scan *ScanResult, cache *Cache) ([]DeletedModule, error) {
	sourcePaths := map[string]string{} // absolute source path -> module name

	for name, m := range b.Modules {
		pkg, ok := b.Package(m.PackageName)
		if !ok || m.Kind != buildstate.SourceFile {
			continue
		}
		if m.Implementation != nil {
			abs, err := filepath.Abs(filepath.Join(pkg.Path, m.Implementation.Path))
			if err == nil {
				sourcePaths[abs] = name
			}
		}
		if m.Interface != nil {
			abs, err := filepath.Abs(filepath.Join(pkg.Path, m.Interface.Path))
			if err == nil {
				sourcePaths[abs] = name
			}
		}
	}

	var deleted []DeletedModule
	for srcPath, ast := range scan.AstModules {
		if _, ok := sourcePaths[srcPath]; !ok {
			deleted = append(deleted, DeletedModule{ModuleName: ast.ModuleName, PackageName: ast.PackageName})
		}
	}

	for name, m := range b.Modules {
		if m.Kind != buildstate.SourceFile {
			continue
		}
		pkg, ok := b.Package(m.PackageName)
		if !ok {
			continue
		}

		reconcileFile(pkg, m.Implementation, scan, cache)
		reconcileFile(pkg, m.Interface, scan, cache)

		if m.Implementation != nil && m.Implementation.Dirty {
			continue // S \ A: new source, stays parse_dirty/compile_dirty
		}
		if m.Interface != nil && m.Interface.Dirty {
			continue
		}

		cmiTime, hasCMI := scan.CMIModules[name]
		if !hasCMI {
			continue
		}
		latestSource := m.Implementation.LastModified
		if m.Interface != nil && m.Interface.LastModified.After(latestSource) {
			latestSource = m.Interface.LastModified
		}
		if cmiTime.After(latestSource) {
			m.CompileDirty = false
		}
	}

	for _, d := range deleted {
		b.RemoveModule(d.ModuleName)
	}

	return deleted, nil
}

// reconcileFile applies the A ∩ S "clean" rule to one FileState. A
// source with no AST artifact stays dirty. Otherwise, when a cache
// record's source mtime exactly matches the file's current mtime, the
// file is taken as clean without comparing it to the AST's mtime;
// failing that (and always when no cache is present), the AST scan's
// mtime comparison decides.
func reconcileFile(pkg *buildstate.Package, fs *buildstate.FileState, scan *ScanResult, cache *Cache) {
	if fs == nil {
		return
	}
	abs, err := filepath.Abs(filepath.Join(pkg.Path, fs.Path))
	if err != nil {
		return
	}

	ast, ok := scan.AstModules[abs]
	if !ok {
		return // S \ A: new source
	}

	if cache != nil {
		if rec, ok, err := cache.Get(abs); err == nil && ok && rec.Matches(fs.LastModified) {
			fs.Dirty = false
			return
		}
	}

	if ast.LastModified.After(fs.LastModified) {
		fs.Dirty = false
	}
}

