// Package pkgtree walks the declared package dependency tree from a root
// config (Package Resolver, C2) and enumerates each package's source
// files (Source Scanner, C3).
//
// Grounded on the teacher's dependency-closure walk (golang-dep's
// project_manager.go/rootdata.go style: depth-first over declared
// dependency names, first-hit-wins, never re-walk a seen name) and
// _examples/original_source/src/build/packages.rs (read_dependency's
// three-candidate node_modules search order, lines 1-260) and
// packages.rs:874 (validate_packages_dependencies).
package pkgtree

import (
	"path/filepath"

	"github.com/armon/go-radix"
	"github.com/pkg/errors"

	"github.com/rescript-lang/rewatch/buildstate"
	"github.com/rescript-lang/rewatch/config"
	"github.com/rescript-lang/rewatch/internal/fs"
)

// Resolver walks a root package's declared bs-dependencies and builds
// the deduplicated package map.
type Resolver struct {
	ProjectRoot   string
	WorkspaceRoot string // optional outer workspace root; "" if none

	// visited tracks package directories already claimed, so a name
	// encountered twice is never re-walked; keyed by absolute path
	// (symlinks not resolved) via a radix tree for prefix-shaped workspace-root
	// lookups.
	visited *radix.Tree
}

// NewResolver constructs a Resolver rooted at projectRoot.
func NewResolver(projectRoot, workspaceRoot string) *Resolver {
	return &Resolver{
		ProjectRoot:   projectRoot,
		WorkspaceRoot: workspaceRoot,
		visited:       radix.New(),
	}
}

// candidateDirs returns, in search order, the node_modules directories
// that may hold name: sibling of the importer's own path, of the
// project root, then (if configured) of the outer workspace root.
func (r *Resolver) candidateDirs(importerPath, name string) []string {
	var dirs []string
	dirs = append(dirs, filepath.Join(importerPath, "node_modules", name))
	dirs = append(dirs, filepath.Join(r.ProjectRoot, "node_modules", name))
	if r.WorkspaceRoot != "" {
		dirs = append(dirs, filepath.Join(r.WorkspaceRoot, "node_modules", name))
	}
	return dirs
}

// locate finds the first existing candidate directory for a dependency
// name, made absolute with filepath.Abs, rejecting any candidate whose
// absolute path lies outside the project root (or the outer workspace
// root, when configured). Symlinks are not resolved: a node_modules
// symlink is checked by its own path, not by the directory it points to.
func (r *Resolver) locate(importerPath, name string) (string, error) {
	for _, candidate := range r.candidateDirs(importerPath, name) {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if !r.withinWorkspace(abs) {
			continue
		}
		if _, ok := r.visited.Get(abs); ok {
			return abs, nil
		}
		if st, err := statDir(abs); err == nil && st {
			return abs, nil
		}
	}
	return "", errors.Errorf("could not locate dependency %q from %s", name, importerPath)
}

// withinWorkspace reports whether abs lies under the project root or,
// when set, the outer workspace root.
func (r *Resolver) withinWorkspace(abs string) bool {
	root, _ := filepath.Abs(r.ProjectRoot)
	if fs.HasFilepathPrefix(abs, root) {
		return true
	}
	if r.WorkspaceRoot == "" {
		return false
	}
	workspace, _ := filepath.Abs(r.WorkspaceRoot)
	return fs.HasFilepathPrefix(abs, workspace)
}

// Resolve performs the depth-first walk from the root package at
// rootPath, returning a BuildState populated with every reachable
// package (deduplicated) or a fatal error per spec.md 4.2/7.
func Resolve(rootPath string) (*buildstate.BuildState, error) {
	rootCfg, err := config.Load(rootPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading root config")
	}

	b := buildstate.New(rootPath)
	r := NewResolver(rootPath, "")

	root := buildstate.NewPackage(rootCfg.Name, rootPath, rootCfg)
	root.IsRoot = true
	b.AddPackage(root)
	r.visited.Insert(rootPath, rootCfg.Name)

	if err := r.walk(b, root, false); err != nil {
		return nil, err
	}
	if err := ValidateDependents(b); err != nil {
		return nil, err
	}
	return b, nil
}

// walk recursively resolves importer's bs-dependencies (and, when
// includeDev, bs-dev-dependencies), adding each newly discovered
// package to b.
func (r *Resolver) walk(b *buildstate.BuildState, importer *buildstate.Package, includeDev bool) error {
	names := append([]string{}, importer.Config.BsDependencies...)
	if includeDev {
		names = append(names, importer.Config.BsDevDependencies...)
	}

	pinned := map[string]struct{}{}
	for _, p := range importer.Config.PinnedDependencies {
		pinned[p] = struct{}{}
	}

	for _, name := range names {
		if existing, ok := b.Package(name); ok {
			if _, isPinned := pinned[name]; isPinned {
				existing.IsPinnedDep = true
			}
			continue
		}

		dir, err := r.locate(importer.Path, name)
		if err != nil {
			return errors.Wrap(err, "resolving declared dependency")
		}
		r.visited.Insert(dir, name)

		cfg, err := config.Load(dir)
		if err != nil {
			return errors.Wrapf(err, "loading config for dependency %q", name)
		}

		pkg := buildstate.NewPackage(name, dir, cfg)
		pkg.IsLocalDep = true
		if _, isPinned := pinned[name]; isPinned {
			pkg.IsPinnedDep = true
		}
		b.AddPackage(pkg)

		if err := r.walk(b, pkg, includeDev); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDependents enforces each declared dependency edge P -> Q
// against Q.config.allowed-dependents, per packages.rs:874.
func ValidateDependents(b *buildstate.BuildState) error {
	for _, p := range b.Packages {
		for _, depName := range append(append([]string{}, p.Config.BsDependencies...), p.Config.BsDevDependencies...) {
			dep, ok := b.Package(depName)
			if !ok {
				continue
			}
			if len(dep.Config.AllowedDependents) == 0 {
				continue
			}
			allowed := false
			for _, a := range dep.Config.AllowedDependents {
				if a == p.Name {
					allowed = true
					break
				}
			}
			if !allowed {
				return errors.Errorf("package %q is not an allowed dependent of %q", p.Name, dep.Name)
			}
		}
	}
	return nil
}
