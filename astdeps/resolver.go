package astdeps

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rescript-lang/rewatch/buildstate"
)

// rawTokens reads an AST/IAST file's header and returns the raw,
// possibly-dotted module-identifier tokens it imports, per the AST file
// header contract (spec.md 6): skip the first NUL-prefixed line, collect
// non-empty lines until the first line starting with "/".
func rawTokens(astPath string) ([]string, error) {
	f, err := os.Open(astPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", astPath)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var tokens []string
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			continue
		}
		if strings.HasPrefix(line, "/") {
			break
		}
		if line != "" {
			tokens = append(tokens, line)
		}
	}
	return tokens, scanner.Err()
}

// resolveToken implements the six-step resolution algorithm of spec.md
// 4.6 / deps.rs's get_dep_modules for one raw token, returning "" if it
// should be dropped.
func resolveToken(token string, nsSuffix string, hasNamespace bool, pkgModules map[string]struct{}, validModules map[string]struct{}, importerPkgName string, b *buildstate.BuildState, allowedDeps map[string]struct{}) string {
	parts := strings.SplitN(token, ".", 2)
	first := parts[0]
	var second string
	hasSecond := len(parts) > 1
	if hasSecond {
		second = parts[1]
	}

	candidate := first
	if hasNamespace {
		if first == nsSuffix && hasSecond {
			candidate = strings.SplitN(second, ".", 2)[0]
		}
		namespaced := candidate + "-" + nsSuffix
		if _, ok := pkgModules[namespaced]; ok {
			candidate = namespaced
		} else if _, ok := validModules[namespaced]; ok {
			candidate = namespaced
		}
	}

	if hasNamespace && candidate == nsSuffix {
		return "" // a module does not depend on its own namespace aggregator
	}

	if _, ok := validModules[candidate]; !ok {
		return ""
	}

	target, ok := b.Module(candidate)
	if !ok {
		return candidate
	}
	if target.PackageName == importerPkgName {
		return candidate
	}
	if _, ok := allowedDeps[target.PackageName]; ok {
		return candidate
	}
	return ""
}

// Resolve runs the Dependency Resolver (C7) across every dirty module in
// b, applying the map-reduce discipline of spec.md 5/9: a parallel map
// over modules producing (name, deps) pairs, then a single-threaded
// sequential apply of deps/dependents/deps_dirty.
func Resolve(b *buildstate.BuildState, deletedModuleNames map[string]struct{}) error {
	validModules := map[string]struct{}{}
	for name := range b.ModuleNames {
		validModules[name] = struct{}{}
	}
	for name := range deletedModuleNames {
		validModules[name] = struct{}{}
	}

	type result struct {
		name string
		deps map[string]struct{}
	}

	modules := b.ModuleSnapshot()
	results := make([]result, 0, len(modules))
	resultsMu := make(chan result, len(modules))

	g := new(errgroup.Group)
	for name, m := range modules {
		name, m := name, m
		g.Go(func() error {
			if m.Kind == buildstate.SourceMlMap {
				resultsMu <- result{name: name, deps: m.Deps}
				return nil
			}
			if !m.DepsDirty && b.DepsInitialized {
				resultsMu <- result{name: name, deps: m.Deps}
				return nil
			}

			pkg, ok := b.Package(m.PackageName)
			if !ok {
				return errors.Errorf("module %q references unknown package %q", name, m.PackageName)
			}
			nsSuffix, hasNamespace := pkg.Namespace.Suffix()

			allowedDeps := map[string]struct{}{}
			for _, d := range pkg.Config.BsDependencies {
				allowedDeps[d] = struct{}{}
			}
			for _, d := range pkg.Config.BsDevDependencies {
				allowedDeps[d] = struct{}{}
			}

			deps := map[string]struct{}{}
			for _, fs := range []*buildstate.FileState{m.Implementation, m.Interface} {
				if fs == nil {
					continue
				}
				astPath := astPathFor(pkg.Path, fs.Path)
				tokens, err := rawTokens(astPath)
				if err != nil {
					continue // unreadable AST: treat as no deps from this file, parse error already recorded
				}
				for _, t := range tokens {
					if resolved := resolveToken(t, nsSuffix, hasNamespace, pkg.ModuleNames, validModules, pkg.Name, b, allowedDeps); resolved != "" {
						deps[resolved] = struct{}{}
					}
				}
			}

			if hasNamespace && pkg.Namespace.IsEntry(name) {
				deps[nsSuffix] = struct{}{}
			}
			delete(deps, name)

			resultsMu <- result{name: name, deps: deps}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	close(resultsMu)
	for r := range resultsMu {
		results = append(results, r)
	}

	// Single-threaded apply step: no locks needed, mirrors get_deps's
	// par_iter().collect().into_iter().for_each().
	for _, r := range results {
		m, ok := b.Module(r.name)
		if !ok {
			continue
		}
		for depName := range r.deps {
			if _, gone := deletedModuleNames[depName]; gone {
				// The dependency's source was deleted: keep no edge to a
				// module that no longer exists, and recompile the importer.
				delete(r.deps, depName)
				m.CompileDirty = true
			}
		}
		m.Deps = r.deps
		m.DepsDirty = false
	}
	for _, r := range results {
		for depName := range r.deps {
			if dep, ok := b.Module(depName); ok {
				dep.Dependents[r.name] = struct{}{}
			}
		}
	}

	b.DepsInitialized = true
	return nil
}

func astPathFor(packagePath, sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	isInterface := ext == ".resi" || ext == ".mli" || ext == ".rei"
	base := strings.TrimSuffix(filepath.Base(sourcePath), ext)
	outExt := ".ast"
	if isInterface {
		outExt = ".iast"
	}
	return filepath.Join(packagePath, "lib", "bs", base+outExt)
}
