package buildstate

import "github.com/pkg/errors"

// Invariant is a single quantified property a BuildState must hold,
// exercised directly by the property tests (spec.md 8, items 1-4).
type Invariant func(*BuildState) error

// CheckReciprocalEdges verifies every deps/dependents edge is mirrored.
func CheckReciprocalEdges(b *BuildState) error {
	for name, m := range b.Modules {
		for dep := range m.Deps {
			target, ok := b.Modules[dep]
			if !ok {
				return errors.Errorf("module %q depends on unknown module %q", name, dep)
			}
			if _, ok := target.Dependents[name]; !ok {
				return errors.Errorf("module %q -> %q has no reverse edge", name, dep)
			}
		}
	}
	return nil
}

// CheckNoSelfDeps verifies M never depends on itself.
func CheckNoSelfDeps(b *BuildState) error {
	for name, m := range b.Modules {
		if _, ok := m.Deps[name]; ok {
			return errors.Errorf("module %q depends on itself", name)
		}
	}
	return nil
}

// CheckCrossPackageVisibility verifies every cross-package edge is
// declared in the importer's bs-dependencies or bs-dev-dependencies.
func CheckCrossPackageVisibility(b *BuildState) error {
	for name, m := range b.Modules {
		importer, ok := b.Packages[m.PackageName]
		if !ok {
			return errors.Errorf("module %q belongs to unknown package %q", name, m.PackageName)
		}
		allowed := map[string]struct{}{importer.Name: {}}
		for _, d := range importer.Config.BsDependencies {
			allowed[d] = struct{}{}
		}
		for _, d := range importer.Config.BsDevDependencies {
			allowed[d] = struct{}{}
		}
		for dep := range m.Deps {
			target, ok := b.Modules[dep]
			if !ok {
				continue
			}
			if _, ok := allowed[target.PackageName]; !ok {
				return errors.Errorf("edge %q -> %q crosses into undeclared package %q", name, dep, target.PackageName)
			}
		}
	}
	return nil
}

// CheckPackageNamePresent verifies every module's package_name resolves.
func CheckPackageNamePresent(b *BuildState) error {
	for name, m := range b.Modules {
		if _, ok := b.Packages[m.PackageName]; !ok {
			return errors.Errorf("module %q references missing package %q", name, m.PackageName)
		}
	}
	return nil
}

// CheckCleanBuildSettled verifies that after a clean build every module
// is compile-clean and its file states settled (spec.md 8, item 4).
func CheckCleanBuildSettled(b *BuildState) error {
	for name, m := range b.Modules {
		if m.CompileDirty {
			return errors.Errorf("module %q still compile-dirty after clean build", name)
		}
		for _, fs := range []*FileState{m.Implementation, m.Interface} {
			if fs == nil {
				continue
			}
			if fs.ParseState != ParseSuccess && fs.ParseState != ParseWarning {
				return errors.Errorf("module %q file %s did not settle to success/warning", name, fs.Path)
			}
		}
	}
	return nil
}

// All runs every invariant except CheckCleanBuildSettled (which only
// holds after a clean build), returning the first failure.
func All(b *BuildState) error {
	checks := []Invariant{
		CheckReciprocalEdges,
		CheckNoSelfDeps,
		CheckCrossPackageVisibility,
		CheckPackageNamePresent,
	}
	for _, c := range checks {
		if err := c(b); err != nil {
			return err
		}
	}
	return nil
}
