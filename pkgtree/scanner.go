package pkgtree

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rescript-lang/rewatch/buildstate"
	"github.com/rescript-lang/rewatch/config"
)

// SourceExtensions, split by implementation vs. interface, mirror the
// compiler's recognized file suffixes.
var (
	ImplExtensions = map[string]struct{}{".res": {}, ".ml": {}, ".re": {}}
	IntfExtensions = map[string]struct{}{".resi": {}, ".mli": {}, ".rei": {}}
)

// NormalizeSources flattens a package's raw source tree into concrete
// {dir, recurse, dev} leaves, per spec.md 4.1/packages.rs:198's
// get_source_dirs: a "subdirs: true" leaf recurses; a qualified child
// list is non-recursive but each child becomes its own leaf; dev-type
// propagates to unqualified children.
func NormalizeSources(sources []config.Source, parentDev bool) []buildstate.SourceDescriptor {
	var out []buildstate.SourceDescriptor
	for _, s := range sources {
		dev := parentDev || s.Type == config.TypeDev
		switch {
		case s.SubdirsRecurse != nil:
			out = append(out, buildstate.SourceDescriptor{Dir: s.Dir, Recurse: *s.SubdirsRecurse, Dev: dev})
		case len(s.SubdirsQualified) > 0:
			out = append(out, buildstate.SourceDescriptor{Dir: s.Dir, Recurse: false, Dev: dev})
			children := NormalizeSources(s.SubdirsQualified, dev)
			for i := range children {
				children[i].Dir = filepath.Join(s.Dir, children[i].Dir)
			}
			out = append(out, children...)
		default:
			out = append(out, buildstate.SourceDescriptor{Dir: s.Dir, Recurse: false, Dev: dev})
		}
	}
	return out
}

// ScanOptions controls Source Scanner behavior not carried on the
// package config itself.
type ScanOptions struct {
	BuildDevDeps bool
	Filter       *regexp.Regexp
}

// ScanPackage enumerates every Package's source files and registers the
// corresponding Module entries (C3), plus the namespace aggregator
// module when the package is namespaced.
func ScanPackage(b *buildstate.BuildState, pkg *buildstate.Package, opts ScanOptions) error {
	pkg.Sources = NormalizeSources(pkg.Config.Sources, false)

	for _, desc := range pkg.Sources {
		if desc.Dev && !opts.BuildDevDeps {
			continue
		}
		if err := scanDescriptor(b, pkg, desc, opts); err != nil {
			return errors.Wrapf(err, "scanning %s in package %q", desc.Dir, pkg.Name)
		}
	}

	if _, ok := pkg.Namespace.Suffix(); ok {
		aggregatorName := pkg.Namespace.AggregatorModuleName()
		m := buildstate.NewModule(aggregatorName, pkg.Name, buildstate.SourceMlMap)
		m.MlMapDirty = true
		if err := b.AddModule(m); err != nil {
			return err
		}
	}

	return nil
}

func scanDescriptor(b *buildstate.BuildState, pkg *buildstate.Package, desc buildstate.SourceDescriptor, opts ScanOptions) error {
	root := filepath.Join(pkg.Path, desc.Dir)
	entries, err := os.ReadDir(root)
	if err != nil {
		// Filesystem enumeration error: log-and-continue per spec.md 7;
		// the package simply contributes nothing from this descriptor.
		logrus.WithError(err).WithField("dir", root).Warn("scanning source directory")
		return nil
	}

	grouped := map[string]*fileGroup{}
	var subdirs []string

	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, e.Name())
			continue
		}
		name := e.Name()
		if opts.Filter != nil && !opts.Filter.MatchString(name) {
			continue
		}
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		info, err := e.Info()
		if err != nil {
			continue
		}
		rel := filepath.Join(desc.Dir, name)

		if _, isImpl := ImplExtensions[ext]; isImpl {
			g := grouped[base]
			if g == nil {
				g = &fileGroup{}
				grouped[base] = g
			}
			g.implPath = rel
			g.implMTime = info.ModTime()
		} else if _, isIntf := IntfExtensions[ext]; isIntf {
			g := grouped[base]
			if g == nil {
				g = &fileGroup{}
				grouped[base] = g
			}
			g.intfPath = rel
			g.intfMTime = info.ModTime()
		}
	}

	for base, g := range grouped {
		if g.implPath == "" {
			// An interface file with no matching implementation names
			// no module; skip (compile errors on true orphans surface
			// from the extractor, not here).
			continue
		}
		moduleName := pkg.Namespace.ModuleName(ModuleNameFromBasename(base))
		m := buildstate.NewModule(moduleName, pkg.Name, buildstate.SourceFile)
		m.Implementation = &buildstate.FileState{Path: g.implPath, LastModified: g.implMTime, Dirty: true}
		if g.intfPath != "" {
			m.Interface = &buildstate.FileState{Path: g.intfPath, LastModified: g.intfMTime, Dirty: true}
		}
		if err := b.AddModule(m); err != nil {
			return err
		}
		pkg.SourceMTime[g.implPath] = g.implMTime
		if g.intfPath != "" {
			pkg.SourceMTime[g.intfPath] = g.intfMTime
		}
	}

	if desc.Recurse {
		for _, sub := range subdirs {
			childDesc := buildstate.SourceDescriptor{Dir: filepath.Join(desc.Dir, sub), Recurse: true, Dev: desc.Dev}
			if err := scanDescriptor(b, pkg, childDesc, opts); err != nil {
				return err
			}
		}
	}

	return nil
}

type fileGroup struct {
	implPath  string
	intfPath  string
	implMTime time.Time
	intfMTime time.Time
}

// ModuleNameFromBasename capitalizes a file's basename into its module
// name, mirroring helpers.rs's file_path_to_module_name/capitalize.
func ModuleNameFromBasename(base string) string {
	r := []rune(base)
	if len(r) == 0 {
		return base
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
