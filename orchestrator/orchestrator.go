// Package orchestrator drives the phase pipeline (C11): resolve packages
// -> scan sources -> scan artifacts -> reconcile dirtiness -> extract
// deps -> compile -> post-build cleanup, returning a process exit code.
//
// Grounded on spec.md 4.9's barrier semantics and the teacher's
// top-level command-dispatch flow in cmd/dep (each phase here plays the
// role the teacher's ensure.go gives its solve->write->vendor pipeline:
// sequential barriers, concurrent work inside each).
package orchestrator

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rescript-lang/rewatch/artifacts"
	"github.com/rescript-lang/rewatch/astdeps"
	"github.com/rescript-lang/rewatch/buildstate"
	"github.com/rescript-lang/rewatch/internal/fs"
	"github.com/rescript-lang/rewatch/internal/lock"
	"github.com/rescript-lang/rewatch/internal/sourcedirs"
	"github.com/rescript-lang/rewatch/internal/toml"
	"github.com/rescript-lang/rewatch/pkgtree"
	"github.com/rescript-lang/rewatch/scheduler"
)

var log = logrus.StandardLogger()

// ExitCode mirrors spec.md 6's 0/1/2 contract.
type ExitCode int

const (
	ExitSuccess     ExitCode = 0
	ExitBuildErrors ExitCode = 1
	ExitFatal       ExitCode = 2
)

// Options configures one orchestrator run.
type Options struct {
	ProjectRoot      string
	BscPath          string
	BuildDevDeps     bool
	Workers          int64
	CycleBaseline    string
	DiffCycle        bool
	CreateSourcedirs bool
}

// Result is what one Run call reports back to the CLI layer.
type Result struct {
	ExitCode   ExitCode
	Compiled   []string
	Cycle      []string
	BuildState *buildstate.BuildState
}

// Run executes the full phase pipeline once.
func Run(ctx context.Context, opts Options) (Result, error) {
	release, err := lock.Acquire(filepath.Join(opts.ProjectRoot, "rewatch.lock"))
	if err != nil {
		return Result{ExitCode: ExitBuildErrors}, err
	}
	defer release()

	overrides, _ := toml.Load(filepath.Join(opts.ProjectRoot, "rewatch.toml"))
	workers := opts.Workers
	if workers <= 0 {
		if overrides != nil && overrides.Build.Workers > 0 {
			workers = int64(overrides.Build.Workers)
		} else {
			workers = int64(runtime.NumCPU())
		}
	}

	// resolve packages (C2)
	b, err := pkgtree.Resolve(opts.ProjectRoot)
	if err != nil {
		return Result{ExitCode: ExitFatal}, errors.Wrap(err, "resolving package graph")
	}

	// scan sources (C3)
	for _, pkg := range b.Packages {
		if err := pkgtree.ScanPackage(b, pkg, pkgtree.ScanOptions{BuildDevDeps: opts.BuildDevDeps}); err != nil {
			return Result{ExitCode: ExitFatal, BuildState: b}, errors.Wrap(err, "scanning package sources")
		}
		if opts.CreateSourcedirs {
			if err := sourcedirs.Write(pkg); err != nil {
				return Result{ExitCode: ExitFatal, BuildState: b}, errors.Wrap(err, "emitting sourcedirs")
			}
		}
	}

	// scan artifacts, reconcile dirtiness (C4/C5)
	cachePath := filepath.Join(opts.ProjectRoot, ".rewatch-cache.db")
	cache, cacheErr := artifacts.OpenCache(cachePath)
	if cacheErr != nil {
		log.WithError(cacheErr).Warn("opening incremental cache, falling back to a full artifact scan")
		cache = nil
	} else {
		defer cache.Close()
	}

	scan, err := artifacts.Scan(b)
	if err != nil {
		return Result{ExitCode: ExitFatal, BuildState: b}, errors.Wrap(err, "scanning artifacts")
	}
	deleted, err := artifacts.Reconcile(b, scan, cache)
	if err != nil {
		return Result{ExitCode: ExitFatal, BuildState: b}, errors.Wrap(err, "reconciling dirty state")
	}
	if cache != nil {
		if err := cache.PutAll(currentSourceRecords(b)); err != nil {
			log.WithError(err).Warn("writing incremental cache")
		}
	}
	deletedNames := map[string]struct{}{}
	for _, d := range deleted {
		deletedNames[d.ModuleName] = struct{}{}
		purgeArtifacts(findPackagePath(b, d.PackageName), d.ModuleName)
	}

	// extract deps (C6/C7)
	extractor := astdeps.NewExtractor(opts.BscPath, workers)
	if err := extractor.Run(ctx, b); err != nil {
		return Result{ExitCode: ExitBuildErrors, BuildState: b}, errors.Wrap(err, "extracting AST dependencies")
	}
	if err := astdeps.Resolve(b, deletedNames); err != nil {
		return Result{ExitCode: ExitFatal, BuildState: b}, errors.Wrap(err, "resolving module dependencies")
	}

	// compile (C8/C9)
	sched := scheduler.NewScheduler(compileModule(opts, b), workers)
	compiled, cycle, err := sched.Run(ctx, b)
	if cycle != nil {
		formatted := scheduler.FormatCycle(cycle, namePrinter(b))
		reportCycle(opts, formatted)
		return Result{ExitCode: ExitBuildErrors, Cycle: cycle, BuildState: b}, errors.New("dependency cycle: " + formatted)
	}
	if err != nil {
		return Result{ExitCode: ExitBuildErrors, Compiled: compiled, BuildState: b}, err
	}

	// post-build cleanup: purge artifacts of modules that ended in
	// Error|Warning.
	for name, m := range b.ModuleSnapshot() {
		purge := compileFailed(m)
		for _, file := range []*buildstate.FileState{m.Implementation, m.Interface} {
			if file != nil && file.CompileState == buildstate.CompileWarning {
				purge = true
			}
		}
		if purge {
			purgeArtifacts(findPackagePath(b, m.PackageName), name)
		}
	}

	if anyErrors(b) {
		return Result{ExitCode: ExitBuildErrors, Compiled: compiled, BuildState: b}, nil
	}
	return Result{ExitCode: ExitSuccess, Compiled: compiled, BuildState: b}, nil
}

// compileModule shells out to the compiler driver for each file of a
// module, the same trichotomy runOne uses in the AST extraction phase
// (empty stderr -> success, non-empty + exit 0 -> warning, nonzero exit
// -> error), then compares the CMI's contents before and after the call to
// decide whether the module's public interface changed (and the CMT's
// contents for the implementation channel). The actual bsc
// invocation lives here, at the orchestrator boundary, rather than
// inside the scheduler package: C8 is pure traversal over this
// sub-process contract and does not know how to invoke the compiler.
func compileModule(opts Options, b *buildstate.BuildState) scheduler.Compiler {
	return func(ctx context.Context, m *buildstate.Module) (scheduler.CompileOutcome, error) {
		if m.Kind != buildstate.SourceFile {
			return scheduler.CompileOutcome{State: buildstate.CompileSuccess}, nil
		}
		pkg, ok := b.Package(m.PackageName)
		if !ok {
			return scheduler.CompileOutcome{State: buildstate.CompileError}, errors.Errorf("compiling %s: unknown package %s", m.Name, m.PackageName)
		}
		dir := artifacts.BuildDir(pkg.Path)
		cmiPath := filepath.Join(dir, m.Name+".cmi")
		cmtPath := filepath.Join(dir, m.Name+".cmt")
		cmiBefore, cmiErr := os.ReadFile(cmiPath)
		cmtBefore, cmtErr := os.ReadFile(cmtPath)

		var outcome scheduler.CompileOutcome
		outcome.State = buildstate.CompileSuccess
		for _, file := range []*buildstate.FileState{m.Interface, m.Implementation} {
			if file == nil {
				continue
			}
			// A compile error is recorded state, not a returned Go error:
			// returning it here would propagate into the scheduler's
			// errgroup and cancel every sibling module still compiling in
			// this frontier batch. runCompile's error only ever
			// accompanies CompileError, so it carries no information
			// beyond what file.CompileState already records.
			state, err := runCompile(ctx, opts.BscPath, dir, file.Path)
			file.CompileState = state
			if state == buildstate.CompileError {
				outcome.State = buildstate.CompileError
				log.WithError(err).WithField("module", file.Path).Debug("compile error")
			} else if state == buildstate.CompileWarning && outcome.State != buildstate.CompileError {
				outcome.State = buildstate.CompileWarning
			}
		}

		if after, err := os.ReadFile(cmiPath); err == nil && (cmiErr != nil || !bytes.Equal(after, cmiBefore)) {
			outcome.InterfaceChanged = true
		}
		if after, err := os.ReadFile(cmtPath); err == nil && outcome.State == buildstate.CompileSuccess && (cmtErr != nil || !bytes.Equal(after, cmtBefore)) {
			outcome.ImplChanged = true
		}
		return outcome, nil
	}
}

// runCompile invokes the driver for one already-parsed file, producing
// its .cmi/.cmt/.cmj outputs.
func runCompile(ctx context.Context, driver, workDir, sourcePath string) (buildstate.CompileState, error) {
	if driver == "" {
		driver = "bsc"
	}
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	cmd := exec.CommandContext(ctx, driver, "-bs-cmi-only=false", "-o", base, sourcePath)
	cmd.Dir = workDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	stderrText := stderr.String()
	if err != nil {
		return buildstate.CompileError, errors.Wrapf(err, "compiling %s", sourcePath)
	}
	if strings.TrimSpace(stderrText) != "" {
		return buildstate.CompileWarning, nil
	}
	return buildstate.CompileSuccess, nil
}

// currentSourceRecords snapshots the current source mtime (and the
// module's CMI digest) of every source file that reconciliation found
// clean into cache records, written back after reconciliation so the
// next run's fast path has fresh data to compare against. Files still
// parse-dirty get no record, so a source that has not been parsed yet is
// never taken as clean from the cache.
func currentSourceRecords(b *buildstate.BuildState) map[string]artifacts.CacheRecord {
	records := map[string]artifacts.CacheRecord{}
	for _, m := range b.Modules {
		if m.Kind != buildstate.SourceFile {
			continue
		}
		pkg, ok := b.Package(m.PackageName)
		if !ok {
			continue
		}
		digest, _ := fs.HashFromNode(artifacts.BuildDir(pkg.Path), m.Name+".cmi")
		for _, file := range []*buildstate.FileState{m.Implementation, m.Interface} {
			if file == nil || file.Dirty {
				continue
			}
			abs, err := filepath.Abs(filepath.Join(pkg.Path, file.Path))
			if err != nil {
				continue
			}
			records[abs] = artifacts.CacheRecord{SourceMTime: file.LastModified, CMIDigest: digest}
		}
	}
	return records
}

func findPackagePath(b *buildstate.BuildState, packageName string) string {
	if pkg, ok := b.Package(packageName); ok {
		return pkg.Path
	}
	return ""
}

func purgeArtifacts(packagePath, moduleName string) {
	if packagePath == "" {
		return
	}
	dir := artifacts.BuildDir(packagePath)
	for _, ext := range []string{".ast", ".iast", ".cmi", ".cmt", ".cmj", ".cmti"} {
		_ = os.Remove(filepath.Join(dir, moduleName+ext))
	}
}

func compileFailed(m *buildstate.Module) bool {
	for _, file := range []*buildstate.FileState{m.Implementation, m.Interface} {
		if file != nil && (file.CompileState == buildstate.CompileError || file.ParseState == buildstate.ParseError) {
			return true
		}
	}
	return false
}

func anyErrors(b *buildstate.BuildState) bool {
	for _, m := range b.Modules {
		if compileFailed(m) {
			return true
		}
	}
	return false
}

func namePrinter(b *buildstate.BuildState) func(string) string {
	return func(name string) string { return name }
}

func reportCycle(opts Options, formatted string) {
	if opts.CycleBaseline == "" {
		return
	}
	_, changed, err := scheduler.DiffAgainstBaseline(opts.CycleBaseline, formatted)
	if err == nil && !changed {
		os.Stderr.WriteString("(unchanged from baseline)\n")
	}
}
