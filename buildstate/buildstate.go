// Package buildstate owns the single mutable model of a build: packages,
// modules, and the module-name set, threaded by reference through every
// phase of the orchestrator.
//
// Grounded on _examples/original_source/src/build/build_types.rs (the
// Rust Package/Module/BuildState shapes) and the teacher's preference for
// concrete structs with name-keyed sets over owning pointers (see
// golang-dep's gps.ProjectProperties / bare map[ProjectRoot]... idiom).
package buildstate

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rescript-lang/rewatch/config"
	"github.com/rescript-lang/rewatch/namespace"
)

// ParseState is the outcome of running a file through the external parser.
type ParseState int

const (
	ParsePending ParseState = iota
	ParseError
	ParseWarning
	ParseSuccess
)

// CompileState is the outcome of compiling a module.
type CompileState int

const (
	CompilePending CompileState = iota
	CompileError
	CompileWarning
	CompileSuccess
)

// FileState is shared by Implementation and Interface: a source file, its
// parser/compiler outcome, and whether its AST artifact needs refreshing.
type FileState struct {
	Path         string
	ParseState   ParseState
	CompileState CompileState
	LastModified time.Time
	// Dirty means the source is newer than its AST artifact and must be
	// re-parsed.
	Dirty bool
}

// SourceKind distinguishes a regular source-backed module from the
// synthetic namespace aggregator.
type SourceKind int

const (
	SourceFile SourceKind = iota
	SourceMlMap
)

// Module is keyed by its globally unique module name.
type Module struct {
	Name        string
	PackageName string
	Kind        SourceKind

	// Populated when Kind == SourceFile.
	Implementation *FileState
	Interface      *FileState

	// Populated when Kind == SourceMlMap; true until the aggregator's
	// rewritten-then-compiled CMI hash is confirmed unchanged.
	MlMapDirty bool

	Deps       map[string]struct{}
	Dependents map[string]struct{}

	CompileDirty bool
	DepsDirty    bool

	LastCompiledCMI time.Time
	LastCompiledCMT time.Time
}

// NewModule constructs a Module with empty edge sets.
func NewModule(name, packageName string, kind SourceKind) *Module {
	return &Module{
		Name:         name,
		PackageName:  packageName,
		Kind:         kind,
		Deps:         map[string]struct{}{},
		Dependents:   map[string]struct{}{},
		CompileDirty: true,
		DepsDirty:    true,
	}
}

// AddDep records a dependency edge and its reverse; callers apply this
// during the single-threaded reduce step after extraction, never
// concurrently (see Dependency Resolver's map-reduce discipline).
func (m *Module) AddDep(target *Module) {
	if target.Name == m.Name {
		return
	}
	m.Deps[target.Name] = struct{}{}
	target.Dependents[m.Name] = struct{}{}
}

// SourceDescriptor is one normalized {dir, recurse, type} leaf of a
// package's source tree.
type SourceDescriptor struct {
	Dir     string
	Recurse bool
	Dev     bool
}

// Package is identified by its unique name across the whole build.
type Package struct {
	Name        string
	Path        string
	Config      *config.Config
	Sources     []SourceDescriptor
	SourceMTime map[string]time.Time

	Namespace   namespace.Namespace
	ModuleNames map[string]struct{}

	IsPinnedDep bool
	IsLocalDep  bool
	IsRoot      bool
}

// NewPackage constructs an empty Package.
func NewPackage(name, path string, cfg *config.Config) *Package {
	return &Package{
		Name:        name,
		Path:        path,
		Config:      cfg,
		SourceMTime: map[string]time.Time{},
		Namespace:   cfg.GetNamespace(),
		ModuleNames: map[string]struct{}{},
	}
}

// BuildState is the single mutable owner of a build's package and module
// tables. Every exported map is guarded by mu for the rare cross-phase
// read during logging/status output; within a phase the map-reduce
// discipline means no contention on the hot path.
type BuildState struct {
	mu sync.RWMutex

	Packages   map[string]*Package
	Modules    map[string]*Module
	ModuleNames map[string]struct{}

	ProjectRoot    string
	RootConfigName string
	DepsInitialized bool
}

// New returns an empty BuildState rooted at projectRoot.
func New(projectRoot string) *BuildState {
	return &BuildState{
		Packages:    map[string]*Package{},
		Modules:     map[string]*Module{},
		ModuleNames: map[string]struct{}{},
		ProjectRoot: projectRoot,
	}
}

// AddPackage registers a package, keyed by its unique name.
func (b *BuildState) AddPackage(p *Package) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Packages[p.Name] = p
}

// AddModule registers a module and records its name in the global name
// set, enforcing the global-uniqueness invariant.
func (b *BuildState) AddModule(m *Module) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.Modules[m.Name]; exists {
		return errors.Errorf("duplicate module name %q", m.Name)
	}
	b.Modules[m.Name] = m
	b.ModuleNames[m.Name] = struct{}{}
	if pkg, ok := b.Packages[m.PackageName]; ok {
		pkg.ModuleNames[m.Name] = struct{}{}
	}
	return nil
}

// RemoveModule deletes a module whose source was deleted (A \ S in the
// Artifact Scanner's set algebra), returning it so callers can propagate
// dirtiness to its former dependents.
func (b *BuildState) RemoveModule(name string) *Module {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.Modules[name]
	if !ok {
		return nil
	}
	delete(b.Modules, name)
	delete(b.ModuleNames, name)
	if pkg, ok := b.Packages[m.PackageName]; ok {
		delete(pkg.ModuleNames, name)
	}
	return m
}

// Module looks up a module by name.
func (b *BuildState) Module(name string) (*Module, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.Modules[name]
	return m, ok
}

// Package looks up a package by name.
func (b *BuildState) Package(name string) (*Package, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.Packages[name]
	return p, ok
}

// HasModuleName reports whether name is any module in the build,
// regardless of package.
func (b *BuildState) HasModuleName(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.ModuleNames[name]
	return ok
}

// ModuleSnapshot returns a shallow copy of the module table for read-only
// iteration (used by the scheduler and status logging), avoiding holding
// the lock during potentially slow consumers.
func (b *BuildState) ModuleSnapshot() map[string]*Module {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]*Module, len(b.Modules))
	for k, v := range b.Modules {
		out[k] = v
	}
	return out
}
