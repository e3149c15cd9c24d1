package scheduler

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rescript-lang/rewatch/buildstate"
)

// Compiler is the sub-process invocation callback for a single module's
// compile step; scheduler package is deliberately unaware of how a
// compile invocation is assembled (that's the orchestrator's job),
// receiving only the result it needs to apply ripple rules.
type Compiler func(ctx context.Context, m *buildstate.Module) (CompileOutcome, error)

// CompileOutcome reports what a single module's compile observed, so
// the scheduler can decide whether to ripple dirtiness to dependents.
type CompileOutcome struct {
	State buildstate.CompileState
	// InterfaceChanged / ImplChanged report whether the module's CMI or
	// CMT digest differed from its pre-compile value.
	InterfaceChanged bool
	ImplChanged      bool
}

// Scheduler drives the frontier-based dispatch of C8.
type Scheduler struct {
	Compile Compiler
	sem     *semaphore.Weighted
}

// NewScheduler builds a Scheduler that runs at most workers concurrent
// compiles, on a semaphore of its own (the orchestrator passes the same
// worker count it gives the AST Dependency Extractor).
func NewScheduler(compile Compiler, workers int64) *Scheduler {
	return &Scheduler{Compile: compile, sem: semaphore.NewWeighted(workers)}
}

// Run repeatedly computes the frontier and dispatches it until every
// module has been visited this run, or the frontier goes empty with
// work remaining (a cycle). Returns the modules compiled this run.
func (s *Scheduler) Run(ctx context.Context, b *buildstate.BuildState) ([]string, []string, error) {
	modules := b.ModuleSnapshot()
	compiled := map[string]struct{}{}
	var compiledOrder []string

	for len(compiled) < len(modules) {
		frontier := computeFrontier(modules, compiled)
		if len(frontier) == 0 {
			remaining := make([]string, 0, len(modules)-len(compiled))
			for name := range modules {
				if _, done := compiled[name]; !done {
					remaining = append(remaining, name)
				}
			}
			cycle := FindCycle(filterModules(modules, remaining))
			return compiledOrder, cycle, errors.New("dependency cycle detected: no module in the remaining set is ready to compile")
		}

		// Each goroutine writes only to its own slot of ripple/dispatchErr,
		// so there is no concurrent write to shared state during the
		// fan-out itself; the ripple (the same rule MarkDependentsDirty
		// implements) is applied afterward, in the single-threaded reduce
		// below.
		ripple := make([][]string, len(frontier))
		dispatchErr := make([]error, len(frontier))
		ran := make([]bool, len(frontier))

		g, gctx := errgroup.WithContext(ctx)
		for i, name := range frontier {
			i, name := i, name
			m := modules[name]
			if err := s.sem.Acquire(gctx, 1); err != nil {
				return compiledOrder, nil, err
			}
			g.Go(func() error {
				defer s.sem.Release(1)
				ran[i] = m.CompileDirty
				targets, err := s.dispatch(gctx, m)
				ripple[i] = targets
				dispatchErr[i] = err
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return compiledOrder, nil, err
		}
		for _, err := range dispatchErr {
			if err != nil {
				return compiledOrder, nil, err
			}
		}

		dirty := map[string]struct{}{}
		for _, targets := range ripple {
			for _, t := range targets {
				dirty[t] = struct{}{}
			}
		}
		for name := range dirty {
			if target, ok := b.Module(name); ok {
				target.CompileDirty = true
			}
		}

		for i, name := range frontier {
			compiled[name] = struct{}{}
			if ran[i] {
				compiledOrder = append(compiledOrder, name)
			}
		}
	}

	return compiledOrder, nil, nil
}

// computeFrontier returns every module not yet compiled this run whose
// every dependency has already been compiled this run.
func computeFrontier(modules map[string]*buildstate.Module, compiled map[string]struct{}) []string {
	var frontier []string
	for name, m := range modules {
		if _, done := compiled[name]; done {
			continue
		}
		ready := true
		for dep := range m.Deps {
			if _, depDone := compiled[dep]; !depDone {
				ready = false
				break
			}
		}
		if ready {
			frontier = append(frontier, name)
		}
	}
	return frontier
}

func filterModules(modules map[string]*buildstate.Module, names []string) map[string]*buildstate.Module {
	out := make(map[string]*buildstate.Module, len(names))
	for _, n := range names {
		out[n] = modules[n]
	}
	return out
}

// dispatch compiles a single module (skipping the no-op case of
// compile_dirty=false) and reports which dependents the interface/impl-
// change ripple should dirty. It never returns a non-nil error for a
// CompileError outcome - that is recorded state, not a scheduler fault -
// so a failing peer never cancels the frontier batch's errgroup ctx and
// kills siblings still compiling. dispatch's error return is reserved
// for a Compiler implementation reporting its own infrastructure fault
// (e.g. an unresolvable package), which is rare enough to treat as fatal.
//
// dispatch does not mutate any Module other than m itself: the caller
// collects the returned dependent names per-goroutine and marks them
// compile-dirty in a single-threaded reduce after every goroutine
// in the batch has returned (see Run), since two modules in the same
// frontier batch can share a dependent and must not race on its
// CompileDirty field.
func (s *Scheduler) dispatch(ctx context.Context, m *buildstate.Module) ([]string, error) {
	if !m.CompileDirty {
		return nil, nil
	}

	outcome, err := s.Compile(ctx, m)

	if m.Kind == buildstate.SourceFile {
		if m.Implementation != nil {
			m.Implementation.CompileState = outcome.State
		}
		if m.Interface != nil {
			m.Interface.CompileState = outcome.State
		}
	}
	m.CompileDirty = false

	if err != nil {
		return nil, err
	}
	if outcome.State == buildstate.CompileError {
		return nil, nil
	}
	if outcome.InterfaceChanged || (m.Interface == nil && outcome.ImplChanged) {
		return dependentNames(m), nil
	}
	return nil, nil
}

func dependentNames(m *buildstate.Module) []string {
	names := make([]string, 0, len(m.Dependents))
	for dep := range m.Dependents {
		names = append(names, dep)
	}
	return names
}

// MarkDependentsDirty marks compile_dirty=true on every module in
// m.Dependents, implementing the interface/impl-change ripple
// (spec.md 4.7): the newly-dirtied dependent naturally re-enters a
// later frontier batch, and when it in turn compiles its own
// dependents are marked — level-by-level breadth-first propagation.
//
// Exported for callers outside the frontier loop (e.g. tests); Run
// itself applies the same rule via the per-batch ripple reduce rather
// than calling this directly, since this function's writes are only
// safe to make from a single goroutine at a time.
func MarkDependentsDirty(b *buildstate.BuildState, m *buildstate.Module) {
	for dep := range m.Dependents {
		if target, ok := b.Module(dep); ok {
			target.CompileDirty = true
		}
	}
}
