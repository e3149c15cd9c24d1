package main

import (
	"testing"

	"github.com/fsnotify/fsnotify"

	"github.com/rescript-lang/rewatch/buildstate"
	"github.com/rescript-lang/rewatch/config"
	"github.com/rescript-lang/rewatch/orchestrator"
)

func TestAddDirsSkipsAlreadyWatched(t *testing.T) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Skipf("fsnotify unavailable in this environment: %v", err)
	}
	defer watcher.Close()

	dirA := t.TempDir()
	dirB := t.TempDir()

	b := buildstate.New(dirA)
	b.AddPackage(buildstate.NewPackage("a", dirA, &config.Config{}))
	b.AddPackage(buildstate.NewPackage("b", dirB, &config.Config{}))

	c := &watchCommand{}
	watched := map[string]struct{}{}
	result := orchestrator.Result{BuildState: b}

	c.addDirs(watcher, watched, result, dirA)
	if len(watched) != 2 {
		t.Fatalf("watched = %v, want 2 entries after first pass", watched)
	}

	c.addDirs(watcher, watched, result, dirA)
	if len(watched) != 2 {
		t.Fatalf("watched = %v, want still 2 entries after a repeat pass (no duplicate Add calls)", watched)
	}
}

func TestAddDirsFallsBackToFolderWithoutBuildState(t *testing.T) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Skipf("fsnotify unavailable in this environment: %v", err)
	}
	defer watcher.Close()

	dir := t.TempDir()
	c := &watchCommand{}
	watched := map[string]struct{}{}

	c.addDirs(watcher, watched, orchestrator.Result{}, dir)

	if _, ok := watched[dir]; !ok {
		t.Errorf("watched = %v, want folder %q registered as a fallback", watched, dir)
	}
}
