// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rescript-lang/rewatch/internal/testdiff"
)

// This function tests HasFilepathPrefix. It should test it on both case
// sensitive and insensitive situations. However, the only reliable way to test
// case-insensitive behaviour is if using case-insensitive filesystem.  This
// cannot be guaranteed in an automated test. Therefore, the behaviour of the
// tests is not to test case sensitivity on *nix and to assume that Windows is
// case-insensitive.
func TestHasFilepathPrefix(t *testing.T) {
	dir := t.TempDir()

	// dir2 is the same as dir but with different capitalization on Windows to
	// test case insensitivity
	var dir2 string
	if runtime.GOOS == "windows" {
		dir = strings.ToLower(dir)
		dir2 = strings.ToUpper(dir)
	} else {
		dir2 = dir
	}

	cases := []struct {
		path   string
		prefix string
		want   bool
	}{
		{filepath.Join(dir, "a", "b"), filepath.Join(dir2), true},
		{filepath.Join(dir, "a", "b"), filepath.Join(dir2, "a"), true},
		{filepath.Join(dir, "a", "b"), filepath.Join(dir2, "a", "b"), true},
		{filepath.Join(dir, "a", "b"), filepath.Join(dir2, "c"), false},
		{filepath.Join(dir, "a", "b"), filepath.Join(dir2, "a", "d", "b"), false},
		{filepath.Join(dir, "a", "b"), filepath.Join(dir2, "a", "b2"), false},
		{filepath.Join(dir), filepath.Join(dir2, "a", "b"), false},
		{filepath.Join(dir, "ab"), filepath.Join(dir2, "a", "b"), false},
		{filepath.Join(dir, "ab"), filepath.Join(dir2, "a"), false},
		{filepath.Join(dir, "123"), filepath.Join(dir2, "123"), true},
		{filepath.Join(dir, "123"), filepath.Join(dir2, "1"), false},
		{filepath.Join(dir, "⌘"), filepath.Join(dir2, "⌘"), true},
		{filepath.Join(dir, "a"), filepath.Join(dir2, "⌘"), false},
		{filepath.Join(dir, "⌘"), filepath.Join(dir2, "a"), false},
	}

	var got []bool
	var want []bool
	for _, c := range cases {
		if err := os.MkdirAll(c.path, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(c.prefix, 0755); err != nil {
			t.Fatal(err)
		}
		got = append(got, HasFilepathPrefix(c.path, c.prefix))
		want = append(want, c.want)
	}

	if diff, equal := testdiff.Diff(want, got); !equal {
		t.Errorf("HasFilepathPrefix results mismatch:\n%s", diff)
	}
}

func TestHasFilepathPrefixFileNotDir(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(filepath.Dir(f), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !HasFilepathPrefix(f, filepath.Join(dir, "a")) {
		t.Error("expected file path to report its parent directory as a prefix")
	}
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "file")
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if isDir, err := IsDir(dir); err != nil || !isDir {
		t.Errorf("IsDir(%q) = %v, %v; want true, nil", dir, isDir, err)
	}
	if isDir, err := IsDir(f); err == nil || isDir {
		t.Errorf("IsDir(%q) = %v, %v; want false, error", f, isDir, err)
	}
}

func TestIsSymlink(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "file")
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if runtime.GOOS != "windows" {
		link := filepath.Join(dir, "link")
		if err := os.Symlink(f, link); err != nil {
			t.Fatal(err)
		}
		if sym, err := IsSymlink(link); err != nil || !sym {
			t.Errorf("IsSymlink(%q) = %v, %v; want true, nil", link, sym, err)
		}
	}

	if sym, err := IsSymlink(f); err != nil || sym {
		t.Errorf("IsSymlink(%q) = %v, %v; want false, nil", f, sym, err)
	}
}

func TestRenameWithFallback(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RenameWithFallback(src, dst); err != nil {
		t.Fatalf("RenameWithFallback: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("expected src to be gone after rename, got err=%v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("dst contents = %q, want %q", got, "payload")
	}
}

func TestRenameWithFallbackMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := RenameWithFallback(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Error("expected an error renaming a nonexistent source")
	}
}

// renameByCopy is exercised directly here (same-package test) because the
// cross-device link error that triggers it in RenameWithFallback can't be
// reproduced reliably within a single tmpdir.
func TestRenameByCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := renameByCopy(src, dst); err != nil {
		t.Fatalf("renameByCopy: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("expected src to be removed after copy fallback, got err=%v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("dst contents = %q, want %q", got, "payload")
	}
}

func TestCopyFilePreservesSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevated privileges on Windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "copy")
	if err := copyFile(link, dst); err != nil {
		t.Fatalf("copyFile: %v", err)
	}
	if sym, err := IsSymlink(dst); err != nil || !sym {
		t.Errorf("copy of a symlink should itself be a symlink, got sym=%v err=%v", sym, err)
	}
}
