package fs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestHashFromNodeWithFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "blob")
	if err := os.WriteFile(f, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFromNode("", f)
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Fatal("expected a non-empty hash")
	}

	again, err := HashFromNode("", f)
	if err != nil {
		t.Fatal(err)
	}
	if again != got {
		t.Errorf("hash not deterministic across calls: %q != %q", again, got)
	}
}

func TestHashFromNodeChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "blob")
	if err := os.WriteFile(f, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	first, err := HashFromNode("", f)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(f, []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}
	second, err := HashFromNode("", f)
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Error("expected hash to change when file contents change")
	}
}

func TestHashFromNodeWithDirectoryIgnoresVCSDirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "pkg"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pkg", "a.res"), []byte("let x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	before, err := HashFromNode(filepath.Dir(dir), dir)
	if err != nil {
		t.Fatal(err)
	}

	// A .git directory full of unrelated content must not affect the hash.
	if err := os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".git", "objects", "x"), []byte("whatever"), 0644); err != nil {
		t.Fatal(err)
	}
	after, err := HashFromNode(filepath.Dir(dir), dir)
	if err != nil {
		t.Fatal(err)
	}

	if before != after {
		t.Error("expected .git directory contents to be excluded from the hash")
	}
}

func TestHashFromNodeIncludesSymlinkReferent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevated privileges on Windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	linkA := filepath.Join(dir, "link")
	if err := os.Symlink(target, linkA); err != nil {
		t.Fatal(err)
	}
	withFirstTarget, err := HashFromNode("", linkA)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(linkA); err != nil {
		t.Fatal(err)
	}
	otherTarget := filepath.Join(dir, "other-target")
	if err := os.WriteFile(otherTarget, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(otherTarget, linkA); err != nil {
		t.Fatal(err)
	}
	withSecondTarget, err := HashFromNode("", linkA)
	if err != nil {
		t.Fatal(err)
	}

	if withFirstTarget == withSecondTarget {
		t.Error("expected hash to depend on the symlink referent, not just its contents")
	}
}
