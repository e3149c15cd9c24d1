// Package lock implements the process-wide rewatch.lock PID-liveness
// guard (spec.md 5/6): start-up checks liveness of a stored PID and
// refuses to run if still alive, otherwise claims the file.
//
// Grounded on original_source's lock.rs semantics and the teacher's
// "repo-current-state" probing idiom used by Masterminds/vcs-style
// working-directory checks (probe first, then act).
package lock

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// Release unclaims the lockfile.
type Release func()

// Acquire claims path, returning a Release to call when the build
// finishes. It is fatal (per spec.md 7) if the stored PID is a live
// process.
func Acquire(path string) (Release, error) {
	if pid, ok := readLivePID(path); ok {
		return nil, errors.Errorf("rewatch.lock held by live process %d", pid)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "claiming lockfile %s", path)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return nil, errors.Wrap(err, "writing lockfile")
	}

	return func() { _ = os.Remove(path) }, nil
}

// readLivePID reads a stored PID from path and reports whether that
// process is currently alive (POSIX liveness probe: signal 0 delivers
// no signal but still errors if the process does not exist).
func readLivePID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	if err := syscall.Kill(pid, syscall.Signal(0)); err != nil {
		return pid, false
	}
	return pid, true
}
