package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/ota-client/internal/logger"
)

const (
	// LockSuffix is appended to the staging path to name the run marker.
	LockSuffix = ".lock"

	lockFileMode os.FileMode = 0o644
	lockDirMode  os.FileMode = 0o755

	// lockAttempts allows one retry after a stale marker is reclaimed.
	lockAttempts = 2
)

// ErrRunInProgress is returned when another live process holds the staging path.
var ErrRunInProgress = errors.New("another update run is using the staging path")

// runLock is a marker file holding the PID of the process running the pipeline.
type runLock struct {
	path string
}

// LockPath returns the marker path guarding stagingPath.
func LockPath(stagingPath string) string {
	return filepath.Clean(stagingPath) + LockSuffix
}

// acquireLock creates the marker, reclaiming it when its owner is no longer alive.
func acquireLock(ctx context.Context, stagingPath string) (*runLock, error) {
	path := LockPath(stagingPath)

	if err := os.MkdirAll(filepath.Dir(path), lockDirMode); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	for range lockAttempts {
		marker, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFileMode)
		if err == nil {
			_, writeErr := marker.WriteString(strconv.Itoa(os.Getpid()))
			closeErr := marker.Close()

			if err = errors.Join(writeErr, closeErr); err != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write lock marker: %w", err)
			}

			return &runLock{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock marker: %w", err)
		}

		if !isStaleLock(ctx, path) {
			return nil, ErrRunInProgress
		}

		logger.WarnKV(ctx, "Removing stale update marker", "path", path)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock marker: %w", err)
		}
	}

	return nil, ErrRunInProgress
}

// release removes the marker.
func (l *runLock) release(ctx context.Context) {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove update marker", "path", l.path, "error", err)
	}
}

// isStaleLock reports whether the marker's owner is gone. Unreadable or
// garbled markers are stale; a marker owned by this process never is.
func isStaleLock(ctx context.Context, path string) bool {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return true
	}

	if pid == os.Getpid() {
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		logger.WarnKV(ctx, "Unable to look up update marker owner", "pid", pid, "error", err)
		return false
	}

	return process == nil
}
