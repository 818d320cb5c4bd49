package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/gacha-release/internal/config"
	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/logger"
)

// Marker is a held run marker.
type Marker struct {
	path string
	pid  int
}

// processAlive reports whether a process with pid exists. Replaced in tests.
var processAlive = func(pid int) (bool, error) {
	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}

var errMarkerNotOwned = errors.New("run marker belongs to another process")

// Acquire creates the marker at path holding the current PID.
// A marker whose process is still alive fails with release.ErrPipelineBusy; a stale one is replaced.
func Acquire(ctx context.Context, path string) (*Marker, error) {
	pid := os.Getpid()

	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, config.DefaultFilePermissions)
		if err == nil {
			_, err = file.WriteString(strconv.Itoa(pid))
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}

			if err != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write run marker: %w", err)
			}

			logger.DebugKV(ctx, "Run marker acquired", "path", path, "pid", pid)

			return &Marker{path: path, pid: pid}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create run marker: %w", err)
		}

		if err = clearStale(ctx, path); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", release.ErrPipelineBusy, path)
}

// clearStale removes the marker at path unless its owner is alive.
func clearStale(ctx context.Context, path string) error {
	owner, err := Owner(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		logger.WarnKV(ctx, "Unreadable run marker, replacing it", "path", path, "error", err)
	} else {
		alive, err := processAlive(owner)
		if err != nil {
			return fmt.Errorf("look up run marker owner: %w", err)
		}

		if alive {
			return fmt.Errorf("%w: pid %d holds %s", release.ErrPipelineBusy, owner, path)
		}

		logger.InfoKV(ctx, "Removing stale run marker", "path", path, "pid", owner)
	}

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale run marker: %w", err)
	}

	return nil
}

// Owner returns the PID stored in the marker at path.
func Owner(path string) (int, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("parse run marker %s: invalid pid %q", path, strings.TrimSpace(string(contents)))
	}

	return pid, nil
}

// Path returns the marker location.
func (m *Marker) Path() string {
	return m.path
}

// Release removes the marker if it is still ours.
func (m *Marker) Release() error {
	if m == nil {
		return nil
	}

	owner, err := Owner(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	if owner != m.pid {
		return fmt.Errorf("%w: pid %d", errMarkerNotOwned, owner)
	}

	return os.Remove(m.path)
}
