package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/afero"
)

const partSuffix = ".part"

// Local stores clips as files in a directory of an afero filesystem.
// Objects are written under a temporary name and renamed on commit, so a
// failed clip never leaves a truncated file under its final name.
type Local struct {
	fs  afero.Fs
	dir string
}

func NewLocal(fs afero.Fs, dir string) *Local {
	return &Local{fs: fs, dir: dir}
}

func (l *Local) Open(ctx context.Context, name string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.fs.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	final := l.Location(name)
	tmp := final + partSuffix
	f, err := l.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &localHandle{fs: l.fs, f: f, tmp: tmp, final: final}, nil
}

func (l *Local) Ping(ctx context.Context) error {
	if err := l.fs.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("output directory %s is not usable: %w", l.dir, err)
	}
	info, err := l.fs.Stat(l.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("output path %s is not a directory", l.dir)
	}
	return nil
}

func (l *Local) Location(name string) string {
	return filepath.Join(l.dir, name)
}

// CheckSpace verifies that the volume holding the output directory has at
// least need bytes free. Only the OS filesystem is checked.
func (l *Local) CheckSpace(ctx context.Context, need uint64) error {
	if _, ok := l.fs.(*afero.OsFs); !ok {
		return nil
	}
	usage, err := disk.UsageWithContext(ctx, l.dir)
	if err != nil {
		return fmt.Errorf("failed to read disk usage for %s: %w", l.dir, err)
	}
	if usage.Free < need {
		return fmt.Errorf("%w: %s has %d bytes free, need %d", ErrInsufficientSpace, l.dir, usage.Free, need)
	}
	return nil
}

func (l *Local) Close() error { return nil }

type localHandle struct {
	fs    afero.Fs
	f     afero.File
	tmp   string
	final string
	done  bool
}

func (h *localHandle) Write(p []byte) (int, error) {
	return h.f.Write(p)
}

func (h *localHandle) Close() error {
	if h.done {
		return nil
	}
	if err := h.f.Sync(); err != nil {
		return err
	}
	if err := h.f.Close(); err != nil {
		return err
	}
	// Rename replaces an existing clip in one step.
	if err := h.fs.Rename(h.tmp, h.final); err != nil {
		return err
	}
	h.done = true
	return nil
}

func (h *localHandle) Abort() error {
	if h.done {
		return nil
	}
	h.done = true
	h.f.Close()
	if err := h.fs.Remove(h.tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
