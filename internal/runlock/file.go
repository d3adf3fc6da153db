package runlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// File is an advisory file lock. Each TryLock opens its own descriptor, so
// two holders inside one process exclude each other as well.
type File struct {
	path string
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Path() string { return f.path }

func (f *File) TryLock(ctx context.Context) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(f.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("runlock: create lock dir: %w", err)
		}
	}

	fl := flock.New(f.path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("runlock: acquire %s: %w", f.path, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	var once sync.Once
	var uerr error
	return func() error {
		once.Do(func() { uerr = fl.Unlock() })
		return uerr
	}, nil
}
