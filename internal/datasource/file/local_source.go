// Package file implements local filesystem data sources.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local opens one file from the local disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open opens the configured path for reading. It returns the context error
// without touching the filesystem when ctx is already done. Filesystem errors
// are wrapped with the path and keep errors.Is(err, os.ErrNotExist) working.
// The kernel is told the file will be read sequentially.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	adviseSequential(f)
	return f, nil
}
