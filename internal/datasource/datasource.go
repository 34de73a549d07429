// Package datasource defines how the walker discovers and opens input files.
package datasource

import (
	"context"
	"io"
)

// Source opens a single input.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Entry is one listed input.
type Entry struct {
	Name string // base name, used in logs and skip records
	Size int64  // bytes; -1 when unknown
}

// Lister enumerates the inputs of one location and opens them by name.
// List returns entries in lexical order of Name.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Location describes the listed location for logs.
	Location() string
}
