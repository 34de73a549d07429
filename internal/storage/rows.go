package storage

import (
	"context"
	"fmt"

	"catalogindex/internal/document"
)

// CopyFn abstracts a relational backend's bulk insert. Implementations
// insert rows aligned to columns and return the number of rows inserted.
// Backends use their most efficient primitive (Postgres COPY, SQL Server
// bulk copy, a prepared INSERT in one SQLite transaction).
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// RowSink mirrors documents into a relational table through a CopyFn. Each
// bulk write becomes one CopyFn call with rows laid out as DocumentColumns.
type RowSink struct {
	Kind    string
	RunID   string
	Copy    CopyFn
	PingFn  func(ctx context.Context) error
	CloseFn func()
}

var _ Sink = (*RowSink)(nil)
var _ Pinger = (*RowSink)(nil)

// Bulk converts docs to rows and copies them in one call.
func (s *RowSink) Bulk(ctx context.Context, docs []document.Document) (BulkResult, error) {
	if len(docs) == 0 {
		return BulkResult{}, nil
	}
	rows, err := Rows(s.RunID, docs)
	if err != nil {
		return BulkResult{}, fmt.Errorf("%s: %w", s.Kind, err)
	}
	n, err := s.Copy(ctx, DocumentColumns, rows)
	if err != nil {
		return BulkResult{}, fmt.Errorf("%s: copy %d rows: %w", s.Kind, len(rows), err)
	}
	return BulkResult{Indexed: int(n)}, nil
}

// Ping checks the connection when the backend supports it.
func (s *RowSink) Ping(ctx context.Context) error {
	if s.PingFn == nil {
		return nil
	}
	return s.PingFn(ctx)
}

// Close releases the backend connection.
func (s *RowSink) Close() error {
	if s.CloseFn != nil {
		s.CloseFn()
	}
	return nil
}
