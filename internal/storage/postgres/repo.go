// Package postgres implements the Postgres document mirror sink using pgx v5.
// Each batch is a single COPY into the target table; bodies land in a JSONB
// column.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"catalogindex/internal/ddl"
	"catalogindex/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN             string // connection string for pgxpool
	Table           string // possibly schema-qualified table, e.g. "public.catalog_documents"
	AutoCreateTable bool
}

// pgConn is the subset of *pgxpool.Pool the repository needs.
type pgConn interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

var _ pgConn = (*pgxpool.Pool)(nil)

// Repository writes rows into one Postgres table.
type Repository struct {
	conn pgConn
	cfg  Config
}

// connect is swapped in tests to avoid a real server.
var connect = func(ctx context.Context, dsn string) (pgConn, error) {
	return pgxpool.New(ctx, dsn)
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	if len(splitFQN(cfg.Table)) == 0 {
		return nil, nil, fmt.Errorf("postgres: table must not be empty")
	}
	conn, err := connect(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	r := &Repository{conn: conn, cfg: cfg}
	if cfg.AutoCreateTable {
		if err := r.EnsureTable(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}
	return r, conn.Close, nil
}

// EnsureTable creates the document mirror table if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context) error {
	stmt, err := ddl.BuildCreateTableSQL(ddl.Postgres, ddl.DocumentTable(ddl.Postgres, r.cfg.Table))
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if _, err := r.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

// CopyFrom streams rows into the configured table with COPY and returns the
// number of rows copied.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.conn.CopyFrom(ctx, pgx.Identifier(splitFQN(r.cfg.Table)), columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, fmt.Errorf("copy into %s: %s (%s): %w", r.cfg.Table, pgErr.Detail, pgErr.SQLState(), err)
		}
		if pgconn.SafeToRetry(err) {
			err = &storage.TransportError{Err: err}
		}
		return n, fmt.Errorf("copy into %s: %w", r.cfg.Table, err)
	}
	return n, nil
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// splitFQN splits "schema.table" into its non-empty, trimmed segments.
func splitFQN(name string) []string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
