// Package sqlite implements the SQLite document mirror sink using
// database/sql and the pure-Go modernc driver. Batches are written with a
// prepared INSERT inside one transaction; SQLite has no dedicated bulk-load
// API, but a single transaction per batch keeps throughput acceptable.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"catalogindex/internal/ddl"

	_ "modernc.org/sqlite"
)

// Repository writes rows into one SQLite table.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup. When cfg.AutoCreateTable is
// set the mirror table is created if missing.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("sqlite: table must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	r := &Repository{db: db, cfg: cfg}
	if cfg.AutoCreateTable {
		if err := r.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return r, func() { db.Close() }, nil
}

// EnsureTable creates the document mirror table if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context) error {
	stmt, err := ddl.BuildCreateTableSQL(ddl.SQLite, ddl.DocumentTable(ddl.SQLite, r.cfg.Table))
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return r.Exec(ctx, stmt)
}

// CopyFrom inserts the given rows into the configured table using a single
// transaction and a prepared INSERT statement.
//
// It returns the number of rows inserted. On any failure the transaction is
// rolled back, so a batch is either fully written or not at all.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ddl.SQLite.Quote(c)
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		ddl.QuoteFQN(ddl.SQLite, r.cfg.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// Exec executes an arbitrary SQL statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
