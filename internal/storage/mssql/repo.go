// Package mssql implements the SQL Server document mirror sink using the
// go-mssqldb bulk copy API. Each batch is one bulk insert inside a
// transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"catalogindex/internal/ddl"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN             string
	Table           string
	AutoCreateTable bool
}

// Repository writes rows into one SQL Server table.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("mssql: DSN must not be empty")
	}
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	if msFQN(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("mssql: table must not be empty")
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	r := &Repository{db: db, cfg: cfg}
	if cfg.AutoCreateTable {
		if err := r.EnsureTable(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return r, func() { _ = db.Close() }, nil
}

// createTableSQL renders the guarded CREATE TABLE script for table.
func createTableSQL(table string) (string, error) {
	return ddl.BuildCreateTableSQL(ddl.MSSQL, ddl.DocumentTable(ddl.MSSQL, table))
}

// EnsureTable creates the document mirror table if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context) error {
	stmt, err := createTableSQL(r.cfg.Table)
	if err != nil {
		return fmt.Errorf("mssql: %w", err)
	}
	if err := r.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("mssql: create table: %w", err)
	}
	return nil
}

// CopyFrom performs a bulk insert directly into the configured target table.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(msFQN(r.cfg.Table), mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// msFQN quotes a possibly schema-qualified name like "dbo.catalog_documents"
// to "[dbo].[catalog_documents]".
func msFQN(name string) string { return ddl.QuoteFQN(ddl.MSSQL, name) }
