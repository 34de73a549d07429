// Package ddl renders the CREATE TABLE statement of the relational document
// mirror for each supported SQL dialect.
//
// The model is deliberately small: a TableDef with ordered ColumnDefs. A
// Dialect supplies identifier quoting, the column types of the mirror table
// and the "create only if missing" guard (CREATE TABLE IF NOT EXISTS, or an
// OBJECT_ID check on SQL Server).
package ddl

import (
	"fmt"
	"strings"
)

// Postgres renders double-quoted identifiers and stores bodies as JSONB.
var Postgres = Dialect{
	Name: "postgres",
	Types: ColumnTypes{
		ID:   "BIGSERIAL",
		Key:  "TEXT",
		Body: "JSONB",
		Time: "TIMESTAMPTZ",
		Now:  "now()",
	},
	Quote: doubleQuote,
	Guard: ifNotExists,
}

// SQLite renders double-quoted identifiers and stores bodies as TEXT.
var SQLite = Dialect{
	Name: "sqlite",
	Types: ColumnTypes{
		ID:   "INTEGER",
		Key:  "TEXT",
		Body: "TEXT",
		Time: "TEXT",
		Now:  "CURRENT_TIMESTAMP",
	},
	Quote: doubleQuote,
	Guard: ifNotExists,
}

// MSSQL renders bracketed identifiers and wraps the statement in an
// OBJECT_ID guard since T-SQL has no CREATE TABLE IF NOT EXISTS.
var MSSQL = Dialect{
	Name: "mssql",
	Types: ColumnTypes{
		ID:   "BIGINT IDENTITY(1,1)",
		Key:  "NVARCHAR(450)",
		Body: "NVARCHAR(MAX)",
		Time: "DATETIME2",
		Now:  "SYSUTCDATETIME()",
	},
	Quote: func(id string) string { return "[" + strings.ReplaceAll(id, "]", "]]") + "]" },
	Guard: func(fqn, create string) string {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  %s\nEND;",
			strings.ReplaceAll(fqn, "'", "''"), strings.ReplaceAll(create, "\n", "\n  "))
	},
}

func doubleQuote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func ifNotExists(_, create string) string {
	return strings.Replace(create, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
}

// DocumentTable returns the definition of the document mirror table.
// Inserted columns match storage.DocumentColumns; id and loaded_at are filled
// by the database.
func DocumentTable(d Dialect, fqn string) TableDef {
	ty := d.Types
	return TableDef{
		FQN: fqn,
		Columns: []ColumnDef{
			{Name: "id", SQLType: ty.ID, PrimaryKey: true},
			{Name: "run_id", SQLType: ty.Key},
			{Name: "index_name", SQLType: ty.Key},
			{Name: "doc_id", SQLType: ty.Key, Nullable: true},
			{Name: "body", SQLType: ty.Body},
			{Name: "loaded_at", SQLType: ty.Time, Default: ty.Now},
		},
	}
}

// QuoteFQN quotes a possibly schema-qualified name like "public.docs" to
// "public"."docs" in the given dialect. Empty segments are dropped.
func QuoteFQN(d Dialect, fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.Quote(p))
	}
	return strings.Join(out, ".")
}

// BuildCreateTableSQL renders an idempotent CREATE TABLE statement for t.
//
// Rules:
//   - t.FQN must be non-empty.
//   - Each column must have a non-empty Name and SQLType.
//   - Primary-key columns are always rendered NOT NULL.
//   - PRIMARY KEY is rendered as a separate constraint clause.
//   - Default is emitted as a raw SQL expression.
func BuildCreateTableSQL(d Dialect, t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s ddl: table FQN must not be empty", d.Name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s ddl: at least one column is required", d.Name)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, 1)
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s ddl: column with empty name in table %s", d.Name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s ddl: column %s missing SQLType", d.Name, name)
		}

		var sb strings.Builder
		sb.WriteString(d.Quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.Quote(name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	quoted := QuoteFQN(d, fqn)
	create := fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", quoted, strings.Join(cols, ",\n  "))
	return d.Guard(quoted, create), nil
}
