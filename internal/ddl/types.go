package ddl

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, JSONB, NVARCHAR(MAX))
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., now(), CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the fully-qualified table name (FQN) and an ordered list of
// columns. The FQN is expected in dotted form (e.g., "schema.table") and is
// quoted by BuildCreateTableSQL.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// ColumnTypes names the dialect types used by the document mirror table.
type ColumnTypes struct {
	ID   string // surrogate key, auto-assigned
	Key  string // short identifiers: run id, index name, document id
	Body string // JSON document source
	Time string // load timestamp
	Now  string // default expression for Time
}

// Dialect captures the SQL differences the renderer cares about.
type Dialect struct {
	Name  string
	Types ColumnTypes

	// Quote quotes a single identifier segment.
	Quote func(id string) string

	// Guard turns a CREATE TABLE statement into one that is a no-op when the
	// table already exists. quotedFQN is the quoted table name.
	Guard func(quotedFQN, create string) string
}
