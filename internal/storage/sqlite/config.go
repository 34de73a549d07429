package sqlite

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:catalog.db?cache=shared"
	//   "catalog.db" (interpreted by the driver)
	DSN string

	// Table is the target table name, e.g. "catalog_documents". Dotted
	// names such as "main.catalog_documents" are quoted per segment.
	Table string

	// AutoCreateTable creates the mirror table when it does not exist.
	AutoCreateTable bool
}
