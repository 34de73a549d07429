// Package all wires every built-in sink into the storage factory.
//
// Importing it (as a blank import) runs the init functions of each concrete
// sink, which register their factories with the storage package:
//
//   - "opensearch" (catalogindex/internal/storage/opensearch)
//   - "postgres"   (catalogindex/internal/storage/postgres)
//   - "mssql"      (catalogindex/internal/storage/mssql)
//   - "sqlite"     (catalogindex/internal/storage/sqlite)
//
// A binary that needs only a subset can import the sink packages directly.
package all

import (
	_ "catalogindex/internal/storage/mssql"
	_ "catalogindex/internal/storage/opensearch"
	_ "catalogindex/internal/storage/postgres"
	_ "catalogindex/internal/storage/sqlite"
)
