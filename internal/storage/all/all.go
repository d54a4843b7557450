// Package all registers every storage backend and the SQL Server driver.
// Import it for side effects from the binary.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "movieetl/internal/storage/mssql"
	_ "movieetl/internal/storage/postgres"
	_ "movieetl/internal/storage/sqlite"
)
