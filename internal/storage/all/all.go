// Package all registers every storage backend.
package all

import (
	_ "snowload/internal/storage/mssql"
	_ "snowload/internal/storage/postgres"
	_ "snowload/internal/storage/sqlite"
)
