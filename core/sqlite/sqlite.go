// Package sqlite provides a unified SQLite interface supporting both
// pure Go (modernc.org/sqlite) and CGO (mattn/go-sqlite3) implementations.
//
// Build modes:
//   - Default (CGO_ENABLED=0): Uses pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): Uses mattn/go-sqlite3
//
// The live engine is only used to build test fixtures and to cross-check
// recovered row counts; recovery itself never goes through it.
//
// Use Open() instead of sql.Open() to ensure the correct driver is used.
package sqlite

import (
	"database/sql"
	"net/url"
)

// DriverName returns the SQL driver name to use.
func DriverName() string {
	return driverName
}

// DriverType returns a string identifying the underlying implementation.
// Returns "cgo" for mattn/go-sqlite3, "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO returns true if the CGO implementation is being used.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a SQLite database using the appropriate driver.
// This is the preferred way to open SQLite databases.
func Open(dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// OpenImmutable opens a database that SQLite must treat as unchangeable:
// no locks are taken and no WAL or journal is read or replayed. Evidence
// files stay byte-identical.
func OpenImmutable(path string) (*sql.DB, error) {
	return Open(fileURI(path, "mode=ro&immutable=1"))
}

func fileURI(path, query string) string {
	u := url.URL{Scheme: "file", Path: path, RawQuery: query}
	return u.String()
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name" yaml:"driver_name"`
	DriverType string `json:"driver_type" yaml:"driver_type"`
	IsCGO      bool   `json:"is_cgo" yaml:"is_cgo"`
	Package    string `json:"package" yaml:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
