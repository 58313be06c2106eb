// Package sqlite opens SQLite databases through either the pure Go
// modernc.org/sqlite driver (default) or mattn/go-sqlite3 when built with
// -tags cgo_sqlite.
//
// Use Open instead of sql.Open so the right driver name is picked and the
// connection is configured the same way under both drivers.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// pragmas run on every connection opened through this package.
var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// DriverName returns the database/sql driver name in use.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for
// modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO reports whether the CGO implementation is linked in.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens the database at dataSourceName and applies the package pragmas.
//
// The pool is limited to a single connection: SQLite serialises writers
// anyway, and ":memory:" databases are private to one connection.
func Open(dataSourceName string) (*sql.DB, error) {
	return OpenContext(context.Background(), dataSourceName)
}

// OpenContext is Open with a context for the initial pragmas.
func OpenContext(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dataSourceName, err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", strings.ToLower(p), err)
		}
	}
	return db, nil
}

// OpenReadOnly opens an existing database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	return Open("file:" + path + "?mode=ro")
}

// Info describes the linked driver.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the linked driver.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
