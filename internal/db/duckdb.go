// Package db opens the DuckDB database that backs table-based providers.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string // empty opens an in-memory database
}

// Open opens a new DuckDB handle with the spatial extension loaded.
func Open(cfg Config) (*sql.DB, error) {
	dsn := ""
	if cfg.DBName != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(duckdbDir, cfg.DBName+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}
	if err := LoadSpatial(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// LoadSpatial installs and loads the spatial extension. INSTALL may fail
// offline when the extension is already cached, so only LOAD is fatal.
func LoadSpatial(conn *sql.DB) error {
	conn.Exec("INSTALL spatial")
	if _, err := conn.Exec("LOAD spatial"); err != nil {
		return fmt.Errorf("loading duckdb spatial extension: %w", err)
	}
	return nil
}
