// internal/output/sqlite.go
package output

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	MaxSQLiteIdentifierLength = 999
	sqliteDefaultParams       = "_busy_timeout=5000&_journal_mode=WAL"
)

func init() {
	quote := func(identifier string) string {
		return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
	}
	d := &dialect{
		driver:      "sqlite3",
		maxIdent:    MaxSQLiteIdentifierLength,
		quote:       quote,
		placeholder: func(int) string { return "?" },
		createTable: func(table string) string {
			return `CREATE TABLE IF NOT EXISTS ` + quote(table) + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			country TEXT NOT NULL,
			event_name TEXT NOT NULL,
			date_raw TEXT,
			date_iso TEXT,
			emails TEXT,
			source_url TEXT NOT NULL,
			updated_at DATETIME,
			UNIQUE (country, source_url)
		)`
		},
		prepare:   prepareSQLite,
		configure: configureSQLite,
	}
	d.upsert = func(table string) string {
		return `INSERT INTO ` + quote(table) + ` (` + d.columnList() + `) VALUES (` + d.placeholders() + `)
			ON CONFLICT (country, source_url) DO UPDATE SET ` +
			updateAssignments(quote, func(c string) string { return "excluded." + c })
	}
	registerDialect(d)
}

// prepareSQLite creates the database directory and adds the default
// connection parameters when the DSN carries none.
func prepareSQLite(dsn string) (string, error) {
	path, params, _ := strings.Cut(dsn, "?")
	path = strings.TrimPrefix(path, "file:")
	if path != ":memory:" && path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	if params == "" {
		return strings.TrimSuffix(dsn, "?") + "?" + sqliteDefaultParams, nil
	}
	return dsn, nil
}

func configureSQLite(db *sql.DB) error {
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		return fmt.Errorf("failed to set pragma: %w", err)
	}
	return nil
}
