// internal/output/postgresql.go
package output

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const MaxPostgreSQLIdentifierLength = 63

func init() {
	quote := func(identifier string) string {
		return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
	}
	d := &dialect{
		driver:      "postgres",
		maxIdent:    MaxPostgreSQLIdentifierLength,
		quote:       quote,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		createTable: func(table string) string {
			return `CREATE TABLE IF NOT EXISTS ` + quote(table) + ` (
			id BIGSERIAL PRIMARY KEY,
			country TEXT NOT NULL,
			event_name TEXT NOT NULL,
			date_raw TEXT,
			date_iso TEXT,
			emails TEXT,
			source_url TEXT NOT NULL,
			updated_at TIMESTAMPTZ,
			UNIQUE (country, source_url)
		)`
		},
		configure: func(db *sql.DB) error {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
			return nil
		},
	}
	d.upsert = func(table string) string {
		return `INSERT INTO ` + quote(table) + ` (` + d.columnList() + `) VALUES (` + d.placeholders() + `)
			ON CONFLICT (country, source_url) DO UPDATE SET ` +
			updateAssignments(quote, func(c string) string { return "EXCLUDED." + quote(c) })
	}
	registerDialect(d)
}
