// internal/output/mysql.go
package output

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql" // MySQL driver
)

const MaxMySQLIdentifierLength = 64

func init() {
	quote := func(identifier string) string {
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	}
	d := &dialect{
		driver:      "mysql",
		maxIdent:    MaxMySQLIdentifierLength,
		quote:       quote,
		placeholder: func(int) string { return "?" },
		// source_url is bounded so the unique key fits InnoDB's 3072-byte
		// index limit under utf8mb4.
		createTable: func(table string) string {
			return "CREATE TABLE IF NOT EXISTS " + quote(table) + ` (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			country VARCHAR(8) NOT NULL,
			event_name VARCHAR(512) NOT NULL,
			date_raw VARCHAR(512),
			date_iso VARCHAR(10),
			emails TEXT,
			source_url VARCHAR(760) NOT NULL,
			updated_at DATETIME,
			UNIQUE KEY uniq_country_url (country, source_url)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`
		},
		prepare:   prepareMySQL,
		configure: configureMySQL,
	}
	d.upsert = func(table string) string {
		return "INSERT INTO " + quote(table) + " (" + d.columnList() + ") VALUES (" + d.placeholders() + ")" +
			" ON DUPLICATE KEY UPDATE " +
			updateAssignments(quote, func(c string) string { return "VALUES(" + quote(c) + ")" })
	}
	registerDialect(d)
}

// prepareMySQL makes sure DATETIME columns round-trip as time.Time and the
// connection speaks utf8mb4.
func prepareMySQL(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg.FormatDSN(), nil
}

func configureMySQL(db *sql.DB) error {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return nil
}
