// internal/output/sql.go
package output

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/valpere/relay-scraper/internal/config"
	"github.com/valpere/relay-scraper/internal/record"
)

// dialect captures what differs between the supported SQL databases.
type dialect struct {
	driver      string
	maxIdent    int
	quote       func(string) string
	placeholder func(n int) string
	createTable func(table string) string
	upsert      func(table string) string
	// prepare adjusts the DSN and runs any pre-open setup.
	prepare func(dsn string) (string, error)
	// configure tunes the pool after a successful ping.
	configure func(db *sql.DB) error
}

var dialects = map[string]*dialect{}

func registerDialect(d *dialect) {
	dialects[d.driver] = d
}

func (d *dialect) columnList() string {
	quoted := make([]string, len(dbColumns))
	for i, c := range dbColumns {
		quoted[i] = d.quote(c)
	}
	return strings.Join(quoted, ", ")
}

func (d *dialect) placeholders() string {
	ph := make([]string, len(dbColumns))
	for i := range dbColumns {
		ph[i] = d.placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

// SQLWriter upserts records into a table keyed by (country, source_url).
// A re-run replaces the rows it finds again and leaves the rest in place.
type SQLWriter struct {
	db      *sql.DB
	dialect *dialect
	table   string
	timeout time.Duration
	now     func() time.Time
}

// NewSQLWriter connects with cfg.Driver, which must be sqlite3, mysql or
// postgres, and creates the table if it does not exist.
func NewSQLWriter(ctx context.Context, cfg config.SQLConfig) (*SQLWriter, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL driver: %s", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s DSN is required", cfg.Driver)
	}
	table := cfg.Table
	if table == "" {
		table = "events"
	}
	if err := ValidateSQLIdentifier(table, d.maxIdent); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	dsn := cfg.DSN
	if d.prepare != nil {
		var err error
		if dsn, err = d.prepare(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.driver, err)
	}
	if d.configure != nil {
		if err := d.configure(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	w := &SQLWriter{db: db, dialect: d, table: table, timeout: 2 * time.Minute, now: time.Now}
	if _, err := db.ExecContext(ctx, d.createTable(table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table '%s': %w", table, err)
	}
	return w, nil
}

// Write upserts all records in one transaction.
func (w *SQLWriter) Write(records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, w.dialect.upsert(w.table))
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := w.now().UTC()
	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, dbValues(r, now)...); err != nil {
			return fmt.Errorf("failed to upsert record %d (%s): %w", i, r.SourceURL, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of rows in the table.
func (w *SQLWriter) Count(ctx context.Context) (int, error) {
	var n int
	err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+w.dialect.quote(w.table)).Scan(&n)
	return n, err
}

// Close closes the database connection.
func (w *SQLWriter) Close() error {
	if w.db != nil {
		err := w.db.Close()
		w.db = nil
		return err
	}
	return nil
}

// updateAssignments renders "col = <expr(col)>" for every non-key column.
func updateAssignments(quote func(string) string, expr func(col string) string) string {
	var sets []string
	for _, c := range dbColumns {
		if c == "country" || c == "source_url" {
			continue
		}
		sets = append(sets, quote(c)+" = "+expr(c))
	}
	return strings.Join(sets, ", ")
}
