// internal/output/types.go
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/valpere/relay-scraper/internal/record"
)

// Format names an output sink.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatXLSX  Format = "xlsx"
	FormatSQL   Format = "sql"
	FormatMongo Format = "mongo"
)

// Writer is a sink for finalized records. Write may be called once per run;
// Close releases files and connections.
type Writer interface {
	Write(records []record.Record) error
	Close() error
}

// Result describes what one sink did.
type Result struct {
	Format   Format        `json:"format"`
	Target   string        `json:"target"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Columns stored by the database sinks, in insert order.
var dbColumns = []string{"country", "event_name", "date_raw", "date_iso", "emails", "source_url", "updated_at"}

// dbValues returns the values for dbColumns.
func dbValues(r record.Record, now time.Time) []interface{} {
	return []interface{}{r.Country, r.EventName, r.DateRaw, r.DateISO, r.JoinedEmails(), r.SourceURL, now}
}

var (
	sqlIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	// Keywords that are reserved in at least one supported dialect and that
	// someone might plausibly pick as a table name.
	reservedWords = map[string]bool{
		"ALL": true, "AND": true, "AS": true, "BY": true, "CASE": true, "CHECK": true, "COLUMN": true,
		"CONSTRAINT": true, "CREATE": true, "DEFAULT": true, "DELETE": true, "DESC": true, "DISTINCT": true,
		"DROP": true, "FROM": true, "GROUP": true, "INDEX": true, "INSERT": true, "INTO": true, "KEY": true,
		"LIMIT": true, "NOT": true, "NULL": true, "ORDER": true, "PRIMARY": true, "SELECT": true, "SET": true,
		"TABLE": true, "UNIQUE": true, "UPDATE": true, "USER": true, "VALUES": true, "WHERE": true,
	}
)

// ValidateSQLIdentifier checks that identifier is a plain, unreserved SQL
// identifier no longer than maxLen.
func ValidateSQLIdentifier(identifier string, maxLen int) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if maxLen > 0 && len(identifier) > maxLen {
		return fmt.Errorf("identifier too long (max %d characters): %s", maxLen, identifier)
	}
	if !sqlIdentifierRegex.MatchString(identifier) {
		return fmt.Errorf("invalid identifier format: %s", identifier)
	}
	if reservedWords[strings.ToUpper(identifier)] {
		return fmt.Errorf("identifier is a reserved SQL keyword: %s", identifier)
	}
	return nil
}

// createFile creates path and any missing parent directories.
func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return os.Create(path)
}
