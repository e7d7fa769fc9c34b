// internal/output/preview.go
package output

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/valpere/relay-scraper/internal/record"
	"github.com/valpere/relay-scraper/internal/utils"
)

// Column widths used when the preview goes to a terminal.
const (
	previewNameWidth  = 40
	previewEmailWidth = 36
	previewURLWidth   = 60
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Preview prints the first limit records as an aligned table followed by a
// count line. When truncate is set, long cells are shortened to fit a
// terminal.
func Preview(w io.Writer, records []record.Record, limit int, truncate bool) error {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COUNTRY\tEVENT\tDATE\tEMAILS\tURL")
	for _, r := range records[:limit] {
		name, emails, url := r.EventName, r.JoinedEmails(), r.SourceURL
		if truncate {
			name = utils.TruncateString(name, previewNameWidth)
			emails = utils.TruncateString(emails, previewEmailWidth)
			url = utils.TruncateString(url, previewURLWidth)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Country, name, r.DisplayDate(), emails, url)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "Showing %d of %d record(s)\n", limit, len(records))
	return err
}
