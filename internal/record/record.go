// Package record defines the normalized event record produced by every
// country driver, plus the suppression, deduplication and ordering rules
// applied before output.
package record

import (
	"sort"
	"strings"

	"github.com/valpere/relay-scraper/internal/utils"
)

// UnknownName is the event name used when no name could be extracted.
const UnknownName = "(unknown)"

// Supported country codes.
const (
	CountryAU = "AU"
	CountryUK = "UK"
	CountryUS = "US"
	CountryCA = "CA"
)

// Countries lists all supported country codes in their default run order.
var Countries = []string{CountryAU, CountryUK, CountryUS, CountryCA}

// Columns is the CSV header matching Row.
var Columns = []string{"country", "event_name", "date", "emails", "source_url"}

// Record is one discovered event for one country. Treat it as a value: New
// copies its inputs and nothing in this package mutates a Record afterwards.
type Record struct {
	Country   string   `json:"country" bson:"country"`
	EventName string   `json:"event_name" bson:"event_name"`
	DateRaw   string   `json:"date_raw" bson:"date_raw"`
	DateISO   string   `json:"date_iso" bson:"date_iso"`
	Emails    []string `json:"emails" bson:"emails"`
	SourceURL string   `json:"source_url" bson:"source_url"`
}

// Key identifies a record for deduplication.
type Key struct {
	Country   string
	SourceURL string
}

// New builds a Record. Empty names become UnknownName, emails are normalized
// into a sorted set and the URL fragment is dropped.
func New(country, name, dateRaw, dateISO string, emails []string, sourceURL string) Record {
	name = utils.CollapseSpaces(name)
	if name == "" {
		name = UnknownName
	}
	return Record{
		Country:   strings.ToUpper(strings.TrimSpace(country)),
		EventName: name,
		DateRaw:   strings.TrimSpace(dateRaw),
		DateISO:   strings.TrimSpace(dateISO),
		Emails:    NormalizeEmails(emails),
		SourceURL: utils.StripFragment(strings.TrimSpace(sourceURL)),
	}
}

// NormalizeEmails lower-cases, trims trailing punctuation, drops anything
// without an "@" and returns a sorted, de-duplicated slice (never nil).
func NormalizeEmails(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.Trim(strings.TrimSpace(e), ".;,"))
		if !strings.Contains(e, "@") {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Key returns the (country, source URL) dedup key.
func (r Record) Key() Key {
	return Key{Country: r.Country, SourceURL: r.SourceURL}
}

// IsEmpty reports whether the record carries no information at all.
func (r Record) IsEmpty() bool {
	return r.EventName == UnknownName && len(r.Emails) == 0 && r.DateRaw == "" && r.DateISO == ""
}

// DisplayDate returns the ISO date when known, otherwise the raw text.
func (r Record) DisplayDate() string {
	if r.DateISO != "" {
		return r.DateISO
	}
	return r.DateRaw
}

// JoinedEmails returns the emails joined with "; ".
func (r Record) JoinedEmails() string {
	return strings.Join(r.Emails, "; ")
}

// Row returns the CSV-friendly representation in Columns order.
func (r Record) Row() []string {
	return []string{r.Country, r.EventName, r.DisplayDate(), r.JoinedEmails(), r.SourceURL}
}

// Suppress drops records for which IsEmpty is true.
func Suppress(in []Record) []Record {
	out := make([]Record, 0, len(in))
	for _, r := range in {
		if !r.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

// Dedup keeps one record per Key. A later record replaces an earlier one but
// keeps the earlier one's position.
func Dedup(in []Record) []Record {
	index := make(map[Key]int, len(in))
	out := make([]Record, 0, len(in))
	for _, r := range in {
		if i, ok := index[r.Key()]; ok {
			out[i] = r
			continue
		}
		index[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}

// Sort orders records by country, case-insensitive event name, then URL.
func Sort(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		an, bn := strings.ToLower(a.EventName), strings.ToLower(b.EventName)
		if an != bn {
			return an < bn
		}
		return a.SourceURL < b.SourceURL
	})
}

// Finalize applies Suppress, Dedup and Sort in that order.
func Finalize(in []Record) []Record {
	out := Dedup(Suppress(in))
	Sort(out)
	return out
}
