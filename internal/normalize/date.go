// Package normalize turns free-text event dates into ISO calendar dates.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/relay-scraper/internal/utils"
)

// ISOLayout is the output format of Date.ISO.
const ISOLayout = "2006-01-02"

// Date is a normalized date: Raw keeps the cleaned source text, ISO holds
// YYYY-MM-DD or "" when the text is unparsable or marked to-be-decided.
type Date struct {
	Raw string
	ISO string
}

const monthAlternation = `january|february|march|april|may|june|july|august|september|october|november|december|` +
	`jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	tbdPattern     = regexp.MustCompile(`(?i)\b(?:tbd|tba|tbc|to\s+be\s+(?:determined|announced|confirmed|advised))\b`)
	ordinalPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)
	monthToken     = regexp.MustCompile(`(?i)\b(?:` + monthAlternation + `)\b`)

	isoPattern      = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})(?:T|\b)`)
	numericPattern  = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})\b`)
	dayRangePattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s*[-–]\s*\d{1,2}\s+(` + monthAlternation + `)\.?,?\s+(\d{4})\b`)
	dayMonthPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:of\s+)?(` + monthAlternation + `)\.?,?\s+(\d{4})\b`)
	monRangePattern = regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\.?\s+(\d{1,2})\s*[-–]\s*\d{1,2},?\s+(\d{4})\b`)
	monthDayPattern = regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
	monthYrPattern  = regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\.?,?\s+(\d{4})\b`)
)

// MonthFirst reports whether ambiguous numeric dates are month-first for the
// given country. Only the US uses month-first order.
func MonthFirst(country string) bool {
	return strings.EqualFold(strings.TrimSpace(country), "US")
}

// IsTBD reports whether text contains a to-be-decided marker.
func IsTBD(text string) bool {
	return tbdPattern.MatchString(text)
}

// ContainsMonth reports whether text contains an English month name or
// abbreviation as a whole word.
func ContainsMonth(text string) bool {
	return monthToken.MatchString(text)
}

// StripOrdinals turns "1st", "22nd", "3rd", "4th" into bare day numbers.
func StripOrdinals(text string) string {
	return ordinalPattern.ReplaceAllString(text, "$1")
}

// Clean applies compatibility normalization (NBSP and friends become plain
// spaces) and collapses whitespace.
func Clean(text string) string {
	return utils.CollapseSpaces(norm.NFKC.String(text))
}

// ParseDate normalizes raw for the given country code.
func ParseDate(raw, country string) Date {
	cleaned := Clean(raw)
	if cleaned == "" {
		return Date{}
	}
	if IsTBD(cleaned) {
		return Date{Raw: cleaned}
	}

	text := StripOrdinals(cleaned)
	t, ok := parse(text, MonthFirst(country))
	if !ok {
		return Date{Raw: text}
	}
	return Date{Raw: text, ISO: t.Format(ISOLayout)}
}

type candidate struct {
	at int
	t  time.Time
}

// parse finds the earliest date-looking token in text. Explicit patterns are
// tried first; dateparse is the last resort for whole-string formats.
func parse(text string, monthFirst bool) (time.Time, bool) {
	var best *candidate
	consider := func(at int, t time.Time) {
		if best == nil || at < best.at {
			best = &candidate{at: at, t: t}
		}
	}

	if m := isoPattern.FindStringSubmatchIndex(text); m != nil {
		y, mo, d := atoi(text[m[2]:m[3]]), atoi(text[m[4]:m[5]]), atoi(text[m[6]:m[7]])
		if t, ok := build(y, mo, d); ok {
			consider(m[0], t)
		}
	}
	if m := numericPattern.FindStringSubmatchIndex(text); m != nil {
		a, b, y := atoi(text[m[2]:m[3]]), atoi(text[m[4]:m[5]]), atoi(text[m[6]:m[7]])
		if y < 100 {
			y += 2000
		}
		if !monthFirst {
			a, b = b, a
		}
		if t, ok := build(y, a, b); ok {
			consider(m[0], t)
		}
	}
	for _, re := range []*regexp.Regexp{dayRangePattern, dayMonthPattern} {
		if m := re.FindStringSubmatchIndex(text); m != nil {
			d, mon, y := atoi(text[m[2]:m[3]]), months[strings.ToLower(text[m[4]:m[5]])], atoi(text[m[6]:m[7]])
			if t, ok := build(y, int(mon), d); ok {
				consider(m[0], t)
			}
		}
	}
	for _, re := range []*regexp.Regexp{monRangePattern, monthDayPattern} {
		if m := re.FindStringSubmatchIndex(text); m != nil {
			mon, d, y := months[strings.ToLower(text[m[2]:m[3]])], atoi(text[m[4]:m[5]]), atoi(text[m[6]:m[7]])
			if t, ok := build(y, int(mon), d); ok {
				consider(m[0], t)
			}
		}
	}
	if best != nil {
		return best.t, true
	}

	if m := monthYrPattern.FindStringSubmatch(text); m != nil {
		if t, ok := build(atoi(m[2]), int(months[strings.ToLower(m[1])]), 1); ok {
			return t, true
		}
	}

	if ContainsMonth(text) && strings.ContainsAny(text, "0123456789") {
		t, err := dateparse.ParseIn(text, time.UTC, dateparse.PreferMonthFirst(monthFirst))
		if err == nil && t.Year() >= 1900 && t.Year() <= 2100 {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// build returns the date if y-m-d is a real calendar day.
func build(y, m, d int) (time.Time, bool) {
	if y < 1900 || y > 2100 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
