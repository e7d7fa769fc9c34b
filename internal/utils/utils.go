// internal/utils/utils.go
package utils

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// StripFragment removes the "#..." part of a URL. It works on the raw string so
// that URLs which fail to parse are still canonicalised.
func StripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// Absolutize resolves href against base. On parse errors href is returned as-is.
func Absolutize(base, href string) string {
	href = strings.TrimSpace(href)
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// IsHTTPURL reports whether rawURL has an http or https scheme and a host.
func IsHTTPURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

var spaceRun = regexp.MustCompile(`\s+`)

// CollapseSpaces trims s and replaces runs of whitespace with a single space.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// TruncateString shortens s to at most maxLen runes, appending "..." when cut.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// FormatDuration renders d rounded to milliseconds.
func FormatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// ExpandTemplate replaces "{key}" placeholders in tmpl with the given values.
func ExpandTemplate(tmpl string, values map[string]string) string {
	out := tmpl
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
