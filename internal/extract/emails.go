// internal/extract/emails.go
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EmailPattern matches plain email syntax.
var EmailPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)

var (
	cfFragment = regexp.MustCompile(`#([0-9a-fA-F]+)$`)
	hexOnly    = regexp.MustCompile(`^[0-9a-fA-F]+$`)

	bracketAt  = regexp.MustCompile(`(?i)\s*[\[(]\s*at\s*[\])]\s*`)
	bracketDot = regexp.MustCompile(`(?i)\s*[\[(]\s*dot\s*[\])]\s*`)
	spelledOut = strings.NewReplacer(" at ", "@", " AT ", "@", " dot ", ".", " DOT ", ".")
)

// deobfuscate rewrites "name [at] host (dot) org" spellings into addresses.
func deobfuscate(text string) string {
	text = bracketAt.ReplaceAllString(text, "@")
	text = bracketDot.ReplaceAllString(text, ".")
	return spelledOut.Replace(text)
}

// Emails extracts every email address from an HTML page: mailto links,
// Cloudflare-protected addresses and "name [at] host [dot] tld" text.
// The result is lower-cased, de-duplicated and sorted.
func Emails(page string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return []string{}
	}
	return EmailsFromDocument(doc)
}

// EmailsFromDocument is Emails for an already parsed document.
func EmailsFromDocument(doc *goquery.Document) []string {
	found := make(map[string]struct{})
	add := func(candidate string) {
		e := strings.ToLower(strings.Trim(strings.TrimSpace(candidate), ".;,"))
		if strings.Contains(e, "@") {
			found[e] = struct{}{}
		}
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
			return
		}
		addr := href[7:]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		add(addr)
	})

	doc.Find("[data-cfemail]").Each(func(_ int, s *goquery.Selection) {
		payload := strings.TrimSpace(s.AttrOr("data-cfemail", ""))
		if !hexOnly.MatchString(payload) {
			return
		}
		if email, err := DecodeCFEmail(payload); err == nil {
			add(email)
		}
	})

	doc.Find(`a[href*="/cdn-cgi/l/email-protection"]`).Each(func(_ int, s *goquery.Selection) {
		m := cfFragment.FindStringSubmatch(s.AttrOr("href", ""))
		if m == nil {
			return
		}
		if email, err := DecodeCFEmail(m[1]); err == nil {
			add(email)
		}
	})

	text := deobfuscate(TextSep(doc.Selection, " "))
	for _, m := range EmailPattern.FindAllString(text, -1) {
		add(m)
	}

	out := make([]string, 0, len(found))
	for e := range found {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
