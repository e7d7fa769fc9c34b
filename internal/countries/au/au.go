// Package au scrapes Relay For Life events from the Australian site.
package au

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/valpere/relay-scraper/internal/config"
	"github.com/valpere/relay-scraper/internal/extract"
	"github.com/valpere/relay-scraper/internal/fetch"
	"github.com/valpere/relay-scraper/internal/normalize"
	"github.com/valpere/relay-scraper/internal/record"
	"github.com/valpere/relay-scraper/internal/scraper"
	"github.com/valpere/relay-scraper/internal/utils"
)

const (
	country    = record.CountryAU
	dateLabel  = "Event Date"
	labelClimb = 4
	maxLineLen = 50
)

// Driver implements scraper.Driver for AU.
type Driver struct {
	cfg config.AUConfig
}

// New creates the AU driver.
func New(cfg config.AUConfig) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) Country() string { return country }

// Scrape discovers event pages from the configured index pages and parses
// each one.
func (d *Driver) Scrape(ctx context.Context, env *scraper.Env) ([]record.Record, error) {
	urls, err := DiscoverEventURLs(ctx, env, d.cfg.IndexURLs, d.cfg.EventURLContains)
	if err != nil {
		return nil, err
	}
	return scraper.ParsePages(ctx, env, country, urls, ParseEventPage)
}

// DiscoverEventURLs collects event links from every index page that loads.
// A link qualifies when it contains one of contains and an /event/ path but
// not /events. The result is sorted.
func DiscoverEventURLs(ctx context.Context, env *scraper.Env, indexURLs, contains []string) ([]string, error) {
	disc := scraper.NewDiscovery(env, country, "index")
	logger := env.Log(country)

	for _, idx := range indexURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, ok := scraper.FetchDocument(ctx, env, logger, idx)
		if !ok {
			continue
		}
		var candidates []string
		for _, u := range extract.Anchors(doc, idx) {
			if isEventURL(u, contains) {
				candidates = append(candidates, u)
			}
		}
		disc.Page(candidates)
	}

	urls := disc.Finish(scraper.StateExhausted)
	sort.Strings(urls)
	return urls, nil
}

func isEventURL(u string, contains []string) bool {
	if !strings.Contains(u, "/event/") || strings.Contains(u, "/events") {
		return false
	}
	for _, frag := range contains {
		if strings.Contains(u, frag) {
			return true
		}
	}
	return false
}

var nameStrategies = []extract.Strategy[*goquery.Document]{
	{Name: "h1", Run: func(doc *goquery.Document) extract.Result { return extract.Found(extract.Title(doc, "h1")) }},
	{Name: "title", Run: func(doc *goquery.Document) extract.Result { return extract.Found(extract.Title(doc, "title")) }},
}

var dateStrategies = []extract.Strategy[*goquery.Document]{
	{Name: "label", Run: labelDate},
	{Name: "month-line", Run: monthLine},
}

// ParseEventPage builds a record from an event page.
func ParseEventPage(url string, res *fetch.FetchResult, doc *goquery.Document) (record.Record, bool) {
	name := extract.Cascade(doc, nameStrategies...)
	date := extract.Cascade(doc, dateStrategies...)

	nd := normalize.ParseDate(ReduceDate(date.Value), country)
	rec := record.New(country, name.Value, nd.Raw, nd.ISO, extract.Emails(res.Text), url)
	return rec, !rec.IsEmpty()
}

// labelDate finds the first text node mentioning the label, climbs a few
// ancestors to reach the block holding the value and returns the text after
// the label.
func labelDate(doc *goquery.Document) extract.Result {
	label := findText(doc.Nodes[0], dateLabel)
	if label == nil || label.Parent == nil {
		return extract.NotFound()
	}

	container := label.Parent
	for i := 0; i < labelClimb; i++ {
		if container.Data == "html" || container.Data == "body" || container.Parent == nil {
			break
		}
		container = container.Parent
	}

	text := extract.TextSep(goquery.NewDocumentFromNode(container).Selection, " ")
	_, after, ok := strings.Cut(text, dateLabel)
	if !ok {
		return extract.NotFound()
	}
	return extract.Found(strings.Trim(after, " :|-"))
}

func findText(n *html.Node, needle string) *html.Node {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return nil
	}
	if n.Type == html.TextNode && strings.Contains(n.Data, needle) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findText(c, needle); found != nil {
			return found
		}
	}
	return nil
}

var monthAbbrevs = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// monthLine returns the first short line with a month abbreviation and a digit.
func monthLine(doc *goquery.Document) extract.Result {
	for _, line := range extract.Lines(doc) {
		if len(line) > maxLineLen || !strings.ContainsAny(line, "0123456789") {
			continue
		}
		for _, m := range monthAbbrevs {
			if strings.Contains(line, m) {
				return extract.Found(line)
			}
		}
	}
	return extract.NotFound()
}

var (
	weekdayPattern = regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)\b\.?,?\s*`)
	septPattern    = regexp.MustCompile(`(?i)\bsept\b`)
	fullDate       = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(january|february|march|april|may|june|july|august|september|october|november|december),?\s+(\d{4})\b`)
	abbrevDate     = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\.?,?\s+(\d{4})\b`)
)

// ReduceDate trims label-block text such as "Saturday 3rd May 2025 Location
// Perth" down to "3 May 2025". Text without a day-month-year token is
// returned cleaned but otherwise unchanged.
func ReduceDate(text string) string {
	text = normalize.Clean(text)
	if text == "" {
		return ""
	}
	text = utils.CollapseSpaces(weekdayPattern.ReplaceAllString(text, ""))
	text = septPattern.ReplaceAllString(text, "Sep")

	for _, re := range []*regexp.Regexp{fullDate, abbrevDate} {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1] + " " + m[2] + " " + m[3]
		}
	}
	return text
}
