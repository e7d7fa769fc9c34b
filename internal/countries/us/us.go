// Package us scrapes Relay For Life events in the US. Event ids come from the
// ACS fundraising search API; dates and contacts come from the event pages.
package us

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/relay-scraper/internal/config"
	"github.com/valpere/relay-scraper/internal/extract"
	"github.com/valpere/relay-scraper/internal/fetch"
	"github.com/valpere/relay-scraper/internal/normalize"
	"github.com/valpere/relay-scraper/internal/record"
	"github.com/valpere/relay-scraper/internal/scraper"
	"github.com/valpere/relay-scraper/internal/utils"
)

const country = record.CountryUS

// Driver implements scraper.Driver for US.
type Driver struct {
	cfg config.USConfig
}

// New creates the US driver.
func New(cfg config.USConfig) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) Country() string { return country }

// Scrape resolves event ids through the search API and parses each event
// page. API failures abort the country.
func (d *Driver) Scrape(ctx context.Context, env *scraper.Env) ([]record.Record, error) {
	api := NewAPI(d.cfg.APIBase, env.Client(), utils.NewRateLimiter(d.cfg.APIDelay.Std()), env.Log(country), env.Metrics).
		WithUserAgent(env.UserAgent)

	ids, err := DiscoverEventIDs(ctx, env, api, d.cfg.ZipCodes, d.cfg.RadiusMiles, d.variants())
	if err != nil {
		return nil, err
	}
	if d.cfg.MaxEvents > 0 && len(ids) > d.cfg.MaxEvents {
		env.Log(country).Infof("Limiting %d event(s) to %d", len(ids), d.cfg.MaxEvents)
		ids = ids[:d.cfg.MaxEvents]
	}

	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		urls = append(urls, EventURL(d.cfg.EntryURLTemplate, id))
	}
	return scraper.ParsePages(ctx, env, country, urls, ParseEventPage)
}

func (d *Driver) variants() []Variant {
	if len(d.cfg.Variants) == 0 {
		return DefaultVariants
	}
	out := make([]Variant, 0, len(d.cfg.Variants))
	for _, v := range d.cfg.Variants {
		out = append(out, Variant{
			Name:         v.Name,
			ZipKey:       v.ZipKey,
			RadiusKey:    v.RadiusKey,
			VersionKey:   v.VersionKey,
			VersionValue: v.VersionValue,
		})
	}
	return out
}

// DiscoverEventIDs tries the variants with the first ZIP, then queries
// every ZIP with the winner and returns the union of numeric event ids in
// ascending order.
func DiscoverEventIDs(ctx context.Context, env *scraper.Env, api *API, zips []string, radiusMiles int, variants []Variant) ([]string, error) {
	if len(zips) == 0 {
		return nil, nil
	}
	disc := scraper.NewDiscovery(env, country, "api")

	variant, err := api.SelectVariant(ctx, zips[0], radiusMiles, variants)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool)
	for _, zip := range zips {
		results, err := api.Search(ctx, zip, radiusMiles, variant)
		if err != nil {
			return nil, fmt.Errorf("search ZIP %s: %w", zip, err)
		}
		var found []string
		for _, r := range results {
			if id, ok := r.ID(); ok {
				ids[id] = true
				found = append(found, id)
			}
		}
		disc.Page(found)
	}
	disc.Finish(scraper.StateExhausted)

	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out, nil
}

// EventURL maps an event id to its entry page.
func EventURL(template, id string) string {
	if template == "" {
		template = config.DefaultUSEntryURL
	}
	return utils.ExpandTemplate(template, map[string]string{"id": id})
}

// ParseEventPage builds a record from an event entry page.
func ParseEventPage(url string, res *fetch.FetchResult, doc *goquery.Document) (record.Record, bool) {
	name := extract.Cascade(doc,
		extract.Strategy[*goquery.Document]{Name: "h1", Run: func(doc *goquery.Document) extract.Result {
			return extract.Found(extract.Title(doc, "h1"))
		}},
		extract.Strategy[*goquery.Document]{Name: "title", Run: func(doc *goquery.Document) extract.Result {
			return extract.Found(extract.Title(doc, "title"))
		}},
	).Value

	date := extract.Cascade(doc,
		extract.Strategy[*goquery.Document]{Name: "json-ld", Run: func(doc *goquery.Document) extract.Result {
			return jsonLDDate(doc, name)
		}},
		extract.Strategy[*goquery.Document]{Name: "labeled-line", Run: labeledLine},
		extract.Strategy[*goquery.Document]{Name: "month-line", Run: monthLine},
	)

	nd := normalize.ParseDate(date.Value, country)
	rec := record.New(country, name, nd.Raw, nd.ISO, extract.Emails(res.Text), url)
	return rec, !rec.IsEmpty()
}

// jsonLDDate reads startDate (and endDate) from structured data. Values equal
// to the event name are ignored: some pages echo the name into every field.
func jsonLDDate(doc *goquery.Document, name string) extract.Result {
	result := extract.NotFound()
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			result = extract.Malformed()
			return true
		}
		start, end := findDates(data)
		if start == "" || strings.EqualFold(start, name) {
			return true
		}
		value := start
		if end != "" && end != start && !strings.EqualFold(end, name) {
			value = start + " - " + end
		}
		result = extract.Found(value)
		return false
	})
	return result
}

func findDates(v interface{}) (start, end string) {
	switch node := v.(type) {
	case map[string]interface{}:
		if s, ok := node["startDate"].(string); ok && strings.TrimSpace(s) != "" {
			e, _ := node["endDate"].(string)
			return strings.TrimSpace(s), strings.TrimSpace(e)
		}
		if graph, ok := node["@graph"]; ok {
			return findDates(graph)
		}
	case []interface{}:
		for _, item := range node {
			if s, e := findDates(item); s != "" {
				return s, e
			}
		}
	}
	return "", ""
}

var labeledPattern = regexp.MustCompile(`(?i)\b(?:event date|relay date|date)\s*:\s*(.+)`)

func labeledLine(doc *goquery.Document) extract.Result {
	for _, line := range extract.Lines(doc) {
		if m := labeledPattern.FindStringSubmatch(line); m != nil {
			if r := extract.Found(m[1]); r.OK() {
				return r
			}
		}
	}
	return extract.NotFound()
}

func monthLine(doc *goquery.Document) extract.Result {
	for _, line := range extract.Lines(doc) {
		if len(line) < 6 || len(line) > 60 {
			continue
		}
		if strings.Contains(strings.ToLower(line), "registration") {
			continue
		}
		if normalize.ContainsMonth(line) && strings.ContainsAny(line, "0123456789") {
			return extract.Found(line)
		}
	}
	return extract.NotFound()
}
