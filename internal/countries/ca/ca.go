// Package ca scrapes Relay For Life events in Canada. Events are listed by
// the Luminate TeamRaiser API; index pages are mined for extra fr_id values.
package ca

import (
	"context"
	"net/url"
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

const (
	country     = record.CountryCA
	dateLabel   = "Event Date"
	dateWindow  = 200
	maxLineLen  = 90
	localeParam = "s_locale=en_CA"
)

// Driver implements scraper.Driver for CA.
type Driver struct {
	cfg config.CAConfig
}

// New creates the CA driver.
func New(cfg config.CAConfig) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) Country() string { return country }

// Event is a discovered event page with whatever the API told us about it.
type Event struct {
	URL        string
	Teamraiser *Teamraiser
}

// Scrape lists events through the API, adds ids mined from index pages and
// parses every event page. An API failure aborts the country.
func (d *Driver) Scrape(ctx context.Context, env *scraper.Env) ([]record.Record, error) {
	api := NewAPI(APIOptions{
		URL:       d.cfg.APIURL,
		Key:       d.cfg.APIKey,
		EventType: d.cfg.EventType,
		PageSize:  d.cfg.PageSize,
		MaxPages:  d.cfg.MaxPages,
		Client:    env.Client(),
		UserAgent: env.UserAgent,
		Limiter:   utils.NewRateLimiter(d.cfg.PageDelay.Std()),
		Logger:    env.Log(country),
		Metrics:   env.Metrics,
	})

	events, err := d.Discover(ctx, env, api)
	if err != nil {
		return nil, err
	}

	byURL := make(map[string]*Teamraiser, len(events))
	urls := make([]string, 0, len(events))
	for _, ev := range events {
		byURL[ev.URL] = ev.Teamraiser
		urls = append(urls, ev.URL)
	}

	return scraper.ParsePages(ctx, env, country, urls,
		func(u string, res *fetch.FetchResult, doc *goquery.Document) (record.Record, bool) {
			return ParseEventPage(u, res, doc, byURL[u])
		})
}

// Discover returns event pages from every configured list, followed by pages
// for fr_id values mined from the index pages that the API did not return.
func (d *Driver) Discover(ctx context.Context, env *scraper.Env, api *API) ([]Event, error) {
	logger := env.Log(country)
	disc := scraper.NewDiscovery(env, country, "teamraiser-api")

	lists := d.cfg.Lists
	if len(lists) == 0 {
		lists = config.DefaultCALists
	}

	var events []Event
	seen := scraper.NewURLSet()
	ids := make(map[string]bool)
	for _, list := range lists {
		logger.Infof("API discovery starting: %s (filter=%s)", list.Label, list.FilterText)
		items, err := api.List(ctx, list)
		if err != nil {
			return nil, err
		}
		logger.Infof("API discovery done: %s teamraisers=%d", list.Label, len(items))

		var found []string
		for i := range items {
			tr := items[i]
			u := utils.StripFragment(EventURL(&tr, d.cfg.APIURL, d.cfg.EntryURLTemplate))
			if !seen.Add(u) {
				continue
			}
			ids[tr.ID] = true
			found = append(found, u)
			events = append(events, Event{URL: u, Teamraiser: &tr})
		}
		disc.Page(found)
	}
	disc.Finish(scraper.StateExhausted)

	if d.cfg.MineIndexPages() {
		mined := 0
		for _, id := range MineIndexPages(ctx, env, d.cfg.IndexURLs) {
			if ids[id] {
				continue
			}
			ids[id] = true
			u := EventURL(&Teamraiser{ID: id}, d.cfg.APIURL, d.cfg.EntryURLTemplate)
			if seen.Add(u) {
				events = append(events, Event{URL: u})
				mined++
			}
		}
		logger.Infof("Index mining added %d event URL(s)", mined)
	}

	logger.Infof("Discovered %d event URL(s)", len(events))
	return events, nil
}

// EventURL picks the entry page of a teamraiser: the API's own URL when it is
// absolute, else an area page on the API host, else entryTemplate.
func EventURL(tr *Teamraiser, apiURL, entryTemplate string) string {
	if strings.HasPrefix(tr.EventURL, "http") {
		return tr.EventURL
	}
	if tr.ID == "" {
		return ""
	}
	if tr.Area != "" {
		if base, err := url.Parse(apiURL); err == nil && base.Host != "" {
			return base.Scheme + "://" + base.Host + "/site/TR/RelayForLife/" + url.PathEscape(tr.Area) +
				"?pg=entry&fr_id=" + tr.ID + "&" + localeParam
		}
	}
	if entryTemplate == "" {
		entryTemplate = config.DefaultCAEntryURL
	}
	return utils.ExpandTemplate(entryTemplate, map[string]string{"id": tr.ID})
}

var frIDPattern = regexp.MustCompile(`(?i)fr_id(?:=|%3D|\\u003d|&#0*61;|&#x0*3d;|&equals;|\\?"\s*:\s*\\?"?)(\d+)`)

// MineFRIDs returns the distinct fr_id values in page, in any of the
// encodings seen in Luminate markup and inline JSON, in ascending order.
func MineFRIDs(page string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range frIDPattern.FindAllStringSubmatch(page, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids
}

// MineIndexPages fetches each index page and mines it for fr_id values.
// Pages that fail to load are skipped.
func MineIndexPages(ctx context.Context, env *scraper.Env, indexURLs []string) []string {
	logger := env.Log(country)
	disc := scraper.NewDiscovery(env, country, "index-mining")
	for _, idx := range indexURLs {
		if ctx.Err() != nil {
			break
		}
		res, ok := scraper.FetchPage(ctx, env, logger, idx)
		if !ok {
			continue
		}
		disc.Page(MineFRIDs(res.Text))
	}
	return disc.Finish(scraper.StateExhausted)
}

// ParseEventPage builds a record from an event page. Name and date from the
// API payload win over what the page says.
func ParseEventPage(u string, res *fetch.FetchResult, doc *goquery.Document, tr *Teamraiser) (record.Record, bool) {
	var name, apiDate string
	if tr != nil {
		name, apiDate = tr.Name, tr.EventDate
	}
	if name == "" {
		name = extract.Cascade(doc,
			extract.Strategy[*goquery.Document]{Name: "h1", Run: func(doc *goquery.Document) extract.Result {
				return extract.Found(extract.Title(doc, "h1"))
			}},
			extract.Strategy[*goquery.Document]{Name: "title", Run: func(doc *goquery.Document) extract.Result {
				return extract.Found(extract.Title(doc, "title"))
			}},
		).Value
	}

	lines := extract.Lines(doc)
	date := extract.Cascade(lines,
		extract.Strategy[[]string]{Name: "api", Run: func([]string) extract.Result { return extract.Found(apiDate) }},
		extract.Strategy[[]string]{Name: "label-line", Run: labelLine},
		extract.Strategy[[]string]{Name: "label-window", Run: labelWindow},
		extract.Strategy[[]string]{Name: "month-line", Run: monthLine},
	)

	nd := normalize.ParseDate(date.Value, country)
	rec := record.New(country, name, nd.Raw, nd.ISO, extract.Emails(res.Text), u)
	return rec, !rec.IsEmpty()
}

func labelLine(lines []string) extract.Result {
	for _, line := range lines {
		if _, after, ok := strings.Cut(line, dateLabel); ok {
			if r := extract.Found(strings.Trim(after, " :\t-")); r.OK() {
				return r
			}
		}
	}
	return extract.NotFound()
}

// labelWindow covers labels whose value sits in the following text nodes.
func labelWindow(lines []string) extract.Result {
	text := strings.Join(lines, " ")
	i := strings.Index(text, dateLabel)
	if i < 0 {
		return extract.NotFound()
	}
	window := []rune(text[i+len(dateLabel):])
	if len(window) > dateWindow {
		window = window[:dateWindow]
	}
	return extract.Found(strings.Trim(string(window), " :\t-"))
}

var monthAbbrevs = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func monthLine(lines []string) extract.Result {
	for _, line := range lines {
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
