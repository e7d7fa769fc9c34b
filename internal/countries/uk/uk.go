// Package uk scrapes Relay For Life events from the UK listing, either by
// walking numbered index pages or by clicking through a rendered listing.
package uk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/relay-scraper/internal/browser"
	"github.com/valpere/relay-scraper/internal/config"
	"github.com/valpere/relay-scraper/internal/extract"
	"github.com/valpere/relay-scraper/internal/fetch"
	"github.com/valpere/relay-scraper/internal/normalize"
	"github.com/valpere/relay-scraper/internal/record"
	"github.com/valpere/relay-scraper/internal/scraper"
	"github.com/valpere/relay-scraper/internal/utils"
)

const (
	country   = record.CountryUK
	dateLabel = "Event date"

	// teaserWait bounds how long a rendered listing may take to show cards.
	teaserWait = 10 * time.Second
)

// teaserSelectors match the event cards on index pages.
var teaserSelectors = []string{
	"article a[rel=bookmark]",
	"a.event-teaser__link",
	"article .card a[href]",
}

// Driver implements scraper.Driver for UK.
type Driver struct {
	cfg config.UKConfig
}

// New creates the UK driver.
func New(cfg config.UKConfig) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) Country() string { return country }

// Scrape discovers event pages and parses each through the plain fetch path.
func (d *Driver) Scrape(ctx context.Context, env *scraper.Env) ([]record.Record, error) {
	var (
		urls []string
		err  error
	)
	if d.cfg.Render {
		urls, err = DiscoverRendered(ctx, env, d.cfg)
	} else {
		urls, err = DiscoverTemplate(ctx, env, d.cfg)
	}
	if err != nil {
		return nil, err
	}
	return scraper.ParsePages(ctx, env, country, urls, ParseEventPage)
}

// DiscoverTemplate fetches numbered index pages from PageStart to PageMax.
// A page that fails to load counts as a page with nothing new; the walk ends
// after NoNewLimit such pages in a row when StopWhenNoNew is set.
func DiscoverTemplate(ctx context.Context, env *scraper.Env, cfg config.UKConfig) ([]string, error) {
	disc := scraper.NewDiscovery(env, country, "template")
	streak := scraper.NewNoNewStreak(cfg.NoNewLimit)
	logger := env.Log(country)

	reason := scraper.StateHardCap
	for p := cfg.PageStart; p <= cfg.PageMax; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL := utils.ExpandTemplate(cfg.IndexURLTemplate, map[string]string{"page": strconv.Itoa(p)})
		added := 0
		if doc, ok := scraper.FetchDocument(ctx, env, logger, pageURL); ok {
			added = disc.Page(TeaserLinks(doc, pageURL, cfg.EventURLContains, cfg.AltURLContains))
		}

		if cfg.StopOnNoNew() && streak.Observe(added) {
			logger.Infof("No new links on %d page(s) in a row, stopping at page %d", streak.Streak(), p)
			reason = scraper.StateNoNewStreak
			break
		}
	}

	urls := disc.Finish(reason)
	sort.Strings(urls)
	return urls, nil
}

// DiscoverRendered drives one browser through a JS-rendered listing,
// harvesting links after every click on a "Next" control. It stops when no
// control is found, the no-new streak reaches its limit or MaxClicks is hit.
func DiscoverRendered(ctx context.Context, env *scraper.Env, cfg config.UKConfig) ([]string, error) {
	if env.Browser == nil {
		return nil, fmt.Errorf("rendered discovery of %s needs a browser", cfg.IndexURL)
	}
	logger := env.Log(country).WithField("source", "render")

	client, err := env.Browser(ctx)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	defer client.Close()

	if err := client.Navigate(ctx, cfg.IndexURL); err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.IndexURL, err)
	}
	if client.DismissCookies(ctx, cfg.CookieSelectors) {
		logger.Debug("Cookie banner dismissed")
	}
	waitForTeasers(ctx, client, logger)

	disc := scraper.NewDiscovery(env, country, "render")
	streak := scraper.NewNoNewStreak(cfg.NoNewLimit)
	clicks := 0

	var reason scraper.DiscoveryState
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		html, err := client.GetHTML(ctx)
		if err != nil {
			logger.Warnf("Reading rendered listing failed: %v", err)
			reason = scraper.StateExhausted
			break
		}
		doc, err := scraper.ParseHTML(html)
		if err != nil {
			logger.Warnf("Parsing rendered listing failed: %v", err)
			reason = scraper.StateExhausted
			break
		}

		added := disc.Page(TeaserLinks(doc, cfg.IndexURL, cfg.EventURLContains, cfg.AltURLContains))
		if streak.Observe(added) {
			logger.Infof("No new links after %d load(s) in a row, stopping after %d click(s)", streak.Streak(), clicks)
			reason = scraper.StateNoNewStreak
			break
		}
		if cfg.MaxClicks > 0 && clicks >= cfg.MaxClicks {
			reason = scraper.StateHardCap
			break
		}

		clicked, err := client.ClickByText(ctx, cfg.NextTexts)
		if err != nil {
			logger.Warnf("Clicking next failed: %v", err)
		}
		if !clicked {
			reason = scraper.StateExhausted
			break
		}
		clicks++
		waitForTeasers(ctx, client, logger)
	}

	stats := client.Stats()
	env.Metrics.RecordBrowser(country, stats.PagesLoaded, stats.Clicks, stats.Errors+stats.JavaScriptErrors, stats.TimeoutsOccurred)
	logger.Debugf("Browser: %d page(s), %d click(s), %d error(s), %d timeout(s)",
		stats.PagesLoaded, stats.Clicks, stats.Errors+stats.JavaScriptErrors, stats.TimeoutsOccurred)

	if cfg.ScreenshotDir != "" {
		saveScreenshot(ctx, client, cfg.ScreenshotDir, string(reason), logger)
	}

	urls := disc.Finish(reason)
	sort.Strings(urls)
	return urls, nil
}

// waitForTeasers gives the listing time to render its cards. A listing that
// never shows any is still read: the anchor fallback may find links.
func waitForTeasers(ctx context.Context, client browser.BrowserClient, logger utils.Logger) {
	if err := client.WaitForElement(ctx, strings.Join(teaserSelectors, ", "), teaserWait); err != nil {
		logger.Debugf("No event cards rendered: %v", err)
	}
}

type screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

func saveScreenshot(ctx context.Context, client screenshotter, dir, reason string, logger utils.Logger) {
	png, err := client.Screenshot(ctx)
	if err != nil {
		logger.Warnf("Screenshot failed: %v", err)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warnf("Screenshot dir: %v", err)
		return
	}
	path := filepath.Join(dir, "uk-discovery-"+reason+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		logger.Warnf("Writing screenshot failed: %v", err)
		return
	}
	logger.Infof("Saved screenshot %s", path)
}

// TeaserLinks returns event links on an index page. Links inside event
// teasers must contain one of contains; pages without teasers fall back to
// every anchor. Anchors containing one of alt are accepted anywhere.
func TeaserLinks(doc *goquery.Document, base string, contains, alt []string) []string {
	var out []string
	teasers := doc.Find(strings.Join(teaserSelectors, ", "))
	scope := teasers
	if teasers.Length() == 0 {
		scope = doc.Find("a[href]")
	}
	scope.Each(func(_ int, s *goquery.Selection) {
		if u := extract.AbsHref(s, base); u != "" && matchesEvent(u, contains) {
			out = append(out, u)
		}
	})

	if len(alt) > 0 {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			if u := extract.AbsHref(s, base); u != "" && matchesEvent(u, alt) {
				out = append(out, u)
			}
		})
	}
	return out
}

// matchesEvent reports whether u contains one of frags followed by a
// further path segment, so the listing page itself never matches.
func matchesEvent(u string, frags []string) bool {
	for _, frag := range frags {
		i := strings.Index(u, frag)
		if i < 0 {
			continue
		}
		rest := strings.Trim(u[i+len(frag):], "/")
		if rest != "" && !strings.HasPrefix(rest, "?") {
			return true
		}
	}
	return false
}

var dateStrategies = []extract.Strategy[*goquery.Document]{
	{Name: "label", Run: func(doc *goquery.Document) extract.Result {
		return extract.Found(extract.NextTextAfter(doc, dateLabel))
	}},
	{Name: "definition", Run: definitionDate},
	{Name: "line", Run: lineDate},
}

// ParseEventPage builds a record from an event page.
func ParseEventPage(url string, res *fetch.FetchResult, doc *goquery.Document) (record.Record, bool) {
	name := extract.Title(doc, "h1")
	date := extract.Cascade(doc, dateStrategies...)

	nd := normalize.ParseDate(date.Value, country)
	rec := record.New(country, name, nd.Raw, nd.ISO, extract.Emails(res.Text), url)
	return rec, !rec.IsEmpty()
}

func definitionDate(doc *goquery.Document) extract.Result {
	result := extract.NotFound()
	doc.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(dt.Text()), "event date") {
			return true
		}
		dd := dt.NextAllFiltered("dd").First()
		if dd.Length() == 0 {
			return true
		}
		result = extract.Found(extract.TextSep(dd, " "))
		return !result.OK()
	})
	return result
}

func lineDate(doc *goquery.Document) extract.Result {
	for _, line := range extract.Lines(doc) {
		if _, after, ok := strings.Cut(line, dateLabel); ok {
			if r := extract.Found(strings.Trim(after, " :|-")); r.OK() {
				return r
			}
		}
	}
	return extract.NotFound()
}
