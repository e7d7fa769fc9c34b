// internal/scraper/page.go
package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/relay-scraper/internal/fetch"
	"github.com/valpere/relay-scraper/internal/record"
	"github.com/valpere/relay-scraper/internal/utils"
)

// FetchPage fetches url and reports whether it came back with status 200.
// Failures are logged and swallowed: a missing page is skipped, never fatal.
func FetchPage(ctx context.Context, env *Env, logger utils.Logger, url string) (*fetch.FetchResult, bool) {
	res, err := env.Fetcher.Get(ctx, url)
	if err != nil {
		logger.Warnf("Skipping %s: %v", url, err)
		return nil, false
	}
	if !res.OK() {
		logger.Warnf("Skipping %s: status %d", url, res.StatusCode)
		return res, false
	}
	return res, true
}

// FetchDocument is FetchPage followed by HTML parsing.
func FetchDocument(ctx context.Context, env *Env, logger utils.Logger, url string) (*goquery.Document, bool) {
	res, ok := FetchPage(ctx, env, logger, url)
	if !ok {
		return nil, false
	}
	doc, err := ParseHTML(res.Text)
	if err != nil {
		logger.Warnf("Skipping %s: parse HTML: %v", url, err)
		return nil, false
	}
	return doc, true
}

// ParseHTML parses an HTML string into a goquery document.
func ParseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// PageParser turns one fetched event page into a record. It reports false
// when the page yielded nothing worth keeping.
type PageParser func(url string, res *fetch.FetchResult, doc *goquery.Document) (record.Record, bool)

// ProgressEvery is how often ParsePages logs progress.
const ProgressEvery = 50

// ParsePages fetches and parses urls one at a time. Pages that fail to fetch
// or parse are skipped; only context cancellation stops the loop early.
func ParsePages(ctx context.Context, env *Env, country string, urls []string, parse PageParser) ([]record.Record, error) {
	logger := env.Log(country)
	records := make([]record.Record, 0, len(urls))

	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		res, ok := FetchPage(ctx, env, logger, u)
		if ok {
			doc, err := ParseHTML(res.Text)
			if err != nil {
				logger.Warnf("Skipping %s: parse HTML: %v", u, err)
			} else if rec, keep := parse(u, res, doc); keep {
				records = append(records, rec)
			}
		}

		if (i+1)%ProgressEvery == 0 {
			logger.Infof("Parsed %d/%d page(s), %d record(s)", i+1, len(urls), len(records))
		}
	}
	return records, nil
}
