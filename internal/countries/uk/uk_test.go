package uk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/relay-scraper/internal/browser"
	"github.com/valpere/relay-scraper/internal/config"
	"github.com/valpere/relay-scraper/internal/fetch"
	"github.com/valpere/relay-scraper/internal/scraper"
	"github.com/valpere/relay-scraper/internal/utils"
)

const eventPath = "/get-involved/find-an-event/relay-for-life/"

func testEnv() *scraper.Env {
	return &scraper.Env{
		Fetcher: fetch.New(fetch.Options{MinDelay: -1}),
		Logger:  utils.NewNopLogger(),
	}
}

func teaserPage(slugs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><a href="` + eventPath + `">All Relay events</a>`)
	for _, s := range slugs {
		fmt.Fprintf(&b, `<article><h2><a rel="bookmark" href="%s%s">%s</a></h2></article>`, eventPath, s, s)
	}
	b.WriteString(`<nav><a href="/about">About</a></nav></body></html>`)
	return b.String()
}

func TestDiscoverTemplate_StopsAfterNoNewStreak(t *testing.T) {
	pages := map[string]string{
		"0": teaserPage("bath", "york"),
		"1": teaserPage("york", "leeds"),
		"2": teaserPage("leeds"),
		"4": teaserPage(),
		"5": teaserPage("never-reached"),
	}
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		body, ok := pages[r.URL.Query().Get("page")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	cfg := config.UKConfig{
		IndexURLTemplate: server.URL + "/find-an-event?page={page}",
		PageStart:        0,
		PageMax:          50,
		NoNewLimit:       3,
		EventURLContains: []string{eventPath},
	}

	var logs bytes.Buffer
	env := testEnv()
	env.Logger = utils.NewLoggerTo(&logs, utils.InfoLevel)

	urls, err := DiscoverTemplate(context.Background(), env, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{
		server.URL + eventPath + "bath",
		server.URL + eventPath + "leeds",
		server.URL + eventPath + "york",
	}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, urls)
	}
	// Pages 2, 3 (404) and 4 add nothing, so page 5 is never requested.
	if got := atomic.LoadInt32(&requests); got != 5 {
		t.Errorf("Expected 5 index requests, got %d", got)
	}
	if !strings.Contains(logs.String(), "No new links on 3 page(s) in a row, stopping at page 4") {
		t.Errorf("Expected the streak to be logged, got %q", logs.String())
	}
}

func TestDiscoverTemplate_HonorsPageMaxWithoutStreak(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		fmt.Fprint(w, teaserPage())
	}))
	defer server.Close()

	cfg := config.UKConfig{
		IndexURLTemplate: server.URL + "/?page={page}",
		PageStart:        1,
		PageMax:          6,
		StopWhenNoNew:    config.BoolPtr(false),
		EventURLContains: []string{eventPath},
	}
	if _, err := DiscoverTemplate(context.Background(), testEnv(), cfg); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 6 {
		t.Errorf("Expected pages 1..6 to be fetched, got %d requests", got)
	}
}

func TestTeaserLinks_FallsBackToAllAnchors(t *testing.T) {
	doc, _ := scraper.ParseHTML(`<body>
		<a href="` + eventPath + `">Listing</a>
		<a href="` + eventPath + `cardiff">Cardiff</a>
		<a href="/relay/swansea-2025">Swansea</a>
	</body>`)

	got := TeaserLinks(doc, "https://uk.test/find", []string{eventPath}, []string{"/relay/"})
	want := []string{"https://uk.test" + eventPath + "cardiff", "https://uk.test/relay/swansea-2025"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

type fakeBrowser struct {
	pages       []string
	current     int
	clicks      int
	closed      bool
	dismissed   bool
	screenshots int
	waits       []string
	waitErr     error
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error { return nil }

func (b *fakeBrowser) GetHTML(ctx context.Context) (string, error) {
	return b.pages[b.current], nil
}

func (b *fakeBrowser) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	b.waits = append(b.waits, selector)
	return b.waitErr
}

func (b *fakeBrowser) ClickByText(ctx context.Context, texts []string) (bool, error) {
	if b.current+1 >= len(b.pages) {
		return false, nil
	}
	b.current++
	b.clicks++
	return true, nil
}

func (b *fakeBrowser) DismissCookies(ctx context.Context, selectors []string) bool {
	b.dismissed = true
	return true
}

func (b *fakeBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	b.screenshots++
	return []byte("png"), nil
}

func (b *fakeBrowser) Stats() browser.BrowserStats {
	return browser.BrowserStats{PagesLoaded: 1, Clicks: b.clicks}
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

func renderConfig() config.UKConfig {
	return config.UKConfig{
		Render:           true,
		IndexURL:         "https://uk.test/find-an-event",
		NoNewLimit:       3,
		MaxClicks:        50,
		EventURLContains: []string{eventPath},
		NextTexts:        []string{"Next"},
	}
}

func TestDiscoverRendered_ClicksUntilNoNext(t *testing.T) {
	fb := &fakeBrowser{pages: []string{
		teaserPage("bath"),
		teaserPage("york", "bath"),
		teaserPage("leeds"),
	}}
	env := testEnv()
	env.Browser = func(ctx context.Context) (browser.BrowserClient, error) { return fb, nil }

	cfg := renderConfig()
	cfg.ScreenshotDir = t.TempDir()

	urls, err := DiscoverRendered(context.Background(), env, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(urls) != 3 {
		t.Errorf("Expected 3 URLs, got %v", urls)
	}
	if fb.clicks != 2 || !fb.closed || !fb.dismissed {
		t.Errorf("Unexpected browser use: clicks=%d closed=%v dismissed=%v", fb.clicks, fb.closed, fb.dismissed)
	}
	if _, err := os.Stat(filepath.Join(cfg.ScreenshotDir, "uk-discovery-exhausted.png")); err != nil {
		t.Errorf("Expected screenshot to be saved: %v", err)
	}
	// One wait after the first load and one after each click.
	if len(fb.waits) != 3 {
		t.Fatalf("Expected 3 waits for event cards, got %d", len(fb.waits))
	}
	for _, sel := range teaserSelectors {
		if !strings.Contains(fb.waits[0], sel) {
			t.Errorf("Expected wait selector to include %q, got %q", sel, fb.waits[0])
		}
	}
}

func TestDiscoverRendered_ReadsListingWhenCardsNeverRender(t *testing.T) {
	fb := &fakeBrowser{
		pages:   []string{`<html><body><a href="` + eventPath + `cardiff">Cardiff</a></body></html>`},
		waitErr: errors.New("element wait timeout: context deadline exceeded"),
	}
	env := testEnv()
	env.Browser = func(ctx context.Context) (browser.BrowserClient, error) { return fb, nil }

	urls, err := DiscoverRendered(context.Background(), env, renderConfig())
	if err != nil {
		t.Fatalf("Expected a wait timeout to be tolerated, got %v", err)
	}
	if len(urls) != 1 || !strings.HasSuffix(urls[0], eventPath+"cardiff") {
		t.Errorf("Expected the fallback link, got %v", urls)
	}
}

func TestDiscoverRendered_StopsOnNoNewStreak(t *testing.T) {
	pages := []string{teaserPage("bath")}
	for i := 0; i < 10; i++ {
		pages = append(pages, teaserPage("bath"))
	}
	fb := &fakeBrowser{pages: pages}
	env := testEnv()
	env.Browser = func(ctx context.Context) (browser.BrowserClient, error) { return fb, nil }

	urls, err := DiscoverRendered(context.Background(), env, renderConfig())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(urls) != 1 {
		t.Errorf("Expected 1 URL, got %v", urls)
	}
	if fb.clicks != 3 {
		t.Errorf("Expected to stop after 3 clicks without new links, got %d", fb.clicks)
	}
}

func TestDiscoverRendered_BrowserFailure(t *testing.T) {
	env := testEnv()
	env.Browser = func(ctx context.Context) (browser.BrowserClient, error) {
		return nil, errors.New("chrome not found")
	}
	if _, err := DiscoverRendered(context.Background(), env, renderConfig()); err == nil {
		t.Error("Expected browser start failure to be returned")
	}

	env.Browser = nil
	if _, err := DiscoverRendered(context.Background(), env, renderConfig()); err == nil {
		t.Error("Expected missing browser to be an error")
	}
}

func TestParseEventPage(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		wantRaw string
		wantISO string
	}{
		{
			name:    "label element",
			html:    `<h1>Relay Bath</h1><div><h3>Event date</h3><p>Saturday 14 June 2025</p></div>`,
			wantRaw: "Saturday 14 June 2025",
			wantISO: "2025-06-14",
		},
		{
			name:    "definition list",
			html:    `<h1>Relay York</h1><dl><dt>Event Date:</dt><dd>TBC</dd></dl>`,
			wantRaw: "TBC",
			wantISO: "",
		},
		{
			name:    "inline line",
			html:    `<h1>Relay Leeds</h1><p>Event date: 05/07/2025</p>`,
			wantRaw: "05/07/2025",
			wantISO: "2025-07-05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := "<html><body>" + tt.html + "</body></html>"
			doc, err := scraper.ParseHTML(page)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			rec, keep := ParseEventPage("https://uk.test/e", &fetch.FetchResult{StatusCode: 200, Text: page}, doc)
			if !keep {
				t.Fatal("Expected record to be kept")
			}
			if rec.DateRaw != tt.wantRaw || rec.DateISO != tt.wantISO {
				t.Errorf("Expected (%q, %q), got (%q, %q)", tt.wantRaw, tt.wantISO, rec.DateRaw, rec.DateISO)
			}
		})
	}
}
