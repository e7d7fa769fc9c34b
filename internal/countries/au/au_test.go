package au

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/valpere/relay-scraper/internal/config"
	"github.com/valpere/relay-scraper/internal/extract"
	"github.com/valpere/relay-scraper/internal/fetch"
	"github.com/valpere/relay-scraper/internal/scraper"
	"github.com/valpere/relay-scraper/internal/utils"
)

func testEnv() *scraper.Env {
	return &scraper.Env{
		Fetcher: fetch.New(fetch.Options{MinDelay: -1}),
		Logger:  utils.NewNopLogger(),
	}
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/find-an-event", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<a href="/event/perth#top">Perth</a>
			<a href="%s/event/hobart">Hobart</a>
			<a href="/events/all">All events</a>
			<a href="/event/missing">Missing</a>
			<a href="mailto:info@relay.test">Contact</a>
			<a href="/donate">Donate</a>
		</body></html>`, server.URL)
	})
	mux.HandleFunc("/event/perth", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Relay Perth | Cancer Council</title></head><body>
			<main><section><div class="details">
				<div class="row"><span class="label">Event Date</span></div>
				<div class="row"><span>Saturday 3rd May 2025</span><span>Location Perth Oval</span></div>
			</div></section></main>
			<h1>Relay For Life Perth</h1>
			<p>Contact <a href="mailto:Perth@Relay.test?subject=hi">us</a></p>
		</body></html>`)
	})
	mux.HandleFunc("/event/hobart", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Relay Hobart</title></head><body>
			<p>Join us</p>
			<p>Sun 14 Sept 2025</p>
			<span class="__cf_email__" data-cfemail="%s">[email protected]</span>
		</body></html>`, extract.EncodeCFEmail("hobart@relay.test", 0x42))
	})
	mux.HandleFunc("/event/missing", http.NotFound)

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestDiscoverEventURLs(t *testing.T) {
	server := newSite(t)

	urls, err := DiscoverEventURLs(context.Background(), testEnv(),
		[]string{server.URL + "/find-an-event", server.URL + "/not-there"}, []string{"/event/"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{server.URL + "/event/hobart", server.URL + "/event/missing", server.URL + "/event/perth"}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, urls)
	}
}

func TestScrape(t *testing.T) {
	server := newSite(t)
	driver := New(config.AUConfig{
		IndexURLs:        []string{server.URL + "/find-an-event"},
		EventURLContains: []string{"/event/"},
	})

	records, err := driver.Scrape(context.Background(), testEnv())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records (404 page skipped), got %d: %+v", len(records), records)
	}

	byURL := make(map[string]int)
	for i, r := range records {
		byURL[r.SourceURL] = i
	}

	perth := records[byURL[server.URL+"/event/perth"]]
	if perth.EventName != "Relay For Life Perth" {
		t.Errorf("Expected h1 name, got %q", perth.EventName)
	}
	if perth.DateRaw != "3 May 2025" || perth.DateISO != "2025-05-03" {
		t.Errorf("Expected reduced date, got raw=%q iso=%q", perth.DateRaw, perth.DateISO)
	}
	if len(perth.Emails) != 1 || perth.Emails[0] != "perth@relay.test" {
		t.Errorf("Unexpected emails %v", perth.Emails)
	}

	hobart := records[byURL[server.URL+"/event/hobart"]]
	if hobart.EventName != "Relay Hobart" {
		t.Errorf("Expected title fallback, got %q", hobart.EventName)
	}
	if hobart.DateISO != "2025-09-14" {
		t.Errorf("Expected month-line date, got raw=%q iso=%q", hobart.DateRaw, hobart.DateISO)
	}
	if len(hobart.Emails) != 1 || hobart.Emails[0] != "hobart@relay.test" {
		t.Errorf("Expected decoded Cloudflare email, got %v", hobart.Emails)
	}
}

func TestReduceDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Saturday 3rd May 2025 Location Perth", "3 May 2025"},
		{"Sat, 14 Sept 2025", "14 Sep 2025"},
		{"Friday 21 - Saturday 22 March 2025", "22 March 2025"},
		{"TBC", "TBC"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ReduceDate(tt.in); got != tt.want {
				t.Errorf("ReduceDate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
