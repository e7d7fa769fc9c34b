package us

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/valpere/relay-scraper/internal/config"
	errs "github.com/valpere/relay-scraper/internal/errors"
	"github.com/valpere/relay-scraper/internal/fetch"
	"github.com/valpere/relay-scraper/internal/scraper"
	"github.com/valpere/relay-scraper/internal/utils"
)

type acsStub struct {
	mu       sync.Mutex
	apiCalls int
	byZip    map[string]string
	server   *httptest.Server
}

// newACSStub answers only the Radius + version spelling, like a vendor that
// renamed its parameters.
func newACSStub(t *testing.T, byZip map[string]string) *acsStub {
	t.Helper()
	stub := &acsStub{byZip: byZip}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/event/find", func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.apiCalls++
		stub.mu.Unlock()

		q := r.URL.Query()
		if r.Header.Get("Accept") != "application/json" || q.Get("EventType") != "RelayForLife" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if q.Get("Distance") != "" {
			http.Error(w, "unknown parameter", http.StatusBadRequest)
			return
		}
		if q.Get("Radius") != "100" || q.Get("version") != "5.0" {
			fmt.Fprint(w, `{"successful":false,"results":null}`)
			return
		}
		body, ok := stub.byZip[q.Get("TextSearch")]
		if !ok {
			body = `{"successful":true,"results":[]}`
		}
		fmt.Fprint(w, body)
	})
	mux.HandleFunc("/site/STR", func(w http.ResponseWriter, r *http.Request) {
		page, ok := eventPages[r.URL.Query().Get("fr_id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	})
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *acsStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiCalls
}

var eventPages = map[string]string{
	"101": `<html><head><title>Relay Boston</title>
		<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
			{"@type":"WebPage","name":"Relay Boston"},
			{"@type":"Event","name":"Relay Boston","startDate":"2025-06-07T10:00","endDate":"2025-06-07T22:00"}]}</script>
		</head><body><h1>Relay For Life of Boston</h1><a href="mailto:boston@acs.test">Email</a></body></html>`,
	"123": `<html><head><script type="application/ld+json">{"@type":"Event","name":"Relay Chicago","startDate":"Relay Chicago"}</script></head>
		<body><h1>Relay Chicago</h1><p>Relay Date: May 17, 2025</p><p>Contact chicago [at] acs [dot] test</p></body></html>`,
	"202": `<html><body><h1>Relay Denver</h1><p>Registration opens March 1, 2025</p><p>Saturday, August 9, 2025</p></body></html>`,
}

func testEnv() *scraper.Env {
	return &scraper.Env{
		Fetcher: fetch.New(fetch.Options{MinDelay: -1}),
		Logger:  utils.NewNopLogger(),
	}
}

func driverConfig(stub *acsStub, zips ...string) config.USConfig {
	return config.USConfig{
		ZipCodes:         zips,
		RadiusMiles:      100,
		APIBase:          stub.server.URL + "/api/event/find",
		EntryURLTemplate: stub.server.URL + "/site/STR?pg=entry&fr_id={id}",
	}
}

func TestScrape(t *testing.T) {
	stub := newACSStub(t, map[string]string{
		"10001": `{"successful":true,"results":[{"eventId":"101"},{"eventId":123},{"eventId":"abc"}]}`,
		"60601": `{"results":[{"eventId":"123"},{"eventId":"202"}]}`,
	})

	records, err := New(driverConfig(stub, "10001", "60601")).Scrape(context.Background(), testEnv())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	// Four variant attempts (the fourth wins) plus one search per ZIP.
	if got := stub.calls(); got != 6 {
		t.Errorf("Expected 6 API calls, got %d", got)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d: %+v", len(records), records)
	}

	want := map[string]struct{ name, iso, email string }{
		"101": {"Relay For Life of Boston", "2025-06-07", "boston@acs.test"},
		"123": {"Relay Chicago", "2025-05-17", "chicago@acs.test"},
		"202": {"Relay Denver", "2025-08-09", ""},
	}
	for _, r := range records {
		id := r.SourceURL[strings.LastIndex(r.SourceURL, "=")+1:]
		w, ok := want[id]
		if !ok {
			t.Errorf("Unexpected record %+v", r)
			continue
		}
		if r.EventName != w.name || r.DateISO != w.iso {
			t.Errorf("Event %s: expected (%q, %q), got (%q, %q)", id, w.name, w.iso, r.EventName, r.DateISO)
		}
		if w.email != "" && (len(r.Emails) != 1 || r.Emails[0] != w.email) {
			t.Errorf("Event %s: expected email %s, got %v", id, w.email, r.Emails)
		}
	}
}

func TestScrape_MaxEvents(t *testing.T) {
	stub := newACSStub(t, map[string]string{
		"10001": `{"results":[{"eventId":"202"},{"eventId":"101"},{"eventId":"123"}]}`,
	})
	cfg := driverConfig(stub, "10001")
	cfg.MaxEvents = 1

	records, err := New(cfg).Scrape(context.Background(), testEnv())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(records) != 1 || !strings.HasSuffix(records[0].SourceURL, "fr_id=101") {
		t.Errorf("Expected only the lowest event id, got %+v", records)
	}
}

func TestDiscoverEventIDs_FatalOnBadPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>maintenance</html>"},
		{"missing results", `{"successful":true}`},
		{"unsuccessful", `{"successful":false,"results":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newACSStub(t, map[string]string{
				"10001": `{"results":[]}`,
				"60601": tt.body,
			})
			api := NewAPI(stub.server.URL+"/api/event/find", nil, nil, nil, nil)

			_, err := DiscoverEventIDs(context.Background(), testEnv(), api, []string{"10001", "60601"}, 100, DefaultVariants)
			if !errors.Is(err, errs.ErrAPIContract) {
				t.Errorf("Expected API contract error, got %v", err)
			}
		})
	}
}

func TestSelectVariant_NoWorkingVariant(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	api := NewAPI(server.URL, nil, nil, nil, nil)
	_, err := api.SelectVariant(context.Background(), "10001", 25, DefaultVariants)
	if !errors.Is(err, errs.ErrAPIContract) {
		t.Fatalf("Expected API contract error, got %v", err)
	}
	var apiErr *errs.APIError
	if !errors.As(err, &apiErr) || apiErr.Country != "US" {
		t.Errorf("Expected a US APIError, got %#v", err)
	}
}

func TestSelectVariant_KeepsEveryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ApiVersion") != "" {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"successful": false}`)
	}))
	defer server.Close()

	variants := []Variant{DefaultVariants[0], DefaultVariants[len(DefaultVariants)-1]}
	api := NewAPI(server.URL, nil, nil, nil, nil)
	_, err := api.SelectVariant(context.Background(), "10001", 25, variants)
	if !errors.Is(err, errs.ErrAPIContract) {
		t.Fatalf("Expected API contract error, got %v", err)
	}

	msg := err.Error()
	for _, want := range []string{
		"none of 2 parameter variants",
		"variant distance-apiversion",
		"status=429",
		"quota exceeded",
		"variant text-only",
		"successful=false",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in error, got %q", want, msg)
		}
	}

	var outer, inner *errs.APIError
	if !errors.As(err, &outer) {
		t.Fatalf("Expected an APIError, got %#v", err)
	}
	found := errors.As(outer.Err, &inner) && inner.Status == http.StatusTooManyRequests
	if !found {
		t.Error("Expected the 429 failure to stay reachable through errors.As")
	}
}

func TestVariantQuery(t *testing.T) {
	q := DefaultVariants[len(DefaultVariants)-1].Query("94103", 50)
	if q.Get("TextSearch") != "94103" || q.Get("EventSearchFilter") != "25" {
		t.Errorf("Unexpected query %v", q)
	}
	if _, ok := q["Distance"]; ok {
		t.Error("Text-only variant must not send a radius")
	}
	if _, ok := q["EventSubType"]; !ok {
		t.Error("EventSubType must be sent, even empty")
	}
}
