package ca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/valpere/relay-scraper/internal/config"
	errs "github.com/valpere/relay-scraper/internal/errors"
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

// pagedAPI serves total teamraisers in pages, the way Luminate honours
// list_page_size and list_page_offset.
type pagedAPI struct {
	mu    sync.Mutex
	calls int
	forms []map[string]string
}

func (p *pagedAPI) handler(t *testing.T, total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			http.Error(w, "not xhr", http.StatusForbidden)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		p.mu.Lock()
		p.calls++
		p.forms = append(p.forms, map[string]string{
			"method":           r.PostForm.Get("method"),
			"api_key":          r.PostForm.Get("api_key"),
			"list_filter_text": r.PostForm.Get("list_filter_text"),
			"list_page_offset": r.PostForm.Get("list_page_offset"),
		})
		p.mu.Unlock()

		size, _ := strconv.Atoi(r.PostForm.Get("list_page_size"))
		offset, _ := strconv.Atoi(r.PostForm.Get("list_page_offset"))
		var items []map[string]string
		for i := offset; i < offset+size && i < total; i++ {
			items = append(items, map[string]string{"id": strconv.Itoa(1000 + i), "name": fmt.Sprintf("Relay %d", i)})
		}
		writeTeamraisers(w, items)
	}
}

func (p *pagedAPI) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *pagedAPI) sentForms() []map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]string(nil), p.forms...)
}

func writeTeamraisers(w http.ResponseWriter, items interface{}) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"getTeamraisersResponse": map[string]interface{}{"teamraiser": items},
	})
}

func TestList_StopsAfterShortPage(t *testing.T) {
	stub := &pagedAPI{}
	server := httptest.NewServer(stub.handler(t, 5))
	defer server.Close()

	api := NewAPI(APIOptions{URL: server.URL, PageSize: 2})
	items, err := api.List(context.Background(), config.CAListConfig{Label: "community", FilterText: "RFL_"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(items) != 5 {
		t.Errorf("Expected 5 unique teamraisers, got %d", len(items))
	}
	if got := stub.callCount(); got != 3 {
		t.Errorf("Expected 3 API calls, got %d", got)
	}
	for i, form := range stub.sentForms() {
		if form["method"] != "getTeamraisersByInfo" || form["api_key"] != config.DefaultCAAPIKey || form["list_filter_text"] != "RFL_" {
			t.Errorf("Call %d: unexpected form %v", i, form)
		}
		if form["list_page_offset"] != strconv.Itoa(i*2) {
			t.Errorf("Call %d: expected offset %d, got %s", i, i*2, form["list_page_offset"])
		}
	}
}

func TestList_StopsWhenPageAddsNothing(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeTeamraisers(w, []map[string]interface{}{{"id": 7, "name": "Relay A"}, {"fr_id": "8", "name": "Relay B"}})
	}))
	defer server.Close()

	api := NewAPI(APIOptions{URL: server.URL, PageSize: 2})
	items, err := api.List(context.Background(), config.CAListConfig{Label: "community"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 || calls.Load() != 2 {
		t.Errorf("Expected 2 items after 2 calls, got %d items after %d calls", len(items), calls.Load())
	}
	if items[0].ID != "7" || items[1].ID != "8" {
		t.Errorf("Unexpected ids %q, %q", items[0].ID, items[1].ID)
	}
}

func TestList_MaxPages(t *testing.T) {
	stub := &pagedAPI{}
	server := httptest.NewServer(stub.handler(t, 1000))
	defer server.Close()

	api := NewAPI(APIOptions{URL: server.URL, PageSize: 2, MaxPages: 3})
	items, err := api.List(context.Background(), config.CAListConfig{Label: "youth"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 6 || stub.callCount() != 3 {
		t.Errorf("Expected 6 items from 3 calls, got %d from %d", len(items), stub.callCount())
	}
}

func TestList_SingleObjectAndEmptyPage(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"getTeamraisersResponse":{"teamraiser":{"id":"42","name":"Relay Solo","area":"Yukon"}}}`)
	}))
	defer server.Close()

	items, err := NewAPI(APIOptions{URL: server.URL, PageSize: 2}).List(context.Background(), config.CAListConfig{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || items[0].Area != "Yukon" || calls.Load() != 1 {
		t.Errorf("Expected one Yukon teamraiser from one call, got %+v after %d calls", items, calls.Load())
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"getTeamraisersResponse":{}}`)
	}))
	defer empty.Close()

	items, err = NewAPI(APIOptions{URL: empty.URL}).List(context.Background(), config.CAListConfig{})
	if err != nil || len(items) != 0 {
		t.Errorf("Expected an empty list without error, got %v, %v", items, err)
	}
}

func TestPage_ContractErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "oops"},
		{"not json", http.StatusOK, "<html>maintenance</html>"},
		{"error envelope", http.StatusOK, `{"errorResponse":{"code":"2","message":"Invalid API key"}}`},
		{"missing envelope", http.StatusOK, `{"somethingElse":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewAPI(APIOptions{URL: server.URL}).List(context.Background(), config.CAListConfig{Label: "community"})
			if !errors.Is(err, errs.ErrAPIContract) {
				t.Fatalf("Expected API contract error, got %v", err)
			}
			var apiErr *errs.APIError
			if !errors.As(err, &apiErr) || apiErr.Country != "CA" {
				t.Errorf("Expected a CA APIError, got %#v", err)
			}
		})
	}
}

func TestMineFRIDs(t *testing.T) {
	page := `<a href="/site/TR?pg=entry&fr_id=123">A</a>
		<a href="/redirect?to=%2Fsite%2FTR%3Fpg%3Dentry%26fr_id%3D456">B</a>
		<script>var cfg = {"url":"TR?fr_id=789","event":{"fr_id":"2022"}};
		var raw = "{\"fr_id\":\"3033\"}";</script>
		<a href="/site/TR?pg=entry&amp;fr_id&#61;1011">C</a>
		<a href="/site/TR?fr_id=123&pg=team">again</a>
		<a href="/site/TR?fr_idx=9">not an id</a>`

	got := MineFRIDs(page)
	want := []string{"123", "456", "789", "1011", "2022", "3033"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestLabelWindow_CutsOnCharacters(t *testing.T) {
	long := "samedi " + strings.Repeat("é", 300)
	res := labelWindow([]string{"Relais pour la vie", "Event Date", long})
	if !res.OK() {
		t.Fatal("Expected the label to be found")
	}
	if !utf8.ValidString(res.Value) {
		t.Fatalf("Window split a character: %q", res.Value)
	}
	if n := utf8.RuneCountInString(res.Value); n != dateWindow-1 {
		t.Errorf("Expected %d characters after trimming the separator, got %d", dateWindow-1, n)
	}
	if !strings.HasPrefix(res.Value, "samedi é") {
		t.Errorf("Unexpected window %q", res.Value)
	}
}

func TestEventURL(t *testing.T) {
	const api = "https://support.example.ca/site/CRTeamraiserAPI"
	const tmpl = "https://support.example.ca/site/TR?pg=entry&fr_id={id}"

	tests := []struct {
		name string
		tr   Teamraiser
		want string
	}{
		{"absolute event url", Teamraiser{ID: "1", EventURL: "https://x.example/ev?fr_id=1"}, "https://x.example/ev?fr_id=1"},
		{"relative event url falls through", Teamraiser{ID: "2", EventURL: "/site/TR?fr_id=2"}, "https://support.example.ca/site/TR?pg=entry&fr_id=2"},
		{"area page", Teamraiser{ID: "3", Area: "Nova Scotia"}, "https://support.example.ca/site/TR/RelayForLife/Nova%20Scotia?pg=entry&fr_id=3&s_locale=en_CA"},
		{"generic entry page", Teamraiser{ID: "4"}, "https://support.example.ca/site/TR?pg=entry&fr_id=4"},
		{"no id", Teamraiser{Name: "Nameless"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EventURL(&tt.tr, api, tmpl); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestScrape(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/site/CRTeamraiserAPI", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("list_filter_text") != "RFL_" {
			writeTeamraisers(w, []interface{}{})
			return
		}
		writeTeamraisers(w, []map[string]interface{}{
			{"id": "1001", "name": "Relay Halifax", "event_date": "2025-06-14",
				"event_url": server.URL + "/site/TR?pg=entry&fr_id=1001&s_locale=en_CA"},
			{"fr_id": 1002, "name": "", "area": "Ottawa"},
		})
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/site/TR?pg=entry&fr_id=1001">Halifax</a>
			<a href="/site/TR?pg=entry&fr_id=1003">Calgary</a>
		</body></html>`)
	})
	mux.HandleFunc("/site/TR/RelayForLife/Ottawa", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Relay For Life Ottawa</h1>
			<p>Event Date: Saturday, June 7, 2025</p></body></html>`)
	})
	mux.HandleFunc("/site/TR", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("fr_id") {
		case "1001":
			fmt.Fprint(w, `<html><body><h1>Welcome</h1><p>Event Date: TBD</p>
				<p>Questions? halifax@relay.test</p></body></html>`)
		case "1003":
			fmt.Fprint(w, `<html><body><h1>Relay Calgary</h1><p>Event Date</p><p>Sept 20, 2025</p>
				<a href="mailto:Calgary@Relay.test">Email us</a></body></html>`)
		default:
			http.NotFound(w, r)
		}
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	cfg := config.CAConfig{
		IndexURLs:        []string{server.URL + "/events"},
		APIURL:           server.URL + "/site/CRTeamraiserAPI",
		EntryURLTemplate: server.URL + "/site/TR?pg=entry&fr_id={id}&s_locale=en_CA",
		Lists:            []config.CAListConfig{{Label: "community", FilterText: "RFL_"}, {Label: "youth", FilterText: "RFLY_"}},
	}

	records, err := New(cfg).Scrape(context.Background(), testEnv())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d: %+v", len(records), records)
	}

	want := map[string]struct{ name, iso, email string }{
		"1001": {"Relay Halifax", "2025-06-14", "halifax@relay.test"},
		"1002": {"Relay For Life Ottawa", "2025-06-07", ""},
		"1003": {"Relay Calgary", "2025-09-20", "calgary@relay.test"},
	}
	for _, r := range records {
		if r.Country != "CA" {
			t.Errorf("Expected country CA, got %s", r.Country)
		}
		var id string
		for k := range want {
			if strings.Contains(r.SourceURL, "fr_id="+k) {
				id = k
			}
		}
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

func TestScrape_APIFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(config.CAConfig{APIURL: server.URL}).Scrape(context.Background(), testEnv())
	if !errors.Is(err, errs.ErrAPIContract) {
		t.Errorf("Expected API contract error, got %v", err)
	}
}
