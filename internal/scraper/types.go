// internal/scraper/types.go
package scraper

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/valpere/relay-scraper/internal/browser"
	"github.com/valpere/relay-scraper/internal/fetch"
	"github.com/valpere/relay-scraper/internal/monitoring"
	"github.com/valpere/relay-scraper/internal/record"
	"github.com/valpere/relay-scraper/internal/utils"
)

// PageFetcher is the cached page-fetch capability drivers depend on.
type PageFetcher interface {
	Get(ctx context.Context, url string) (*fetch.FetchResult, error)
}

// Env carries the shared collaborators handed to every driver.
type Env struct {
	// Fetcher serves HTML pages through the cache and pacing layer.
	Fetcher PageFetcher

	// HTTPClient is used for vendor JSON APIs, which bypass the cache.
	HTTPClient *http.Client
	UserAgent  string

	// Browser starts a rendering browser; nil disables rendered discovery.
	Browser browser.Factory

	Logger  utils.Logger
	Metrics *monitoring.MetricsManager
}

// Log returns the env logger tagged with country.
func (e *Env) Log(country string) utils.Logger {
	logger := e.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return logger.WithField("country", country)
}

// Client returns the vendor API client, falling back to a default client.
func (e *Env) Client() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return http.DefaultClient
}

// Driver scrapes one country.
type Driver interface {
	Country() string
	Scrape(ctx context.Context, env *Env) ([]record.Record, error)
}

// Registry maps country codes to drivers.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry creates a registry holding drivers.
func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver, len(drivers))}
	for _, d := range drivers {
		r.Register(d)
	}
	return r
}

// Register adds or replaces the driver for d.Country().
func (r *Registry) Register(d Driver) {
	r.drivers[strings.ToUpper(d.Country())] = d
}

// Get looks up the driver for a country code (case-insensitive).
func (r *Registry) Get(code string) (Driver, bool) {
	d, ok := r.drivers[strings.ToUpper(strings.TrimSpace(code))]
	return d, ok
}

// Codes returns the registered country codes in record.Countries order,
// followed by any others alphabetically.
func (r *Registry) Codes() []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range record.Countries {
		if _, ok := r.drivers[c]; ok {
			out = append(out, c)
			seen[c] = true
		}
	}
	var rest []string
	for c := range r.drivers {
		if !seen[c] {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
