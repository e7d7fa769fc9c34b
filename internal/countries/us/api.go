package us

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	errs "github.com/valpere/relay-scraper/internal/errors"
	"github.com/valpere/relay-scraper/internal/monitoring"
	"github.com/valpere/relay-scraper/internal/record"
	"github.com/valpere/relay-scraper/internal/utils"
)

const endpoint = "event/find"

// Variant is one spelling of the search API's query parameters. The API is
// undocumented, so a handful of spellings are tried until one answers.
type Variant struct {
	Name         string
	ZipKey       string
	RadiusKey    string
	VersionKey   string
	VersionValue string
}

// DefaultVariants lists the spellings tried in order.
var DefaultVariants = []Variant{
	{Name: "distance-apiversion", ZipKey: "TextSearch", RadiusKey: "Distance", VersionKey: "ApiVersion", VersionValue: "5.0"},
	{Name: "radius-apiversion", ZipKey: "TextSearch", RadiusKey: "Radius", VersionKey: "ApiVersion", VersionValue: "5.0"},
	{Name: "distance-version", ZipKey: "TextSearch", RadiusKey: "Distance", VersionKey: "version", VersionValue: "5.0"},
	{Name: "radius-version", ZipKey: "TextSearch", RadiusKey: "Radius", VersionKey: "version", VersionValue: "5.0"},
	{Name: "apiversion-only", ZipKey: "TextSearch", VersionKey: "ApiVersion", VersionValue: "5.0"},
	{Name: "text-only", ZipKey: "TextSearch"},
}

// Query builds the search parameters for zip.
func (v Variant) Query(zip string, radiusMiles int) url.Values {
	q := url.Values{}
	q.Set(v.ZipKey, zip)
	q.Set("EventType", "RelayForLife")
	q.Set("EventSubType", "")
	q.Set("EventSearchFilter", "25")
	if v.RadiusKey != "" {
		q.Set(v.RadiusKey, strconv.Itoa(radiusMiles))
	}
	if v.VersionKey != "" && v.VersionValue != "" {
		q.Set(v.VersionKey, v.VersionValue)
	}
	return q
}

// searchResponse is the part of the API payload the scraper relies on.
// Results stays raw so a missing list can be told apart from an empty one.
type searchResponse struct {
	Successful *bool           `json:"successful"`
	Results    json.RawMessage `json:"results"`
}

// SearchResult is one event row of the search API.
type SearchResult struct {
	EventID   json.RawMessage `json:"eventId"`
	EventName string          `json:"eventName,omitempty"`
}

// ID returns the event id when it is numeric (string or number in JSON).
func (r SearchResult) ID() (string, bool) {
	raw := strings.TrimSpace(string(r.EventID))
	raw = strings.Trim(raw, `"`)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return raw, true
}

// API talks to the ACS event-search endpoint.
type API struct {
	base      string
	client    *http.Client
	userAgent string
	limiter   *utils.RateLimiter
	logger    utils.Logger
	metrics   *monitoring.MetricsManager
}

// NewAPI creates a search client for base.
func NewAPI(base string, client *http.Client, limiter *utils.RateLimiter, logger utils.Logger, metrics *monitoring.MetricsManager) *API {
	if client == nil {
		client = http.DefaultClient
	}
	if limiter == nil {
		limiter = utils.NewRateLimiter(0)
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &API{base: base, client: client, limiter: limiter, logger: logger, metrics: metrics}
}

// WithUserAgent sets the User-Agent header sent with every request.
func (a *API) WithUserAgent(ua string) *API {
	a.userAgent = ua
	return a
}

// SelectVariant returns the first variant that answers zip with a
// well-formed payload. When none does, the error carries every variant's
// failure.
func (a *API) SelectVariant(ctx context.Context, zip string, radiusMiles int, variants []Variant) (Variant, error) {
	var failures []error
	for _, v := range variants {
		if _, err := a.Search(ctx, zip, radiusMiles, v); err != nil {
			if ctx.Err() != nil {
				return Variant{}, ctx.Err()
			}
			a.logger.Warnf("Variant %s rejected: %v", v.Name, err)
			failures = append(failures, fmt.Errorf("variant %s: %w", v.Name, err))
			continue
		}
		a.logger.Infof("Using search variant %s", v.Name)
		return v, nil
	}
	failures = append([]error{fmt.Errorf("none of %d parameter variants returned a results list", len(variants))}, failures...)
	return Variant{}, errs.NewAPIError(record.CountryUS, endpoint, 0, "", errors.Join(failures...))
}

// Search returns the result rows for zip. Any non-200 status, invalid JSON,
// successful=false or missing results list is an API contract error.
func (a *API) Search(ctx context.Context, zip string, radiusMiles int, v Variant) ([]SearchResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := a.base + "?" + v.Query(zip, radiusMiles).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.metrics.RecordAPIRequest(record.CountryUS, "transport_error")
		return nil, errs.NewAPIError(record.CountryUS, endpoint, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		a.metrics.RecordAPIRequest(record.CountryUS, "transport_error")
		return nil, errs.NewAPIError(record.CountryUS, endpoint, resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		a.metrics.RecordAPIRequest(record.CountryUS, "bad_status")
		return nil, errs.NewAPIError(record.CountryUS, endpoint, resp.StatusCode, string(body), nil)
	}

	results, err := decodeSearch(body)
	if err != nil {
		a.metrics.RecordAPIRequest(record.CountryUS, "bad_payload")
		return nil, errs.NewAPIError(record.CountryUS, endpoint, resp.StatusCode, string(body), err)
	}
	a.metrics.RecordAPIRequest(record.CountryUS, "ok")
	return results, nil
}

func decodeSearch(body []byte) ([]SearchResult, error) {
	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Successful != nil && !*payload.Successful {
		return nil, fmt.Errorf("payload reports successful=false")
	}
	raw := strings.TrimSpace(string(payload.Results))
	if raw == "" || raw == "null" || !strings.HasPrefix(raw, "[") {
		return nil, fmt.Errorf("payload has no results list")
	}

	var results []SearchResult
	if err := json.Unmarshal(payload.Results, &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return results, nil
}
