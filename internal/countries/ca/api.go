package ca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/valpere/relay-scraper/internal/config"
	errs "github.com/valpere/relay-scraper/internal/errors"
	"github.com/valpere/relay-scraper/internal/monitoring"
	"github.com/valpere/relay-scraper/internal/record"
	"github.com/valpere/relay-scraper/internal/utils"
)

const apiMethod = "getTeamraisersByInfo"

// API pages through the Luminate TeamRaiser API.
type API struct {
	url       string
	key       string
	eventType string
	pageSize  int
	maxPages  int
	client    *http.Client
	userAgent string
	limiter   *utils.RateLimiter
	logger    utils.Logger
	metrics   *monitoring.MetricsManager
}

// APIOptions configures an API client.
type APIOptions struct {
	URL       string
	Key       string
	EventType string
	PageSize  int
	MaxPages  int
	Client    *http.Client
	UserAgent string
	Limiter   *utils.RateLimiter
	Logger    utils.Logger
	Metrics   *monitoring.MetricsManager
}

// NewAPI creates a TeamRaiser client. Zero options select the defaults.
func NewAPI(opts APIOptions) *API {
	if opts.URL == "" {
		opts.URL = config.DefaultCAAPIURL
	}
	if opts.Key == "" {
		opts.Key = config.DefaultCAAPIKey
	}
	if opts.EventType == "" {
		opts.EventType = config.DefaultCAEventType
	}
	if opts.PageSize <= 0 {
		opts.PageSize = config.DefaultCAPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = config.DefaultCAMaxPages
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Limiter == nil {
		opts.Limiter = utils.NewRateLimiter(0)
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	return &API{
		url:       opts.URL,
		key:       opts.Key,
		eventType: opts.EventType,
		pageSize:  opts.PageSize,
		maxPages:  opts.MaxPages,
		client:    opts.Client,
		userAgent: opts.UserAgent,
		limiter:   opts.Limiter,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Form builds the POST body for one page of list.
func (a *API) Form(list config.CAListConfig, offset int) url.Values {
	form := url.Values{}
	form.Set("luminateExtend", "1.8.1")
	form.Set("api_key", a.key)
	form.Set("response_format", "json")
	form.Set("suppress_response_codes", "true")
	form.Set("v", "1.0")
	form.Set("method", apiMethod)
	form.Set("name", "%")
	form.Set("event_type", a.eventType)
	form.Set("list_page_size", strconv.Itoa(a.pageSize))
	form.Set("list_page_offset", strconv.Itoa(offset))
	form.Set("list_sort_column", "name")
	form.Set("list_ascending", "true")
	form.Set("list_filter_column", "county")
	form.Set("list_filter_text", list.FilterText)
	if list.EventType2 != "" {
		form.Set("event_type2", list.EventType2)
	}
	return form
}

// List returns every teamraiser of list, deduplicated by id. Paging stops at
// an empty page, a page adding nothing new, a short page or MaxPages.
func (a *API) List(ctx context.Context, list config.CAListConfig) ([]Teamraiser, error) {
	seen := make(map[string]bool)
	var out []Teamraiser

	for page := 0; page < a.maxPages; page++ {
		items, err := a.Page(ctx, list, page*a.pageSize)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}

		added := 0
		for _, tr := range items {
			if tr.ID == "" || seen[tr.ID] {
				continue
			}
			seen[tr.ID] = true
			out = append(out, tr)
			added++
		}
		a.logger.Debugf("List %s page %d: %d item(s), %d new", list.Label, page+1, len(items), added)

		if added == 0 || len(items) < a.pageSize {
			break
		}
	}
	return out, nil
}

// Page fetches one page. Transport failures, non-200 statuses, bodies that
// are not JSON and error envelopes are API contract errors.
func (a *API) Page(ctx context.Context, list config.CAListConfig, offset int) ([]Teamraiser, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, strings.NewReader(a.Form(list, offset).Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.metrics.RecordAPIRequest(record.CountryCA, "transport_error")
		return nil, errs.NewAPIError(record.CountryCA, apiMethod, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		a.metrics.RecordAPIRequest(record.CountryCA, "transport_error")
		return nil, errs.NewAPIError(record.CountryCA, apiMethod, resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		a.metrics.RecordAPIRequest(record.CountryCA, "bad_status")
		return nil, errs.NewAPIError(record.CountryCA, apiMethod, resp.StatusCode, string(body), nil)
	}

	items, err := decodePage(body)
	if err != nil {
		a.metrics.RecordAPIRequest(record.CountryCA, "bad_payload")
		return nil, errs.NewAPIError(record.CountryCA, apiMethod, resp.StatusCode, string(body),
			fmt.Errorf("list %s offset %d: %w", list.Label, offset, err))
	}
	a.metrics.RecordAPIRequest(record.CountryCA, "ok")
	return items, nil
}

func decodePage(body []byte) ([]Teamraiser, error) {
	var payload apiResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(body))), &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("error response %v: %s", payload.Error.Code, payload.Error.Message)
	}
	if payload.Response == nil {
		return nil, fmt.Errorf("payload has no getTeamraisersResponse")
	}
	return payload.Response.Teamraiser, nil
}
