// Package fetch implements the cached, paced and retrying page fetcher used by
// every country driver.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html/charset"

	"github.com/valpere/relay-scraper/internal/clock"
	"github.com/valpere/relay-scraper/internal/monitoring"
	"github.com/valpere/relay-scraper/internal/utils"
)

const (
	DefaultCacheDir       = ".cache/http"
	DefaultTimeout        = 30 * time.Second
	DefaultMinDelay       = 500 * time.Millisecond
	DefaultMaxAttempts    = 3
	DefaultBaseBackoff    = time.Second
	DefaultMaxBackoff     = 10 * time.Second
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// MinCacheBytes is the smallest body worth caching; shorter 200 responses
	// are usually placeholders or error stubs.
	MinCacheBytes = 200
)

// FetchResult is the outcome of one Fetch call.
type FetchResult struct {
	URL        string
	StatusCode int
	Text       string
	FromCache  bool
}

// OK reports whether the page was fetched with status 200.
func (r *FetchResult) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// Options configures a Fetcher. Zero values select the defaults above.
type Options struct {
	Store          Store
	UseCache       bool
	Timeout        time.Duration
	MinDelay       time.Duration
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	UserAgent      string
	AcceptLanguage string

	// Clock drives pacing and retry waits. When nil the system clock is used.
	Clock      clock.Clock
	HTTPClient *http.Client
	Logger     utils.Logger
	Metrics    *monitoring.MetricsManager
}

// Fetcher performs polite GET requests with an optional response cache.
type Fetcher struct {
	client         *http.Client
	store          Store
	useCache       bool
	pacer          *Pacer
	clock          clock.Clock
	fakeTimers     bool
	maxAttempts    int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	userAgent      string
	acceptLanguage string
	logger         utils.Logger
	metrics        *monitoring.MetricsManager
}

// New creates a Fetcher from opts.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MinDelay < 0 {
		opts.MinDelay = 0
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultBaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = DefaultAcceptLanguage
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	c := opts.Clock
	fakeTimers := c != nil
	if c == nil {
		c = clock.NewSystem()
	}

	return &Fetcher{
		client:         client,
		store:          opts.Store,
		useCache:       opts.UseCache,
		pacer:          NewPacer(opts.MinDelay, c),
		clock:          c,
		fakeTimers:     fakeTimers,
		maxAttempts:    opts.MaxAttempts,
		baseBackoff:    opts.BaseBackoff,
		maxBackoff:     opts.MaxBackoff,
		userAgent:      opts.UserAgent,
		acceptLanguage: opts.AcceptLanguage,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
}

// Client returns the underlying HTTP client for callers that talk to JSON
// APIs outside the cache.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// UserAgent returns the User-Agent sent with every request.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Get fetches url using the Fetcher's default cache setting.
func (f *Fetcher) Get(ctx context.Context, url string) (*FetchResult, error) {
	return f.Fetch(ctx, url, f.useCache)
}

// Fetch returns the body of url. A cached body is returned without pacing or
// network access. Transport errors are retried with exponential backoff;
// HTTP error statuses are returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, url string, useCache bool) (*FetchResult, error) {
	key := CacheKey(url)
	cacheOn := useCache && f.store != nil

	if cacheOn {
		body, ok, err := f.store.Get(key)
		switch {
		case err != nil:
			f.logger.Warnf("Cache read failed for %s: %v", url, err)
		case ok:
			f.metrics.RecordCacheHit()
			f.logger.Debugf("Cache hit %s", url)
			return &FetchResult{URL: url, StatusCode: http.StatusOK, Text: body, FromCache: true}, nil
		}
	}

	start := time.Now()
	attempt := 0
	var result *FetchResult

	operation := func() error {
		attempt++
		if err := f.pacer.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		res, err := f.do(ctx, url)
		f.pacer.Done()
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	notify := func(err error, wait time.Duration) {
		f.metrics.RecordRequestRetry()
		f.logger.Warnf("Fetch %s failed (attempt %d/%d), retrying in %s: %v",
			url, attempt, f.maxAttempts, wait, err)
	}

	var timer backoff.Timer
	if f.fakeTimers {
		timer = &clockTimer{clock: f.clock, ch: make(chan time.Time, 1)}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(f.maxAttempts-1)), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, timer); err != nil {
		f.metrics.RecordRequestError(time.Since(start))
		return nil, fmt.Errorf("fetch %s after %d attempt(s): %w", url, attempt, err)
	}

	f.metrics.RecordRequest(result.StatusCode, time.Since(start))
	f.logger.Debugf("Fetched %s status=%d bytes=%d", url, result.StatusCode, len(result.Text))

	if cacheOn && result.StatusCode == http.StatusOK && len(result.Text) >= MinCacheBytes {
		if err := f.store.Put(key, result.Text); err != nil {
			f.logger.Warnf("Cache write failed for %s: %v", url, err)
		}
	}
	return result, nil
}

func (f *Fetcher) do(ctx context.Context, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.acceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &FetchResult{URL: url, StatusCode: resp.StatusCode, Text: string(body)}, nil
}

func (f *Fetcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.baseBackoff
	b.MaxInterval = f.maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return b
}

// Close releases idle connections and the cache store.
func (f *Fetcher) Close() error {
	f.client.CloseIdleConnections()
	if f.store != nil {
		return f.store.Close()
	}
	return nil
}

// clockTimer satisfies backoff.Timer by sleeping on an injected clock.
type clockTimer struct {
	clock clock.Clock
	ch    chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.clock.Sleep(d)
	t.ch <- t.clock.Now()
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.ch
}
