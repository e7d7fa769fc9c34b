// internal/browser/chromedp.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeClient implements BrowserClient using chromedp
type ChromeClient struct {
	ctx               context.Context
	cancel            context.CancelFunc
	allocCancel       context.CancelFunc
	config            *BrowserConfig
	stats             *BrowserStats
	navigationSuccess bool
	navMu             sync.RWMutex
}

// NewChromeClient starts a Chrome instance
func NewChromeClient(config *BrowserConfig) (*ChromeClient, error) {
	if config == nil {
		config = DefaultBrowserConfig()
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker environments
	}

	if config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}
	if config.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	// The allocator must outlive the browser context; both are released in Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	client := &ChromeClient{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		config:      config,
		stats:       &BrowserStats{},
	}

	if err := client.initialize(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	return client, nil
}

// NewChromeFactory returns a Factory that starts Chrome with config.
func NewChromeFactory(config *BrowserConfig) Factory {
	return func(ctx context.Context) (BrowserClient, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewChromeClient(config)
	}
}

// initialize launches the browser and sets the viewport. It runs on the
// untimed context so the browser is not tied to a per-call deadline.
func (c *ChromeClient) initialize() error {
	width, height := c.config.ViewportWidth, c.config.ViewportHeight
	if width <= 0 || height <= 0 {
		width, height = 1366, 900
	}
	return chromedp.Run(c.ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

// runCtx derives a per-operation context from the browser context that is
// also cancelled when the caller's ctx is.
func (c *ChromeClient) runCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(c.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Navigate navigates to a URL and waits for page load
func (c *ChromeClient) Navigate(ctx context.Context, url string) error {
	start := time.Now()

	tasks := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if c.config.WaitDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(c.config.WaitDelay))
	}

	runCtx, cancel := c.runCtx(ctx, 0)
	defer cancel()

	err := chromedp.Run(runCtx, tasks...)
	loadTime := time.Since(start)

	c.navMu.Lock()
	c.navigationSuccess = err == nil
	c.navMu.Unlock()

	if err != nil {
		c.stats.Errors++
		return fmt.Errorf("navigation failed: %w", err)
	}

	c.stats.PagesLoaded++
	if c.stats.PagesLoaded == 1 {
		c.stats.AverageLoadTime = loadTime
	} else {
		c.stats.AverageLoadTime = (c.stats.AverageLoadTime + loadTime) / 2
	}

	return nil
}

// GetHTML returns the current page HTML
func (c *ChromeClient) GetHTML(ctx context.Context) (string, error) {
	c.navMu.RLock()
	navSuccess := c.navigationSuccess
	c.navMu.RUnlock()

	if !navSuccess {
		return "", fmt.Errorf("cannot extract HTML: navigation has not completed successfully")
	}

	runCtx, cancel := c.runCtx(ctx, 0)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html)); err != nil {
		c.stats.Errors++
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}
	return html, nil
}

// WaitForElement waits for an element to appear
func (c *ChromeClient) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := c.runCtx(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector)); err != nil {
		c.stats.TimeoutsOccurred++
		return fmt.Errorf("element wait timeout: %w", err)
	}
	return nil
}

// ClickByText clicks the first matching control, then waits for the
// configured settle delay so the next page of results can render.
func (c *ChromeClient) ClickByText(ctx context.Context, texts []string) (bool, error) {
	if len(texts) == 0 {
		return false, nil
	}
	script, err := clickByTextScript(texts)
	if err != nil {
		return false, err
	}

	runCtx, cancel := c.runCtx(ctx, 0)
	defer cancel()

	var clicked bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &clicked)); err != nil {
		c.stats.JavaScriptErrors++
		return false, fmt.Errorf("click script failed: %w", err)
	}
	if !clicked {
		return false, nil
	}
	c.stats.Clicks++

	if c.config.WaitDelay > 0 {
		if err := chromedp.Run(runCtx, chromedp.Sleep(c.config.WaitDelay)); err != nil {
			return true, err
		}
	}
	return true, nil
}

// DismissCookies clicks the first cookie-consent control found. Failures are
// ignored: a banner that cannot be dismissed rarely hides the listing.
func (c *ChromeClient) DismissCookies(ctx context.Context, selectors []string) bool {
	for _, sel := range selectors {
		kind, value := ParseSelector(sel)
		switch kind {
		case SelectorText:
			if ok, err := c.ClickByText(ctx, []string{value}); err == nil && ok {
				return true
			}
		case SelectorCSS:
			script, err := clickCSSScript(value)
			if err != nil {
				continue
			}
			runCtx, cancel := c.runCtx(ctx, 5*time.Second)
			var clicked bool
			err = chromedp.Run(runCtx, chromedp.Evaluate(script, &clicked))
			cancel()
			if err == nil && clicked {
				c.stats.Clicks++
				return true
			}
		}
	}
	return false
}

// Screenshot captures the full page as PNG
func (c *ChromeClient) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := c.runCtx(ctx, 0)
	defer cancel()

	var buf []byte
	// Quality 100 keeps the capture in PNG; anything lower is JPEG.
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		c.stats.Errors++
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Stats returns a copy of the client's counters
func (c *ChromeClient) Stats() BrowserStats {
	return *c.stats
}

// Close closes the browser and its allocator
func (c *ChromeClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}

// SelectorKind tells DismissCookies how to interpret a selector string.
type SelectorKind int

const (
	SelectorCSS SelectorKind = iota
	SelectorText
)

var hasTextPattern = regexp.MustCompile(`:has-text\(\s*['"](.+?)['"]\s*\)`)

// ParseSelector understands plain CSS plus the "text=Accept" and
// "button:has-text('Accept')" forms used in cookie selector lists.
func ParseSelector(sel string) (SelectorKind, string) {
	sel = strings.TrimSpace(sel)
	if rest, ok := strings.CutPrefix(sel, "text="); ok {
		return SelectorText, strings.Trim(strings.TrimSpace(rest), `'"`)
	}
	if m := hasTextPattern.FindStringSubmatch(sel); m != nil {
		return SelectorText, m[1]
	}
	return SelectorCSS, sel
}

const clickByTextJS = `(() => {
  const wanted = %s.map(t => t.trim().toLowerCase());
  const nodes = document.querySelectorAll('a, button, [role="button"], input[type="button"], input[type="submit"]');
  for (const el of nodes) {
    const label = ((el.innerText || el.value || el.getAttribute('aria-label') || '') + '').trim().toLowerCase();
    if (!label || !wanted.some(w => label === w || label.startsWith(w + ' ') || label.endsWith(' ' + w))) continue;
    if (el.disabled || el.getAttribute('aria-disabled') === 'true') continue;
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) continue;
    el.scrollIntoView({block: 'center'});
    el.click();
    return true;
  }
  return false;
})()`

const clickCSSJS = `(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.click();
  return true;
})()`

func clickByTextScript(texts []string) (string, error) {
	encoded, err := json.Marshal(texts)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(clickByTextJS, encoded), nil
}

func clickCSSScript(selector string) (string, error) {
	encoded, err := json.Marshal(selector)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(clickCSSJS, encoded), nil
}
