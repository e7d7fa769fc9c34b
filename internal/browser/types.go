// internal/browser/types.go
package browser

import (
	"context"
	"time"
)

// BrowserConfig defines browser automation configuration
type BrowserConfig struct {
	Headless       bool          `yaml:"headless" json:"headless"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
	WaitDelay      time.Duration `yaml:"wait_delay,omitempty" json:"wait_delay,omitempty"`
	UserAgent      string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	DisableImages  bool          `yaml:"disable_images" json:"disable_images"`
}

// DefaultBrowserConfig returns default browser configuration
func DefaultBrowserConfig() *BrowserConfig {
	return &BrowserConfig{
		Headless:       true,
		Timeout:        45 * time.Second,
		ViewportWidth:  1366,
		ViewportHeight: 900,
		WaitDelay:      1500 * time.Millisecond,
		DisableImages:  true,
	}
}

// BrowserClient is a single rendered page that a discovery loop drives.
type BrowserClient interface {
	// Navigate to a URL and wait for the body plus the configured settle delay
	Navigate(ctx context.Context, url string) error

	// GetHTML returns the current rendered HTML
	GetHTML(ctx context.Context) (string, error)

	// WaitForElement waits for an element to become visible
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) error

	// ClickByText clicks the first visible, enabled control whose text matches
	// one of texts. It reports whether anything was clicked.
	ClickByText(ctx context.Context, texts []string) (bool, error)

	// DismissCookies tries each selector and reports whether a banner
	// button was clicked.
	DismissCookies(ctx context.Context, selectors []string) bool

	// Screenshot captures the full page as PNG
	Screenshot(ctx context.Context) ([]byte, error)

	// Stats reports what this client has done so far
	Stats() BrowserStats

	// Close shuts the browser down
	Close() error
}

// Factory starts a browser. Drivers take a Factory so tests can substitute a
// scripted client.
type Factory func(ctx context.Context) (BrowserClient, error)

// BrowserStats counts the work and failures of one browser client.
type BrowserStats struct {
	PagesLoaded      int           `json:"pages_loaded"`
	AverageLoadTime  time.Duration `json:"average_load_time"`
	Clicks           int           `json:"clicks"`
	Errors           int           `json:"errors"`
	JavaScriptErrors int           `json:"javascript_errors"`
	TimeoutsOccurred int           `json:"timeouts_occurred"`
}
