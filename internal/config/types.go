// internal/config/types.go
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of seeds.yml.
type Config struct {
	LogLevel  string          `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	Fetch     FetchConfig     `yaml:"fetch" json:"fetch"`
	Browser   BrowserConfig   `yaml:"browser" json:"browser"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Countries CountriesConfig `yaml:"countries" json:"countries"`
}

// FetchConfig configures the cached page fetcher.
type FetchConfig struct {
	CacheDir    string   `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
	UseCache    *bool    `yaml:"use_cache,omitempty" json:"use_cache,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MinDelay    Duration `yaml:"min_delay,omitempty" json:"min_delay,omitempty"`
	MaxAttempts int      `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	BaseBackoff Duration `yaml:"base_backoff,omitempty" json:"base_backoff,omitempty"`
	MaxBackoff  Duration `yaml:"max_backoff,omitempty" json:"max_backoff,omitempty"`
	UserAgent   string   `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`

	// RedisURL switches the cache from files to Redis when set.
	RedisURL string   `yaml:"redis_url,omitempty" json:"redis_url,omitempty"`
	CacheTTL Duration `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty"`
}

// CacheEnabled reports whether the HTTP cache is on (default true).
func (f FetchConfig) CacheEnabled() bool {
	return f.UseCache == nil || *f.UseCache
}

// BrowserConfig configures headless Chrome for rendered discovery.
type BrowserConfig struct {
	Headless  *bool    `yaml:"headless,omitempty" json:"headless,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	WaitDelay Duration `yaml:"wait_delay,omitempty" json:"wait_delay,omitempty"`
	UserAgent string   `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// IsHeadless reports whether Chrome runs headless (default true).
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ListenAddress string `yaml:"listen_address,omitempty" json:"listen_address,omitempty"`
	Namespace     string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// OutputConfig selects the sinks records are written to.
type OutputConfig struct {
	CSV          string       `yaml:"csv,omitempty" json:"csv,omitempty"`
	JSON         string       `yaml:"json,omitempty" json:"json,omitempty"`
	XLSX         string       `yaml:"xlsx,omitempty" json:"xlsx,omitempty"`
	SQL          *SQLConfig   `yaml:"sql,omitempty" json:"sql,omitempty"`
	Mongo        *MongoConfig `yaml:"mongo,omitempty" json:"mongo,omitempty"`
	PreviewLimit int          `yaml:"preview_limit,omitempty" json:"preview_limit,omitempty"`
}

// SQLConfig describes a relational sink. Driver is sqlite3, mysql or postgres.
type SQLConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
	Table  string `yaml:"table,omitempty" json:"table,omitempty"`
}

// MongoConfig describes a MongoDB sink.
type MongoConfig struct {
	URI        string `yaml:"uri" json:"uri"`
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
}

// CountriesConfig holds one optional section per driver.
type CountriesConfig struct {
	AU *AUConfig `yaml:"AU,omitempty" json:"AU,omitempty"`
	UK *UKConfig `yaml:"UK,omitempty" json:"UK,omitempty"`
	US *USConfig `yaml:"US,omitempty" json:"US,omitempty"`
	CA *CAConfig `yaml:"CA,omitempty" json:"CA,omitempty"`
}

// AUConfig configures the Australian driver.
type AUConfig struct {
	IndexURLs        []string `yaml:"index_urls" json:"index_urls"`
	EventURLContains []string `yaml:"event_url_contains,omitempty" json:"event_url_contains,omitempty"`
}

// UKConfig configures the UK driver. Template mode walks numbered index
// pages; Render mode clicks through a JS listing in Chrome.
type UKConfig struct {
	IndexURLTemplate string   `yaml:"index_url_template,omitempty" json:"index_url_template,omitempty"`
	PageStart        int      `yaml:"page_start" json:"page_start"`
	PageMax          int      `yaml:"page_max,omitempty" json:"page_max,omitempty"`
	StopWhenNoNew    *bool    `yaml:"stop_when_no_new,omitempty" json:"stop_when_no_new,omitempty"`
	NoNewLimit       int      `yaml:"no_new_limit,omitempty" json:"no_new_limit,omitempty"`
	EventURLContains []string `yaml:"event_url_contains,omitempty" json:"event_url_contains,omitempty"`
	AltURLContains   []string `yaml:"alt_url_contains,omitempty" json:"alt_url_contains,omitempty"`

	Render          bool     `yaml:"render,omitempty" json:"render,omitempty"`
	IndexURL        string   `yaml:"index_url,omitempty" json:"index_url,omitempty"`
	NextTexts       []string `yaml:"next_texts,omitempty" json:"next_texts,omitempty"`
	CookieSelectors []string `yaml:"cookie_selectors,omitempty" json:"cookie_selectors,omitempty"`
	MaxClicks       int      `yaml:"max_clicks,omitempty" json:"max_clicks,omitempty"`
	ScreenshotDir   string   `yaml:"screenshot_dir,omitempty" json:"screenshot_dir,omitempty"`
}

// StopOnNoNew reports whether the no-new streak ends discovery (default true).
func (u UKConfig) StopOnNoNew() bool {
	return u.StopWhenNoNew == nil || *u.StopWhenNoNew
}

// USConfig configures the US driver.
type USConfig struct {
	ZipCodes         []string          `yaml:"zip_codes" json:"zip_codes"`
	RadiusMiles      int               `yaml:"radius_miles,omitempty" json:"radius_miles,omitempty"`
	APIBase          string            `yaml:"api_base,omitempty" json:"api_base,omitempty"`
	EntryURLTemplate string            `yaml:"entry_url_template,omitempty" json:"entry_url_template,omitempty"`
	MaxEvents        int               `yaml:"max_events,omitempty" json:"max_events,omitempty"`
	APIDelay         Duration          `yaml:"api_delay,omitempty" json:"api_delay,omitempty"`
	Variants         []USVariantConfig `yaml:"variants,omitempty" json:"variants,omitempty"`
}

// USVariantConfig is one spelling of the event-search query parameters.
type USVariantConfig struct {
	Name         string `yaml:"name" json:"name"`
	ZipKey       string `yaml:"zip_key" json:"zip_key"`
	RadiusKey    string `yaml:"radius_key,omitempty" json:"radius_key,omitempty"`
	VersionKey   string `yaml:"version_key,omitempty" json:"version_key,omitempty"`
	VersionValue string `yaml:"version_value,omitempty" json:"version_value,omitempty"`
}

// CAConfig configures the Canadian driver.
type CAConfig struct {
	IndexURLs        []string       `yaml:"index_urls,omitempty" json:"index_urls,omitempty"`
	APIURL           string         `yaml:"api_url,omitempty" json:"api_url,omitempty"`
	APIKey           string         `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	EventType        string         `yaml:"event_type,omitempty" json:"event_type,omitempty"`
	PageSize         int            `yaml:"page_size,omitempty" json:"page_size,omitempty"`
	MaxPages         int            `yaml:"max_pages,omitempty" json:"max_pages,omitempty"`
	PageDelay        Duration       `yaml:"page_delay,omitempty" json:"page_delay,omitempty"`
	Lists            []CAListConfig `yaml:"lists,omitempty" json:"lists,omitempty"`
	EntryURLTemplate string         `yaml:"entry_url_template,omitempty" json:"entry_url_template,omitempty"`
	MineIndex        *bool          `yaml:"mine_index,omitempty" json:"mine_index,omitempty"`
}

// MineIndexPages reports whether index pages are mined for fr_id (default true).
func (c CAConfig) MineIndexPages() bool {
	return c.MineIndex == nil || *c.MineIndex
}

// CAListConfig is one TeamRaiser list filter (community, youth, ...).
type CAListConfig struct {
	Label      string `yaml:"label" json:"label"`
	FilterText string `yaml:"filter_text" json:"filter_text"`
	EventType2 string `yaml:"event_type2,omitempty" json:"event_type2,omitempty"`
}

// Duration is a time.Duration that reads and writes YAML as "1.5s" strings.
type Duration time.Duration

// Std converts d to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts Go duration strings or plain seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// BoolPtr returns a pointer to b, for building configs in code.
func BoolPtr(b bool) *bool {
	return &b
}
