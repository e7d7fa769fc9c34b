// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	errs "github.com/valpere/relay-scraper/internal/errors"
)

// Driver defaults. Vendor endpoints are undocumented; change them only when
// the sites change.
const (
	DefaultLogLevel     = "info"
	DefaultCacheDir     = ".cache/http"
	DefaultPreviewLimit = 20
	DefaultNoNewLimit   = 3

	DefaultUKTemplate  = "https://www.cancerresearchuk.org/get-involved/find-an-event?page={page}&event_type=relay_for_life"
	DefaultUKPageMax   = 50
	DefaultUKMaxClicks = 50

	DefaultUSAPIBase    = "https://acsfundraising.cancer.org/api/event/find"
	DefaultUSEntryURL   = "https://secure.acsevents.org/site/STR?pg=entry&fr_id={id}"
	DefaultUSRadius     = 100
	DefaultUSAPIDelay   = 500 * time.Millisecond
	DefaultCAAPIURL     = "https://support.cancer.ca/site/CRTeamraiserAPI"
	DefaultCAAPIKey     = "CCSAPI"
	DefaultCAEventType  = "Relay For Life"
	DefaultCAEntryURL   = "https://support.cancer.ca/site/TR?pg=entry&fr_id={id}&s_locale=en_CA"
	DefaultCAPageSize   = 500
	DefaultCAMaxPages   = 50
	DefaultCAPageDelay  = 200 * time.Millisecond
	DefaultMetricsAddr  = ":9090"
	DefaultMetricsSpace = "relayscraper"
)

var (
	DefaultAUEventURLContains = []string{"/event/"}
	DefaultUKEventURLContains = []string{"/get-involved/find-an-event/relay-for-life/"}
	DefaultUKNextTexts        = []string{"Next", "Next page", "›", "»"}
	DefaultUKCookieSelectors  = []string{
		"#onetrust-accept-btn-handler",
		"button#accept-recommended-btn-handler",
		"text=Accept all cookies",
		"button:has-text('Accept')",
	}
	DefaultCAIndexURLs = []string{
		"https://support.cancer.ca/site/PageServer?pagename=RFL_NW_Events",
		"https://support.cancer.ca/site/PageServer?pagename=RFLY_NW_Events",
	}
	DefaultCALists = []CAListConfig{
		{Label: "community", FilterText: "RFL_"},
		{Label: "youth", FilterText: "RFLY_", EventType2: "Youth"},
	}
)

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: configuration filename cannot be empty", errs.ErrConfig)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: configuration file not found: %s", errs.ErrConfig, filename)
		}
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes. ${VAR} references are
// expanded from the environment before parsing.
func LoadFromBytes(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: configuration data cannot be empty", errs.ErrConfig)
	}

	expanded := expandEnvironmentVariables(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML configuration: %v", errs.ErrConfig, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from reader: %w", err)
	}

	return LoadFromBytes(data)
}

// SaveToWriter validates cfg and writes it as YAML.
func SaveToWriter(cfg *Config, writer io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if writer == nil {
		return fmt.Errorf("writer cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	enc := yaml.NewEncoder(writer)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}
	return enc.Close()
}

// SaveToFile writes cfg to filename, creating parent directories.
func SaveToFile(cfg *Config, filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	if err := SaveToWriter(cfg, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Default returns the configuration used when seeds.yml is absent: every
// country enabled with its built-in defaults.
func Default() *Config {
	cfg := &Config{
		Countries: CountriesConfig{
			AU: &AUConfig{IndexURLs: []string{"https://www.relayforlife.org.au/find-an-event"}},
			UK: &UKConfig{},
			US: &USConfig{ZipCodes: []string{"10001", "60601", "94103", "30301", "75201"}},
			CA: &CAConfig{},
		},
	}
	applyDefaults(cfg)
	return cfg
}

// GenerateTemplate returns a complete default configuration with the optional
// sinks filled in as examples.
func GenerateTemplate() *Config {
	cfg := Default()
	cfg.Output.XLSX = "out/events.xlsx"
	cfg.Output.SQL = &SQLConfig{Driver: "sqlite3", DSN: "out/events.db", Table: "events"}
	cfg.Metrics.Enabled = false
	return cfg
}

// expandEnvironmentVariables substitutes environment variables in the configuration
func expandEnvironmentVariables(content string) string {
	return os.ExpandEnv(content)
}

// applyDefaults fills unset fields. Country sections left nil stay nil:
// a missing section means that country is not configured.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	f := &cfg.Fetch
	if f.CacheDir == "" {
		f.CacheDir = DefaultCacheDir
	}
	if f.Timeout == 0 {
		f.Timeout = Duration(30 * time.Second)
	}
	if f.MinDelay == 0 {
		f.MinDelay = Duration(500 * time.Millisecond)
	}
	if f.MaxAttempts == 0 {
		f.MaxAttempts = 3
	}
	if f.BaseBackoff == 0 {
		f.BaseBackoff = Duration(time.Second)
	}
	if f.MaxBackoff == 0 {
		f.MaxBackoff = Duration(10 * time.Second)
	}
	if f.RedisURL != "" && f.CacheTTL == 0 {
		f.CacheTTL = Duration(7 * 24 * time.Hour)
	}

	b := &cfg.Browser
	if b.Timeout == 0 {
		b.Timeout = Duration(45 * time.Second)
	}
	if b.WaitDelay == 0 {
		b.WaitDelay = Duration(1500 * time.Millisecond)
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsAddr
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsSpace
	}

	o := &cfg.Output
	if o.CSV == "" {
		o.CSV = "out/events.csv"
	}
	if o.PreviewLimit == 0 {
		o.PreviewLimit = DefaultPreviewLimit
	}
	if o.SQL != nil && o.SQL.Table == "" {
		o.SQL.Table = "events"
	}
	if o.Mongo != nil && o.Mongo.Collection == "" {
		o.Mongo.Collection = "events"
	}

	if au := cfg.Countries.AU; au != nil {
		if len(au.EventURLContains) == 0 {
			au.EventURLContains = slices.Clone(DefaultAUEventURLContains)
		}
	}

	if uk := cfg.Countries.UK; uk != nil {
		if uk.IndexURLTemplate == "" && !uk.Render {
			uk.IndexURLTemplate = DefaultUKTemplate
		}
		if uk.PageMax == 0 {
			uk.PageMax = DefaultUKPageMax
		}
		if uk.NoNewLimit == 0 {
			uk.NoNewLimit = DefaultNoNewLimit
		}
		if len(uk.EventURLContains) == 0 {
			uk.EventURLContains = slices.Clone(DefaultUKEventURLContains)
		}
		if len(uk.NextTexts) == 0 {
			uk.NextTexts = slices.Clone(DefaultUKNextTexts)
		}
		if len(uk.CookieSelectors) == 0 {
			uk.CookieSelectors = slices.Clone(DefaultUKCookieSelectors)
		}
		if uk.MaxClicks == 0 {
			uk.MaxClicks = DefaultUKMaxClicks
		}
	}

	if us := cfg.Countries.US; us != nil {
		if us.APIBase == "" {
			us.APIBase = DefaultUSAPIBase
		}
		if us.EntryURLTemplate == "" {
			us.EntryURLTemplate = DefaultUSEntryURL
		}
		if us.RadiusMiles == 0 {
			us.RadiusMiles = DefaultUSRadius
		}
		if us.APIDelay == 0 {
			us.APIDelay = Duration(DefaultUSAPIDelay)
		}
	}

	if ca := cfg.Countries.CA; ca != nil {
		if len(ca.IndexURLs) == 0 {
			ca.IndexURLs = slices.Clone(DefaultCAIndexURLs)
		}
		if ca.APIURL == "" {
			ca.APIURL = DefaultCAAPIURL
		}
		if ca.APIKey == "" {
			ca.APIKey = DefaultCAAPIKey
		}
		if ca.EventType == "" {
			ca.EventType = DefaultCAEventType
		}
		if ca.PageSize == 0 {
			ca.PageSize = DefaultCAPageSize
		}
		if ca.MaxPages == 0 {
			ca.MaxPages = DefaultCAMaxPages
		}
		if ca.PageDelay == 0 {
			ca.PageDelay = Duration(DefaultCAPageDelay)
		}
		if len(ca.Lists) == 0 {
			ca.Lists = slices.Clone(DefaultCALists)
		}
		if ca.EntryURLTemplate == "" {
			ca.EntryURLTemplate = DefaultCAEntryURL
		}
	}
}

// Enabled returns the country codes that have a configuration section, in
// AU, UK, US, CA order.
func (c *Config) Enabled() []string {
	var codes []string
	if c.Countries.AU != nil {
		codes = append(codes, "AU")
	}
	if c.Countries.UK != nil {
		codes = append(codes, "UK")
	}
	if c.Countries.US != nil {
		codes = append(codes, "US")
	}
	if c.Countries.CA != nil {
		codes = append(codes, "CA")
	}
	return codes
}
