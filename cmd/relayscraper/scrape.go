// cmd/relayscraper/scrape.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/relay-scraper/internal/browser"
	"github.com/valpere/relay-scraper/internal/config"
	"github.com/valpere/relay-scraper/internal/countries/au"
	"github.com/valpere/relay-scraper/internal/countries/ca"
	"github.com/valpere/relay-scraper/internal/countries/uk"
	"github.com/valpere/relay-scraper/internal/countries/us"
	"github.com/valpere/relay-scraper/internal/fetch"
	"github.com/valpere/relay-scraper/internal/monitoring"
	"github.com/valpere/relay-scraper/internal/output"
	"github.com/valpere/relay-scraper/internal/scraper"
	"github.com/valpere/relay-scraper/internal/utils"
)

// runOptions carries the run command's flags.
type runOptions struct {
	ConfigFile     string
	ConfigExplicit bool
	LogLevel       string
	Countries      []string
	CSV            string
	JSON           string
	NoCache        bool
}

// loadRunConfig reads the configuration for a run. The default file may be
// absent, in which case every country runs with built-in defaults.
func loadRunConfig(opts runOptions, logger utils.Logger) (*config.Config, error) {
	if !opts.ConfigExplicit {
		if _, err := os.Stat(opts.ConfigFile); errors.Is(err, fs.ErrNotExist) {
			logger.Warnf("%s not found, using built-in defaults", opts.ConfigFile)
			return config.Default(), nil
		}
	}
	return config.LoadFromFile(opts.ConfigFile)
}

// applyFlags copies command-line overrides into cfg.
func applyFlags(cfg *config.Config, opts runOptions) {
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.CSV != "" {
		cfg.Output.CSV = opts.CSV
	}
	if opts.JSON != "" {
		cfg.Output.JSON = opts.JSON
	}
	if opts.NoCache {
		cfg.Fetch.UseCache = config.BoolPtr(false)
	}
}

// newRegistry registers a driver for every configured country section.
func newRegistry(cfg *config.Config) *scraper.Registry {
	reg := scraper.NewRegistry()
	c := cfg.Countries
	if c.AU != nil {
		reg.Register(au.New(*c.AU))
	}
	if c.UK != nil {
		reg.Register(uk.New(*c.UK))
	}
	if c.US != nil {
		reg.Register(us.New(*c.US))
	}
	if c.CA != nil {
		reg.Register(ca.New(*c.CA))
	}
	return reg
}

// newStore opens the HTTP cache backend: Redis when configured, otherwise
// one file per URL under cache_dir.
func newStore(ctx context.Context, cfg config.FetchConfig) (fetch.Store, error) {
	if !cfg.CacheEnabled() {
		return nil, nil
	}
	if cfg.RedisURL != "" {
		return fetch.NewRedisStore(ctx, cfg.RedisURL, cfg.CacheTTL.Std())
	}
	return fetch.NewFileStore(cfg.CacheDir)
}

func browserConfig(cfg *config.Config) *browser.BrowserConfig {
	bc := browser.DefaultBrowserConfig()
	bc.Headless = cfg.Browser.IsHeadless()
	bc.Timeout = cfg.Browser.Timeout.Std()
	bc.WaitDelay = cfg.Browser.WaitDelay.Std()
	bc.UserAgent = cfg.Browser.UserAgent
	if bc.UserAgent == "" {
		bc.UserAgent = cfg.Fetch.UserAgent
	}
	return bc
}

// runScrape performs one complete run: configure, scrape, write, preview.
func runScrape(ctx context.Context, stdout, stderr io.Writer, opts runOptions) error {
	runID := uuid.New().String()
	bootLogger := utils.NewLoggerTo(stderr, utils.ParseLevel(opts.LogLevel))

	cfg, err := loadRunConfig(opts, bootLogger)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := utils.NewLoggerTo(stderr, utils.ParseLevel(cfg.LogLevel)).WithField("run_id", runID)

	metrics := monitoring.NewMetricsManager(monitoring.MetricsConfig{
		Namespace:       cfg.Metrics.Namespace,
		EnableGoMetrics: cfg.Metrics.Enabled,
	})
	health := monitoring.NewHealthManager(runID)
	if cfg.Metrics.Enabled {
		srv, err := monitoring.Start(cfg.Metrics.ListenAddress, metrics, health, logger)
		if err != nil {
			return fmt.Errorf("start monitoring endpoint: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	registry := newRegistry(cfg)
	store, err := newStore(ctx, cfg.Fetch)
	if err != nil {
		return fmt.Errorf("open HTTP cache: %w", err)
	}
	fetcher := fetch.New(fetch.Options{
		Store:       store,
		UseCache:    cfg.Fetch.CacheEnabled(),
		Timeout:     cfg.Fetch.Timeout.Std(),
		MinDelay:    cfg.Fetch.MinDelay.Std(),
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BaseBackoff: cfg.Fetch.BaseBackoff.Std(),
		MaxBackoff:  cfg.Fetch.MaxBackoff.Std(),
		UserAgent:   cfg.Fetch.UserAgent,
		Logger:      logger,
		Metrics:     metrics,
	})
	defer fetcher.Close()

	env := &scraper.Env{
		Fetcher:    fetcher,
		HTTPClient: fetcher.Client(),
		UserAgent:  fetcher.UserAgent(),
		Browser:    browser.NewChromeFactory(browserConfig(cfg)),
		Logger:     logger,
		Metrics:    metrics,
	}
	engine := scraper.NewScrapingEngine(registry, env).WithHealth(health)

	countries, err := engine.ResolveCountries(opts.Countries)
	if err != nil {
		return err
	}
	if len(countries) == 0 {
		logger.Warn("No countries configured; nothing to scrape")
	}

	// Sinks are opened only once there is something to write, so a failed
	// run leaves the previous outputs in place.
	result, runErr := engine.Run(ctx, countries)
	if result == nil {
		return runErr
	}
	failed := result.Failed()
	if runErr != nil && len(failed) == len(result.Countries) {
		logger.Warn("No country finished; existing outputs left untouched")
		return runErr
	}

	outputs, err := output.NewManager(ctx, cfg.Output, logger)
	if err != nil {
		return errors.Join(runErr, err)
	}

	written, writeErr := outputs.Write(result.Records)
	for _, w := range written {
		var sinkErr error
		if w.Error != "" {
			sinkErr = errors.New(w.Error)
		}
		metrics.RecordOutput(string(w.Format), w.Records, sinkErr)
	}
	closeErr := outputs.Close()

	if len(failed) > 0 {
		logger.Warnf("Countries with errors: %v", failed)
	}
	logger.Infof("Run finished: %d record(s) from %d country run(s) in %s",
		len(result.Records), len(result.Countries), utils.FormatDuration(result.Duration))

	if f, ok := stdout.(*os.File); ok && output.IsTerminal(f) {
		if err := output.Preview(stdout, result.Records, cfg.Output.PreviewLimit, true); err != nil {
			logger.Warnf("Preview failed: %v", err)
		}
	}

	return errors.Join(runErr, writeErr, closeErr)
}
