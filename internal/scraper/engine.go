// internal/scraper/engine.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	errs "github.com/valpere/relay-scraper/internal/errors"
	"github.com/valpere/relay-scraper/internal/monitoring"
	"github.com/valpere/relay-scraper/internal/record"
)

// CountryResult summarizes one driver run.
type CountryResult struct {
	Country  string
	Records  int
	Duration time.Duration
	Err      error
}

// ScrapingResult is the outcome of Engine.Run.
type ScrapingResult struct {
	Records   []record.Record
	Countries []CountryResult
	Duration  time.Duration
}

// Failed returns the countries whose driver returned an error.
func (r *ScrapingResult) Failed() []string {
	var out []string
	for _, c := range r.Countries {
		if c.Err != nil {
			out = append(out, c.Country)
		}
	}
	return out
}

// ScrapingEngine runs country drivers one after another and merges their
// records.
type ScrapingEngine struct {
	registry *Registry
	env      *Env
	health   *monitoring.HealthManager
}

// NewScrapingEngine creates an engine over registry using env.
func NewScrapingEngine(registry *Registry, env *Env) *ScrapingEngine {
	return &ScrapingEngine{registry: registry, env: env}
}

// WithHealth reports progress to health.
func (se *ScrapingEngine) WithHealth(health *monitoring.HealthManager) *ScrapingEngine {
	se.health = health
	return se
}

// ResolveCountries normalizes and validates requested codes. An empty request
// selects every registered driver.
func (se *ScrapingEngine) ResolveCountries(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return se.registry.Codes(), nil
	}

	var codes, unknown []string
	seen := make(map[string]bool)
	for _, raw := range requested {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		if _, ok := se.registry.Get(code); !ok {
			unknown = append(unknown, code)
			continue
		}
		codes = append(codes, code)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s (known: %s)", errs.ErrUnknownCountry,
			strings.Join(unknown, ","), strings.Join(se.registry.Codes(), ","))
	}
	if len(codes) == 0 {
		return se.registry.Codes(), nil
	}
	return codes, nil
}

// Run scrapes the requested countries in order. A failing driver does not stop
// the others; its error is joined into the returned error and its records are
// dropped. The records of the successful countries are suppressed,
// deduplicated and sorted.
func (se *ScrapingEngine) Run(ctx context.Context, countries []string) (*ScrapingResult, error) {
	codes, err := se.ResolveCountries(countries)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &ScrapingResult{}
	var all []record.Record
	var failures []error

	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		driver, _ := se.registry.Get(code)
		logger := se.env.Log(code)
		logger.Infof("Scraping %s", code)
		se.health.CountryStarted(code)

		driverStart := time.Now()
		recs, err := driver.Scrape(ctx, se.env)
		elapsed := time.Since(driverStart)

		cr := CountryResult{Country: code, Duration: elapsed, Err: err}
		if err != nil {
			logger.Errorf("Scrape %s failed after %s: %v", code, elapsed.Round(time.Millisecond), err)
			failures = append(failures, fmt.Errorf("scrape %s: %w", code, err))
		} else {
			cr.Records = len(recs)
			all = append(all, recs...)
			logger.Infof("Scraped %s: %d record(s) in %s", code, len(recs), elapsed.Round(time.Millisecond))
		}

		se.env.Metrics.RecordDriverRun(code, cr.Records, elapsed, err)
		se.health.CountryFinished(code, cr.Records, elapsed, err)
		result.Countries = append(result.Countries, cr)
	}

	result.Records = record.Finalize(all)
	result.Duration = time.Since(start)
	se.health.RunFinished()

	return result, errors.Join(failures...)
}
