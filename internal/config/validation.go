// internal/config/validation.go
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	errs "github.com/valpere/relay-scraper/internal/errors"
)

// ValidationError represents a detailed validation error
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`
}

func (r *ValidationResult) add(field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: message})
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

var (
	validLogLevels = []string{"debug", "info", "warn", "warning", "error"}
	validSQLDriver = []string{"sqlite3", "mysql", "postgres"}
	tableName      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	zipCode        = regexp.MustCompile(`^\d{5}$`)
)

// Validate checks the configuration and returns an error wrapping
// errs.ErrConfig listing every problem found.
func (c *Config) Validate() error {
	result := c.ValidateWithDetails()
	if !result.Valid {
		return formatValidationError(result)
	}
	return nil
}

// ValidateWithDetails provides detailed validation results
func (c *Config) ValidateWithDetails() *ValidationResult {
	result := &ValidationResult{
		Errors:   make([]ValidationError, 0),
		Warnings: make([]string, 0),
	}

	c.validateBasicFields(result)
	c.validateFetch(result)
	c.validateOutput(result)
	c.validateAU(result)
	c.validateUK(result)
	c.validateUS(result)
	c.validateCA(result)

	if len(c.Enabled()) == 0 {
		result.warn("no country sections configured; nothing will be scraped")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func (c *Config) validateBasicFields(result *ValidationResult) {
	if !contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		result.add("log_level", c.LogLevel, "Log level must be one of "+strings.Join(validLogLevels, ", "))
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		result.add("metrics.listen_address", "", "Listen address is required when metrics are enabled")
	}
}

func (c *Config) validateFetch(result *ValidationResult) {
	f := c.Fetch
	if f.Timeout < 0 {
		result.add("fetch.timeout", f.Timeout.String(), "Timeout cannot be negative")
	}
	if f.MinDelay < 0 {
		result.add("fetch.min_delay", f.MinDelay.String(), "Minimum delay cannot be negative")
	}
	if f.MaxAttempts < 1 || f.MaxAttempts > 10 {
		result.add("fetch.max_attempts", fmt.Sprint(f.MaxAttempts), "Max attempts must be between 1 and 10")
	}
	if f.MaxBackoff < f.BaseBackoff {
		result.add("fetch.max_backoff", f.MaxBackoff.String(), "Max backoff must not be shorter than base backoff")
	}
	if f.RedisURL != "" {
		u, err := url.Parse(f.RedisURL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			result.add("fetch.redis_url", f.RedisURL, "Redis URL must use the redis:// or rediss:// scheme")
		}
	}
}

func (c *Config) validateOutput(result *ValidationResult) {
	o := c.Output
	if o.PreviewLimit < 0 {
		result.add("output.preview_limit", fmt.Sprint(o.PreviewLimit), "Preview limit cannot be negative")
	}
	if o.XLSX != "" && !strings.HasSuffix(strings.ToLower(o.XLSX), ".xlsx") {
		result.warn("output.xlsx %q does not end in .xlsx", o.XLSX)
	}
	if s := o.SQL; s != nil {
		if !contains(validSQLDriver, s.Driver) {
			result.add("output.sql.driver", s.Driver, "SQL driver must be one of "+strings.Join(validSQLDriver, ", "))
		}
		if s.DSN == "" {
			result.add("output.sql.dsn", "", "SQL DSN is required")
		}
		if !tableName.MatchString(s.Table) {
			result.add("output.sql.table", s.Table, "Table name must be a plain SQL identifier")
		}
	}
	if m := o.Mongo; m != nil {
		if !strings.HasPrefix(m.URI, "mongodb://") && !strings.HasPrefix(m.URI, "mongodb+srv://") {
			result.add("output.mongo.uri", m.URI, "Mongo URI must start with mongodb:// or mongodb+srv://")
		}
		if m.Database == "" {
			result.add("output.mongo.database", "", "Mongo database is required")
		}
	}
}

func (c *Config) validateAU(result *ValidationResult) {
	au := c.Countries.AU
	if au == nil {
		return
	}
	if len(au.IndexURLs) == 0 {
		result.add("countries.AU.index_urls", "[]", "At least one index URL is required")
	}
	validateURLs(result, "countries.AU.index_urls", au.IndexURLs)
}

func (c *Config) validateUK(result *ValidationResult) {
	uk := c.Countries.UK
	if uk == nil {
		return
	}
	if uk.Render {
		if uk.IndexURL == "" {
			result.add("countries.UK.index_url", "", "Index URL is required in render mode")
		}
		validateURLs(result, "countries.UK.index_url", []string{uk.IndexURL})
		if uk.MaxClicks < 0 {
			result.add("countries.UK.max_clicks", fmt.Sprint(uk.MaxClicks), "Max clicks cannot be negative")
		}
		return
	}
	if !strings.Contains(uk.IndexURLTemplate, "{page}") {
		result.add("countries.UK.index_url_template", uk.IndexURLTemplate, "Template must contain {page}")
	}
	if uk.PageStart < 0 {
		result.add("countries.UK.page_start", fmt.Sprint(uk.PageStart), "Page start cannot be negative")
	}
	if uk.PageMax < uk.PageStart {
		result.add("countries.UK.page_max", fmt.Sprint(uk.PageMax), "Page max must not be below page start")
	}
	if uk.NoNewLimit < 1 {
		result.add("countries.UK.no_new_limit", fmt.Sprint(uk.NoNewLimit), "No-new limit must be at least 1")
	}
}

func (c *Config) validateUS(result *ValidationResult) {
	us := c.Countries.US
	if us == nil {
		return
	}
	if len(us.ZipCodes) == 0 {
		result.add("countries.US.zip_codes", "[]", "At least one ZIP code is required")
	}
	for i, zip := range us.ZipCodes {
		if !zipCode.MatchString(zip) {
			result.add(fmt.Sprintf("countries.US.zip_codes[%d]", i), zip, "ZIP code must be five digits")
		}
	}
	if us.RadiusMiles < 0 {
		result.add("countries.US.radius_miles", fmt.Sprint(us.RadiusMiles), "Radius cannot be negative")
	}
	if us.APIDelay < 0 {
		result.add("countries.US.api_delay", us.APIDelay.String(), "API delay cannot be negative")
	}
	if us.MaxEvents < 0 {
		result.add("countries.US.max_events", fmt.Sprint(us.MaxEvents), "Max events cannot be negative")
	}
	validateURLs(result, "countries.US.api_base", []string{us.APIBase})
	if !strings.Contains(us.EntryURLTemplate, "{id}") {
		result.add("countries.US.entry_url_template", us.EntryURLTemplate, "Template must contain {id}")
	}
	for i, v := range us.Variants {
		if v.ZipKey == "" {
			result.add(fmt.Sprintf("countries.US.variants[%d].zip_key", i), "", "Variant ZIP key is required")
		}
	}
}

func (c *Config) validateCA(result *ValidationResult) {
	ca := c.Countries.CA
	if ca == nil {
		return
	}
	validateURLs(result, "countries.CA.api_url", []string{ca.APIURL})
	validateURLs(result, "countries.CA.index_urls", ca.IndexURLs)
	if ca.PageSize < 1 {
		result.add("countries.CA.page_size", fmt.Sprint(ca.PageSize), "Page size must be positive")
	}
	if ca.MaxPages < 1 {
		result.add("countries.CA.max_pages", fmt.Sprint(ca.MaxPages), "Max pages must be positive")
	}
	if ca.PageDelay < 0 {
		result.add("countries.CA.page_delay", ca.PageDelay.String(), "Page delay cannot be negative")
	}
	for i, l := range ca.Lists {
		if l.FilterText == "" {
			result.add(fmt.Sprintf("countries.CA.lists[%d].filter_text", i), "", "List filter text is required")
		}
	}
	if !strings.Contains(ca.EntryURLTemplate, "{id}") {
		result.add("countries.CA.entry_url_template", ca.EntryURLTemplate, "Template must contain {id}")
	}
}

func validateURLs(result *ValidationResult, field string, urls []string) {
	for i, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			name := field
			if len(urls) > 1 {
				name = fmt.Sprintf("%s[%d]", field, i)
			}
			result.add(name, raw, "URL must be absolute http(s)")
		}
	}
}

// formatValidationError creates a comprehensive error message
func formatValidationError(result *ValidationResult) error {
	var msg strings.Builder

	msg.WriteString("configuration validation failed:\n")
	for i, err := range result.Errors {
		fmt.Fprintf(&msg, "  %d. %s", i+1, err.Message)
		if err.Field != "" {
			fmt.Fprintf(&msg, " (field: %s)", err.Field)
		}
		if err.Value != "" {
			fmt.Fprintf(&msg, " (value: %s)", err.Value)
		}
		msg.WriteString("\n")
	}

	return fmt.Errorf("%w: %s", errs.ErrConfig, strings.TrimRight(msg.String(), "\n"))
}

// Helper function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
