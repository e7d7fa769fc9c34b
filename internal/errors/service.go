// internal/errors/service.go - error taxonomy and CLI presentation
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Sentinel errors used across the scraper. Callers wrap them with %w and test
// with errors.Is.
var (
	// ErrAPIContract marks a failure of a reverse-engineered vendor JSON API
	// (non-200, unparsable JSON, missing result list). Fatal for a country.
	ErrAPIContract = stderrors.New("vendor API contract violated")

	// ErrConfig marks invalid or unreadable configuration.
	ErrConfig = stderrors.New("invalid configuration")

	// ErrUnknownCountry marks a country code without a registered driver.
	ErrUnknownCountry = stderrors.New("unknown country code")

	// ErrUsage marks a malformed command line.
	ErrUsage = stderrors.New("invalid usage")
)

// Exit codes returned by the CLI.
const (
	ExitOK          = 0
	ExitGeneral     = 1
	ExitUsage       = 2
	ExitAPIContract = 3
)

// APIError describes a vendor API failure. It always unwraps to ErrAPIContract
// in addition to the underlying cause.
type APIError struct {
	Country  string
	Endpoint string
	Status   int
	Snippet  string
	Err      error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s API %s", e.Country, e.Endpoint)
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Snippet != "" {
		fmt.Fprintf(&b, " (body: %q)", e.Snippet)
	}
	return b.String()
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAPIContract}
	}
	return []error{ErrAPIContract, e.Err}
}

// NewAPIError builds an APIError, truncating body to a short snippet.
func NewAPIError(country, endpoint string, status int, body string, err error) *APIError {
	body = strings.TrimSpace(body)
	if len(body) > 400 {
		body = body[:400]
	}
	return &APIError{Country: country, Endpoint: endpoint, Status: status, Snippet: body, Err: err}
}

// Service converts errors into user-facing CLI output and exit codes.
type Service struct {
	showTechnical bool
}

// NewService creates an error presentation service.
func NewService() *Service {
	return &Service{}
}

// WithVerbose enables technical error details
func (s *Service) WithVerbose(verbose bool) *Service {
	s.showTechnical = verbose
	return s
}

// GetExitCode returns appropriate exit code for error
func (s *Service) GetExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, ErrAPIContract):
		return ExitAPIContract
	case stderrors.Is(err, ErrConfig), stderrors.Is(err, ErrUnknownCountry), stderrors.Is(err, ErrUsage):
		return ExitUsage
	default:
		return ExitGeneral
	}
}

// GetUserFriendlyError returns a title, explanation and suggestions for err.
func (s *Service) GetUserFriendlyError(err error) (title, message string, suggestions []string) {
	if err == nil {
		return "", "", nil
	}

	switch {
	case stderrors.Is(err, ErrAPIContract):
		return "Vendor API Changed",
			"An internal event-search API returned an unexpected response, so results for that country would be incomplete.",
			[]string{
				"Open the country's event finder in a browser and inspect its network calls",
				"Update the API endpoint, key or parameter names in the configuration",
				"Re-run with --verbose to see the response snippet",
			}
	case stderrors.Is(err, ErrUnknownCountry):
		return "Unknown Country",
			"One of the requested country codes has no scraper (" + err.Error() + ").",
			[]string{"Use a comma-separated subset of AU,UK,US,CA"}
	case stderrors.Is(err, ErrUsage):
		return "Invalid Usage",
			"The command line could not be parsed (" + err.Error() + ").",
			[]string{"Run 'relayscraper --help' for the list of commands and flags"}
	case stderrors.Is(err, ErrConfig):
		return "Configuration Error",
			"The configuration file could not be loaded or is invalid:\n" + err.Error(),
			[]string{
				"Check YAML indentation (use spaces, not tabs)",
				"Run 'relayscraper validate <file>' for details",
				"Generate a fresh file with 'relayscraper template'",
			}
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection Timeout",
			"A request timed out while contacting a website.",
			[]string{
				"Check your internet connection",
				"Increase fetch.timeout in the configuration",
			}
	}

	return "Unexpected Error",
		"An unexpected error occurred during the run.",
		[]string{
			"Try running the command again",
			"Re-run with --verbose for technical details",
		}
}

// FormatErrorForCLI formats error for command-line display
func (s *Service) FormatErrorForCLI(err error) string {
	title, message, suggestions := s.GetUserFriendlyError(err)

	output := fmt.Sprintf("Error: %s\n%s\n", title, message)

	if s.showTechnical {
		output += fmt.Sprintf("\nTechnical details: %s\n", err.Error())
	}

	if len(suggestions) > 0 {
		output += "\nSuggestions:\n"
		for _, suggestion := range suggestions {
			output += fmt.Sprintf("  - %s\n", suggestion)
		}
	}

	return output
}
