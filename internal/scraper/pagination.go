// internal/scraper/pagination.go
package scraper

import (
	"sort"

	"github.com/valpere/relay-scraper/internal/monitoring"
	"github.com/valpere/relay-scraper/internal/utils"
)

// DefaultNoNewLimit is the number of consecutive pages without new URLs after
// which paginated discovery stops.
const DefaultNoNewLimit = 3

// NoNewStreak counts consecutive pages that contributed no new URLs.
type NoNewStreak struct {
	limit  int
	streak int
}

// NewNoNewStreak creates a streak tracker; limit <= 0 selects DefaultNoNewLimit.
func NewNoNewStreak(limit int) *NoNewStreak {
	if limit <= 0 {
		limit = DefaultNoNewLimit
	}
	return &NoNewStreak{limit: limit}
}

// Observe records how many new URLs the latest page added and reports
// whether the stop threshold has been reached.
func (s *NoNewStreak) Observe(added int) bool {
	if added > 0 {
		s.streak = 0
		return false
	}
	s.streak++
	return s.streak >= s.limit
}

// Streak returns the current count of consecutive no-new pages.
func (s *NoNewStreak) Streak() int {
	return s.streak
}

// URLSet is an insertion-ordered set of fragment-stripped URLs.
type URLSet struct {
	index map[string]struct{}
	urls  []string
}

func NewURLSet() *URLSet {
	return &URLSet{index: make(map[string]struct{})}
}

// Add inserts u and reports whether it was new.
func (s *URLSet) Add(u string) bool {
	u = utils.StripFragment(u)
	if u == "" {
		return false
	}
	if _, ok := s.index[u]; ok {
		return false
	}
	s.index[u] = struct{}{}
	s.urls = append(s.urls, u)
	return true
}

// AddAll inserts every URL and returns how many were new.
func (s *URLSet) AddAll(urls []string) int {
	added := 0
	for _, u := range urls {
		if s.Add(u) {
			added++
		}
	}
	return added
}

func (s *URLSet) Contains(u string) bool {
	_, ok := s.index[utils.StripFragment(u)]
	return ok
}

func (s *URLSet) Len() int {
	return len(s.urls)
}

// List returns the URLs in insertion order.
func (s *URLSet) List() []string {
	out := make([]string, len(s.urls))
	copy(out, s.urls)
	return out
}

// Sorted returns the URLs in lexical order.
func (s *URLSet) Sorted() []string {
	out := s.List()
	sort.Strings(out)
	return out
}

// DiscoveryState is a step of a discovery loop.
type DiscoveryState string

const (
	StateProbing     DiscoveryState = "probing"
	StatePaginating  DiscoveryState = "paginating"
	StateNoNewStreak DiscoveryState = "no-new-streak"
	StateHardCap     DiscoveryState = "hard-cap"
	StateExhausted   DiscoveryState = "exhausted"
	StateDone        DiscoveryState = "done"
)

// Discovery tracks one discovery loop: its state transitions and the URLs
// found so far. Every transition is logged.
type Discovery struct {
	country string
	source  string
	state   DiscoveryState
	pages   int
	urls    *URLSet
	logger  utils.Logger
	metrics *monitoring.MetricsManager
}

// NewDiscovery starts a discovery loop in the probing state.
func NewDiscovery(env *Env, country, source string) *Discovery {
	d := &Discovery{
		country: country,
		source:  source,
		state:   StateProbing,
		urls:    NewURLSet(),
		logger:  env.Log(country).WithField("source", source),
		metrics: env.Metrics,
	}
	d.logger.Debugf("Discovery %s", StateProbing)
	return d
}

// State returns the current state.
func (d *Discovery) State() DiscoveryState {
	return d.state
}

// Page records a fetched index page and the URLs it produced, moving the loop
// into the paginating state. It returns how many URLs were new.
func (d *Discovery) Page(urls []string) int {
	if d.state == StateProbing {
		d.transition(StatePaginating)
	}
	d.pages++
	added := d.urls.AddAll(urls)
	d.metrics.RecordDiscovered(d.country, added)
	d.logger.Debugf("Page %d: %d candidate(s), %d new, %d total", d.pages, len(urls), added, d.urls.Len())
	return added
}

// Finish moves the loop to the terminal reason state and then to done.
func (d *Discovery) Finish(reason DiscoveryState) []string {
	d.transition(reason)
	d.transition(StateDone)
	d.logger.Infof("Discovery finished (%s): %d URL(s) from %d page(s)", reason, d.urls.Len(), d.pages)
	return d.urls.List()
}

func (d *Discovery) transition(next DiscoveryState) {
	if d.state == next {
		return
	}
	d.logger.Debugf("Discovery %s -> %s", d.state, next)
	d.state = next
}
