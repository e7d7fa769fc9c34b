// internal/monitoring/health.go
package monitoring

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the state of a scraper run
type HealthStatus string

const (
	HealthStatusStarting HealthStatus = "starting"
	HealthStatusRunning  HealthStatus = "running"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusDone     HealthStatus = "done"
)

// CountryStatus is the progress of one country driver.
type CountryStatus struct {
	Country  string        `json:"country"`
	State    string        `json:"state"`
	Records  int           `json:"records"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SystemHealth is the JSON document served on /health.
type SystemHealth struct {
	Status    HealthStatus    `json:"status"`
	RunID     string          `json:"run_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Uptime    time.Duration   `json:"uptime"`
	Current   string          `json:"current,omitempty"`
	Countries []CountryStatus `json:"countries"`
}

// HealthManager tracks run progress for the health endpoint. It is updated by
// the orchestrator and read by HTTP handlers, so it is mutex guarded.
type HealthManager struct {
	mu        sync.RWMutex
	runID     string
	started   time.Time
	current   string
	finished  bool
	countries map[string]CountryStatus
}

// NewHealthManager creates a health manager for the run identified by runID.
func NewHealthManager(runID string) *HealthManager {
	return &HealthManager{
		runID:     runID,
		started:   time.Now(),
		countries: make(map[string]CountryStatus),
	}
}

// CountryStarted marks country as in progress.
func (hm *HealthManager) CountryStarted(country string) {
	if hm == nil {
		return
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.current = country
	hm.countries[country] = CountryStatus{Country: country, State: "running"}
}

// CountryFinished stores the outcome of a country driver.
func (hm *HealthManager) CountryFinished(country string, records int, duration time.Duration, err error) {
	if hm == nil {
		return
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	st := CountryStatus{Country: country, State: "ok", Records: records, Duration: duration}
	if err != nil {
		st.State = "failed"
		st.Error = err.Error()
	}
	hm.countries[country] = st
	if hm.current == country {
		hm.current = ""
	}
}

// RunFinished marks the whole run as complete.
func (hm *HealthManager) RunFinished() {
	if hm == nil {
		return
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.finished = true
	hm.current = ""
}

// GetHealth returns a snapshot of the run state.
func (hm *HealthManager) GetHealth() SystemHealth {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	h := SystemHealth{
		RunID:     hm.runID,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.started),
		Current:   hm.current,
		Countries: make([]CountryStatus, 0, len(hm.countries)),
	}

	failed := false
	for _, st := range hm.countries {
		h.Countries = append(h.Countries, st)
		if st.State == "failed" {
			failed = true
		}
	}
	sort.Slice(h.Countries, func(i, j int) bool { return h.Countries[i].Country < h.Countries[j].Country })

	switch {
	case failed:
		h.Status = HealthStatusDegraded
	case hm.finished:
		h.Status = HealthStatusDone
	case len(hm.countries) == 0:
		h.Status = HealthStatusStarting
	default:
		h.Status = HealthStatusRunning
	}
	return h
}

// HealthHandler returns the HTTP handler for the health endpoint
func (hm *HealthManager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.GetHealth()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(health)
	}
}
