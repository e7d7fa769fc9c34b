// internal/monitoring/monitoring_test.go
package monitoring

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsManager_NilSafe(t *testing.T) {
	var mm *MetricsManager
	mm.RecordRequest(200, time.Second)
	mm.RecordRequestError(time.Second)
	mm.RecordRequestRetry()
	mm.RecordCacheHit()
	mm.RecordDiscovered("AU", 3)
	mm.RecordDriverRun("AU", 1, time.Second, nil)
	mm.RecordAPIRequest("CA", "ok")
	mm.RecordOutput("csv", 1, nil)
	mm.RecordBrowser("UK", 1, 1, 0, 0)
	if mm.Registry() != nil {
		t.Error("Expected nil registry for nil manager")
	}
}

func TestRouter_ServesMetricsAndHealth(t *testing.T) {
	mm := NewMetricsManager(MetricsConfig{Namespace: "test"})
	mm.RecordRequest(200, 150*time.Millisecond)
	mm.RecordCacheHit()
	mm.RecordDriverRun("UK", 7, time.Second, nil)
	mm.RecordBrowser("UK", 4, 3, 0, 1)

	hm := NewHealthManager("run-1")
	hm.CountryStarted("UK")
	hm.CountryFinished("UK", 7, time.Second, nil)
	hm.CountryStarted("US")
	hm.CountryFinished("US", 0, time.Second, errors.New("api down"))

	server := httptest.NewServer(NewRouter(mm, hm))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	for _, want := range []string{
		`test_fetch_requests_total{status_code="200"} 1`,
		`test_fetch_cache_hits_total 1`,
		`test_driver_records{country="UK"} 7`,
		`test_browser_events_total{country="UK",event="click"} 3`,
		`test_browser_events_total{country="UK",event="timeout"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}

	resp, err = http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var health SystemHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != HealthStatusDegraded {
		t.Errorf("Expected degraded status after a failed country, got %s", health.Status)
	}
	if len(health.Countries) != 2 || health.Countries[0].Country != "UK" {
		t.Errorf("Unexpected countries %+v", health.Countries)
	}
	if health.RunID != "run-1" {
		t.Errorf("Expected run id run-1, got %q", health.RunID)
	}
}

func TestHealthManager_States(t *testing.T) {
	hm := NewHealthManager("")
	if got := hm.GetHealth().Status; got != HealthStatusStarting {
		t.Errorf("Expected starting, got %s", got)
	}
	hm.CountryStarted("AU")
	if got := hm.GetHealth(); got.Status != HealthStatusRunning || got.Current != "AU" {
		t.Errorf("Expected running AU, got %s %q", got.Status, got.Current)
	}
	hm.CountryFinished("AU", 2, time.Second, nil)
	hm.RunFinished()
	if got := hm.GetHealth().Status; got != HealthStatusDone {
		t.Errorf("Expected done, got %s", got)
	}
}
