// internal/monitoring/metrics.go
package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsManager owns the Prometheus collectors of one scraper run. All
// Record* methods are safe to call on a nil manager.
type MetricsManager struct {
	registry *prometheus.Registry

	// Fetch metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	requestErrors   prometheus.Counter
	requestRetries  prometheus.Counter
	cacheHits       prometheus.Counter

	// Driver metrics
	urlsDiscovered *prometheus.CounterVec
	recordsTotal   *prometheus.GaugeVec
	driverErrors   *prometheus.CounterVec
	apiRequests    *prometheus.CounterVec
	driverDuration *prometheus.GaugeVec
	browserEvents  *prometheus.CounterVec

	// Output metrics
	recordsWritten *prometheus.CounterVec
	outputErrors   *prometheus.CounterVec
}

// MetricsConfig configuration for metrics
type MetricsConfig struct {
	Namespace       string
	EnableGoMetrics bool
}

// NewMetricsManager creates a metrics manager backed by its own registry.
func NewMetricsManager(config MetricsConfig) *MetricsManager {
	if config.Namespace == "" {
		config.Namespace = "relayscraper"
	}

	reg := prometheus.NewRegistry()
	if config.EnableGoMetrics {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	mm := &MetricsManager{registry: reg}
	mm.initializeMetrics(config.Namespace)
	return mm
}

func (mm *MetricsManager) initializeMetrics(namespace string) {
	factory := promauto.With(mm.registry)

	mm.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Total number of network page fetches by HTTP status",
		},
		[]string{"status_code"},
	)

	mm.requestDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "request_duration_seconds",
			Help:      "Page fetch duration in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		},
	)

	mm.requestErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Page fetches that failed after all retries",
		},
	)

	mm.requestRetries = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Retried page fetch attempts",
		},
	)

	mm.cacheHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "cache_hits_total",
			Help:      "Page fetches served from the cache",
		},
	)

	mm.urlsDiscovered = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "urls_discovered_total",
			Help:      "Candidate event URLs found during discovery",
		},
		[]string{"country"},
	)

	mm.recordsTotal = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "records",
			Help:      "Records produced by the last run of each country driver",
		},
		[]string{"country"},
	)

	mm.driverErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "errors_total",
			Help:      "Fatal country driver failures",
		},
		[]string{"country"},
	)

	mm.apiRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "api_requests_total",
			Help:      "Vendor JSON API calls by outcome",
		},
		[]string{"country", "outcome"},
	)

	mm.driverDuration = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "duration_seconds",
			Help:      "Wall time of the last run of each country driver",
		},
		[]string{"country"},
	)

	mm.browserEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "browser",
			Name:      "events_total",
			Help:      "Rendered pages, clicks, errors and timeouts per country",
		},
		[]string{"country", "event"},
	)

	mm.recordsWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "records_written_total",
			Help:      "Records written per output sink",
		},
		[]string{"sink"},
	)

	mm.outputErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "errors_total",
			Help:      "Output sink failures",
		},
		[]string{"sink"},
	)
}

// Registry returns the registry holding every collector of this manager.
func (mm *MetricsManager) Registry() *prometheus.Registry {
	if mm == nil {
		return nil
	}
	return mm.registry
}

// RecordRequest records one completed network fetch.
func (mm *MetricsManager) RecordRequest(statusCode int, duration time.Duration) {
	if mm == nil {
		return
	}
	mm.requestsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	mm.requestDuration.Observe(duration.Seconds())
}

// RecordRequestError records a fetch that failed at the transport level.
func (mm *MetricsManager) RecordRequestError(duration time.Duration) {
	if mm == nil {
		return
	}
	mm.requestErrors.Inc()
	mm.requestDuration.Observe(duration.Seconds())
}

func (mm *MetricsManager) RecordRequestRetry() {
	if mm == nil {
		return
	}
	mm.requestRetries.Inc()
}

func (mm *MetricsManager) RecordCacheHit() {
	if mm == nil {
		return
	}
	mm.cacheHits.Inc()
}

// RecordDiscovered adds n discovered URLs for country.
func (mm *MetricsManager) RecordDiscovered(country string, n int) {
	if mm == nil || n <= 0 {
		return
	}
	mm.urlsDiscovered.WithLabelValues(country).Add(float64(n))
}

// RecordDriverRun stores the outcome of one country driver.
func (mm *MetricsManager) RecordDriverRun(country string, records int, duration time.Duration, err error) {
	if mm == nil {
		return
	}
	mm.recordsTotal.WithLabelValues(country).Set(float64(records))
	mm.driverDuration.WithLabelValues(country).Set(duration.Seconds())
	if err != nil {
		mm.driverErrors.WithLabelValues(country).Inc()
	}
}

// RecordAPIRequest counts a vendor API call; outcome is "ok" or "error".
func (mm *MetricsManager) RecordAPIRequest(country, outcome string) {
	if mm == nil {
		return
	}
	mm.apiRequests.WithLabelValues(country, outcome).Inc()
}

// RecordBrowser adds the counters of one finished browser session.
func (mm *MetricsManager) RecordBrowser(country string, pages, clicks, errors, timeouts int) {
	if mm == nil {
		return
	}
	for event, n := range map[string]int{"page": pages, "click": clicks, "error": errors, "timeout": timeouts} {
		mm.browserEvents.WithLabelValues(country, event).Add(float64(n))
	}
}

// RecordOutput counts records written to a sink, or a sink failure.
func (mm *MetricsManager) RecordOutput(sink string, records int, err error) {
	if mm == nil {
		return
	}
	if err != nil {
		mm.outputErrors.WithLabelValues(sink).Inc()
		return
	}
	mm.recordsWritten.WithLabelValues(sink).Add(float64(records))
}
