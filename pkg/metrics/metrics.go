// Package metrics exposes the Prometheus instruments of the settings service.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch sources reported by RecordFetch.
const (
	SourceShadow   = "shadow"
	SourceStore    = "store"
	SourceDefaults = "defaults"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests labeled by route, method and status",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	settingsUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settings_updates_total",
			Help: "Total number of single-key settings mutations labeled by key and outcome",
		},
		[]string{"key", "status"},
	)
	settingsFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settings_fetch_total",
			Help: "Total number of settings reads labeled by the layer that answered",
		},
		[]string{"source"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	shadowSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shadow_sessions",
			Help: "Current number of sessions holding a settings shadow",
		},
	)
)

// RecordHTTPRequest increments request counters and records duration.
func RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}

	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordUpdate counts one settings mutation attempt.
func RecordUpdate(key, status string) {
	if key == "" {
		key = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	settingsUpdatesTotal.WithLabelValues(key, status).Inc()
}

// RecordFetch counts a settings read answered by source.
func RecordFetch(source string) {
	settingsFetchTotal.WithLabelValues(source).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// SetShadowSessions updates the shadow session gauge.
func SetShadowSessions(count int) {
	shadowSessions.Set(float64(count))
}

// SessionCounter reports how many sessions currently hold a shadow.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// SessionCollector periodically samples a SessionCounter into the shadow_sessions gauge.
type SessionCollector struct {
	counter  SessionCounter
	interval time.Duration
}

// NewSessionCollector builds a collector polling counter every interval.
func NewSessionCollector(counter SessionCounter, interval time.Duration) *SessionCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SessionCollector{counter: counter, interval: interval}
}

// Run polls until ctx is cancelled.
func (c *SessionCollector) Run(ctx context.Context) {
	if c == nil || c.counter == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *SessionCollector) collect(ctx context.Context) {
	count, err := c.counter.Count(ctx)
	if err != nil {
		RecordError("shadow_count", "low")
		return
	}
	SetShadowSessions(count)
}
