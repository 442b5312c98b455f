package redis

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

var (
	redisRequestsTotal   *prometheus.CounterVec
	redisErrorsTotal     *prometheus.CounterVec
	redisRequestDuration *prometheus.HistogramVec
)

func init() {
	redisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_requests_total",
			Help: "Total number of Redis requests by method.",
		},
		[]string{"method"},
	)
	redisErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of Redis errors by method.",
		},
		[]string{"method"},
	)
	redisRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_request_duration_seconds",
			Help:    "Redis request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	prometheus.MustRegister(redisRequestsTotal, redisErrorsTotal, redisRequestDuration)
}

// MetricsClient wraps Client to collect Prometheus metrics.
type MetricsClient struct {
	next *Client
}

// NewMetricsClient creates an instrumented Redis client.
func NewMetricsClient(next *Client) *MetricsClient {
	return &MetricsClient{next: next}
}

// Get instruments Client.Get. A missing key is not counted as an error.
func (m *MetricsClient) Get(ctx context.Context, key string) (string, error) {
	var result string
	err := observe("get", func() error {
		var err error
		result, err = m.next.Get(ctx, key)
		return err
	})
	return result, err
}

// Delete instruments Client.Delete.
func (m *MetricsClient) Delete(ctx context.Context, keys ...string) error {
	return observe("delete", func() error {
		return m.next.Delete(ctx, keys...)
	})
}

// HGetAll instruments Client.HGetAll.
func (m *MetricsClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var result map[string]string
	err := observe("hgetall", func() error {
		var err error
		result, err = m.next.HGetAll(ctx, key)
		return err
	})
	return result, err
}

// RunScript instruments Client.RunScript.
func (m *MetricsClient) RunScript(ctx context.Context, script *goredis.Script, keys []string, args ...interface{}) (int64, error) {
	var result int64
	err := observe("script", func() error {
		var err error
		result, err = m.next.RunScript(ctx, script, keys, args...)
		return err
	})
	return result, err
}

// ScanCount instruments Client.ScanCount.
func (m *MetricsClient) ScanCount(ctx context.Context, pattern string) (int, error) {
	var result int
	err := observe("scan", func() error {
		var err error
		result, err = m.next.ScanCount(ctx, pattern)
		return err
	})
	return result, err
}

// Exec runs fn against a transactional pipeline and instruments the round trip.
func (m *MetricsClient) Exec(ctx context.Context, fn func(pipe goredis.Pipeliner)) error {
	return observe("tx_pipeline", func() error {
		pipe := m.next.TxPipeline()
		fn(pipe)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Close closes underlying client.
func (m *MetricsClient) Close() error {
	return m.next.Close()
}

func observe(method string, fn func() error) error {
	timer := prometheus.NewTimer(redisRequestDuration.WithLabelValues(method))
	err := fn()
	timer.ObserveDuration()
	redisRequestsTotal.WithLabelValues(method).Inc()
	if err != nil && err != goredis.Nil {
		redisErrorsTotal.WithLabelValues(method).Inc()
	}
	return err
}
