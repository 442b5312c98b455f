package middleware

import (
	"net/http"
	"time"

	"github.com/Proton-105/himera-settings/pkg/metrics"
)

// Metrics measures execution time and status for the handlers of route, reporting them to Prometheus.
func Metrics(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			sw := wrap(w)
			next.ServeHTTP(sw, r)

			metrics.RecordHTTPRequest(route, r.Method, sw.code(), time.Since(start))
		})
	}
}
