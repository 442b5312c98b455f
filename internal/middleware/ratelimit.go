package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/Proton-105/himera-settings/internal/errors"
	"github.com/Proton-105/himera-settings/internal/ratelimit"
	"github.com/Proton-105/himera-settings/internal/session"
)

// RateLimitMiddleware enforces per-user rate limits for authenticated requests.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	reject  session.DenyFunc
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
// reject answers requests over the limit.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, reject session.DenyFunc, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		reject:  reject,
		log:     log,
	}
}

// Handle wraps next with the per-user limit. Limiter failures let the request through.
func (m *RateLimitMiddleware) Handle(next session.HandlerFunc) session.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if m == nil || m.limiter == nil || !m.rules.Enabled() {
			next(w, r, sess)
			return
		}

		userID := sess.UserID
		if m.rules.IsWhitelisted(userID) {
			next(w, r, sess)
			return
		}

		limit, window, err := m.rules.GetPerUserLimit()
		if err != nil {
			m.log.Error("failed to load per-user rate limit", slog.Int64("user_id", userID), slog.Any("error", err))
			next(w, r, sess)
			return
		}

		key := fmt.Sprintf("user:%d", userID)
		result, err := m.limiter.Check(r.Context(), key, limit, window)
		if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
			m.log.Warn("rate limiter error", slog.Int64("user_id", userID), slog.Any("error", err))
			next(w, r, sess)
			return
		}

		if result != nil {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}

		if err != nil || (result != nil && !result.Allowed) {
			retryAfter := 1
			if result != nil {
				retryAfter = int(math.Ceil(time.Until(result.ResetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			m.log.Warn("rate limit exceeded", slog.Int64("user_id", userID))
			m.reject(w, r, apperrors.NewRateLimitError(retryAfter))
			return
		}

		next(w, r, sess)
	}
}
