// Package httpapi exposes the settings service over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/Proton-105/himera-settings/internal/errors"
	"github.com/Proton-105/himera-settings/internal/idempotency"
	"github.com/Proton-105/himera-settings/internal/lifecycle"
	"github.com/Proton-105/himera-settings/internal/middleware"
	"github.com/Proton-105/himera-settings/internal/ratelimit"
	"github.com/Proton-105/himera-settings/internal/session"
	"github.com/Proton-105/himera-settings/internal/settings"
	"github.com/Proton-105/himera-settings/pkg/logger"
)

const (
	RouteFetch      = "/api/settings"
	RouteUpdate     = "/api/settings/update"
	RouteTheme      = "/api/settings/theme"
	RouteEndSession = "/api/session/end"
	RouteLiveness   = "/healthz"
	RouteReadiness  = "/readyz"
	RouteMetrics    = "/metrics"

	IdempotencyKeyHeader = "Idempotency-Key"

	defaultIdempotencyTTL = 24 * time.Hour
)

// Dependencies wires the router. Idempotency, Limiter and Health are optional.
type Dependencies struct {
	Service        *settings.Service
	Sessions       session.Provider
	Errors         *apperrors.Handler
	Idempotency    idempotency.Manager
	IdempotencyTTL time.Duration
	Limiter        ratelimit.Limiter
	LimitRules     *ratelimit.Rules
	Health         lifecycle.HealthChecker
	Log            *slog.Logger
}

// API holds the HTTP handlers of the settings service.
type API struct {
	service  *settings.Service
	sessions session.Provider
	errors   *apperrors.Handler
	idem     idempotency.Manager
	idemTTL  time.Duration
	limit    *middleware.RateLimitMiddleware
	health   lifecycle.HealthChecker
	log      *slog.Logger
}

// NewRouter builds the full handler tree.
func NewRouter(deps Dependencies) http.Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	errHandler := deps.Errors
	if errHandler == nil {
		errHandler = apperrors.NewHandler(log, false)
	}
	ttl := deps.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	api := &API{
		service:  deps.Service,
		sessions: deps.Sessions,
		errors:   errHandler,
		idem:     deps.Idempotency,
		idemTTL:  ttl,
		health:   deps.Health,
		log:      log,
	}
	if deps.Limiter != nil {
		api.limit = middleware.NewRateLimitMiddleware(deps.Limiter, deps.LimitRules, api.writeFailure, log)
	}

	mux := http.NewServeMux()
	mux.Handle(RouteFetch, api.route(RouteFetch, http.MethodGet, api.fetch, false))
	mux.Handle(RouteUpdate, api.route(RouteUpdate, http.MethodPost, api.update, true))
	mux.Handle(RouteTheme, api.route(RouteTheme, http.MethodPost, api.theme, true))
	mux.Handle(RouteEndSession, api.route(RouteEndSession, http.MethodPost, api.endSession, false))
	mux.Handle(RouteLiveness, middleware.Metrics(RouteLiveness)(http.HandlerFunc(api.liveness)))
	mux.Handle(RouteReadiness, middleware.Metrics(RouteReadiness)(http.HandlerFunc(api.readiness)))
	mux.Handle(RouteMetrics, promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.Recovery(errHandler, log, api.internalError)(handler)
	handler = middleware.New(log)(handler)
	handler = logger.Middleware(handler)

	return handler
}

// route applies, in order: session check, method check, optional rate limit.
func (a *API) route(name, method string, h session.HandlerFunc, limited bool) http.Handler {
	next := h
	if limited && a.limit != nil {
		next = a.limit.Handle(next)
	}

	guarded := func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			a.writePlainError(w, r, apperrors.NewMethodNotAllowedError(r.Method))
			return
		}
		next(w, r, sess)
	}

	return middleware.Metrics(name)(session.Require(a.sessions, a.unauthenticated, guarded))
}

func (a *API) unauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	a.log.DebugContext(r.Context(), "request rejected", slog.String("path", r.URL.Path), slog.Any("reason", err))
	a.writePlainError(w, r, apperrors.NewUnauthenticatedError())
}

// writePlainError answers with {"error": msg}.
func (a *API) writePlainError(w http.ResponseWriter, r *http.Request, err error) {
	msg, status := a.errors.Handle(r.Context(), err)
	writeJSON(w, a.log, status, errorResponse{Error: msg})
}

// writeFailure answers with {"success": false, "error": msg}.
func (a *API) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	msg, status := a.errors.Handle(r.Context(), err)
	writeJSON(w, a.log, status, failureResponse{Success: false, Error: msg})
}

func (a *API) internalError(w http.ResponseWriter, _ *http.Request, _ error) {
	writeJSON(w, a.log, http.StatusInternalServerError, failureResponse{Success: false, Error: "Internal error"})
}

func (a *API) liveness(w http.ResponseWriter, r *http.Request) {
	a.healthStatus(w, r, func(ctx context.Context) error {
		if a.health == nil {
			return nil
		}
		return a.health.Liveness(ctx)
	})
}

func (a *API) readiness(w http.ResponseWriter, r *http.Request) {
	a.healthStatus(w, r, func(ctx context.Context) error {
		if a.health == nil {
			return nil
		}
		return a.health.Readiness(ctx)
	})
}

func (a *API) healthStatus(w http.ResponseWriter, r *http.Request, check func(context.Context) error) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := check(ctx); err != nil {
		writeJSON(w, a.log, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, a.log, http.StatusOK, map[string]string{"status": "ok"})
}
