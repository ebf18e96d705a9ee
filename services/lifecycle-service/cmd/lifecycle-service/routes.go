package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/carecycle/libs/auth"
	"github.com/md-rashed-zaman/carecycle/libs/httpx"
	"github.com/md-rashed-zaman/carecycle/libs/runtime"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/handlers"
)

type routerConfig struct {
	JWTSecret   string
	RateLimit   httpx.Middleware
	Metrics     http.Handler
	ReadyChecks []runtime.ReadyCheck
}

// newRouter serves /healthz, /readyz, /metrics and the authenticated manual
// transition API. Arbitrary overrides are for staff; clients may only cancel.
func newRouter(h *handlers.AppointmentHandler, logger *slog.Logger, cfg routerConfig) http.Handler {
	mux := runtime.NewBaseMuxWithReady(cfg.ReadyChecks...)
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	api := func(next http.HandlerFunc, roles ...string) http.Handler {
		return httpx.Chain(
			auth.RequireAuth(auth.RequireRole(next, roles...), cfg.JWTSecret),
			cfg.RateLimit,
			httpx.WithTimeout(10*time.Second),
			httpx.WithBodyLimit(1<<20),
		)
	}
	mux.Handle("/api/v1/appointments/transition", api(h.Transition, auth.RoleWorker, auth.RoleAdmin))
	mux.Handle("/api/v1/appointments/cancel", api(h.Cancel, auth.RoleClient, auth.RoleWorker, auth.RoleAdmin))

	return httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
}
