// Package http wires the broker's handlers onto a mux. One Router type
// serves both processes: the issuer wiring sets TokenService, the
// checker wiring sets ScoreService, and the system endpoints are always
// registered.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/crediflow/scoregate/internal/gate/metrics"
	"github.com/crediflow/scoregate/internal/gate/service"
	"github.com/crediflow/scoregate/pkg/httpx"
	"github.com/crediflow/scoregate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	TokenService *service.Issuer
	ScoreService *service.Checker

	// ReadyCheck probes mode-specific dependencies for /readyz, e.g. the
	// redis ledger. Nil means no external dependencies to probe.
	ReadyCheck func(ctx context.Context) error
}

func NewRouter(buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	if r.TokenService != nil {
		r.registerTokens()
	}
	if r.ScoreService != nil {
		r.registerScore()
	}
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerTokens() {
	h := &TokenHandler{TokenService: r.TokenService}

	// POST /tokens is the public issuance endpoint; the flood limit is
	// the only hard gate in front of it.
	r.Mux.Handle("POST /v1/tokens",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.FloodLimit),
		),
	)
}

func (r *Router) registerScore() {
	h := &ScoreHandler{ScoreService: r.ScoreService}

	r.Mux.Handle("POST /v1/score",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.FloodLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.ReadyCheck))
	r.Mux.Handle("GET /metrics", metrics.Handler())
}
