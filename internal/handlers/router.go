package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Piyushhbhutoria/memory-wall/internal/platform/httpx"
)

// RouteRegistrar adds one surface of the API to a router group.
type RouteRegistrar func(r chi.Router)

type middlewareChain []func(http.Handler) http.Handler

func (c middlewareChain) applyTo(r chi.Router) {
	for _, mw := range c {
		if mw != nil {
			r.Use(mw)
		}
	}
}

// surface is one mounted route group: visitors, wall hosts, or scheduler callbacks.
type surface struct {
	name     string
	register RouteRegistrar
	chain    middlewareChain
	// guarded surfaces stay unavailable until at least one middleware is configured.
	guarded bool
}

type routerConfig struct {
	global  middlewareChain
	health  *HealthHandlers
	metrics http.Handler

	public, host, internal surface
}

// Option customises the router.
type Option func(*routerConfig)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

// NewRouter mounts probes and /metrics at the root and the three API surfaces under /api/v1:
// public visitor routes at the prefix itself, /host and /internal below it. A surface without a
// registrar answers 503 so a partially wired deployment fails loudly instead of 404ing. The
// internal surface also answers 503 until it has authentication middleware.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		global:   middlewareChain{middleware.RequestID, middleware.RealIP, middleware.CleanPath, middleware.Timeout(requestTimeout)},
		public:   surface{name: "public"},
		host:     surface{name: "host"},
		internal: surface{name: "internal", guarded: true},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	cfg.global.applyTo(r)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(apiPrefix, func(api chi.Router) {
		api.Group(cfg.public.mount)
		api.Route("/host", cfg.host.mount)
		api.Route("/internal", cfg.internal.mount)
	})
	return r
}

func (s surface) mount(r chi.Router) {
	s.chain.applyTo(r)
	message := s.name + " routes are not configured"
	switch {
	case s.register == nil:
	case s.guarded && len(s.chain) == 0:
		message = s.name + " routes require authentication middleware"
	default:
		s.register(r)
		return
	}
	unavailable := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("surface_unavailable", message, http.StatusServiceUnavailable))
	}
	if s.name == "public" {
		r.HandleFunc("/walls/*", unavailable)
		return
	}
	r.HandleFunc("/", unavailable)
	r.HandleFunc("/*", unavailable)
}

// WithMiddlewares appends global middleware, applied before routing.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.global = append(cfg.global, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) { cfg.metrics = h }
}

func WithPublicRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.public.register = reg }
}

func WithHostRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.host.register = reg }
}

// WithWriteMiddlewares guards both the public and host surfaces, typically with the per-IP
// throttle.
func WithWriteMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.public.chain = append(cfg.public.chain, mw...)
		cfg.host.chain = append(cfg.host.chain, mw...)
	}
}

func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.internal.register = reg }
}

// WithInternalMiddlewares guards the scheduler surface, typically with OIDC verification.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.internal.chain = append(cfg.internal.chain, mw...) }
}
