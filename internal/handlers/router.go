package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/plateful/api/internal/platform/httpx"
)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// RouteRegistrar mounts a set of endpoints on the given router group.
type RouteRegistrar func(r chi.Router)

// routeGroup pairs a mount path with its registrar and group middleware.
type routeGroup struct {
	path        string
	name        string
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	orders     RouteRegistrar
	groupCarts RouteRegistrar
	payments   RouteRegistrar
	admin      RouteRegistrar
	webhooks   RouteRegistrar

	adminMiddlewares   []func(http.Handler) http.Handler
	webhookMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router before construction.
type Option func(*routerConfig)

// NewRouter assembles the HTTP surface: health probes at the root, the
// versioned API groups under the base path, and JSON errors for unmatched
// routes. Groups without a registrar answer 501 so a partial deployment
// fails loudly instead of 404ing.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(writeRouteError(errorNotFoundCode, http.StatusNotFound, func(req *http.Request) string {
		return fmt.Sprintf("no route for %s", req.URL.Path)
	}))
	r.MethodNotAllowed(writeRouteError("method_not_allowed", http.StatusMethodNotAllowed, func(req *http.Request) string {
		return fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path)
	}))

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	groups := []routeGroup{
		{path: "/orders", name: "orders", registrar: cfg.orders},
		{path: "/group-carts", name: "groupCarts", registrar: cfg.groupCarts},
		{path: "/payments", name: "payments", registrar: cfg.payments},
		{path: "/admin", name: "admin", registrar: cfg.admin, middlewares: cfg.adminMiddlewares},
		{path: "/webhooks", name: "webhooks", registrar: cfg.webhooks, middlewares: cfg.webhookMiddlewares},
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, group := range groups {
			group := group
			api.Route(group.path, func(gr chi.Router) {
				for _, mw := range group.middlewares {
					if mw != nil {
						gr.Use(mw)
					}
				}
				if group.registrar != nil {
					group.registrar(gr)
					return
				}
				mountNotImplemented(gr, group.name)
			})
		}
	})

	return r
}

// WithMiddlewares appends global middleware.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithOrderRoutes sets the registrar for order endpoints.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = reg
	}
}

// WithGroupCartRoutes sets the registrar for shared cart endpoints.
func WithGroupCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groupCarts = reg
	}
}

// WithPaymentRoutes sets the registrar for payment endpoints.
func WithPaymentRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.payments = reg
	}
}

// WithAdminRoutes sets the registrar for admin endpoints.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin = reg
	}
}

// WithAdminMiddlewares adds middleware to the /admin group.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.adminMiddlewares = append(cfg.adminMiddlewares, mw...)
	}
}

// WithWebhookRoutes sets the registrar for webhook endpoints.
func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks = reg
	}
}

// WithWebhookMiddlewares adds middleware to the /webhooks group.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.webhookMiddlewares = append(cfg.webhookMiddlewares, mw...)
	}
}

func writeRouteError(code string, status int, message func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(code, message(req), status))
	}
}

func mountNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
