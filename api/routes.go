package api

import (
	"net/http"

	"github.com/labstack/echo/v4/middleware"

	"github.com/adeilh/taskgate/auth"
	"github.com/adeilh/taskgate/httpx"
)

const (
	// AdminRole guards the bucket, statistics and role administration routes.
	AdminRole  = "ADMIN"
	HealthPath = "/healthz"
)

// Routes returns the route registrar for h.
func Routes(h *Handler) httpx.RouteRegistrar {
	return func(a *httpx.App) {
		a.GET(HealthPath, func(c httpx.Context) error { return c.NoContent(httpx.StatusNoContent) })

		a.Group("/user").Routes(
			httpx.Route{Method: "POST", Path: "/new-registration", Handler: h.register},
			httpx.Route{Method: "POST", Path: "/authenticate", Handler: h.authenticate},
			httpx.Route{Method: "POST", Path: "/refresh", Handler: h.refresh},
		)

		v1 := a.Group("/v1", httpx.RequireAuthenticated())
		v1.GET("/me", h.me)
		v1.GET("/ratelimit", h.rateLimit)
		v1.DELETE("/ratelimit/buckets/:key", h.clearBucket, httpx.RequireRole(AdminRole))
		v1.DELETE("/ratelimit/buckets", h.clearAllBuckets, httpx.RequireRole(AdminRole))
		v1.GET("/ratelimit/stats", h.rateLimitStats, httpx.RequireRole(AdminRole))
		v1.PUT("/users/:email/roles", h.updateRoles, httpx.RequireRole(AdminRole))
	}
}

// CORSConfig exposes the Authorization response header so browsers can read
// issued tokens.
func CORSConfig(origins, methods []string) *middleware.CORSConfig {
	cfg := httpx.DefaultCORSConfig
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	}
	if len(methods) > 0 {
		cfg.AllowMethods = methods
	}
	cfg.AllowHeaders = []string{"Authorization", "Content-Type", httpx.RequestIDHeader}
	cfg.ExposeHeaders = []string{"Authorization", "Retry-After", httpx.RequestIDHeader}
	return &cfg
}

// SkipHealth keeps health checks out of the gate and the rate limiter.
func SkipHealth(r *http.Request) bool { return r.URL.Path == HealthPath }

// NewServer builds the HTTP server with the gate in front of every route.
func NewServer(h *Handler, gate *auth.Gate, opts ...httpx.ServerOption) *httpx.Server {
	opts = append(opts, httpx.WithMiddlewares(httpx.GateMiddleware(gate)))
	srv := httpx.NewServer(opts...)
	srv.RegisterRoutes(Routes(h))
	return srv
}
