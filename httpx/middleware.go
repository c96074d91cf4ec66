package httpx

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adeilh/taskgate/auth"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestLoggerMiddleware attaches a request-scoped zerolog logger to the
// request context and logs one line per handled request.
func RequestLoggerMiddleware(base zerolog.Logger) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			start := time.Now()
			req := c.Request()

			id := req.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(RequestIDHeader, id)

			l := base.With().
				Str("request_id", id).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote", c.RealIP()).
				Logger()
			c.SetRequest(req.WithContext(l.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			ev := l.Info()
			if status >= http.StatusInternalServerError {
				ev = l.Error()
			}
			ev.Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("request handled")
			return nil
		}
	}
}

// GateMiddleware runs the authentication gate in front of echo handlers.
func GateMiddleware(gate *auth.Gate) MiddlewareFunc {
	if gate == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusInternalError, "authentication gate missing")
			}
		}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			var nextErr error
			downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				nextErr = next(c)
			})
			gate.Handler(downstream).ServeHTTP(c.Response(), c.Request())
			return nextErr
		}
	}
}

// RequireAuthenticated rejects requests the gate left anonymous.
func RequireAuthenticated() MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			if _, ok := auth.SecurityContextFrom(c.Request().Context()); !ok {
				return HTTPError(StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}

// RequireRole rejects requests whose security context lacks role.
func RequireRole(role string) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			sc, ok := auth.SecurityContextFrom(c.Request().Context())
			if !ok {
				return HTTPError(StatusUnauthorized, "authentication required")
			}
			if !sc.HasRole(role) {
				return HTTPError(StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}
