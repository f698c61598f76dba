// Package httptransport assembles the module handlers behind the shared
// middleware chain.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"correspondence/pkg/domain"
	"correspondence/pkg/platform/httputil"
	authmw "correspondence/pkg/platform/middleware/auth"
	"correspondence/pkg/platform/middleware/metadata"
	"correspondence/pkg/platform/middleware/request"
	"correspondence/pkg/platform/middleware/requesttime"
)

// Module mounts its routes on a router group. Public routes need no token;
// Protected routes need any authenticated caller; Admin routes are limited
// to the secretary.
type Module interface {
	Register(r chi.Router)
}

type PublicModule interface {
	RegisterPublic(r chi.Router)
}

type AdminModule interface {
	RegisterAdmin(r chi.Router)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration

	Tokens      authmw.TokenValidator
	Revocations authmw.TokenRevocationChecker
	Principals  authmw.PrincipalLoader

	Latency request.LatencyObserver
	Metrics http.Handler
	Health  map[string]HealthCheck

	Modules []any
}

// NewRouter builds the API. Every module in cfg.Modules is mounted on each
// group whose registration interface it implements.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(request.LatencyMiddleware(cfg.Latency))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if cfg.RequestTimeout > 0 {
		r.Use(request.Timeout(cfg.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "not_found", ErrorDescription: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, httputil.ErrorResponse{Error: "method_not_allowed", ErrorDescription: "method not allowed"})
	})

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	for _, m := range cfg.Modules {
		if p, ok := m.(PublicModule); ok {
			p.RegisterPublic(r)
		}
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(cfg.Tokens, cfg.Revocations, cfg.Principals, logger))
		for _, m := range cfg.Modules {
			if p, ok := m.(Module); ok {
				p.Register(r)
			}
		}

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(logger, domain.RoleSecretary))
			for _, m := range cfg.Modules {
				if p, ok := m.(AdminModule); ok {
					p.RegisterAdmin(r)
				}
			}
		})
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
