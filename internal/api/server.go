// Package api provides the REST API server for the layer registry.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	v0 "github.com/layerhub-dev/layerhub/internal/api/v0"
	"github.com/layerhub-dev/layerhub/internal/license"
	"github.com/layerhub-dev/layerhub/internal/logger"
	"github.com/layerhub-dev/layerhub/internal/registry"
)

// ServerOption configures the registry API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	allowedOrigins []string
	adminKey       string
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithCORS sets the origins allowed to call the API from a browser.
func WithCORS(origins []string) ServerOption {
	return func(cfg *serverConfig) {
		cfg.allowedOrigins = origins
	}
}

// WithAdminKey sets the key that authorizes license issuance.
func WithAdminKey(key string) ServerOption {
	return func(cfg *serverConfig) {
		cfg.adminKey = key
	}
}

// NewServer creates and configures the HTTP router with the given services
// and options.
func NewServer(reg registry.Service, lic license.Service, blobs BlobServer, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	if len(cfg.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Key"},
			MaxAge:         300,
		}))
	}
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	// Health and version endpoints at root
	r.Mount("/", v0.HealthRouter())

	// Registry and license API
	r.Mount("/api", v0.Router(reg, lic, cfg.adminKey))

	// Tarball serving: public blobs directly, private blobs behind a
	// signature check
	r.Get("/artifacts/*", artifactHandler(blobs))

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debugf("HTTP %s %s %d %s %s",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			middleware.GetReqID(r.Context()),
		)
	})
}
