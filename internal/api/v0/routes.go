// Package v0 provides the REST API handlers for the layer registry and the
// license gateway.
package v0

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/layerhub-dev/layerhub/internal/api/common"
	"github.com/layerhub-dev/layerhub/internal/license"
	"github.com/layerhub-dev/layerhub/internal/logger"
	"github.com/layerhub-dev/layerhub/internal/registry"
	"github.com/layerhub-dev/layerhub/internal/versions"
)

// Routes defines the routes for the registry API with dependency injection.
type Routes struct {
	registry registry.Service
	licenses license.Service
	adminKey string
}

// NewRoutes creates a new Routes instance with the provided services.
// adminKey guards license issuance; an empty key disables the endpoint.
func NewRoutes(reg registry.Service, lic license.Service, adminKey string) *Routes {
	return &Routes{
		registry: reg,
		licenses: lic,
		adminKey: adminKey,
	}
}

// Router creates a new router for the registry and license endpoints.
func Router(reg registry.Service, lic license.Service, adminKey string) http.Handler {
	routes := NewRoutes(reg, lic, adminKey)

	r := chi.NewRouter()

	r.Route("/layers", func(r chi.Router) {
		r.Post("/", routes.publishLayer)
		r.Get("/", routes.listLayers)
		r.Get("/search", routes.searchLayers)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", routes.getLayer)
			r.Get("/latest", routes.getLatestVersion)
			r.Get("/versions/{version}", routes.getVersion)
			r.Post("/download", routes.downloadLayer)
			r.Post("/track", routes.trackDownload)
		})
	})

	r.Route("/license", func(r chi.Router) {
		r.Post("/generate", routes.generateLicense)
		r.Post("/validate", routes.validateLicense)
	})

	return r
}

// HealthRouter creates a router for health check endpoints.
func HealthRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// versionHandler handles version information requests.
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteSuccess(w, versions.GetVersionInfo())
}

// writeServiceError maps service errors onto HTTP statuses. Unrecognized
// errors become a generic 500 with the cause logged server-side only.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, registry.ErrInvalidManifest),
		errors.Is(err, license.ErrInvalidRequest):
		common.WriteError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, registry.ErrLayerNotFound),
		errors.Is(err, registry.ErrVersionNotFound),
		errors.Is(err, license.ErrLayerNotFound),
		errors.Is(err, license.ErrNoVersions):
		common.WriteError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, registry.ErrVersionExists):
		common.WriteError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, license.ErrLicenseRequired):
		common.WriteError(w,
			"License key required for premium layers. Get one at https://layerhub.dev/pricing",
			http.StatusUnauthorized)
	case errors.Is(err, license.ErrLicenseDenied):
		common.WriteError(w, err.Error(), http.StatusForbidden)
	default:
		logger.Errorf("%s: %v", fallback, err)
		common.WriteError(w, fallback, http.StatusInternalServerError)
	}
}
