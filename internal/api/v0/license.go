package v0

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/layerhub-dev/layerhub/internal/api/common"
	"github.com/layerhub-dev/layerhub/internal/license"
	"github.com/layerhub-dev/layerhub/internal/model"
)

// generatePayload is the request body for license issuance.
type generatePayload struct {
	UserID        string           `json:"userId"`
	Email         string           `json:"email"`
	Plan          string           `json:"plan"`
	Layers        model.LayerScope `json:"layers,omitempty"`
	Domains       []string         `json:"domains,omitempty"`
	ExpiresInDays int              `json:"expiresInDays,omitempty"`
}

// generateLicense handles POST /license/generate. The endpoint is gated by
// the X-Admin-Key header; with no admin key configured it is disabled.
func (s *Routes) generateLicense(w http.ResponseWriter, r *http.Request) {
	if s.adminKey == "" ||
		subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Admin-Key")), []byte(s.adminKey)) != 1 {
		common.WriteError(w, "Admin access required", http.StatusForbidden)
		return
	}

	var payload generatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.WriteError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	lic, err := s.licenses.Generate(r.Context(), license.GenerateRequest{
		UserID:        payload.UserID,
		Email:         payload.Email,
		Plan:          payload.Plan,
		Layers:        payload.Layers,
		Domains:       payload.Domains,
		ExpiresInDays: payload.ExpiresInDays,
	})
	if err != nil {
		writeServiceError(w, err, "Failed to generate license")
		return
	}

	common.WriteSuccessStatus(w, lic, http.StatusCreated)
}

// validatePayload is the request body for license validation.
type validatePayload struct {
	LicenseKey string `json:"licenseKey"`
	LayerID    string `json:"layerId"`
	Domain     string `json:"domain,omitempty"`
}

// validateLicense handles POST /license/validate. Validation failures are
// reported inside a 200 response; the result's error field carries the
// specific reason.
func (s *Routes) validateLicense(w http.ResponseWriter, r *http.Request) {
	var payload validatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.WriteError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.licenses.Validate(r.Context(), license.ValidateRequest{
		LicenseKey: payload.LicenseKey,
		LayerID:    payload.LayerID,
		Domain:     payload.Domain,
	})
	if err != nil {
		writeServiceError(w, err, "Failed to validate license")
		return
	}

	common.WriteSuccess(w, result)
}
