// Package license provides license key issuance, validation, and the
// signed-URL download broker for premium layers.
package license

import (
	"context"
	"errors"
	"time"

	"github.com/layerhub-dev/layerhub/internal/model"
)

var (
	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrLayerNotFound is returned when the requested layer does not exist.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrNoVersions is returned when a layer has no published versions.
	ErrNoVersions = errors.New("no versions available")
	// ErrLicenseRequired is returned when a premium download is requested
	// without a license key.
	ErrLicenseRequired = errors.New("license key required")
	// ErrLicenseDenied is returned when a presented license does not
	// authorize the download; the wrapped message carries the exact reason.
	ErrLicenseDenied = errors.New("license denied")
)

// Validation failure reasons. Each failure mode has its own string so
// callers can present accurate guidance; there is no generic catch-all.
const (
	ReasonKeyNotFound     = "Invalid license key"
	ReasonExpired         = "License has expired"
	ReasonLayerNotCovered = "License does not cover this layer"
	ReasonDomainNotValid  = "License is not valid for this domain"
)

// GenerateRequest describes a license to issue.
type GenerateRequest struct {
	UserID        string
	Email         string
	Plan          string
	Layers        model.LayerScope
	Domains       []string
	ExpiresInDays int
}

// ValidateRequest identifies the license, the layer it should cover, and the
// optional requesting domain.
type ValidateRequest struct {
	LicenseKey string
	LayerID    string
	Domain     string
}

// ValidationResult reports whether a license authorizes a layer. On failure
// Error holds one of the Reason strings (or "License is <status>").
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Plan      string     `json:"plan,omitempty"`
	Features  []string   `json:"features,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	LayerID   string     `json:"layerId,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// DownloadGrant is the broker's answer to a download request. Premium grants
// carry a time-limited signed URL; free grants carry the public tarball URL.
type DownloadGrant struct {
	Premium     bool   `json:"premium"`
	Layer       string `json:"layer"`
	Version     string `json:"version"`
	DownloadURL string `json:"downloadUrl"`
	ExpiresIn   string `json:"expiresIn,omitempty"`
}

// Service defines the license gateway operations.
type Service interface {
	// Generate issues a new license. Admin authorization is checked by the
	// caller; the service only creates the record.
	Generate(ctx context.Context, req GenerateRequest) (*model.License, error)

	// Validate checks a license against a layer and optional domain. It
	// fails closed with a specific reason, and lazily flips an active
	// license to expired the first time it is validated past its expiry.
	Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error)

	// IssueDownload brokers a download of the layer's latest version: free
	// layers get the public URL, premium layers require a covering license
	// and get a one-hour signed URL. Each premium grant appends an audit
	// usage record with the key masked.
	IssueDownload(ctx context.Context, layerID, licenseKey string) (*DownloadGrant, error)
}
