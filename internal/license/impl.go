package license

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/layerhub-dev/layerhub/internal/blobstore"
	"github.com/layerhub-dev/layerhub/internal/docstore"
	"github.com/layerhub-dev/layerhub/internal/logger"
	"github.com/layerhub-dev/layerhub/internal/model"
	"github.com/layerhub-dev/layerhub/internal/registry"
)

// Collection names in the document store.
const (
	CollectionLicenses = "licenses"
	CollectionUsage    = "license_usage"
)

const (
	keyPrefix = "NL"

	// maxKeyAttempts bounds the uniqueness retry on key generation. With
	// 48 bits of randomness a collision after five attempts is rare enough
	// to accept the last key rather than loop forever.
	maxKeyAttempts = 5

	defaultExpiryDays = 365
	signedURLTTL      = time.Hour
)

type service struct {
	store docstore.Store
	blobs blobstore.Store
	now   func() time.Time
}

var _ Service = (*service)(nil)

// New creates the license gateway over the given document and object stores.
func New(store docstore.Store, blobs blobstore.Store) Service {
	return &service{
		store: store,
		blobs: blobs,
		now:   time.Now,
	}
}

// Generate implements Service.
func (s *service) Generate(ctx context.Context, req GenerateRequest) (*model.License, error) {
	if req.UserID == "" || req.Email == "" || req.Plan == "" {
		return nil, fmt.Errorf("%w: userId, email, and plan are required", ErrInvalidRequest)
	}

	licenses := s.store.Collection(CollectionLicenses)

	key, err := s.uniqueKey(ctx, licenses)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	days := req.ExpiresInDays
	if days <= 0 {
		days = defaultExpiryDays
	}

	scope := req.Layers
	if !scope.All && len(scope.Layers) == 0 {
		scope = model.AllLayers()
	}

	lic := model.License{
		Key:       key,
		UserID:    req.UserID,
		Email:     req.Email,
		Plan:      req.Plan,
		Layers:    scope,
		Domains:   req.Domains,
		Features:  model.PlanFeatures(req.Plan),
		Status:    model.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.AddDate(0, 0, days),
	}

	id, err := licenses.Insert(ctx, lic)
	if err != nil {
		return nil, fmt.Errorf("failed to store license: %w", err)
	}
	lic.ID = id
	return &lic, nil
}

// Validate implements Service.
func (s *service) Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error) {
	if req.LicenseKey == "" {
		return nil, fmt.Errorf("%w: license key is required", ErrInvalidRequest)
	}
	if req.LayerID == "" {
		return nil, fmt.Errorf("%w: layer id is required", ErrInvalidRequest)
	}

	lic, err := s.findByKey(ctx, req.LicenseKey)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		return &ValidationResult{Valid: false, Error: ReasonKeyNotFound}, nil
	}

	// An already-expired or revoked record reports its status without
	// re-evaluating expiry, so the lazy flip below writes at most once.
	if lic.Status != model.StatusActive {
		return &ValidationResult{Valid: false, Error: "License is " + lic.Status}, nil
	}

	if !lic.ExpiresAt.IsZero() && lic.ExpiresAt.Before(s.now()) {
		err := s.store.Collection(CollectionLicenses).Update(ctx, lic.ID, map[string]any{
			"status": model.StatusExpired,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to expire license: %w", err)
		}
		return &ValidationResult{Valid: false, Error: ReasonExpired}, nil
	}

	if !lic.Layers.Covers(req.LayerID) {
		return &ValidationResult{Valid: false, Error: ReasonLayerNotCovered}, nil
	}

	if req.Domain != "" && !model.DomainAllowed(req.Domain, lic.Domains) {
		return &ValidationResult{Valid: false, Error: ReasonDomainNotValid}, nil
	}

	expiresAt := lic.ExpiresAt
	return &ValidationResult{
		Valid:     true,
		Plan:      lic.Plan,
		Features:  lic.Features,
		ExpiresAt: &expiresAt,
		LayerID:   req.LayerID,
	}, nil
}

// IssueDownload implements Service.
func (s *service) IssueDownload(ctx context.Context, layerID, licenseKey string) (*DownloadGrant, error) {
	sanitized := model.SanitizeLayerName(layerID)

	var layer model.Layer
	err := s.store.Collection(registry.CollectionLayers).Get(ctx, sanitized, &layer)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read layer: %w", err)
	}

	latest, err := s.latestVersion(ctx, sanitized)
	if err != nil {
		return nil, err
	}

	if !layer.Premium {
		s.trackDownload(ctx, sanitized)
		return &DownloadGrant{
			Premium:     false,
			Layer:       layerID,
			Version:     latest.Version,
			DownloadURL: latest.TarballURL,
		}, nil
	}

	if licenseKey == "" {
		return nil, ErrLicenseRequired
	}

	result, err := s.Validate(ctx, ValidateRequest{LicenseKey: licenseKey, LayerID: layerID})
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrLicenseDenied, result.Error)
	}

	signedURL, err := s.blobs.SignedURL(registry.TarballPath(sanitized, latest.Version), signedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign download URL: %w", err)
	}

	s.trackDownload(ctx, sanitized)

	lic, err := s.findByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		// The license passed validation but was deleted in the meantime.
		return nil, fmt.Errorf("%w: %s", ErrLicenseDenied, ReasonKeyNotFound)
	}
	usage := model.LicenseUsage{
		LicenseID:  lic.ID,
		LicenseKey: model.MaskKey(licenseKey),
		LayerID:    layerID,
		Action:     model.ActionDownload,
		Timestamp:  s.now().UTC(),
	}
	if _, err := s.store.Collection(CollectionUsage).Insert(ctx, usage); err != nil {
		return nil, fmt.Errorf("failed to record license usage: %w", err)
	}

	return &DownloadGrant{
		Premium:     true,
		Layer:       layerID,
		Version:     latest.Version,
		DownloadURL: signedURL,
		ExpiresIn:   "1 hour",
	}, nil
}

// uniqueKey generates a license key, retrying on collision up to the bound.
func (s *service) uniqueKey(ctx context.Context, licenses docstore.Collection) (string, error) {
	var key string
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key = generateKey()
		docs, err := licenses.Find(ctx, docstore.Query{
			Filters: []docstore.Filter{docstore.Eq("key", key)},
			Limit:   1,
		})
		if err != nil {
			return "", fmt.Errorf("failed to check key uniqueness: %w", err)
		}
		if len(docs) == 0 {
			return key, nil
		}
	}
	logger.Warnf("License key uniqueness not confirmed after %d attempts, using last candidate", maxKeyAttempts)
	return key, nil
}

// generateKey builds a key of the form NL-XXXX-XXXX-XXXX from three random
// 4-hex-digit segments.
func generateKey() string {
	segment := func() string {
		b := make([]byte, 2)
		_, _ = rand.Read(b)
		return strings.ToUpper(hex.EncodeToString(b))
	}
	return fmt.Sprintf("%s-%s-%s-%s", keyPrefix, segment(), segment(), segment())
}

// findByKey returns the license with the given key, or nil when none exists.
// If duplicates exist the first result wins.
func (s *service) findByKey(ctx context.Context, key string) (*model.License, error) {
	docs, err := s.store.Collection(CollectionLicenses).Find(ctx, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("key", key)},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up license: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var lic model.License
	if err := docs[0].Decode(&lic); err != nil {
		return nil, fmt.Errorf("failed to decode license %s: %w", docs[0].ID, err)
	}
	lic.ID = docs[0].ID
	return &lic, nil
}

func (s *service) latestVersion(ctx context.Context, layerID string) (*model.Version, error) {
	docs, err := s.store.Collection(registry.CollectionVersions).Find(ctx, docstore.Query{
		Filters:    []docstore.Filter{docstore.Eq("layer", layerID)},
		OrderBy:    "publishedAt",
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVersions, layerID)
	}
	var v model.Version
	if err := docs[0].Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode version %s: %w", docs[0].ID, err)
	}
	return &v, nil
}

// trackDownload is best-effort; accounting never blocks distribution.
func (s *service) trackDownload(ctx context.Context, layerID string) {
	if err := s.store.Collection(registry.CollectionLayers).Increment(ctx, layerID, "downloads", 1); err != nil {
		logger.Warnf("Failed to track download for %s: %v", layerID, err)
	}
}
