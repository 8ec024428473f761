package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/layerhub-dev/layerhub/internal/blobstore"
	"github.com/layerhub-dev/layerhub/internal/docstore"
	"github.com/layerhub-dev/layerhub/internal/logger"
	"github.com/layerhub-dev/layerhub/internal/model"
)

// Collection names in the document store.
const (
	CollectionLayers   = "layers"
	CollectionVersions = "versions"
)

// VersionDocID builds the document id of a version record from the sanitized
// layer id and the version string.
func VersionDocID(layerID, version string) string {
	return layerID + "@" + version
}

// TarballPath is the deterministic blob path for a published tarball.
func TarballPath(layerID, version string) string {
	return fmt.Sprintf("layers/%s/%s.tgz", layerID, version)
}

type service struct {
	store docstore.Store
	blobs blobstore.Store
	now   func() time.Time
}

var _ Service = (*service)(nil)

// New creates the registry service over the given document and object stores.
func New(store docstore.Store, blobs blobstore.Store) Service {
	return &service{
		store: store,
		blobs: blobs,
		now:   time.Now,
	}
}

// Publish implements Service. The existence check and the batch write race
// for concurrent publishes of the same (name, version); the window is
// accepted because publishes are operator-driven and low-frequency.
func (s *service) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	m := req.Manifest
	if m.Name == "" || m.Version == "" {
		return nil, fmt.Errorf("%w: name and version are required", ErrInvalidManifest)
	}
	if err := model.ValidateLayerName(m.Name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, err)
	}
	if len(req.Tarball) == 0 {
		return nil, fmt.Errorf("%w: tarball is required", ErrInvalidManifest)
	}

	layerID := model.SanitizeLayerName(m.Name)
	versionID := VersionDocID(layerID, m.Version)
	versions := s.store.Collection(CollectionVersions)

	var existing model.Version
	err := versions.Get(ctx, versionID, &existing)
	if err == nil {
		return nil, fmt.Errorf("%w: version %s already exists for %s", ErrVersionExists, m.Version, m.Name)
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing version: %w", err)
	}

	// Store the artifact before the metadata so a failed upload never leaves
	// a version record pointing at nothing.
	path := TarballPath(layerID, m.Version)
	if err := s.blobs.Put(ctx, path, bytes.NewReader(req.Tarball), "application/gzip"); err != nil {
		return nil, fmt.Errorf("failed to upload tarball: %w", err)
	}
	if err := s.blobs.MakePublic(ctx, path); err != nil {
		return nil, fmt.Errorf("failed to publish tarball: %w", err)
	}
	tarballURL := s.blobs.PublicURL(path)

	checksum := sha256.Sum256(req.Tarball)
	now := s.now().UTC()

	versionDoc := model.Version{
		Layer:        layerID,
		Version:      m.Version,
		TarballURL:   tarballURL,
		Changelog:    req.Changelog,
		Size:         int64(len(req.Tarball)),
		Checksum:     hex.EncodeToString(checksum[:]),
		Dependencies: m.Dependencies,
		PublishedAt:  now,
	}

	writes := []docstore.Write{
		{Collection: CollectionVersions, ID: versionID, Doc: versionDoc},
	}

	var layer model.Layer
	err = s.store.Collection(CollectionLayers).Get(ctx, layerID, &layer)
	switch {
	case err == nil:
		writes = append(writes, docstore.Write{
			Collection: CollectionLayers,
			ID:         layerID,
			Fields: map[string]any{
				"version":   m.Version,
				"updatedAt": now,
			},
		})
	case errors.Is(err, docstore.ErrNotFound):
		writes = append(writes, docstore.Write{
			Collection: CollectionLayers,
			ID:         layerID,
			Doc: model.Layer{
				Name:         m.Name,
				Version:      m.Version,
				Description:  m.Description,
				Tags:         orEmpty(m.Tags),
				Dependencies: orEmpty(m.Dependencies),
				Official:     false,
				Premium:      m.Premium,
				Downloads:    0,
				Author:       model.Author{ID: "anonymous", Name: "Anonymous"},
				PublishedAt:  now,
				UpdatedAt:    now,
			},
		})
	default:
		return nil, fmt.Errorf("failed to read layer: %w", err)
	}

	if err := s.store.RunBatch(ctx, writes); err != nil {
		return nil, fmt.Errorf("failed to write layer metadata: %w", err)
	}

	return &PublishResult{Name: m.Name, Version: m.Version, TarballURL: tarballURL}, nil
}

// Resolve implements Service.
func (s *service) Resolve(ctx context.Context, name, version string) (*VersionInfo, error) {
	layerID := model.SanitizeLayerName(name)

	var layer model.Layer
	if err := s.store.Collection(CollectionLayers).Get(ctx, layerID, &layer); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
		}
		return nil, fmt.Errorf("failed to read layer: %w", err)
	}

	var versionDoc model.Version
	if version == "" {
		latest, err := s.latestVersion(ctx, layerID)
		if err != nil {
			return nil, err
		}
		versionDoc = *latest
	} else {
		err := s.store.Collection(CollectionVersions).Get(ctx, VersionDocID(layerID, version), &versionDoc)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s@%s", ErrVersionNotFound, name, version)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read version: %w", err)
		}
	}

	deps := versionDoc.Dependencies
	if deps == nil {
		deps = layer.Dependencies
	}

	return &VersionInfo{
		Name:         layer.Name,
		Version:      versionDoc.Version,
		Description:  layer.Description,
		TarballURL:   versionDoc.TarballURL,
		Changelog:    versionDoc.Changelog,
		Dependencies: orEmpty(deps),
		Official:     layer.Official,
		Premium:      layer.Premium,
		Downloads:    layer.Downloads,
		PublishedAt:  versionDoc.PublishedAt,
	}, nil
}

// Get implements Service.
func (s *service) Get(ctx context.Context, name string) (*LayerDetail, error) {
	layerID := model.SanitizeLayerName(name)

	var layer model.Layer
	if err := s.store.Collection(CollectionLayers).Get(ctx, layerID, &layer); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
		}
		return nil, fmt.Errorf("failed to read layer: %w", err)
	}

	docs, err := s.store.Collection(CollectionVersions).Find(ctx, docstore.Query{
		Filters:    []docstore.Filter{docstore.Eq("layer", layerID)},
		OrderBy:    "publishedAt",
		Descending: true,
		Limit:      detailVersions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	detail := &LayerDetail{
		ID:       layerID,
		Layer:    layer,
		Versions: make([]*model.Version, 0, len(docs)),
	}
	for _, doc := range docs {
		var v model.Version
		if err := doc.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to decode version %s: %w", doc.ID, err)
		}
		detail.Versions = append(detail.Versions, &v)
	}
	return detail, nil
}

// List implements Service.
func (s *service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	sortField := opts.Sort
	if !allowedSortFields[sortField] {
		sortField = "downloads"
	}
	descending := opts.Order != "asc"

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize

	q := docstore.Query{
		OrderBy:    sortField,
		Descending: descending,
		Offset:     offset,
		Limit:      pageSize,
	}
	if opts.Official != nil {
		q.Filters = append(q.Filters, docstore.Eq("official", *opts.Official))
	}
	if len(opts.Tags) > 0 {
		q.Filters = append(q.Filters, docstore.AnyOf("tags", opts.Tags...))
	}

	layers := s.store.Collection(CollectionLayers)
	docs, err := layers.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list layers: %w", err)
	}

	summaries := make([]*LayerSummary, 0, len(docs))
	for _, doc := range docs {
		summary := &LayerSummary{ID: doc.ID}
		if err := doc.Decode(&summary.Layer); err != nil {
			return nil, fmt.Errorf("failed to decode layer %s: %w", doc.ID, err)
		}
		summaries = append(summaries, summary)
	}

	// The free-text query filters the already-fetched page, so a page may
	// come back short. Documented behavior, not a bug to silently fix.
	if opts.Query != "" {
		summaries = filterByQuery(summaries, opts.Query, false)
	}

	total, err := layers.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count layers: %w", err)
	}

	return &ListResult{
		Layers:   summaries,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  int64(offset+len(summaries)) < total,
	}, nil
}

// Search implements Service. It fetches the most downloaded layers and
// filters them by substring, capped at a fixed result size.
func (s *service) Search(ctx context.Context, query string) ([]*LayerSummary, error) {
	if len(query) < 2 {
		return []*LayerSummary{}, nil
	}

	docs, err := s.store.Collection(CollectionLayers).Find(ctx, docstore.Query{
		OrderBy:    "downloads",
		Descending: true,
		Limit:      searchFetchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	summaries := make([]*LayerSummary, 0, len(docs))
	for _, doc := range docs {
		summary := &LayerSummary{ID: doc.ID}
		if err := doc.Decode(&summary.Layer); err != nil {
			return nil, fmt.Errorf("failed to decode layer %s: %w", doc.ID, err)
		}
		summaries = append(summaries, summary)
	}

	matched := filterByQuery(summaries, query, true)
	if len(matched) > searchMaxResult {
		matched = matched[:searchMaxResult]
	}
	return matched, nil
}

// TrackDownload implements Service.
func (s *service) TrackDownload(ctx context.Context, name string) {
	layerID := model.SanitizeLayerName(name)
	err := s.store.Collection(CollectionLayers).Increment(ctx, layerID, "downloads", 1)
	if err != nil {
		logger.Warnf("Failed to track download for %s: %v", name, err)
	}
}

func (s *service) latestVersion(ctx context.Context, layerID string) (*model.Version, error) {
	docs, err := s.store.Collection(CollectionVersions).Find(ctx, docstore.Query{
		Filters:    []docstore.Filter{docstore.Eq("layer", layerID)},
		OrderBy:    "publishedAt",
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s has no versions", ErrVersionNotFound, layerID)
	}
	var v model.Version
	if err := docs[0].Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode version %s: %w", docs[0].ID, err)
	}
	return &v, nil
}

// filterByQuery keeps summaries whose id, name, or description contains the
// query, case-insensitively. When includeTags is set, tag matches count too.
func filterByQuery(summaries []*LayerSummary, query string, includeTags bool) []*LayerSummary {
	needle := strings.ToLower(query)
	matched := make([]*LayerSummary, 0, len(summaries))
	for _, s := range summaries {
		if strings.Contains(strings.ToLower(s.ID), needle) ||
			strings.Contains(strings.ToLower(s.Name), needle) ||
			strings.Contains(strings.ToLower(s.Description), needle) ||
			(includeTags && tagMatches(s.Tags, needle)) {
			matched = append(matched, s)
		}
	}
	return matched
}

func tagMatches(tags []string, needle string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
