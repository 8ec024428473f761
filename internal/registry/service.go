// Package registry provides the business logic for publishing, resolving,
// and listing layers.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/layerhub-dev/layerhub/internal/model"
)

var (
	// ErrLayerNotFound is returned when a layer is not found.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrVersionNotFound is returned when a layer has no matching version.
	ErrVersionNotFound = errors.New("version not found")
	// ErrVersionExists is returned when publishing a version that already exists.
	ErrVersionExists = errors.New("version already exists")
	// ErrInvalidManifest is returned when a publish manifest fails validation.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// Sort fields accepted by List. Unknown fields fall back to downloads.
var allowedSortFields = map[string]bool{
	"downloads": true,
	"stars":     true,
	"updatedAt": true,
	"name":      true,
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	searchFetchSize = 50
	searchMaxResult = 20
	detailVersions  = 10
)

// PublishRequest carries a layer manifest and its tarball.
type PublishRequest struct {
	Manifest  model.Manifest
	Tarball   []byte
	Changelog string
}

// PublishResult is returned on a successful publish.
type PublishResult struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	TarballURL string `json:"tarballUrl"`
}

// VersionInfo is the resolved view of one layer version.
type VersionInfo struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Description  string    `json:"description"`
	TarballURL   string    `json:"tarballUrl"`
	Changelog    string    `json:"changelog,omitempty"`
	Dependencies []string  `json:"dependencies"`
	Official     bool      `json:"official"`
	Premium      bool      `json:"premium"`
	Downloads    int64     `json:"downloads"`
	PublishedAt  time.Time `json:"publishedAt"`
}

// LayerSummary is a layer root record together with its document id.
type LayerSummary struct {
	ID string `json:"id"`
	model.Layer
}

// LayerDetail is a layer root record with its most recent versions.
type LayerDetail struct {
	ID string `json:"id"`
	model.Layer
	Versions []*model.Version `json:"versions"`
}

// ListOptions filters and paginates the layer listing. Query is applied as a
// case-insensitive substring match after the paginated fetch, so a page may
// return fewer than PageSize items when set.
type ListOptions struct {
	Query    string
	Tags     []string
	Official *bool
	Sort     string
	Order    string
	Page     int
	PageSize int
}

// ListResult is one page of the layer listing.
type ListResult struct {
	Layers   []*LayerSummary `json:"layers"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	HasMore  bool            `json:"hasMore"`
}

// Service defines the registry operations.
type Service interface {
	// Publish validates the manifest, stores the tarball, and records the
	// layer root and immutable version documents. Publishing an existing
	// (name, version) pair returns ErrVersionExists.
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)

	// Resolve returns the given version of a layer, or the most recently
	// published version when version is empty.
	Resolve(ctx context.Context, name, version string) (*VersionInfo, error)

	// Get returns a layer with its recent versions.
	Get(ctx context.Context, name string) (*LayerDetail, error)

	// List returns a filtered, sorted, paginated view of the registry.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Search returns layers matching a free-text query.
	Search(ctx context.Context, query string) ([]*LayerSummary, error)

	// TrackDownload increments a layer's download counter. Failures are
	// logged and swallowed; accounting never blocks distribution.
	TrackDownload(ctx context.Context, name string)
}
