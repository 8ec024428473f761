package v0

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/layerhub-dev/layerhub/internal/api/common"
	"github.com/layerhub-dev/layerhub/internal/model"
	"github.com/layerhub-dev/layerhub/internal/registry"
)

// publishPayload is the request body for publishing a layer version. The
// tarball travels base64-encoded inside the JSON document.
type publishPayload struct {
	Manifest  model.Manifest `json:"manifest"`
	Tarball   []byte         `json:"tarball"`
	Changelog string         `json:"changelog,omitempty"`
}

// publishLayer handles POST /layers.
func (s *Routes) publishLayer(w http.ResponseWriter, r *http.Request) {
	var payload publishPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.WriteError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(payload.Tarball) == 0 {
		common.WriteError(w, "Tarball is required", http.StatusBadRequest)
		return
	}

	result, err := s.registry.Publish(r.Context(), registry.PublishRequest{
		Manifest:  payload.Manifest,
		Tarball:   payload.Tarball,
		Changelog: payload.Changelog,
	})
	if err != nil {
		writeServiceError(w, err, "Failed to publish layer")
		return
	}

	common.WriteSuccessStatus(w, result, http.StatusCreated)
}

// listLayers handles GET /layers with filter, sort, and pagination query
// parameters.
func (s *Routes) listLayers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := registry.ListOptions{
		Query: q.Get("q"),
		Sort:  q.Get("sort"),
		Order: q.Get("order"),
	}
	if tags := q.Get("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				opts.Tags = append(opts.Tags, t)
			}
		}
	}
	if official := q.Get("official"); official != "" {
		v := official == "true"
		opts.Official = &v
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		opts.Page = page
	}
	if pageSize, err := strconv.Atoi(q.Get("pageSize")); err == nil {
		opts.PageSize = pageSize
	}

	result, err := s.registry.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, err, "Failed to list layers")
		return
	}

	common.WriteSuccess(w, result)
}

// searchLayers handles GET /layers/search?q=term.
func (s *Routes) searchLayers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	results, err := s.registry.Search(r.Context(), query)
	if err != nil {
		writeServiceError(w, err, "Search failed")
		return
	}
	if results == nil {
		results = []*registry.LayerSummary{}
	}

	common.WriteSuccess(w, map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}

// getLayer handles GET /layers/{id}, returning the layer root record with its
// recent versions.
func (s *Routes) getLayer(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detail, err := s.registry.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get layer")
		return
	}

	common.WriteSuccess(w, detail)
}

// getLatestVersion handles GET /layers/{id}/latest.
func (s *Routes) getLatestVersion(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := s.registry.Resolve(r.Context(), id, "")
	if err != nil {
		writeServiceError(w, err, "Failed to resolve layer")
		return
	}

	common.WriteSuccess(w, info)
}

// getVersion handles GET /layers/{id}/versions/{version}.
func (s *Routes) getVersion(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	version, err := common.GetAndValidateURLParam(r, "version")
	if err != nil {
		common.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := s.registry.Resolve(r.Context(), id, version)
	if err != nil {
		writeServiceError(w, err, "Failed to resolve version")
		return
	}

	common.WriteSuccess(w, info)
}

// downloadPayload is the request body for brokered downloads.
type downloadPayload struct {
	LicenseKey string `json:"licenseKey,omitempty"`
}

// downloadLayer handles POST /layers/{id}/download. Free layers resolve to
// their public tarball URL; premium layers require a covering license and
// resolve to a time-limited signed URL.
func (s *Routes) downloadLayer(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var payload downloadPayload
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			common.WriteError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	grant, err := s.licenses.IssueDownload(r.Context(), id, payload.LicenseKey)
	if err != nil {
		writeServiceError(w, err, "Failed to authorize download")
		return
	}

	common.WriteSuccess(w, grant)
}

// trackDownload handles POST /layers/{id}/track. Accounting is best-effort,
// so the response is always a success.
func (s *Routes) trackDownload(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.registry.TrackDownload(r.Context(), id)

	common.WriteSuccess(w, map[string]any{"tracked": true})
}
