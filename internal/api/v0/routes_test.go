package v0_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v0 "github.com/layerhub-dev/layerhub/internal/api/v0"
	"github.com/layerhub-dev/layerhub/internal/blobstore"
	"github.com/layerhub-dev/layerhub/internal/docstore/memstore"
	"github.com/layerhub-dev/layerhub/internal/license"
	"github.com/layerhub-dev/layerhub/internal/model"
	"github.com/layerhub-dev/layerhub/internal/registry"
)

const testAdminKey = "test-admin-key"

// envelope mirrors the response wrapper the handlers emit.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestRouter(t *testing.T) (http.Handler, registry.Service) {
	t.Helper()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := blobstore.NewFilesystemStore(t.TempDir(), "http://registry.test", []byte("test-key"))
	require.NoError(t, err)

	reg := registry.New(store, blobs)
	lic := license.New(store, blobs)

	return v0.Router(reg, lic, testAdminKey), reg
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env),
		"response body: %s", rec.Body.String())
	return rec, env
}

func publishBody(name, version string, premium bool) map[string]any {
	return map[string]any{
		"manifest": map[string]any{
			"name":    name,
			"version": version,
			"premium": premium,
		},
		"tarball": []byte("tarball-" + name + "-" + version),
	}
}

func TestPublishLayer(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	rec, env := doJSON(t, router, http.MethodPost, "/layers", publishBody("@acme/auth", "1.0.0", false), nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)

	var result registry.PublishResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "@acme/auth", result.Name)
	assert.Equal(t, "1.0.0", result.Version)
	assert.Equal(t, "http://registry.test/artifacts/layers/acme-auth/1.0.0.tgz", result.TarballURL)
}

func TestPublishLayer_Errors(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{
			name:     "missing tarball",
			body:     map[string]any{"manifest": map[string]any{"name": "@acme/auth", "version": "1.0.0"}},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid manifest name",
			body:     publishBody("not-scoped", "1.0.0", false),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid version",
			body:     publishBody("@acme/auth", "not-semver", false),
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doJSON(t, router, http.MethodPost, "/layers", tt.body, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestPublishLayer_DuplicateVersion(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/layers", publishBody("@acme/auth", "1.0.0", false), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := doJSON(t, router, http.MethodPost, "/layers", publishBody("@acme/auth", "1.0.0", false), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "1.0.0")
}

func TestListLayers(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	for _, name := range []string{"@acme/auth", "@acme/blog", "@acme/cms"} {
		rec, _ := doJSON(t, router, http.MethodPost, "/layers", publishBody(name, "1.0.0", false), nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := doJSON(t, router, http.MethodGet, "/layers?sort=name&order=asc&pageSize=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var result registry.ListResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(3), result.Total)
	assert.True(t, result.HasMore)
	require.Len(t, result.Layers, 2)
	assert.Equal(t, "@acme/auth", result.Layers[0].Name)
	assert.Equal(t, "@acme/blog", result.Layers[1].Name)
}

func TestSearchLayers(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/layers", publishBody("@acme/auth", "1.0.0", false), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := doJSON(t, router, http.MethodGet, "/layers/search?q=auth", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var result struct {
		Query   string                   `json:"query"`
		Results []*registry.LayerSummary `json:"results"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "auth", result.Query)
	assert.Equal(t, 1, result.Count)

	// Short queries return an empty result set, not null.
	rec, env = doJSON(t, router, http.MethodGet, "/layers/search?q=a", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.NotNil(t, result.Results)
	assert.Equal(t, 0, result.Count)
}

func TestGetLayer(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/layers", publishBody("@acme/auth", "1.0.0", false), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := doJSON(t, router, http.MethodGet, "/layers/acme-auth", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail registry.LayerDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "@acme/auth", detail.Layer.Name)
	require.Len(t, detail.Versions, 1)

	rec, env = doJSON(t, router, http.MethodGet, "/layers/acme-missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestGetVersions(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	for _, v := range []string{"1.0.0", "1.1.0"} {
		rec, _ := doJSON(t, router, http.MethodPost, "/layers", publishBody("@acme/auth", v, false), nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := doJSON(t, router, http.MethodGet, "/layers/acme-auth/latest", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info registry.VersionInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "1.1.0", info.Version)

	rec, env = doJSON(t, router, http.MethodGet, "/layers/acme-auth/versions/1.0.0", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "1.0.0", info.Version)

	rec, env = doJSON(t, router, http.MethodGet, "/layers/acme-auth/versions/9.9.9", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestDownloadLayer_Free(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/layers", publishBody("@acme/blog", "1.0.0", false), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Empty body is accepted for free layers.
	req := httptest.NewRequest(http.MethodPost, "/layers/acme-blog/download", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &env))

	var grant license.DownloadGrant
	require.NoError(t, json.Unmarshal(env.Data, &grant))
	assert.False(t, grant.Premium)
	assert.Equal(t, "http://registry.test/artifacts/layers/acme-blog/1.0.0.tgz", grant.DownloadURL)
}

func TestDownloadLayer_Premium(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/layers", publishBody("@acme/pro", "1.0.0", true), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// No key.
	rec, env := doJSON(t, router, http.MethodPost, "/layers/acme-pro/download", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, env.Message, "License key required")

	// Bogus key.
	rec, env = doJSON(t, router, http.MethodPost, "/layers/acme-pro/download",
		map[string]any{"licenseKey": "NL-0000-0000-0000"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, env.Message, "Invalid license key")

	// Issue a license through the API, then download with it.
	adminHeader := http.Header{"X-Admin-Key": []string{testAdminKey}}
	rec, env = doJSON(t, router, http.MethodPost, "/license/generate", map[string]any{
		"userId": "user-1",
		"email":  "user@example.com",
		"plan":   model.PlanPro,
	}, adminHeader)
	require.Equal(t, http.StatusCreated, rec.Code)

	var lic model.License
	require.NoError(t, json.Unmarshal(env.Data, &lic))

	rec, env = doJSON(t, router, http.MethodPost, "/layers/acme-pro/download",
		map[string]any{"licenseKey": lic.Key}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var grant license.DownloadGrant
	require.NoError(t, json.Unmarshal(env.Data, &grant))
	assert.True(t, grant.Premium)
	assert.Contains(t, grant.DownloadURL, "sig=")
	assert.Equal(t, "1 hour", grant.ExpiresIn)
}

func TestTrackDownload(t *testing.T) {
	t.Parallel()
	router, reg := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/layers", publishBody("@acme/auth", "1.0.0", false), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := doJSON(t, router, http.MethodPost, "/layers/acme-auth/track", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	info, err := reg.Resolve(context.Background(), "@acme/auth", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Downloads)

	// Unknown layers are still acknowledged.
	rec, env = doJSON(t, router, http.MethodPost, "/layers/acme-ghost/track", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestGenerateLicense_AdminGate(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	body := map[string]any{
		"userId": "user-1",
		"email":  "user@example.com",
		"plan":   model.PlanPro,
	}

	tests := []struct {
		name     string
		header   http.Header
		wantCode int
	}{
		{name: "no header", wantCode: http.StatusForbidden},
		{name: "wrong key", header: http.Header{"X-Admin-Key": []string{"nope"}}, wantCode: http.StatusForbidden},
		{name: "correct key", header: http.Header{"X-Admin-Key": []string{testAdminKey}}, wantCode: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doJSON(t, router, http.MethodPost, "/license/generate", body, tt.header)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusForbidden {
				assert.Equal(t, "Admin access required", env.Message)
			}
		})
	}
}

func TestGenerateLicense_DisabledWithoutKey(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	blobs, err := blobstore.NewFilesystemStore(t.TempDir(), "http://registry.test", []byte("test-key"))
	require.NoError(t, err)

	router := v0.Router(registry.New(store, blobs), license.New(store, blobs), "")

	// With no admin key configured even an empty header must not pass.
	rec, env := doJSON(t, router, http.MethodPost, "/license/generate", map[string]any{
		"userId": "user-1",
		"email":  "user@example.com",
		"plan":   model.PlanPro,
	}, http.Header{"X-Admin-Key": []string{""}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Admin access required", env.Message)
}

func TestValidateLicense(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	adminHeader := http.Header{"X-Admin-Key": []string{testAdminKey}}
	rec, env := doJSON(t, router, http.MethodPost, "/license/generate", map[string]any{
		"userId": "user-1",
		"email":  "user@example.com",
		"plan":   model.PlanPro,
	}, adminHeader)
	require.Equal(t, http.StatusCreated, rec.Code)

	var lic model.License
	require.NoError(t, json.Unmarshal(env.Data, &lic))

	rec, env = doJSON(t, router, http.MethodPost, "/license/validate", map[string]any{
		"licenseKey": lic.Key,
		"layerId":    "@acme/pro",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result license.ValidationResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Valid)
	assert.Equal(t, model.PlanPro, result.Plan)

	// Failures stay inside a 200 response.
	rec, env = doJSON(t, router, http.MethodPost, "/license/validate", map[string]any{
		"licenseKey": "NL-0000-0000-0000",
		"layerId":    "@acme/pro",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.False(t, result.Valid)
	assert.Equal(t, "Invalid license key", result.Error)

	// Missing fields are a caller error.
	rec, env = doJSON(t, router, http.MethodPost, "/license/validate", map[string]any{
		"layerId": "@acme/pro",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestHealthRouter(t *testing.T) {
	t.Parallel()
	router := v0.HealthRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), "version")
}
