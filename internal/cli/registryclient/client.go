// Package registryclient provides the typed HTTP client the installer uses
// to talk to a LayerHub registry.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/layerhub-dev/layerhub/internal/license"
	"github.com/layerhub-dev/layerhub/internal/model"
	"github.com/layerhub-dev/layerhub/internal/registry"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "lhub-cli/1.0"

	// DefaultRegistryURL is used when LHUB_REGISTRY is not set.
	DefaultRegistryURL = "http://localhost:8080"

	maxRetries = 3
)

var (
	// ErrNotFound is returned when the registry has no such layer or version.
	ErrNotFound = errors.New("layer not found")

	// ErrLicense is returned when a download is refused for license reasons.
	// The wrapped message carries the registry's explanation.
	ErrLicense = errors.New("license error")
)

// envelope mirrors the registry's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Client talks to one registry instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given registry base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// NewFromEnv creates a client for the registry named by LHUB_REGISTRY,
// falling back to the local development default.
func NewFromEnv() *Client {
	url := os.Getenv("LHUB_REGISTRY")
	if url == "" {
		url = DefaultRegistryURL
	}
	return New(url)
}

// BaseURL returns the registry base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchLayer resolves a layer version. An empty version resolves the most
// recently published one.
func (c *Client) FetchLayer(ctx context.Context, name, version string) (*registry.VersionInfo, error) {
	endpoint := fmt.Sprintf("%s/api/layers/%s/latest", c.baseURL, pathEscape(name))
	if version != "" {
		endpoint = fmt.Sprintf("%s/api/layers/%s/versions/%s", c.baseURL, pathEscape(name), pathEscape(version))
	}

	var info registry.VersionInfo
	if err := c.getJSON(ctx, endpoint, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// searchResult is the payload of GET /api/layers/search.
type searchResult struct {
	Query   string                   `json:"query"`
	Results []*registry.LayerSummary `json:"results"`
	Count   int                      `json:"count"`
}

// Search queries the registry for layers matching the free-text query.
func (c *Client) Search(ctx context.Context, query string) ([]*registry.LayerSummary, error) {
	endpoint := fmt.Sprintf("%s/api/layers/search?q=%s", c.baseURL, queryEscape(query))

	var result searchResult
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// RequestDownload asks the registry to broker a download of the layer's
// latest version. The license key may be empty for free layers.
func (c *Client) RequestDownload(ctx context.Context, name, licenseKey string) (*license.DownloadGrant, error) {
	endpoint := fmt.Sprintf("%s/api/layers/%s/download", c.baseURL, pathEscape(name))

	body, err := json.Marshal(map[string]string{"licenseKey": licenseKey})
	if err != nil {
		return nil, err
	}

	var grant license.DownloadGrant
	if err := c.postJSON(ctx, endpoint, body, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// DownloadTarball fetches a tarball URL to a temporary file and returns its
// path. The caller is responsible for removing the file.
func (c *Client) DownloadTarball(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download layer: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download layer: HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "lhub-*.tgz")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, MaxResponseSize)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write tarball: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// TrackDownload reports a download for accounting. Failures are swallowed;
// accounting never blocks an install.
func (c *Client) TrackDownload(ctx context.Context, name string) {
	endpoint := fmt.Sprintf("%s/api/layers/%s/track", c.baseURL, pathEscape(name))
	_ = c.postJSON(ctx, endpoint, []byte(`{}`), nil)
}

// Publish uploads a layer tarball together with its manifest.
func (c *Client) Publish(ctx context.Context, manifest model.Manifest, tarball []byte, changelog string) (*registry.PublishResult, error) {
	body, err := json.Marshal(map[string]any{
		"manifest":  manifest,
		"tarball":   tarball,
		"changelog": changelog,
	})
	if err != nil {
		return nil, err
	}

	var result registry.PublishResult
	if err := c.postJSON(ctx, c.baseURL+"/api/layers", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getJSON performs a GET with bounded exponential-backoff retry on transient
// failures and decodes the envelope's data payload into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("HTTP %d for URL %s", resp.StatusCode, url)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(statusError(resp.StatusCode, body))
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxRetries),
	)
	if err != nil {
		return err
	}
	return decodeEnvelope(body, out)
}

// postJSON performs a single POST; writes are never retried.
func (c *Client) postJSON(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	return decodeEnvelope(respBody, out)
}

// statusError turns a non-success response into a typed error, preferring
// the registry's own message when one is present.
func statusError(statusCode int, body []byte) error {
	var env envelope
	message := fmt.Sprintf("HTTP %d", statusCode)
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		message = env.Message
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrLicense, message)
	default:
		return errors.New(message)
	}
}

// pathEscape encodes a layer name for use as a single path segment, so
// "@org/name" travels as "@org%2Fname".
func pathEscape(s string) string {
	return url.PathEscape(s)
}

func queryEscape(s string) string {
	return url.QueryEscape(s)
}

func decodeEnvelope(body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("invalid registry response: %w", err)
	}
	if !env.Success {
		if env.Message != "" {
			return errors.New(env.Message)
		}
		return errors.New("registry request failed")
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
