package blobstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	publicMarkerSuffix = ".public"
	contentTypeSuffix  = ".contenttype"
)

// FilesystemStore keeps blobs under a root directory and serves them through
// the registry server's /artifacts route. Signed URLs carry an HMAC-SHA256
// over the blob path and expiry, so no server-side state is needed to verify
// them.
type FilesystemStore struct {
	root       string
	baseURL    string
	signingKey []byte
}

var _ Store = (*FilesystemStore)(nil)

// NewFilesystemStore creates a blob store rooted at dir. baseURL is the
// externally visible server address used to build download URLs; signingKey
// authenticates time-limited URLs.
func NewFilesystemStore(dir, baseURL string, signingKey []byte) (*FilesystemStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FilesystemStore{
		root:       dir,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		signingKey: signingKey,
	}, nil
}

// localPath resolves a blob path under the root, rejecting traversal.
func (s *FilesystemStore) localPath(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(s.root, cleaned), nil
}

// Put implements Store.
func (s *FilesystemStore) Put(_ context.Context, path string, r io.Reader, contentType string) error {
	local, err := s.localPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o750); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(local), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, local); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to store blob: %w", err)
	}

	if contentType != "" {
		if err := os.WriteFile(local+contentTypeSuffix, []byte(contentType), 0o640); err != nil {
			return fmt.Errorf("failed to record content type: %w", err)
		}
	}
	return nil
}

// Open implements Store.
func (s *FilesystemStore) Open(_ context.Context, path string) (io.ReadCloser, string, int64, error) {
	local, err := s.localPath(path)
	if err != nil {
		return nil, "", 0, err
	}

	f, err := os.Open(local)
	if os.IsNotExist(err) {
		return nil, "", 0, ErrBlobNotFound
	}
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to open blob: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, "", 0, fmt.Errorf("failed to stat blob: %w", err)
	}

	contentType := "application/octet-stream"
	if data, err := os.ReadFile(local + contentTypeSuffix); err == nil {
		contentType = string(data)
	}
	return f, contentType, info.Size(), nil
}

// MakePublic implements Store.
func (s *FilesystemStore) MakePublic(_ context.Context, path string) error {
	local, err := s.localPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(local); os.IsNotExist(err) {
		return ErrBlobNotFound
	}
	if err := os.WriteFile(local+publicMarkerSuffix, nil, 0o640); err != nil {
		return fmt.Errorf("failed to mark blob public: %w", err)
	}
	return nil
}

// IsPublic implements Store.
func (s *FilesystemStore) IsPublic(_ context.Context, path string) (bool, error) {
	local, err := s.localPath(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(local + publicMarkerSuffix); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blob visibility: %w", err)
	}
	return true, nil
}

// PublicURL implements Store.
func (s *FilesystemStore) PublicURL(path string) string {
	return s.baseURL + "/artifacts/" + path
}

// SignedURL implements Store.
func (s *FilesystemStore) SignedURL(path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}
	expires := time.Now().Add(ttl).Unix()
	sig := s.sign(path, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)
	return s.PublicURL(path) + "?" + q.Encode(), nil
}

// VerifySignature checks a signed-URL signature for the given blob path.
// It fails for altered paths, altered expiry values, and lapsed windows.
func (s *FilesystemStore) VerifySignature(path, expiresStr, sig string) error {
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry")
	}
	if time.Now().Unix() > expires {
		return fmt.Errorf("signed URL has expired")
	}
	expected := s.sign(path, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func (s *FilesystemStore) sign(path string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	fmt.Fprintf(mac, "%s|%d", path, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
