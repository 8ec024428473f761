package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/layerhub-dev/layerhub/internal/blobstore"
	"github.com/layerhub-dev/layerhub/internal/logger"
)

// BlobServer is the subset of blob storage the artifact route needs: reading
// blobs, the public-read flag, and signed-URL verification.
type BlobServer interface {
	Open(ctx context.Context, path string) (io.ReadCloser, string, int64, error)
	IsPublic(ctx context.Context, path string) (bool, error)
	VerifySignature(path, expiresStr, sig string) error
}

// artifactHandler serves stored tarballs. Public blobs are served to anyone;
// private blobs require a valid, unexpired signature in the query string.
func artifactHandler(blobs BlobServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := chi.URLParam(r, "*")
		if path == "" {
			http.NotFound(w, r)
			return
		}

		public, err := blobs.IsPublic(r.Context(), path)
		if err != nil {
			if errors.Is(err, blobstore.ErrBlobNotFound) {
				http.NotFound(w, r)
				return
			}
			logger.Errorf("Failed to stat artifact %s: %v", path, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !public {
			q := r.URL.Query()
			if err := blobs.VerifySignature(path, q.Get("expires"), q.Get("sig")); err != nil {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}

		rc, contentType, size, err := blobs.Open(r.Context(), path)
		if err != nil {
			if errors.Is(err, blobstore.ErrBlobNotFound) {
				http.NotFound(w, r)
				return
			}
			logger.Errorf("Failed to open artifact %s: %v", path, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		defer rc.Close()

		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		if size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		}
		if _, err := io.Copy(w, rc); err != nil {
			logger.Debugf("Artifact stream interrupted for %s: %v", path, err)
		}
	}
}
