// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/layerhub-dev/layerhub/internal/logger"
)

// Envelope is the uniform response wrapper: successful responses carry Data,
// failures carry Message.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteSuccess writes a 200 envelope with the given payload.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, data, http.StatusOK)
}

// WriteSuccessStatus writes a success envelope with an explicit status code.
func WriteSuccessStatus(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(Envelope{Success: true, Data: data}); err != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// WriteError writes a failure envelope with the given message and status.
func WriteError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(Envelope{Success: false, Message: message}); err != nil {
		logger.Errorf("Failed to encode error response: %v", err)
	}
}

// GetAndValidateURLParam extracts, decodes, and validates a URL parameter
// from the request. Layer ids arrive percent-encoded ("@org%2Fname").
func GetAndValidateURLParam(r *http.Request, paramName string) (string, error) {
	encoded := chi.URLParam(r, paramName)

	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}
	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%s cannot be empty", paramName)
	}
	if strings.ContainsAny(decoded, " \t\n\r") {
		return "", fmt.Errorf("%s cannot contain whitespace", paramName)
	}
	return decoded, nil
}
