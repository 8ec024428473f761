// Package model defines the records stored in the document store: layers,
// their published versions, licenses, and license usage entries.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// layerNameRe matches scoped layer names of the form @org/name.
var layerNameRe = regexp.MustCompile(`^@[\w-]+/[\w-]+$`)

// ValidateLayerName checks that a layer name matches the @org/name format.
func ValidateLayerName(name string) error {
	if !layerNameRe.MatchString(name) {
		return fmt.Errorf("layer name must be in format @org/name, got %q", name)
	}
	return nil
}

// SanitizeLayerName converts a scoped layer name to its document/directory
// form: "@org/name" becomes "org-name".
func SanitizeLayerName(name string) string {
	s := strings.Replace(name, "@", "", 1)
	return strings.Replace(s, "/", "-", 1)
}

// Author identifies who published a layer.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Layer is the root record for a published layer. Name is globally unique and
// immutable after creation; Version always points at the most recently
// published version.
type Layer struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Description  string    `json:"description"`
	Tags         []string  `json:"tags"`
	Dependencies []string  `json:"dependencies"`
	Official     bool      `json:"official"`
	Premium      bool      `json:"premium"`
	Downloads    int64     `json:"downloads"`
	Stars        int64     `json:"stars"`
	Author       Author    `json:"author"`
	PublishedAt  time.Time `json:"publishedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Version is an immutable child record of a layer, keyed by its semantic
// version string. Once written, a (layer, version) pair is never modified.
type Version struct {
	Layer        string    `json:"layer"`
	Version      string    `json:"version"`
	TarballURL   string    `json:"tarballUrl"`
	Changelog    string    `json:"changelog"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	Dependencies []string  `json:"dependencies"`
	PublishedAt  time.Time `json:"publishedAt"`
}

// Manifest is the publish-time description of a layer, supplied by the
// publisher alongside the tarball.
type Manifest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	Dependencies []string `json:"dependencies"`
	Premium      bool     `json:"premium"`
}
