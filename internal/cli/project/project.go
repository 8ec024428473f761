// Package project inspects and mutates the consuming Nuxt project: locating
// its config file, detecting the package manager, maintaining the local
// layers directory, and splicing layer sources into the extends list.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotAProject is returned when the working directory has no recognizable
// Nuxt configuration file.
var ErrNotAProject = errors.New("not a Nuxt project (no nuxt.config.ts or nuxt.config.js found)")

// configFiles are the recognized configuration file names, in lookup order.
var configFiles = []string{"nuxt.config.ts", "nuxt.config.js"}

// FindConfig returns the path of the project's configuration file.
func FindConfig(dir string) (string, error) {
	for _, name := range configFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotAProject
}

// Package managers selected by lockfile sniffing. npm is the default.
const (
	PnpmManager = "pnpm"
	YarnManager = "yarn"
	NpmManager  = "npm"
)

// DetectPackageManager picks the package manager by lockfile presence.
func DetectPackageManager(dir string) string {
	if _, err := os.Stat(filepath.Join(dir, "pnpm-lock.yaml")); err == nil {
		return PnpmManager
	}
	if _, err := os.Stat(filepath.Join(dir, "yarn.lock")); err == nil {
		return YarnManager
	}
	return NpmManager
}

// InstallArgs returns the command and arguments that install the given
// packages with the detected package manager.
func InstallArgs(manager string, packages []string) []string {
	switch manager {
	case PnpmManager:
		return append([]string{"pnpm", "add"}, packages...)
	case YarnManager:
		return append([]string{"yarn", "add"}, packages...)
	default:
		return append([]string{"npm", "install"}, packages...)
	}
}

// LayersDir returns the directory installed layers are extracted into.
func LayersDir(dir string) string {
	return filepath.Join(dir, "layers")
}

// Manifest is the layer.json file written next to an extracted layer so the
// installer can enumerate and update what is installed.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// InstalledLayers lists the layer directory names under ./layers.
func InstalledLayers(dir string) ([]string, error) {
	entries, err := os.ReadDir(LayersDir(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// ReadManifest reads the layer.json manifest of an extracted layer. A layer
// without a manifest returns nil without error.
func ReadManifest(layerDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(layerDir, "layer.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid layer.json in %s: %w", layerDir, err)
	}
	return &m, nil
}

// WriteManifest writes the layer.json manifest for an extracted layer.
func WriteManifest(layerDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(layerDir, "layer.json"), append(data, '\n'), 0600)
}
