package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/layerhub-dev/layerhub/internal/cli/project"
	"github.com/layerhub-dev/layerhub/internal/cli/registryclient"
	"github.com/layerhub-dev/layerhub/internal/model"
)

func newPublishCmd() *cobra.Command {
	var changelog string

	cmd := &cobra.Command{
		Use:   "publish <dir>",
		Short: "Package a layer directory and publish it to the registry",
		Long: `Package a layer directory and publish it to the registry.

The directory must contain a layer.json manifest with at least a name
(@org/name) and a version. The whole directory is tarballed and uploaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, args[0], changelog)
		},
	}

	cmd.Flags().StringVar(&changelog, "changelog", "", "Changelog entry for this version")

	return cmd
}

func runPublish(cmd *cobra.Command, dir, changelog string) error {
	manifestPath := filepath.Join(dir, "layer.json")
	data, err := os.ReadFile(filepath.Clean(manifestPath))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", manifestPath, err)
	}

	var manifest model.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("invalid layer.json: %w", err)
	}

	fmt.Printf("Packaging %s...\n", layerStyle.Render(dir))
	tarball, err := project.CreateTarball(dir)
	if err != nil {
		return fmt.Errorf("failed to package layer: %w", err)
	}

	client := registryclient.NewFromEnv()
	fmt.Printf("Publishing %s v%s to %s...\n",
		layerStyle.Render(manifest.Name), manifest.Version, mutedStyle.Render(client.BaseURL()))

	result, err := client.Publish(cmd.Context(), manifest, tarball, changelog)
	if err != nil {
		return err
	}

	fmt.Println(successStyle.Render("✓") + " Published " + layerStyle.Render(result.Name) + " v" + result.Version)
	fmt.Println(mutedStyle.Render("  Tarball: ") + result.TarballURL)
	return nil
}
