package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/layerhub-dev/layerhub/internal/cli/project"
	"github.com/layerhub-dev/layerhub/internal/cli/registryclient"
	"github.com/layerhub-dev/layerhub/internal/model"
)

// layersRepo is the hosted location layer sources point at.
const layersRepo = "layerhub-dev/layers"

func newAddCmd() *cobra.Command {
	var version string
	var licenseKey string

	cmd := &cobra.Command{
		Use:   "add <layer>",
		Short: "Add a layer to the current Nuxt project",
		Long: `Add a layer to the current Nuxt project.

Resolves the layer against the registry, downloads and extracts it into
./layers, and splices its source into the extends list of nuxt.config.
Premium layers need a license key (--license or LHUB_LICENSE).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if licenseKey == "" {
				licenseKey = os.Getenv("LHUB_LICENSE")
			}
			return runAdd(cmd, args[0], version, licenseKey)
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Layer version to install (default: latest)")
	cmd.Flags().StringVar(&licenseKey, "license", "", "License key for premium layers")

	return cmd
}

func runAdd(cmd *cobra.Command, layerName, version, licenseKey string) error {
	ctx := cmd.Context()
	name := normalizeLayerName(layerName)
	dirName := model.SanitizeLayerName(name)

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	configPath, err := project.FindConfig(cwd)
	if err != nil {
		return err
	}

	client := registryclient.NewFromEnv()

	fmt.Printf("Resolving %s...\n", layerStyle.Render(name))
	info, err := client.FetchLayer(ctx, name, version)
	if err != nil {
		return err
	}

	locator := "github:" + layersRepo + "/" + dirName
	if version != "" {
		locator += "#v" + version
	}

	present, err := project.HasSource(configPath, locator, "/"+dirName+"'")
	if err != nil {
		return err
	}
	if present {
		fmt.Println(warningStyle.Render("!") + " " + name + " is already configured")
		return nil
	}

	fmt.Printf("Fetching %s v%s...\n", layerStyle.Render(name), info.Version)
	grant, err := client.RequestDownload(ctx, name, licenseKey)
	if err != nil {
		return err
	}
	if grant.Premium {
		fmt.Println(mutedStyle.Render("  premium layer, license validated"))
	}

	tarball, err := client.DownloadTarball(ctx, grant.DownloadURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tarball)
	}()

	layerDir := filepath.Join(project.LayersDir(cwd), dirName)
	fmt.Printf("Extracting to %s...\n", mutedStyle.Render("./layers/"+dirName))
	if err := project.Extract(tarball, layerDir); err != nil {
		return fmt.Errorf("failed to extract layer: %w", err)
	}
	if err := project.WriteManifest(layerDir, &project.Manifest{
		Name:        info.Name,
		Version:     info.Version,
		Description: info.Description,
	}); err != nil {
		return err
	}

	// Config mutation is the final install step; everything before it is
	// recoverable by re-running add.
	if err := project.AddSource(configPath, locator, len(info.Dependencies) > 0); err != nil {
		return fmt.Errorf("failed to update %s: %w", filepath.Base(configPath), err)
	}

	installDependencies(cwd, info.Dependencies)
	client.TrackDownload(ctx, name)

	fmt.Println(successStyle.Render("✓") + " Added " + layerStyle.Render(name) + " v" + info.Version)
	fmt.Println(mutedStyle.Render("  Source: ") + locator)
	fmt.Println(mutedStyle.Render("  Restart your dev server to pick up the new layer."))
	return nil
}

// installDependencies best-effort installs the layer's declared packages via
// the detected package manager. Failure is a warning; the config change has
// already succeeded.
func installDependencies(cwd string, packages []string) {
	if len(packages) == 0 {
		return
	}

	manager := project.DetectPackageManager(cwd)
	argv := project.InstallArgs(manager, packages)

	fmt.Printf("Installing dependencies with %s...\n", manager)
	c := exec.Command(argv[0], argv[1:]...) // #nosec G204 -- fixed package-manager binary, packages from registry metadata
	c.Dir = cwd
	if err := c.Run(); err != nil {
		fmt.Println(warningStyle.Render("!") + " Some dependencies may need manual installation: " + err.Error())
	}
}
