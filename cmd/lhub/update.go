package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/layerhub-dev/layerhub/internal/cli/project"
	"github.com/layerhub-dev/layerhub/internal/cli/registryclient"
	"github.com/layerhub-dev/layerhub/internal/versions"
)

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Check installed layers for newer registry versions",
		Long: `Check installed layers for newer registry versions.

Reports a diff of installed vs latest without changing anything; update a
layer by removing and re-adding it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd)
		},
	}
}

type updateRow struct {
	name      string
	installed string
	latest    string
	outdated  bool
}

func runUpdate(cmd *cobra.Command) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	if _, err := project.FindConfig(cwd); err != nil {
		return err
	}

	dirs, err := project.InstalledLayers(cwd)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		fmt.Println(mutedStyle.Render("No layers installed."))
		return nil
	}

	client := registryclient.NewFromEnv()
	var rows []updateRow

	for _, dirName := range dirs {
		manifest, err := project.ReadManifest(filepath.Join(project.LayersDir(cwd), dirName))
		if err != nil || manifest == nil || manifest.Name == "" {
			continue
		}

		latest, err := client.FetchLayer(cmd.Context(), manifest.Name, "")
		if err != nil {
			// Layers the registry no longer knows about are skipped.
			continue
		}

		rows = append(rows, updateRow{
			name:      manifest.Name,
			installed: manifest.Version,
			latest:    latest.Version,
			outdated:  versions.IsNewerVersion(latest.Version, manifest.Version),
		})
	}

	if len(rows) == 0 {
		fmt.Println(mutedStyle.Render("No layers to check."))
		return nil
	}

	outdated := 0
	table := tablewriter.NewTable(os.Stdout)
	table.Header("Layer", "Installed", "Latest", "Status")
	for _, row := range rows {
		status := "up to date"
		if row.outdated {
			status = "update available"
			outdated++
		}
		if err := table.Append([]string{row.name, row.installed, row.latest, status}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if outdated == 0 {
		fmt.Println(successStyle.Render("✓") + " All layers are up to date.")
		return nil
	}

	fmt.Println()
	fmt.Printf("%d update(s) available. To update a layer:\n", outdated)
	fmt.Println(mutedStyle.Render("  lhub remove <layer> && lhub add <layer>"))
	return nil
}
