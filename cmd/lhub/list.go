package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/layerhub-dev/layerhub/internal/cli/project"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List layers installed in the current project",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runList()
		},
	}
}

func runList() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	dirs, err := project.InstalledLayers(cwd)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		fmt.Println(mutedStyle.Render("No layers installed yet."))
		fmt.Println(mutedStyle.Render("Run ") + "lhub add <layer>" + mutedStyle.Render(" to install one."))
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Installed layers (%d):", len(dirs))))
	fmt.Println()

	for _, dirName := range dirs {
		layerDir := filepath.Join(project.LayersDir(cwd), dirName)
		manifest, err := project.ReadManifest(layerDir)
		if err != nil {
			return err
		}

		name, version, description := dirName, "unknown", ""
		if manifest != nil {
			if manifest.Name != "" {
				name = manifest.Name
			}
			if manifest.Version != "" {
				version = manifest.Version
			}
			description = manifest.Description
		}

		fmt.Println("  " + layerStyle.Render(name) + " " + mutedStyle.Render("v"+version))
		if description != "" {
			fmt.Println("    " + mutedStyle.Render(description))
		}
		fmt.Println("    " + mutedStyle.Render("./layers/"+dirName))
	}
	return nil
}
