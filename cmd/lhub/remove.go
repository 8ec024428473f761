package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/layerhub-dev/layerhub/internal/cli/project"
	"github.com/layerhub-dev/layerhub/internal/cli/registryclient"
	"github.com/layerhub-dev/layerhub/internal/model"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <layer>",
		Aliases: []string{"rm"},
		Short:   "Remove an installed layer",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runRemove(args[0])
		},
	}
}

func runRemove(layerName string) error {
	name := normalizeLayerName(layerName)
	dirName := model.SanitizeLayerName(name)

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	layerDir := filepath.Join(project.LayersDir(cwd), dirName)
	if _, err := os.Stat(layerDir); err != nil {
		return fmt.Errorf("%w: %s is not installed in ./layers", registryclient.ErrNotFound, name)
	}

	if configPath, err := project.FindConfig(cwd); err == nil {
		// Strip both the hosted locator and the local path form.
		if err := project.RemoveSource(configPath, "github:"+layersRepo+"/"+dirName); err != nil {
			return err
		}
		if err := project.RemoveSource(configPath, "./layers/"+dirName); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(layerDir); err != nil {
		return fmt.Errorf("failed to remove layer files: %w", err)
	}

	fmt.Println(successStyle.Render("✓") + " Removed " + layerStyle.Render(name))
	return nil
}
