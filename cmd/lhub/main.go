// Package main is the entry point for the lhub layer installer.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/layerhub-dev/layerhub/internal/cli/project"
	"github.com/layerhub-dev/layerhub/internal/cli/registryclient"
	"github.com/layerhub-dev/layerhub/internal/versions"
)

// Exit codes. Scripts use these to distinguish why an install failed.
const (
	exitOK         = 0
	exitFailure    = 1
	exitNotProject = 2
	exitNotFound   = 3
	exitLicense    = 4
)

// defaultOrg is the organization scope applied to unscoped layer names:
// "ui" resolves as "@layerhub/ui".
const defaultOrg = "layerhub"

var rootCmd = &cobra.Command{
	Use:           "lhub",
	Short:         "Install and manage Nuxt layers from a LayerHub registry",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       versions.GetVersionInfo().Version,
}

func init() {
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newPublishCmd())
}

func main() {
	// A missing .env file is fine; explicit environment always wins.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, project.ErrNotAProject):
		return exitNotProject
	case errors.Is(err, registryclient.ErrNotFound):
		return exitNotFound
	case errors.Is(err, registryclient.ErrLicense):
		return exitLicense
	default:
		return exitFailure
	}
}

// normalizeLayerName scopes an unscoped name to the default organization.
func normalizeLayerName(name string) string {
	if len(name) > 0 && name[0] == '@' {
		return name
	}
	return "@" + defaultOrg + "/" + name
}
