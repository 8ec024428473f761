package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/layerhub-dev/layerhub/internal/cli/registryclient"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the registry for layers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0])
		},
	}
}

func runSearch(cmd *cobra.Command, query string) error {
	client := registryclient.NewFromEnv()

	results, err := client.Search(cmd.Context(), query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("No layers found for %q\n", query)
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Found %d layers:", len(results))))
	fmt.Println()

	for _, layer := range results {
		badge := ""
		if layer.Official {
			badge = " " + successStyle.Render("[official]")
		}
		if layer.Premium {
			badge += " " + warningStyle.Render("[premium]")
		}
		fmt.Println("  " + layerStyle.Render(layer.Name) + " " + mutedStyle.Render("v"+layer.Version) + badge)
		if layer.Description != "" {
			fmt.Println("    " + mutedStyle.Render(layer.Description))
		}
		fmt.Println("    " + mutedStyle.Render(fmt.Sprintf("%d downloads", layer.Downloads)))
	}

	fmt.Println()
	fmt.Println(mutedStyle.Render("Run ") + "lhub add <layer>" + mutedStyle.Render(" to install."))
	return nil
}
