// Package main is the entry point for the LayerHub registry server.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/layerhub-dev/layerhub/cmd/lhub-registry/app"
	"github.com/layerhub-dev/layerhub/internal/logger"
)

func main() {
	// A missing .env file is fine; explicit environment always wins.
	_ = godotenv.Load()

	logger.Initialize(os.Getenv("LHUB_LOG_FORMAT") == "json")

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
