package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/layerhub-dev/layerhub/internal/api"
	"github.com/layerhub-dev/layerhub/internal/blobstore"
	"github.com/layerhub-dev/layerhub/internal/config"
	"github.com/layerhub-dev/layerhub/internal/docstore"
	"github.com/layerhub-dev/layerhub/internal/docstore/memstore"
	"github.com/layerhub-dev/layerhub/internal/docstore/sqlite"
	"github.com/layerhub-dev/layerhub/internal/license"
	"github.com/layerhub-dev/layerhub/internal/logger"
	"github.com/layerhub-dev/layerhub/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the registry server",
	Long: `Start the registry server.

Configuration is read from an optional YAML file (--config); anything not set
there falls back to built-in defaults. The admin key and the URL signing key
may be supplied through key files or the LHUB_ADMIN_KEY and LHUB_SIGNING_KEY
environment variables.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 30 * time.Second // Publishes carry whole tarballs
	serverReadTimeout      = 30 * time.Second
	serverWriteTimeout     = 45 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		logger.Fatalf("Failed to bind config flag: %v", err)
	}
}

// openDocstore builds the document store backend selected by the config.
func openDocstore(cfg *config.Config) (docstore.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory document store; data is lost on restart")
		return memstore.New(), nil
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return sqlite.Open(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if addr := viper.GetString("address"); addr != "" {
		cfg.Address = addr
	}
	if configPath != "" {
		logger.Infof("Loaded configuration from %s", configPath)
	}

	store, err := openDocstore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Errorf("Failed to close document store: %v", err)
		}
	}()

	signingKey, err := cfg.SigningKey()
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	blobs, err := blobstore.NewFilesystemStore(cfg.Storage.Path, cfg.BaseURL, signingKey)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	var adminKey string
	if cfg.Admin.KeyFile != "" || os.Getenv("LHUB_ADMIN_KEY") != "" {
		adminKey, err = cfg.AdminKey()
		if err != nil {
			return fmt.Errorf("failed to load admin key: %w", err)
		}
	} else {
		logger.Warn("No admin key configured; license issuance is disabled")
	}

	reg := registry.New(store, blobs)
	lic := license.New(store, blobs)

	router := api.NewServer(reg, lic, blobs,
		api.WithAdminKey(adminKey),
		api.WithCORS(cfg.CORS.AllowedOrigins),
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		logger.Infof("Server listening on %s", cfg.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
