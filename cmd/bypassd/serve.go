package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/phoenix-bypass/internal/pkg/config"
	"github.com/tjfontaine/phoenix-bypass/pkg/bypassd"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if it exists
			_ = godotenv.Load()

			path := configPath(cmd)
			cfg, err := config.LoadFile(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := newLogger(cfg.Log, os.Stdout)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, path, logger)
		},
	}
}

// serve runs the service until ctx is done. Storage and authentication
// follow the config file.
func serve(ctx context.Context, path string, logger *slog.Logger) error {
	app, err := bypassd.New(
		bypassd.WithFileConfig(path),
		bypassd.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)
		return fmt.Errorf("start: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}
