// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/aegis/internal/config"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the aegis gateway",
		Long:    "Load configuration, wire the store, safety pipeline, backends and orchestrator, and serve the HTTP API until interrupted.",
		RunE:    runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().String("env-file", ".env", "dotenv file loaded before the config; missing files are ignored")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	slog.SetDefault(newLogger(cfg.Logging, verbose, cmd.ErrOrStderr()))

	if cfgPath != "" {
		slog.Info("config loaded", "path", cfgPath)
		config.WarnInsecurePermissions(cfgPath)
	} else {
		slog.Info("no config file found, using defaults and environment")
	}

	gw, err := WireGateway(cfg, secretStoreFactory())
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			slog.Error("closing gateway", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting aegis", "listen", cfg.Server.Listen, "version", version)
	if err := gw.Server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("aegis stopped")
	return nil
}

// loadEnvFile exports the variables of a dotenv file without overriding the
// ones already set. An empty path or a missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("no dotenv file found", "path", path)
			return nil
		}
		return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "loading %s: %w", path, err)
	}
	return nil
}
