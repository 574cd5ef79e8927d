// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/sigil-dev/aegis/internal/config"
	"github.com/sigil-dev/aegis/internal/secrets"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// NewRootCmd creates the root aegis command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aegis",
		Short:         "Aegis: safety-mediated LLM gateway",
		Long:          "Aegis runs chat turns between users and LLM backends, screening every message through a safety pipeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newSeedCmd(),
		newSecretCmd(),
		newInitCmd(),
		newPurgeCmd(),
		newChatCmd(),
		newStatusCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig reads the config named by --config, or the default search
// locations, resolving keyring references through the secret store.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, used, err := config.Load(path, secretStoreFactory())
	if err != nil {
		return nil, "", sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "loading config")
	}
	return cfg, used, nil
}
