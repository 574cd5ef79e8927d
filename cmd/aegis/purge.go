// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// now is replaced in tests.
var now = time.Now

func newPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Hard-delete conversations that were soft-deleted long ago",
		Long: `Permanently remove conversations, and their messages, that were deleted
more than --older-than ago. Conversations that were never deleted are kept,
including ones with a pending turn.`,
		Args: cobra.NoArgs,
		RunE: runPurge,
	}
	cmd.Flags().Duration("older-than", 30*24*time.Hour, "minimum time since deletion")
	return cmd
}

func runPurge(cmd *cobra.Command, _ []string) error {
	age, _ := cmd.Flags().GetDuration("older-than")
	if age < 0 {
		return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "--older-than must not be negative, got %s", age)
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	cutoff := now().Add(-age)
	n, err := backend.PurgeConversations(cmd.Context(), cutoff)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d conversation(s) deleted before %s\n", n, cutoff.UTC().Format(time.RFC3339))
	return err
}
