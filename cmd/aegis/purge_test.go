// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func TestPurgeCommand(t *testing.T) {
	isolateEnv(t)
	useSecretStore(t, newMockSecretStore())

	cfgPath, dbPath := writeTestConfig(t, "")
	ctx := context.Background()

	func() {
		backend, err := store.Open(store.Config{Backend: "sqlite", Path: dbPath})
		require.NoError(t, err)
		defer func() { _ = backend.Close() }()

		for _, id := range []string{"old", "live"} {
			require.NoError(t, backend.CreateConversation(ctx, &store.Conversation{ID: id, UserID: "u1"}))
		}
		require.NoError(t, backend.DeleteConversation(ctx, "old"))
	}()

	t.Run("recent deletions are kept", func(t *testing.T) {
		out, err := runCmd(t, "", "purge", "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Purged 0 conversation(s)")
	})

	t.Run("old deletions are removed", func(t *testing.T) {
		orig := now
		now = func() time.Time { return time.Now().Add(48 * time.Hour) }
		t.Cleanup(func() { now = orig })

		out, err := runCmd(t, "", "purge", "--config", cfgPath, "--older-than", "24h")
		require.NoError(t, err)
		assert.Contains(t, out, "Purged 1 conversation(s)")

		conv, err := openTestStore(t, dbPath).GetConversation(ctx, "live")
		require.NoError(t, err)
		assert.Equal(t, "live", conv.ID)
	})

	t.Run("negative age", func(t *testing.T) {
		_, err := runCmd(t, "", "purge", "--config", cfgPath, "--older-than", "-1h")
		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeCLIInputInvalid))
	})
}
