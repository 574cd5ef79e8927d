// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/store/sqlite"
)

// testDir creates a temp directory for a test and returns cleanup func.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "aegis-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

func openTestStore(t *testing.T, opts ...sqlite.Option) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(testDBPath(t, "aegis"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedCatalog writes a small catalog: two models, one agent, three tools.
func seedCatalog(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertModel(ctx, &store.Model{
		ID: "dummy-1", Name: "Dummy", Backend: "dummy", Active: true,
		MinRole: store.RoleStandard, DisplayOrder: 2, MaxTokens: 1024,
	}))
	require.NoError(t, s.UpsertModel(ctx, &store.Model{
		ID: "gpt", Name: "GPT", Backend: "openai", ModelIdentifier: "gpt-4o", Active: true,
		MinRole: store.RolePrivileged, DisplayOrder: 1, SupportsToolCalls: true,
		Config: map[string]any{"api_key_ref": "keyring://aegis/openai"},
	}))
	require.NoError(t, s.UpsertTool(ctx, &store.Tool{
		ID: "safety-redact", Name: "Redact", Category: "safety", Active: true, MinRole: store.RoleStandard,
	}))
	require.NoError(t, s.UpsertTool(ctx, &store.Tool{
		ID: "safety-classify", Name: "Classify", Category: "safety", Active: false, MinRole: store.RoleStandard,
	}))
	require.NoError(t, s.UpsertTool(ctx, &store.Tool{
		ID: "safety-guardrails", Name: "Guardrails", Category: "safety", Active: true, MinRole: store.RoleStandard,
	}))
	require.NoError(t, s.UpsertAgent(ctx, &store.Agent{
		ID: "helper", Name: "Helper", SystemPrompt: "Be helpful.", DefaultModelID: "dummy-1",
		AllowedModelIDs: []string{"dummy-1", "gpt"},
		ToolIDs:         []string{"safety-redact", "safety-classify"},
		Active:          true, MinRole: store.RoleStandard,
	}))
}
