// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/store"
	_ "github.com/sigil-dev/aegis/internal/store/sqlite"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func openTestStore(t *testing.T, dbPath string) store.Backend {
	t.Helper()
	backend, err := store.Open(store.Config{Backend: "sqlite", Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestParseSeed_Default(t *testing.T) {
	seed, err := parseSeed(defaultSeedYAML)
	require.NoError(t, err)

	assert.Len(t, seed.Models, 7)
	assert.Len(t, seed.Tools, 5)
	assert.Len(t, seed.Agents, 2)
	assert.Empty(t, seed.Users)

	byID := map[string]*store.Model{}
	for _, m := range seed.Models {
		byID[m.ID] = m
	}
	require.Contains(t, byID, "dummy")
	assert.Equal(t, "dummy", byID["dummy"].Backend)
	require.Contains(t, byID, "background-research")
	assert.True(t, byID["background-research"].RequiresPolling)
	assert.Equal(t, store.RolePrivileged, byID["background-research"].MinRole)
}

func TestParseSeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "unknown top-level key", raw: "widgets: []\n"},
		{name: "unknown model field", raw: "models:\n  - id: m\n    colour: blue\n"},
		{name: "malformed yaml", raw: "models: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, sigilerr.HasCode(err, sigilerr.CodeCLIInputInvalid))
		})
	}
}

func TestApplySeed_Idempotent(t *testing.T) {
	backend := openTestStore(t, filepath.Join(t.TempDir(), "aegis.db"))
	seed, err := parseSeed(defaultSeedYAML)
	require.NoError(t, err)

	ctx := context.Background()
	for range 2 {
		counts, err := applySeed(ctx, backend, seed)
		require.NoError(t, err)
		assert.Equal(t, seedCounts{Models: 7, Tools: 5, Agents: 2}, counts)
	}

	models, err := backend.ListModels(ctx)
	require.NoError(t, err)
	assert.Len(t, models, 7)

	tools, err := backend.AgentTools(ctx, "data-protection-expert")
	require.NoError(t, err)
	assert.Len(t, tools, 3)
}

func TestSeedCommand(t *testing.T) {
	isolateEnv(t)
	useSecretStore(t, newMockSecretStore())

	t.Run("built-in defaults", func(t *testing.T) {
		cfgPath, dbPath := writeTestConfig(t, "")

		out, err := runCmd(t, "", "seed", "--config", cfgPath)
		require.NoError(t, err)
		assert.Equal(t, "Seeded 7 model(s), 5 tool(s), 2 agent(s), 0 user(s) from built-in defaults\n", out)

		m, err := openTestStore(t, dbPath).ResolveModel(context.Background(), "dummy")
		require.NoError(t, err)
		assert.Equal(t, "Dummy LLM", m.Name)
	})

	t.Run("custom file with users", func(t *testing.T) {
		cfgPath, dbPath := writeTestConfig(t, "")
		seedPath := filepath.Join(t.TempDir(), "seed.yaml")
		require.NoError(t, os.WriteFile(seedPath, []byte(`models:
  - id: local
    name: Local
    backend: dummy
    active: true
    min_role: STANDARD
users:
  - id: alice
    role: PRIVILEGED
`), 0o600))

		out, err := runCmd(t, "", "seed", seedPath, "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Seeded 1 model(s), 0 tool(s), 0 agent(s), 1 user(s) from "+seedPath)

		u, err := openTestStore(t, dbPath).GetUser(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, store.RolePrivileged, u.Role)
	})

	t.Run("missing file", func(t *testing.T) {
		cfgPath, _ := writeTestConfig(t, "")
		_, err := runCmd(t, "", "seed", filepath.Join(t.TempDir(), "absent.yaml"), "--config", cfgPath)
		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeCLIInputInvalid))
	})
}
