// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/store/sqlite"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func TestCatalog_ResolveModel(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedCatalog(t, s)

	m, err := s.ResolveModel(ctx, "gpt")
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Backend)
	assert.Equal(t, "gpt-4o", m.ModelIdentifier)
	assert.True(t, m.SupportsToolCalls)
	assert.Equal(t, "keyring://aegis/openai", m.Config["api_key_ref"])

	_, err = s.ResolveModel(ctx, "nope")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStoreModelNotFound))
}

func TestCatalog_EnabledBackends(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, sqlite.WithEnabledBackends("dummy"))
	seedCatalog(t, s)

	_, err := s.ResolveModel(ctx, "gpt")
	assert.True(t, sigilerr.IsNotFound(err), "models of disabled backends are hidden")

	models, err := s.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "dummy-1", models[0].ID)
}

func TestCatalog_ListModelsOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedCatalog(t, s)

	models, err := s.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gpt", models[0].ID)
	assert.Equal(t, "dummy-1", models[1].ID)
}

func TestCatalog_DefaultModelForUser(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		user    store.User
		wantID  string
		wantNil bool
	}{
		{name: "privileged gets first in display order", user: store.User{ID: "a", Role: store.RolePrivileged}, wantID: "gpt"},
		{name: "standard skips privileged models", user: store.User{ID: "b", Role: store.RoleStandard}, wantID: "dummy-1"},
		{name: "unknown role gets nothing", user: store.User{ID: "c", Role: "GUEST"}, wantNil: true},
	}

	s := openTestStore(t)
	seedCatalog(t, s)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := s.DefaultModelForUser(ctx, tt.user)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.wantID, m.ID)
		})
	}
}

func TestCatalog_ResolveAgent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedCatalog(t, s)

	a, err := s.ResolveAgent(ctx, "helper")
	require.NoError(t, err)
	assert.Equal(t, "Be helpful.", a.SystemPrompt)
	assert.Equal(t, "dummy-1", a.DefaultModelID)
	assert.ElementsMatch(t, []string{"dummy-1", "gpt"}, a.AllowedModelIDs)
	assert.ElementsMatch(t, []string{"safety-redact", "safety-classify"}, a.ToolIDs)

	// Upsert replaces links.
	a.ToolIDs = []string{"safety-guardrails"}
	require.NoError(t, s.UpsertAgent(ctx, a))
	a, err = s.ResolveAgent(ctx, "helper")
	require.NoError(t, err)
	assert.Equal(t, []string{"safety-guardrails"}, a.ToolIDs)

	_, err = s.ResolveAgent(ctx, "ghost")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStoreAgentNotFound))
}

func TestCatalog_AgentToolsIncludesInactive(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedCatalog(t, s)

	tools, err := s.AgentTools(ctx, "helper")
	require.NoError(t, err)
	require.Len(t, tools, 2)

	byID := map[string]*store.Tool{}
	for _, tool := range tools {
		byID[tool.ID] = tool
	}
	require.Contains(t, byID, "safety-classify")
	assert.False(t, byID["safety-classify"].Active)
	assert.True(t, byID["safety-redact"].Active)

	active, err := s.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2, "ListTools only returns active tools")
}

func TestCatalog_Users(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertUser(ctx, &store.User{ID: "alice", Role: store.RoleStandard}))
	require.NoError(t, s.UpsertUser(ctx, &store.User{ID: "alice", Role: store.RolePrivileged}))

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, store.RolePrivileged, u.Role)

	_, err = s.GetUser(ctx, "bob")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStoreUserNotFound))

	err = s.UpsertUser(ctx, &store.User{ID: "carol", Role: "ROOT"})
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestRegisteredBackend(t *testing.T) {
	b, err := store.Open(store.Config{Backend: "sqlite", Path: testDBPath(t, "registered")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	conv := &store.Conversation{}
	require.NoError(t, b.CreateConversation(context.Background(), conv))
}
