// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func defaultRole(r store.Role) string {
	if r == "" {
		return string(store.RolePrivileged)
	}
	return string(r)
}

func (s *Store) UpsertModel(ctx context.Context, m *store.Model) error {
	if m.ID == "" || m.Backend == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "model id and backend are required")
	}
	config, err := encodeJSON(m.Config)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreInvalidInput, "encoding config for model %s", m.ID)
	}

	const q = `INSERT INTO models (` + modelColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
backend = excluded.backend, model_identifier = excluded.model_identifier, temperature = excluded.temperature,
max_tokens = excluded.max_tokens, supports_tool_calls = excluded.supports_tool_calls,
requires_polling = excluded.requires_polling, active = excluded.active, min_role = excluded.min_role,
display_order = excluded.display_order, config = excluded.config`

	_, err = s.db.ExecContext(ctx, q,
		m.ID, m.Name, m.Description, m.Backend, m.ModelIdentifier, m.Temperature, m.MaxTokens,
		boolInt(m.SupportsToolCalls), boolInt(m.RequiresPolling), boolInt(m.Active),
		defaultRole(m.MinRole), m.DisplayOrder, config,
	)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "upserting model %s", m.ID)
	}
	return nil
}

// UpsertAgent writes the agent and replaces its model and tool links.
func (s *Store) UpsertAgent(ctx context.Context, a *store.Agent) error {
	if a.ID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "agent id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "beginning upsert of agent %s", a.ID)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const q = `INSERT INTO agents (` + agentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
system_prompt = excluded.system_prompt, default_model_id = excluded.default_model_id,
active = excluded.active, min_role = excluded.min_role, display_order = excluded.display_order`

	if _, err := tx.ExecContext(ctx, q, a.ID, a.Name, a.Description, a.SystemPrompt, a.DefaultModelID,
		boolInt(a.Active), defaultRole(a.MinRole), a.DisplayOrder); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "upserting agent %s", a.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_models WHERE agent_id = ?`, a.ID); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "clearing models of agent %s", a.ID)
	}
	for _, id := range a.AllowedModelIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO agent_models (agent_id, model_id) VALUES (?, ?)`, a.ID, id); err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "linking model %s to agent %s", id, a.ID)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_tools WHERE agent_id = ?`, a.ID); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "clearing tools of agent %s", a.ID)
	}
	for _, id := range a.ToolIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO agent_tools (agent_id, tool_id) VALUES (?, ?)`, a.ID, id); err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "linking tool %s to agent %s", id, a.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "committing agent %s", a.ID)
	}
	return nil
}

func (s *Store) UpsertTool(ctx context.Context, t *store.Tool) error {
	if t.ID == "" || t.Category == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "tool id and category are required")
	}
	schema, err := encodeJSON(t.Schema)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreInvalidInput, "encoding schema for tool %s", t.ID)
	}

	const q = `INSERT INTO tools (id, name, category, description, schema, active, min_role, requires_auth)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, category = excluded.category,
description = excluded.description, schema = excluded.schema, active = excluded.active,
min_role = excluded.min_role, requires_auth = excluded.requires_auth`

	_, err = s.db.ExecContext(ctx, q, t.ID, t.Name, t.Category, t.Description, schema,
		boolInt(t.Active), defaultRole(t.MinRole), boolInt(t.RequiresAuth))
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "upserting tool %s", t.ID)
	}
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, u *store.User) error {
	if u.ID == "" || !u.Role.Valid() {
		return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "user %q needs an id and a valid role", u.ID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, role) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET role = excluded.role`,
		u.ID, string(u.Role))
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "upserting user %s", u.ID)
	}
	return nil
}
