// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

const modelColumns = `id, name, description, backend, model_identifier, temperature, max_tokens,
supports_tool_calls, requires_polling, active, min_role, display_order, config`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*store.Model, error) {
	var (
		m                      store.Model
		tools, polling, active int
		minRole, config        string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Backend, &m.ModelIdentifier, &m.Temperature,
		&m.MaxTokens, &tools, &polling, &active, &minRole, &m.DisplayOrder, &config); err != nil {
		return nil, err
	}
	m.SupportsToolCalls = tools != 0
	m.RequiresPolling = polling != 0
	m.Active = active != 0
	m.MinRole = store.Role(minRole)
	m.Config = decodeJSON(config)
	return &m, nil
}

func (s *Store) backendEnabled(backend string) bool {
	return len(s.enabled) == 0 || s.enabled[backend]
}

// ResolveModel returns an active model whose backend is enabled.
func (s *Store) ResolveModel(ctx context.Context, id string) (*store.Model, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ? AND active = 1`, id)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreModelNotFound, "model %s not found", id)
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "getting model %s", id)
	}
	if !s.backendEnabled(m.Backend) {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreModelNotFound, "model %s backend %s is not enabled", id, m.Backend)
	}
	return m, nil
}

// ListModels returns every active model of an enabled backend in display order.
func (s *Store) ListModels(ctx context.Context) ([]*store.Model, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+modelColumns+` FROM models WHERE active = 1 ORDER BY display_order ASC, name ASC`)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "listing models")
	}
	defer rows.Close()

	var models []*store.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "scanning model row")
		}
		if s.backendEnabled(m.Backend) {
			models = append(models, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "iterating model rows")
	}
	return models, nil
}

func (s *Store) DefaultModelForUser(ctx context.Context, user store.User) (*store.Model, error) {
	models, err := s.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if store.IsAuthorized(user, m) {
			return m, nil
		}
	}
	return nil, nil
}

const agentColumns = `id, name, description, system_prompt, default_model_id, active, min_role, display_order`

func scanAgent(row rowScanner) (*store.Agent, error) {
	var (
		a       store.Agent
		active  int
		minRole string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.SystemPrompt, &a.DefaultModelID,
		&active, &minRole, &a.DisplayOrder); err != nil {
		return nil, err
	}
	a.Active = active != 0
	a.MinRole = store.Role(minRole)
	return &a, nil
}

// ResolveAgent returns an active agent with its allowed models and tool ids.
func (s *Store) ResolveAgent(ctx context.Context, id string) (*store.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ? AND active = 1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreAgentNotFound, "agent %s not found", id)
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "getting agent %s", id)
	}
	if err := s.loadAgentLinks(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) loadAgentLinks(ctx context.Context, a *store.Agent) error {
	var err error
	a.AllowedModelIDs, err = s.queryIDs(ctx, `SELECT model_id FROM agent_models WHERE agent_id = ? ORDER BY model_id`, a.ID)
	if err != nil {
		return err
	}
	a.ToolIDs, err = s.queryIDs(ctx, `SELECT tool_id FROM agent_tools WHERE agent_id = ? ORDER BY tool_id`, a.ID)
	return err
}

func (s *Store) queryIDs(ctx context.Context, q string, arg string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "querying links for %s", arg)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "scanning link row")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListAgents(ctx context.Context) ([]*store.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE active = 1 ORDER BY display_order ASC, name ASC`)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "listing agents")
	}

	var agents []*store.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			rows.Close()
			return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "scanning agent row")
		}
		agents = append(agents, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "iterating agent rows")
	}

	for _, a := range agents {
		if err := s.loadAgentLinks(ctx, a); err != nil {
			return nil, err
		}
	}
	return agents, nil
}

const toolColumns = `t.id, t.name, t.category, t.description, t.schema, t.active, t.min_role, t.requires_auth`

func scanTool(row rowScanner) (*store.Tool, error) {
	var (
		t                    store.Tool
		schema, minRole      string
		active, requiresAuth int
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Category, &t.Description, &schema, &active, &minRole, &requiresAuth); err != nil {
		return nil, err
	}
	t.Schema = decodeJSON(schema)
	t.Active = active != 0
	t.MinRole = store.Role(minRole)
	t.RequiresAuth = requiresAuth != 0
	return &t, nil
}

func (s *Store) AgentTools(ctx context.Context, agentID string) ([]*store.Tool, error) {
	return s.queryTools(ctx, `SELECT `+toolColumns+` FROM tools t
JOIN agent_tools agt ON agt.tool_id = t.id WHERE agt.agent_id = ? ORDER BY t.name ASC`, agentID)
}

func (s *Store) ListTools(ctx context.Context) ([]*store.Tool, error) {
	return s.queryTools(ctx, `SELECT `+toolColumns+` FROM tools t WHERE t.active = 1 ORDER BY t.name ASC`)
}

func (s *Store) queryTools(ctx context.Context, q string, args ...any) ([]*store.Tool, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "listing tools")
	}
	defer rows.Close()

	var tools []*store.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "scanning tool row")
		}
		tools = append(tools, t)
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "iterating tool rows")
	}
	return tools, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT id, role FROM users WHERE id = ?`, id).Scan(&u.ID, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreUserNotFound, "user %s not found", id)
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "getting user %s", id)
	}
	u.Role = store.Role(role)
	return &u, nil
}
