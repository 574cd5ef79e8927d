// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package orchestrator

import (
	"context"
	"log/slog"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// resolve loads the conversation's agent and model. When no model is set but
// the agent has a default, the default is adopted and written back so later
// turns see it as the conversation's own selection. Missing catalog entries
// resolve to nil; only storage failures are errors.
func (o *Orchestrator) resolve(ctx context.Context, conv *store.Conversation) (*store.Agent, *store.Model, error) {
	agent, err := o.lookupAgent(ctx, conv.AgentID)
	if err != nil {
		return nil, nil, err
	}
	model, err := o.lookupModel(ctx, conv.ModelID)
	if err != nil {
		return nil, nil, err
	}

	if model == nil && agent != nil && agent.DefaultModelID != "" {
		model, err = o.lookupModel(ctx, agent.DefaultModelID)
		if err != nil {
			return nil, nil, err
		}
		if model != nil {
			if err := o.store.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{ModelID: &model.ID}); err != nil {
				return nil, nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "adopting agent default model",
					sigilerr.FieldConversationID(conv.ID))
			}
			conv.ModelID = model.ID
			slog.Info("adopted agent default model",
				"conversation_id", conv.ID,
				"agent_id", agent.ID,
				"model_id", model.ID,
			)
		}
	}
	return agent, model, nil
}

func (o *Orchestrator) lookupAgent(ctx context.Context, id string) (*store.Agent, error) {
	if id == "" {
		return nil, nil
	}
	agent, err := o.catalog.ResolveAgent(ctx, id)
	if sigilerr.IsNotFound(err) {
		slog.Warn("conversation agent no longer exists", "agent_id", id)
		return nil, nil
	}
	return agent, err
}

func (o *Orchestrator) lookupModel(ctx context.Context, id string) (*store.Model, error) {
	if id == "" {
		return nil, nil
	}
	model, err := o.catalog.ResolveModel(ctx, id)
	if sigilerr.IsNotFound(err) {
		slog.Warn("conversation model no longer exists", "model_id", id)
		return nil, nil
	}
	return model, err
}

// activeTools lists the agent's active tools for the backend to advertise.
// Failures advertise nothing; the router still enforces authorization.
func (o *Orchestrator) activeTools(ctx context.Context, agent *store.Agent) []*store.Tool {
	if agent == nil {
		return nil
	}
	assigned, err := o.catalog.AgentTools(ctx, agent.ID)
	if err != nil {
		slog.Warn("loading agent tools failed, sending without tools", "agent_id", agent.ID, "error", err)
		return nil
	}
	out := make([]*store.Tool, 0, len(assigned))
	for _, t := range assigned {
		if t.Active {
			out = append(out, t)
		}
	}
	return out
}
