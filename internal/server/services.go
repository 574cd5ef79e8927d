// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"time"

	"github.com/sigil-dev/aegis/internal/orchestrator"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/secrets"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// TurnHandler runs conversation turns. *orchestrator.Orchestrator implements it.
type TurnHandler interface {
	HandleUserMessage(ctx context.Context, conv *store.Conversation, text string, mode types.SafetyMode) (*orchestrator.Turn, error)
	Poll(ctx context.Context, conv *store.Conversation) (*orchestrator.Turn, error)
}

// HealthReporter reports per-backend health. *provider.Resolver implements it.
type HealthReporter interface {
	Health(kind provider.Kind) provider.HealthMetrics
}

// KeyValidator checks an API key against the backend before it is stored.
type KeyValidator func(ctx context.Context, kind provider.Kind, creds provider.Credentials) error

// Services holds dependencies injected into route handlers.
type Services struct {
	Conversations store.ConversationStore
	Catalog       store.Catalog
	Turns         TurnHandler
	// Health is optional; model listings omit health without it.
	Health HealthReporter
	// Secrets and ValidateKey enable the provider key endpoint. Both or neither.
	Secrets     secrets.Store
	ValidateKey KeyValidator
}

func (s *Services) validate() error {
	switch {
	case s == nil:
		return sigilerr.New(sigilerr.CodeServerConfigInvalid, "services are required")
	case s.Conversations == nil:
		return sigilerr.New(sigilerr.CodeServerConfigInvalid, "conversation store is required")
	case s.Catalog == nil:
		return sigilerr.New(sigilerr.CodeServerConfigInvalid, "catalog is required")
	case s.Turns == nil:
		return sigilerr.New(sigilerr.CodeServerConfigInvalid, "turn handler is required")
	case (s.Secrets == nil) != (s.ValidateKey == nil):
		return sigilerr.New(sigilerr.CodeServerConfigInvalid, "secrets and key validator must be set together")
	}
	return nil
}

// MessageView is the REST representation of a stored message.
type MessageView struct {
	ID         string         `json:"id"`
	Role       string         `json:"role" enum:"user,assistant,system"`
	Content    string         `json:"content"`
	AgentID    string         `json:"agent_id,omitempty"`
	ModelID    string         `json:"model_id,omitempty"`
	Pending    bool           `json:"pending"`
	Blocked    bool           `json:"blocked"`
	SafetyData map[string]any `json:"safety_data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func messageView(m *store.Message) MessageView {
	return MessageView{
		ID:         m.ID,
		Role:       string(m.Role),
		Content:    m.Content,
		AgentID:    m.AgentID,
		ModelID:    m.ModelID,
		Pending:    m.Pending,
		Blocked:    m.Blocked,
		SafetyData: m.SafetyData,
		CreatedAt:  m.CreatedAt,
	}
}

// ConversationView is a conversation with its visible messages.
type ConversationView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	AgentID   string        `json:"agent_id,omitempty"`
	ModelID   string        `json:"model_id,omitempty"`
	Pending   bool          `json:"pending" doc:"An asynchronous turn awaits polling"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []MessageView `json:"messages"`
}

// ModelView is a model the caller may select.
type ModelView struct {
	ID                string                  `json:"id"`
	Name              string                  `json:"name"`
	Description       string                  `json:"description,omitempty"`
	Backend           string                  `json:"backend"`
	SupportsToolCalls bool                    `json:"supports_tool_calls"`
	RequiresPolling   bool                    `json:"requires_polling"`
	Health            *provider.HealthMetrics `json:"health,omitempty"`
}

// AgentView is an agent the caller may select.
type AgentView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	DefaultModelID string `json:"default_model_id,omitempty"`
}

// ToolView is a tool the caller may see.
type ToolView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}
