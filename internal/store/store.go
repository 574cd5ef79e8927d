// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"time"
)

// ConversationStore persists conversations and their messages. Soft-deleted
// conversations and messages are invisible: lookups report not found.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) error
	DeleteConversation(ctx context.Context, id string) error
	// PurgeConversations hard-deletes conversations soft-deleted before cutoff.
	PurgeConversations(ctx context.Context, cutoff time.Time) (int64, error)

	// AppendMessage stores msg, assigning ID and CreatedAt when empty.
	AppendMessage(ctx context.Context, conversationID string, msg *Message) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

// Catalog is the read side of agent, model and tool configuration.
type Catalog interface {
	ResolveAgent(ctx context.Context, id string) (*Agent, error)
	ResolveModel(ctx context.Context, id string) (*Model, error)
	// AgentTools returns every tool assigned to the agent, active or not.
	AgentTools(ctx context.Context, agentID string) ([]*Tool, error)
	// DefaultModelForUser returns nil without error when no model is accessible.
	DefaultModelForUser(ctx context.Context, user User) (*Model, error)

	ListAgents(ctx context.Context) ([]*Agent, error)
	ListModels(ctx context.Context) ([]*Model, error)
	ListTools(ctx context.Context) ([]*Tool, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

// CatalogWriter upserts catalog entries. Used by seeding, not by turns.
type CatalogWriter interface {
	UpsertModel(ctx context.Context, m *Model) error
	UpsertAgent(ctx context.Context, a *Agent) error
	UpsertTool(ctx context.Context, t *Tool) error
	UpsertUser(ctx context.Context, u *User) error
}

// Backend bundles every store role a storage backend provides.
type Backend interface {
	ConversationStore
	Catalog
	CatalogWriter
	Close() error
}
