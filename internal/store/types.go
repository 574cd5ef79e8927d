// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "time"

// Role is the access tier of a user. Catalog resources carry a minimum role.
type Role string

const (
	RoleStandard   Role = "STANDARD"
	RolePrivileged Role = "PRIVILEGED"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStandard, RolePrivileged:
		return true
	default:
		return false
	}
}

// MessageRole identifies the author of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// User is the caller on whose behalf a turn runs.
type User struct {
	ID   string `json:"id" yaml:"id"`
	Role Role   `json:"role" yaml:"role"`
}

// Conversation is a thread of messages bound to an agent and a model.
// AgentID and ModelID are empty when unset.
type Conversation struct {
	ID      string
	Title   string
	UserID  string
	AgentID string
	ModelID string
	// PendingHandle is the backend job handle of an unresolved asynchronous
	// turn; PendingMessageID is the placeholder message created for it.
	PendingHandle    string
	PendingMessageID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// DefaultTitle is the title of a conversation before its first message.
const DefaultTitle = "New chat"

// Message is one persisted turn.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	AgentID        string
	ModelID        string
	SafetyData     map[string]any
	Pending        bool
	Blocked        bool
	CreatedAt      time.Time
}

// ConversationUpdate lists the attributes to change. Nil fields are left alone.
type ConversationUpdate struct {
	AgentID *string
	ModelID *string
	Title   *string
	// Pending replaces the pending handle and placeholder. A zero PendingTurn clears them.
	Pending *PendingTurn
}

// PendingTurn ties an asynchronous backend job to its placeholder message.
type PendingTurn struct {
	Handle    string
	MessageID string
}

// Model is a configured LLM backend entry.
type Model struct {
	ID                string         `yaml:"id"`
	Name              string         `yaml:"name"`
	Description       string         `yaml:"description"`
	Backend           string         `yaml:"backend"`
	ModelIdentifier   string         `yaml:"model_identifier"`
	Temperature       float64        `yaml:"temperature"`
	MaxTokens         int            `yaml:"max_tokens"`
	SupportsToolCalls bool           `yaml:"supports_tool_calls"`
	RequiresPolling   bool           `yaml:"requires_polling"`
	Active            bool           `yaml:"active"`
	MinRole           Role           `yaml:"min_role"`
	DisplayOrder      int            `yaml:"display_order"`
	Config            map[string]any `yaml:"config"`
}

// Agent is a configured assistant persona with its authorized tools.
type Agent struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	SystemPrompt    string   `yaml:"system_prompt"`
	DefaultModelID  string   `yaml:"default_model"`
	AllowedModelIDs []string `yaml:"allowed_models"`
	ToolIDs         []string `yaml:"tools"`
	Active          bool     `yaml:"active"`
	MinRole         Role     `yaml:"min_role"`
	DisplayOrder    int      `yaml:"display_order"`
}

// Tool is a capability a model may request on behalf of an agent.
type Tool struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Category     string         `yaml:"category"`
	Description  string         `yaml:"description"`
	Schema       map[string]any `yaml:"schema"`
	Active       bool           `yaml:"active"`
	MinRole      Role           `yaml:"min_role"`
	RequiresAuth bool           `yaml:"requires_auth"`
}

// AccessPolicy implementations.

func (m *Model) AccessPolicy() (bool, Role) { return m.Active, m.MinRole }
func (a *Agent) AccessPolicy() (bool, Role) { return a.Active, a.MinRole }
func (t *Tool) AccessPolicy() (bool, Role)  { return t.Active, t.MinRole }
