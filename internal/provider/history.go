// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/sigil-dev/aegis/internal/store"
)

// Turn is one history entry in backend-neutral form.
type Turn struct {
	Role    store.MessageRole
	Content string
}

// Turns converts stored history into backend turns. Pending placeholders and
// empty messages are skipped.
func Turns(history []*store.Message) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		if m == nil || m.Pending || strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// SystemPrompt returns the agent's system prompt, or "" without an agent.
func SystemPrompt(agent *store.Agent) string {
	if agent == nil {
		return ""
	}
	return agent.SystemPrompt
}

// LastUserText returns the content of the most recent user message.
func LastUserText(history []*store.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] != nil && history[i].Role == store.MessageRoleUser {
			return history[i].Content
		}
	}
	return ""
}

// ParseArguments decodes a raw JSON tool-argument payload. Malformed or
// non-object payloads yield an empty map.
func ParseArguments(raw string, callID string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		slog.Warn("discarding malformed tool arguments", "call_id", callID, "error", err)
		return map[string]any{}
	}
	return args
}

// CallID returns id, or DefaultCallID when the backend sent none.
func CallID(id string) string {
	if id == "" {
		return DefaultCallID
	}
	return id
}

// ToolSchema returns the JSON schema a tool advertises, defaulting to an
// empty object schema.
func ToolSchema(t *store.Tool) map[string]any {
	if len(t.Schema) > 0 {
		return t.Schema
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// SchemaProperties splits an object schema into its properties and required
// field names.
func SchemaProperties(schema map[string]any) (map[string]any, []string) {
	props, _ := schema["properties"].(map[string]any)
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = r
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return props, required
}
