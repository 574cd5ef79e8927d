// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"

	"github.com/sigil-dev/aegis/internal/store"
)

// Provider is a uniform interface over one LLM backend. Implementations never
// return errors from Send or Poll: call-time failures become a completed
// Result carrying a user-facing warning.
type Provider interface {
	Name() string
	// Send submits the conversation history and returns a completed result or,
	// for asynchronous backends, a pending one.
	Send(ctx context.Context, req Request) Result
	// Poll returns nil when the backend has nothing to poll.
	Poll(ctx context.Context, conv *store.Conversation) *Result
}

// Status is the state of a provider result.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
)

// DefaultCallID is used for tool calls the backend did not identify.
const DefaultCallID = "unknown"

// Request is one send to a backend.
type Request struct {
	Conversation *store.Conversation
	// History is the full message list, oldest first. The latest user
	// message already carries its processed text.
	History []*store.Message
	Agent   *store.Agent
	// Tools are the agent's authorized, active tools. Backends attach them
	// only when the model supports tool calls.
	Tools []*store.Tool
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ToolID    string         `json:"tool_id"`
	CallID    string         `json:"call_id"`
	Arguments map[string]any `json:"arguments"`
}

// Result is the outcome of Send or Poll. A pending result has no content and
// no tool calls.
type Result struct {
	Status        Status
	Content       string
	PendingHandle string
	ToolCalls     []ToolCall
}

// Completed builds a completed result.
func Completed(content string, calls ...ToolCall) Result {
	return Result{Status: StatusCompleted, Content: content, ToolCalls: calls}
}

// Pending builds a pending result for the given backend job handle.
func Pending(handle string) Result {
	return Result{Status: StatusPending, PendingHandle: handle}
}

func (r Result) IsPending() bool { return r.Status == StatusPending }
