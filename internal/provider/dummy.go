// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sigil-dev/aegis/internal/store"
)

// Tool ids the dummy backend requests when trigger phrases appear in the
// user's message.
const (
	ToolRedact     = "safety-redact"
	ToolClassify   = "safety-classify"
	ToolGuardrails = "safety-guardrails"
)

type trigger struct {
	toolID  string
	phrases []string
}

var dummyTriggers = []trigger{
	{ToolRedact, []string{"ssn", "social security"}},
	{ToolClassify, []string{"classify", "find pii", "discover"}},
	{ToolGuardrails, []string{"guardrail", "check policy", "validate"}},
}

const echoLimit = 200

// Dummy is the credential-free fallback backend. It never touches the
// network and answers synchronously.
type Dummy struct {
	model *store.Model
}

var _ Provider = (*Dummy)(nil)

// NewDummy returns a fallback backend for model. A nil model gets a
// placeholder identity.
func NewDummy(model *store.Model) *Dummy {
	if model == nil {
		model = &store.Model{ID: "dummy", Name: "Dummy LLM", Backend: string(KindDummy)}
	}
	return &Dummy{model: model}
}

func (d *Dummy) Name() string { return string(KindDummy) }

// Model returns the identity the dummy answers as.
func (d *Dummy) Model() *store.Model { return d.model }

func (d *Dummy) Send(_ context.Context, req Request) Result {
	text := LastUserText(req.History)
	lower := strings.ToLower(text)

	var calls []ToolCall
	for _, tr := range dummyTriggers {
		for _, p := range tr.phrases {
			if strings.Contains(lower, p) {
				calls = append(calls, ToolCall{
					ToolID:    tr.toolID,
					CallID:    fmt.Sprintf("tool_call_%d", len(calls)+1),
					Arguments: map[string]any{"text": text},
				})
				break
			}
		}
	}

	agentName := "Default Agent"
	if req.Agent != nil && req.Agent.Name != "" {
		agentName = req.Agent.Name
	}
	modelName := d.model.Name
	if modelName == "" {
		modelName = "Dummy LLM"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 **Dummy Response** from **%s** using **%s**\n\n", agentName, modelName)
	if len(calls) > 0 {
		ids := make([]string, len(calls))
		for i, c := range calls {
			ids[i] = c.ToolID
		}
		fmt.Fprintf(&b, "I detected sensitive data or a request that requires safety tools. I will use %d tool(s) to process this safely.\n\n", len(calls))
		fmt.Fprintf(&b, "Tools requested: %s", strings.Join(ids, ", "))
		return Completed(b.String(), calls...)
	}

	echo := text
	if r := []rune(echo); len(r) > echoLimit {
		echo = string(r[:echoLimit]) + "..."
	}
	fmt.Fprintf(&b, "You said: \"%s\"\n\n", echo)
	b.WriteString("This is a simulated response. Configure real LLM credentials to get actual AI responses.\n\n")
	if req.Conversation != nil {
		fmt.Fprintf(&b, "Conversation ID: %s\n", req.Conversation.ID)
	}
	fmt.Fprintf(&b, "Message count: %d", len(req.History))
	return Completed(b.String())
}

// Poll returns nil: the dummy backend is synchronous.
func (d *Dummy) Poll(context.Context, *store.Conversation) *Result { return nil }
