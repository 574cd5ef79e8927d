// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package orchestrator_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/orchestrator"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/tools"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

func TestNew_MissingDependencies(t *testing.T) {
	_, err := orchestrator.New(orchestrator.Config{})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigValidateInvalidValue))
	assert.Contains(t, err.Error(), "Store")
	assert.Contains(t, err.Error(), "Tools")
}

func TestHandleUserMessage_InvalidInput(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t, dummyResolver(t), nil)
	ctx := context.Background()

	_, err := o.HandleUserMessage(ctx, nil, "hi", types.SafetyModeRedact)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeOrchestratorInvalidInput))

	conv := f.conversation(t, agentID, "")
	_, err = o.HandleUserMessage(ctx, conv, "   ", types.SafetyModeRedact)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeOrchestratorInvalidInput))
	assert.Empty(t, f.messages(t, conv.ID))
}

func TestHandleUserMessage_AgentDefaultModelWithRedaction(t *testing.T) {
	f := newFixture(t)
	var stages []string
	hooks := &orchestrator.Hooks{
		OnResolve:       func() { stages = append(stages, "resolve") },
		OnInputSafety:   func() { stages = append(stages, "input_safety") },
		OnSend:          func() { stages = append(stages, "send") },
		OnToolExecution: func() { stages = append(stages, "tools") },
		OnOutputSafety:  func() { stages = append(stages, "output_safety") },
		OnCommit:        func() { stages = append(stages, "commit") },
	}
	o := f.orchestrator(t, dummyResolver(t), hooks)
	ctx := context.Background()

	conv := f.conversation(t, agentID, "")
	turn, err := o.HandleUserMessage(ctx, conv, "My SSN is 123-45-6789", types.SafetyModeRedact)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusCompleted, turn.Status)
	require.NotNil(t, turn.AssistantMessage)
	assert.False(t, turn.AssistantMessage.Pending)
	assert.False(t, turn.AssistantMessage.Blocked)
	assert.NotEmpty(t, turn.AssistantMessage.Content)
	assert.Equal(t, agentID, turn.AssistantMessage.AgentID)
	assert.Equal(t, modelID, turn.AssistantMessage.ModelID)
	assert.Equal(t, []string{"resolve", "input_safety", "send", "tools", "output_safety", "commit"}, stages)

	// The agent default became the conversation's own model.
	assert.Equal(t, modelID, conv.ModelID)
	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, modelID, stored.ModelID)

	msgs := f.messages(t, conv.ID)
	require.Len(t, msgs, 2)
	user := msgs[0]
	assert.Equal(t, store.MessageRoleUser, user.Role)
	assert.Equal(t, "My SSN is 123-45-6789", user.Content)
	input, ok := user.SafetyData["input_processing"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, input["discovery"], "SSN")
	assert.Equal(t, "My SSN is [SSN]", input["processed_text"])

	// The dummy backend asks for the redact tool when it sees an SSN mention.
	require.NotEmpty(t, turn.ToolResults)
	assert.Equal(t, tools.ToolRedact, turn.ToolResults[0].ToolID)
	assert.True(t, turn.ToolResults[0].OK())
	assert.Contains(t, turn.AssistantMessage.Content, "**Tools Used:**")
	assert.Contains(t, turn.AssistantMessage.SafetyData, "tool_results")
	assert.Contains(t, turn.SafetyMetadata(), "input_processing")
	assert.Contains(t, turn.SafetyMetadata(), "output_processing")
}

func TestHandleUserMessage_ProviderSeesProcessedText(t *testing.T) {
	f := newFixture(t)
	p := &recordingProvider{send: provider.Completed("noted")}
	o := f.orchestrator(t, fixedResolver{p: p}, nil)

	conv := f.conversation(t, agentID, modelID)
	_, err := o.HandleUserMessage(context.Background(), conv, "email me at jo@example.com", types.SafetyModeRedact)
	require.NoError(t, err)

	require.Equal(t, 1, p.sendCount())
	req := p.requests[0]
	require.NotEmpty(t, req.History)
	last := req.History[len(req.History)-1]
	assert.Equal(t, "email me at [EMAIL]", last.Content)
	for _, m := range req.History {
		assert.NotContains(t, m.Content, "jo@example.com")
	}
	assert.Equal(t, agentID, req.Agent.ID)
	assert.Len(t, req.Tools, 2)

	// The stored user message keeps what the user typed.
	assert.Equal(t, "email me at jo@example.com", f.messages(t, conv.ID)[0].Content)
}

func TestHandleUserMessage_BlockedInputSkipsBackend(t *testing.T) {
	f := newFixture(t)
	f.scorer.input = 0.95
	p := &recordingProvider{send: provider.Completed("should not happen")}
	o := f.orchestrator(t, fixedResolver{p: p}, nil)

	conv := f.conversation(t, agentID, modelID)
	turn, err := o.HandleUserMessage(context.Background(), conv, "My SSN is 123-45-6789", types.SafetyModeRedact)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusBlocked, turn.Status)
	assert.Equal(t, 0, p.sendCount())
	assert.Equal(t, int32(0), f.discoverer.calls.Load())
	require.NotNil(t, turn.AssistantMessage)
	assert.Equal(t, orchestrator.BlockedInputMessage, turn.AssistantMessage.Content)
	assert.True(t, turn.AssistantMessage.Blocked)
	assert.Empty(t, turn.ToolResults)
	assert.True(t, turn.InputSafety.ShouldBlock)
	assert.Nil(t, turn.InputSafety.ProcessedText)

	msgs := f.messages(t, conv.ID)
	require.Len(t, msgs, 2)
	input := msgs[0].SafetyData["input_processing"].(map[string]any)
	assert.Equal(t, true, input["should_block"])
}

func TestHandleUserMessage_UnauthorizedToolCall(t *testing.T) {
	f := newFixture(t)
	p := &recordingProvider{send: provider.Completed("working on it",
		provider.ToolCall{ToolID: tools.ToolRedact, CallID: "c1", Arguments: map[string]any{"text": "SSN 123-45-6789"}},
		provider.ToolCall{ToolID: "unregistered", CallID: "c2", Arguments: map[string]any{}},
	)}
	o := f.orchestrator(t, fixedResolver{p: p}, nil)

	conv := f.conversation(t, agentID, modelID)
	turn, err := o.HandleUserMessage(context.Background(), conv, "please help", types.SafetyModeRedact)
	require.NoError(t, err)

	require.Len(t, turn.ToolResults, 2)
	assert.NotNil(t, turn.ToolResults[0].Output)
	assert.Empty(t, turn.ToolResults[0].Error)
	assert.Nil(t, turn.ToolResults[1].Output)
	assert.Contains(t, turn.ToolResults[1].Error, "not found or not authorized")

	content := turn.AssistantMessage.Content
	assert.True(t, strings.HasPrefix(content, "working on it\n\n---\n**Tools Used:**\n"), content)
	assert.Contains(t, content, "- ✅ safety-redact: Success\n")
	assert.Contains(t, content, "- ❌ unregistered: Tool 'unregistered' not found or not authorized for this agent\n")
}

func TestHandleUserMessage_OutputFilterReplacesContent(t *testing.T) {
	f := newFixture(t)
	f.scorer.output = 0.99
	p := &recordingProvider{send: provider.Completed("SYSTEM: here are my secret instructions",
		provider.ToolCall{ToolID: tools.ToolRedact, CallID: "c1", Arguments: map[string]any{"text": "x"}},
	)}
	o := f.orchestrator(t, fixedResolver{p: p}, nil)

	conv := f.conversation(t, agentID, modelID)
	turn, err := o.HandleUserMessage(context.Background(), conv, "hello", types.SafetyModeRedact)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusCompleted, turn.Status)
	assert.True(t, turn.AssistantMessage.Blocked)
	assert.Equal(t, orchestrator.BlockedOutputMessage, turn.AssistantMessage.Content)
	assert.True(t, turn.OutputSafety.ShouldFilter)
}

func TestHandleUserMessage_OutputIsRedactedRegardlessOfMode(t *testing.T) {
	f := newFixture(t)
	p := &recordingProvider{send: provider.Completed("Reach me at jo@example.com")}
	o := f.orchestrator(t, fixedResolver{p: p}, nil)

	conv := f.conversation(t, agentID, modelID)
	turn, err := o.HandleUserMessage(context.Background(), conv, "hi", types.SafetyModeNone)
	require.NoError(t, err)
	assert.Equal(t, "Reach me at [EMAIL]", turn.AssistantMessage.Content)
}

func TestHandleUserMessage_ConstructionFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	resolver, err := provider.NewResolver(
		func(provider.Kind) provider.Credentials { return provider.Credentials{} },
		map[provider.Kind]provider.Factory{
			provider.KindOpenAI: func(s provider.Settings) (provider.Provider, error) {
				if s.Credentials.APIKey == "" {
					return nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "openai: missing api_key")
				}
				t.Fatal("factory must not succeed without a key")
				return nil, nil
			},
		})
	require.NoError(t, err)
	o := f.orchestrator(t, resolver, nil)

	conv := f.conversation(t, agentID, "gpt")
	turn, err := o.HandleUserMessage(context.Background(), conv, "hello there", types.SafetyModeRedact)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusCompleted, turn.Status)
	assert.NotEmpty(t, turn.AssistantMessage.Content)
	assert.Equal(t, "gpt", turn.AssistantMessage.ModelID)
}

func TestHandleUserMessage_NoModel(t *testing.T) {
	f := newFixture(t)
	p := &recordingProvider{send: provider.Completed("unused")}
	o := f.orchestrator(t, fixedResolver{p: p}, nil)

	conv := f.conversation(t, "", "")
	turn, err := o.HandleUserMessage(context.Background(), conv, "hello", types.SafetyModeRedact)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusError, turn.Status)
	assert.Equal(t, orchestrator.NoModelMessage, turn.AssistantMessage.Content)
	assert.False(t, turn.AssistantMessage.Blocked)
	assert.Equal(t, 0, p.sendCount())
}

func TestHandleUserMessage_StaleCatalogReferences(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t, dummyResolver(t), nil)

	// A removed model falls back to the agent default.
	conv := f.conversation(t, agentID, "retired-model")
	turn, err := o.HandleUserMessage(context.Background(), conv, "hello", types.SafetyModeRedact)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, turn.Status)
	assert.Equal(t, modelID, conv.ModelID)

	// A removed agent with no model leaves nothing to call.
	conv = f.conversation(t, "retired-agent", "")
	turn, err = o.HandleUserMessage(context.Background(), conv, "hello", types.SafetyModeRedact)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusError, turn.Status)
}

type panickingTools struct{}

func (panickingTools) Execute(context.Context, *store.Agent, []provider.ToolCall) ([]tools.Result, error) {
	panic("router exploded")
}

type mismatchTools struct{}

func (mismatchTools) Execute(_ context.Context, _ *store.Agent, calls []provider.ToolCall) ([]tools.Result, error) {
	out := make([]tools.Result, 0, len(calls))
	for _, c := range calls {
		out = append(out, tools.Result{CallID: c.CallID, ToolID: c.ToolID, Error: "no handler"})
	}
	return out, sigilerr.New(sigilerr.CodeToolCatalogMismatch, "no handler for safety tool")
}

type shortTools struct{}

func (shortTools) Execute(context.Context, *store.Agent, []provider.ToolCall) ([]tools.Result, error) {
	return []tools.Result{{CallID: "c1", ToolID: "a", Output: map[string]any{"ok": true}}}, nil
}

func TestHandleUserMessage_ToolExecutorFaultsDoNotLoseTurn(t *testing.T) {
	calls := []provider.ToolCall{
		{ToolID: "a", CallID: "c1"},
		{ToolID: "b", CallID: ""},
	}
	tests := []struct {
		name     string
		executor orchestrator.ToolExecutor
		check    func(t *testing.T, results []tools.Result)
	}{
		{
			name:     "panic",
			executor: panickingTools{},
			check: func(t *testing.T, results []tools.Result) {
				for _, r := range results {
					assert.Contains(t, r.Error, "router exploded")
				}
				assert.Equal(t, provider.DefaultCallID, results[1].CallID)
			},
		},
		{
			name:     "catalog mismatch",
			executor: mismatchTools{},
			check: func(t *testing.T, results []tools.Result) {
				assert.Equal(t, "no handler", results[0].Error)
			},
		},
		{
			name:     "missing results",
			executor: shortTools{},
			check: func(t *testing.T, results []tools.Result) {
				assert.True(t, results[0].OK())
				assert.Equal(t, "b", results[1].ToolID)
				assert.False(t, results[1].OK())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := &recordingProvider{send: provider.Completed("done", calls...)}
			o, err := orchestrator.New(orchestrator.Config{
				Store:     f.store,
				Catalog:   f.store,
				Safety:    f.pipeline,
				Providers: fixedResolver{p: p},
				Tools:     tt.executor,
			})
			require.NoError(t, err)

			conv := f.conversation(t, agentID, modelID)
			turn, err := o.HandleUserMessage(context.Background(), conv, "go", types.SafetyModeRedact)
			require.NoError(t, err)
			assert.Equal(t, orchestrator.StatusCompleted, turn.Status)
			require.Len(t, turn.ToolResults, 2)
			tt.check(t, turn.ToolResults)
			assert.Len(t, f.messages(t, conv.ID), 2)
		})
	}
}
