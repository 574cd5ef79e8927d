// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/safety"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/tools"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// Fixed assistant contents for turns that never reach a model or whose
// output is withheld.
const (
	BlockedInputMessage  = "Your message was blocked due to policy violations. Please rephrase and try again."
	BlockedOutputMessage = "This response was blocked due to policy violations."
	NoModelMessage       = "Error: No LLM provider configured for this conversation."
)

// Status is the terminal state of one orchestrator invocation.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusBlocked   Status = "blocked"
	StatusError     Status = "error"
)

// Turn is what one HandleUserMessage or Poll call produced.
type Turn struct {
	Status Status
	// UserMessage is nil for Poll.
	UserMessage *store.Message
	// AssistantMessage is nil when Poll made no progress or had no model.
	AssistantMessage *store.Message
	ToolResults      []tools.Result
	InputSafety      *safety.Result
	OutputSafety     *safety.ResponseResult
}

// SafetyMetadata renders the input and output passes for clients.
func (t *Turn) SafetyMetadata() map[string]any {
	m := map[string]any{}
	if t.InputSafety != nil {
		m["input_processing"] = t.InputSafety.Metadata()
	}
	if t.OutputSafety != nil {
		m["output_processing"] = t.OutputSafety.Metadata()
	}
	return m
}

// Catalog is the read-only configuration the orchestrator resolves against.
type Catalog interface {
	ResolveAgent(ctx context.Context, id string) (*store.Agent, error)
	ResolveModel(ctx context.Context, id string) (*store.Model, error)
	AgentTools(ctx context.Context, agentID string) ([]*store.Tool, error)
}

// SafetyPipeline runs the input and output passes.
type SafetyPipeline interface {
	Run(ctx context.Context, text string, mode types.SafetyMode) *safety.Result
	EvaluateResponse(ctx context.Context, text string) *safety.ResponseResult
}

// ProviderResolver maps a model entry onto a usable backend.
type ProviderResolver interface {
	Resolve(model *store.Model) provider.Provider
}

// ToolExecutor runs model-requested tool calls for an agent.
type ToolExecutor interface {
	Execute(ctx context.Context, agent *store.Agent, calls []provider.ToolCall) ([]tools.Result, error)
}

// Hooks provides optional test hooks fired as a turn enters each stage.
type Hooks struct {
	OnResolve       func()
	OnInputSafety   func()
	OnSend          func()
	OnPoll          func()
	OnToolExecution func()
	OnOutputSafety  func()
	OnCommit        func()
}

// Config holds dependencies for the Orchestrator.
type Config struct {
	Store     store.ConversationStore
	Catalog   Catalog
	Safety    SafetyPipeline
	Providers ProviderResolver
	Tools     ToolExecutor
	Hooks     *Hooks
}

// Orchestrator drives one conversation turn through input safety, the model
// backend, tool execution and output safety, then commits the assistant
// message. It keeps no per-conversation state between calls.
type Orchestrator struct {
	store     store.ConversationStore
	catalog   Catalog
	safety    SafetyPipeline
	providers ProviderResolver
	tools     ToolExecutor
	hooks     *Hooks
}

// New creates an Orchestrator. Every dependency except Hooks is required.
func New(cfg Config) (*Orchestrator, error) {
	var missing []string
	if cfg.Store == nil {
		missing = append(missing, "Store")
	}
	if cfg.Catalog == nil {
		missing = append(missing, "Catalog")
	}
	if cfg.Safety == nil {
		missing = append(missing, "Safety")
	}
	if cfg.Providers == nil {
		missing = append(missing, "Providers")
	}
	if cfg.Tools == nil {
		missing = append(missing, "Tools")
	}
	if len(missing) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"orchestrator missing dependencies: %s", strings.Join(missing, ", "))
	}

	return &Orchestrator{
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		safety:    cfg.Safety,
		providers: cfg.Providers,
		tools:     cfg.Tools,
		hooks:     cfg.Hooks,
	}, nil
}

// HandleUserMessage records text as a new user turn on conv and produces the
// assistant turn for it. Policy rejections, missing models and backend
// failures are reported through the returned Turn; the error is reserved for
// invalid input and storage failures.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, conv *store.Conversation, text string, mode types.SafetyMode) (*Turn, error) {
	if conv == nil || conv.ID == "" {
		return nil, sigilerr.New(sigilerr.CodeOrchestratorInvalidInput, "conversation is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, sigilerr.New(sigilerr.CodeOrchestratorInvalidInput, "message is required",
			sigilerr.FieldConversationID(conv.ID))
	}
	if !mode.Valid() {
		mode = types.DefaultSafetyMode
	}

	// RESOLVING
	o.fireHook(hookResolve)
	agent, model, err := o.resolve(ctx, conv)
	if err != nil {
		return nil, err
	}

	// INPUT_SAFETY: persisted before any backend sees the text.
	o.fireHook(hookInputSafety)
	input := o.safety.Run(ctx, text, mode)
	userMsg, err := o.store.AppendMessage(ctx, conv.ID, &store.Message{
		Role:       store.MessageRoleUser,
		Content:    text,
		SafetyData: map[string]any{"input_processing": input.Metadata()},
	})
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "appending user message",
			sigilerr.FieldConversationID(conv.ID))
	}
	turn := &Turn{UserMessage: userMsg, InputSafety: input, ToolResults: []tools.Result{}}

	if input.ShouldBlock {
		slog.Warn("user input blocked by guardrail",
			"conversation_id", conv.ID,
			"risk_score", input.Guardrail.RiskScore,
			"outcome", string(input.Guardrail.Outcome),
		)
		msg, err := o.commit(ctx, conv.ID, &store.Message{
			Role:    store.MessageRoleAssistant,
			Content: BlockedInputMessage,
			Blocked: true,
			AgentID: agentID(agent),
			ModelID: conv.ModelID,
		})
		if err != nil {
			return nil, err
		}
		turn.Status = StatusBlocked
		turn.AssistantMessage = msg
		return turn, nil
	}

	if model == nil {
		slog.Error("no model available for conversation", "conversation_id", conv.ID, "agent_id", agentID(agent))
		msg, err := o.commit(ctx, conv.ID, &store.Message{
			Role:    store.MessageRoleAssistant,
			Content: NoModelMessage,
			AgentID: agentID(agent),
		})
		if err != nil {
			return nil, err
		}
		turn.Status = StatusError
		turn.AssistantMessage = msg
		return turn, nil
	}

	// ROUTING
	history, err := o.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "loading history",
			sigilerr.FieldConversationID(conv.ID))
	}
	history = withProcessedText(history, userMsg.ID, input.Processed())

	backend := o.providers.Resolve(model)
	o.fireHook(hookSend)
	slog.Info("sending turn to backend",
		"conversation_id", conv.ID,
		"agent_id", agentID(agent),
		"model_id", model.ID,
		"backend", backend.Name(),
	)
	result := backend.Send(ctx, provider.Request{
		Conversation: conv,
		History:      history,
		Agent:        agent,
		Tools:        o.activeTools(ctx, agent),
	})

	if result.IsPending() {
		placeholder, err := o.commit(ctx, conv.ID, &store.Message{
			Role:    store.MessageRoleAssistant,
			Pending: true,
			AgentID: agentID(agent),
			ModelID: model.ID,
		})
		if err != nil {
			return nil, err
		}
		if err := o.store.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{
			Pending: &store.PendingTurn{Handle: result.PendingHandle, MessageID: placeholder.ID},
		}); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "recording pending turn",
				sigilerr.FieldConversationID(conv.ID))
		}
		conv.PendingHandle = result.PendingHandle
		conv.PendingMessageID = placeholder.ID

		slog.Info("backend turn pending", "conversation_id", conv.ID, "backend", backend.Name())
		turn.Status = StatusPending
		turn.AssistantMessage = placeholder
		return turn, nil
	}

	if err := o.finish(ctx, conv, agent, model, result, turn); err != nil {
		return nil, err
	}
	return turn, nil
}

// Poll resolves a previously pending turn. It is idempotent while the backend
// has not finished: nothing is written and the status stays pending.
func (o *Orchestrator) Poll(ctx context.Context, conv *store.Conversation) (*Turn, error) {
	if conv == nil || conv.ID == "" {
		return nil, sigilerr.New(sigilerr.CodeOrchestratorInvalidInput, "conversation is required")
	}

	o.fireHook(hookResolve)
	agent, model, err := o.resolve(ctx, conv)
	if err != nil {
		return nil, err
	}
	turn := &Turn{ToolResults: []tools.Result{}}
	if model == nil {
		slog.Error("no model available for polling", "conversation_id", conv.ID)
		turn.Status = StatusError
		return turn, nil
	}

	o.fireHook(hookPoll)
	result := o.providers.Resolve(model).Poll(ctx, conv)
	if result == nil || result.IsPending() {
		turn.Status = StatusPending
		return turn, nil
	}

	placeholderID := conv.PendingMessageID
	if err := o.finish(ctx, conv, agent, model, *result, turn); err != nil {
		return nil, err
	}

	if placeholderID != "" {
		if err := o.store.DeleteMessage(ctx, placeholderID); err != nil && !sigilerr.IsNotFound(err) {
			slog.Warn("removing pending placeholder failed",
				"conversation_id", conv.ID,
				"message_id", placeholderID,
				"error", err,
			)
		}
	}
	if conv.PendingHandle != "" || placeholderID != "" {
		if err := o.store.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{Pending: &store.PendingTurn{}}); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "clearing pending turn",
				sigilerr.FieldConversationID(conv.ID))
		}
		conv.PendingHandle = ""
		conv.PendingMessageID = ""
	}
	return turn, nil
}

// finish is the post-backend path shared by HandleUserMessage and Poll:
// tool execution, output safety, then commit.
func (o *Orchestrator) finish(ctx context.Context, conv *store.Conversation, agent *store.Agent, model *store.Model, result provider.Result, turn *Turn) error {
	if len(result.ToolCalls) > 0 {
		o.fireHook(hookToolExecution)
		turn.ToolResults = o.executeTools(ctx, conv.ID, agent, result.ToolCalls)
	}

	// OUTPUT_SAFETY
	o.fireHook(hookOutputSafety)
	output := o.safety.EvaluateResponse(ctx, result.Content)
	turn.OutputSafety = output

	content := output.ProcessedResponse
	if content == "" {
		content = result.Content
	}
	content += toolSummary(turn.ToolResults)

	metadata := map[string]any{"output_processing": output.Metadata()}
	if len(turn.ToolResults) > 0 {
		metadata["tool_results"] = turn.ToolResults
	}

	if output.ShouldFilter {
		slog.Warn("model response withheld by guardrail",
			"conversation_id", conv.ID,
			"model_id", model.ID,
			"risk_score", output.Guardrail.RiskScore,
		)
		content = BlockedOutputMessage
	}

	msg, err := o.commit(ctx, conv.ID, &store.Message{
		Role:       store.MessageRoleAssistant,
		Content:    content,
		Blocked:    output.ShouldFilter,
		AgentID:    agentID(agent),
		ModelID:    model.ID,
		SafetyData: metadata,
	})
	if err != nil {
		return err
	}
	turn.Status = StatusCompleted
	turn.AssistantMessage = msg
	return nil
}

// executeTools never fails the turn. A catalog mismatch is logged loudly;
// the affected calls already carry error results. A panic in the executor
// becomes an error result for every call.
func (o *Orchestrator) executeTools(ctx context.Context, conversationID string, agent *store.Agent, calls []provider.ToolCall) (results []tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool executor panicked", "conversation_id", conversationID, "panic", r)
			results = make([]tools.Result, 0, len(calls))
			for _, c := range calls {
				results = append(results, tools.Result{
					CallID: provider.CallID(c.CallID),
					ToolID: c.ToolID,
					Error:  fmt.Sprintf("tool execution failed: %v", r),
				})
			}
		}
	}()

	slog.Info("executing tool calls", "conversation_id", conversationID, "agent_id", agentID(agent), "count", len(calls))
	results, err := o.tools.Execute(ctx, agent, calls)
	if err != nil {
		slog.Error("tool catalog does not match handlers",
			"conversation_id", conversationID,
			"agent_id", agentID(agent),
			"error", err,
		)
	}
	if len(results) != len(calls) {
		slog.Error("tool executor returned wrong result count",
			"conversation_id", conversationID,
			"want", len(calls),
			"got", len(results),
		)
		results = alignResults(calls, results)
	}
	for _, r := range results {
		if !r.OK() {
			slog.Warn("tool call failed", "conversation_id", conversationID, "tool_id", r.ToolID, "call_id", r.CallID, "error", r.Error)
		}
	}
	return results
}

// alignResults pads or trims results so there is exactly one per call.
func alignResults(calls []provider.ToolCall, results []tools.Result) []tools.Result {
	out := make([]tools.Result, len(calls))
	for i, c := range calls {
		if i < len(results) {
			out[i] = results[i]
			continue
		}
		out[i] = tools.Result{CallID: provider.CallID(c.CallID), ToolID: c.ToolID, Error: "tool produced no result"}
	}
	return out
}

func (o *Orchestrator) commit(ctx context.Context, conversationID string, msg *store.Message) (*store.Message, error) {
	o.fireHook(hookCommit)
	saved, err := o.store.AppendMessage(ctx, conversationID, msg)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "committing assistant message",
			sigilerr.FieldConversationID(conversationID))
	}
	return saved, nil
}

// toolSummary renders a per-call outcome list appended to visible content.
func toolSummary(results []tools.Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n---\n**Tools Used:**\n")
	for _, r := range results {
		if r.OK() {
			fmt.Fprintf(&b, "- ✅ %s: Success\n", r.ToolID)
		} else {
			fmt.Fprintf(&b, "- ❌ %s: %s\n", r.ToolID, r.Error)
		}
	}
	return b.String()
}

// withProcessedText returns history with the user message's content replaced
// by the safety-processed text. Stored messages are not modified.
func withProcessedText(history []*store.Message, userMsgID, processed string) []*store.Message {
	out := make([]*store.Message, len(history))
	copy(out, history)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].ID == userMsgID {
			replaced := *out[i]
			replaced.Content = processed
			out[i] = &replaced
			break
		}
	}
	return out
}

func agentID(a *store.Agent) string {
	if a == nil {
		return ""
	}
	return a.ID
}

// hookKind identifies which hook to fire.
type hookKind int

const (
	hookResolve hookKind = iota
	hookInputSafety
	hookSend
	hookPoll
	hookToolExecution
	hookOutputSafety
	hookCommit
)

func (o *Orchestrator) fireHook(kind hookKind) {
	if o.hooks == nil {
		return
	}

	var fn func()
	switch kind {
	case hookResolve:
		fn = o.hooks.OnResolve
	case hookInputSafety:
		fn = o.hooks.OnInputSafety
	case hookSend:
		fn = o.hooks.OnSend
	case hookPoll:
		fn = o.hooks.OnPoll
	case hookToolExecution:
		fn = o.hooks.OnToolExecution
	case hookOutputSafety:
		fn = o.hooks.OnOutputSafety
	case hookCommit:
		fn = o.hooks.OnCommit
	}

	if fn != nil {
		fn()
	}
}
