// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/safety"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// DenialEscalationThreshold is the number of consecutive denied calls for
// one agent after which denials are logged at Error instead of Warn.
const DenialEscalationThreshold = 3

// Result is the outcome of one tool call. Exactly one of Output and Error
// is set.
type Result struct {
	CallID string         `json:"call_id"`
	ToolID string         `json:"tool_id"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// OK reports whether the call produced output.
func (r Result) OK() bool { return r.Error == "" }

// ToolLister returns every tool assigned to an agent, active or not.
type ToolLister interface {
	AgentTools(ctx context.Context, agentID string) ([]*store.Tool, error)
}

// SafetyPrimitives are the safety operations exposed as tools.
// *safety.Pipeline implements it.
type SafetyPrimitives interface {
	RedactText(ctx context.Context, text string) safety.Transform
	Classify(ctx context.Context, text string) (safety.Discovery, error)
	CheckGuardrail(ctx context.Context, text string, dir types.Direction) safety.Guardrail
	Protect(ctx context.Context, text string) safety.Transform
	Unprotect(ctx context.Context, text string) safety.Transform
}

// Config holds dependencies for Router.
type Config struct {
	Catalog ToolLister
	Safety  SafetyPrimitives
	// Timeout bounds each dispatch. Zero means no limit.
	Timeout time.Duration
	// EscalationThreshold defaults to DenialEscalationThreshold.
	EscalationThreshold int64
}

// Router validates model-requested tool calls against an agent's assigned
// tools and dispatches them.
type Router struct {
	catalog   ToolLister
	safety    SafetyPrimitives
	timeout   time.Duration
	threshold int64

	// denials counts consecutive denied calls per agent id. An authorized
	// call resets the agent's count.
	denials sync.Map // map[string]*atomic.Int64
}

// New creates a Router. Returns an error if required fields are nil.
func New(cfg Config) (*Router, error) {
	if cfg.Catalog == nil {
		return nil, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "tool router requires a catalog")
	}
	if cfg.Safety == nil {
		return nil, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "tool router requires safety primitives")
	}
	threshold := cfg.EscalationThreshold
	if threshold <= 0 {
		threshold = DenialEscalationThreshold
	}
	return &Router{catalog: cfg.Catalog, safety: cfg.Safety, timeout: cfg.Timeout, threshold: threshold}, nil
}

func notAuthorized(toolID string) string {
	return fmt.Sprintf("Tool '%s' not found or not authorized for this agent", toolID)
}

func disabled(toolID string) string {
	return fmt.Sprintf("Tool '%s' is currently disabled", toolID)
}

// Execute runs calls in order and returns one result per call. A failing
// call never affects its siblings. The returned error is non-nil only when a
// tool's category has no handler for its id; the affected calls still carry
// an error result.
func (r *Router) Execute(ctx context.Context, agent *store.Agent, calls []provider.ToolCall) ([]Result, error) {
	if len(calls) == 0 {
		return []Result{}, nil
	}

	var assigned map[string]*store.Tool
	if agent == nil {
		slog.Warn("tool calls requested without an agent, denying all", "calls", len(calls))
	} else {
		assigned = r.assignedTools(ctx, agent)
	}

	results := make([]Result, 0, len(calls))
	var mismatches []error
	for _, call := range calls {
		res := Result{CallID: provider.CallID(call.CallID), ToolID: call.ToolID}

		tool, ok := assigned[call.ToolID]
		switch {
		case !ok:
			res.Error = notAuthorized(call.ToolID)
			r.recordDenial(ctx, agent, res)
		case !tool.Active:
			res.Error = disabled(call.ToolID)
			r.recordDenial(ctx, agent, res)
		default:
			r.resetDenials(agent)
			output, err := r.dispatch(ctx, tool, call.Arguments)
			if err != nil {
				res.Error = err.Error()
				if sigilerr.HasCode(err, sigilerr.CodeToolCatalogMismatch) {
					mismatches = append(mismatches, err)
				}
				slog.Error("tool execution failed", "tool_id", call.ToolID, "call_id", res.CallID, "error", err)
			} else {
				res.Output = output
			}
		}
		results = append(results, res)
	}

	switch len(mismatches) {
	case 0:
		return results, nil
	case 1:
		return results, mismatches[0]
	default:
		return results, sigilerr.Wrap(errors.Join(mismatches...), sigilerr.CodeToolCatalogMismatch, "tool catalog mismatch")
	}
}

// assignedTools loads the agent's tools once per batch. A catalog failure
// leaves the set empty, so every call is denied.
func (r *Router) assignedTools(ctx context.Context, agent *store.Agent) map[string]*store.Tool {
	list, err := r.catalog.AgentTools(ctx, agent.ID)
	if err != nil {
		slog.Error("loading agent tools failed, denying all calls", "agent_id", agent.ID, "error", err)
		return nil
	}
	out := make(map[string]*store.Tool, len(list))
	for _, t := range list {
		out[t.ID] = t
	}
	return out
}

func (r *Router) counter(agentID string) *atomic.Int64 {
	v, _ := r.denials.LoadOrStore(agentID, &atomic.Int64{})
	return v.(*atomic.Int64)
}

func (r *Router) recordDenial(ctx context.Context, agent *store.Agent, res Result) {
	agentID := ""
	if agent != nil {
		agentID = agent.ID
	}
	consecutive := r.counter(agentID).Add(1)

	level := slog.LevelWarn
	if consecutive >= r.threshold {
		level = slog.LevelError
	}
	slog.Default().LogAttrs(ctx, level, "tool call denied",
		slog.String("agent_id", agentID),
		slog.String("tool_id", res.ToolID),
		slog.String("call_id", res.CallID),
		slog.String("reason", res.Error),
		slog.Int64("consecutive", consecutive),
	)
}

func (r *Router) resetDenials(agent *store.Agent) {
	if agent != nil {
		r.counter(agent.ID).Store(0)
	}
}

// ConsecutiveDenials reports the current denial streak for an agent.
func (r *Router) ConsecutiveDenials(agentID string) int64 {
	return r.counter(agentID).Load()
}

// dispatch routes by category. Panics in a handler become errors.
func (r *Router) dispatch(ctx context.Context, tool *store.Tool, args map[string]any) (out map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, sigilerr.New(sigilerr.CodeToolDispatchFailure, fmt.Sprintf("tool %s panicked: %v", tool.ID, rec),
				sigilerr.FieldToolID(tool.ID))
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	switch tool.Category {
	case CategorySafety:
		return r.executeSafety(ctx, tool.ID, args)
	default:
		slog.Warn("tool category not implemented", "tool_id", tool.ID, "category", tool.Category)
		return map[string]any{"warning": tool.Category + " not yet implemented"}, nil
	}
}
