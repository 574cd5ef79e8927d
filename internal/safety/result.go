// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package safety

import (
	"github.com/sigil-dev/aegis/pkg/types"
)

// Outcome is the verdict of a risk check.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	// OutcomeError means the scorer could not be reached. Processing continues
	// as if accepted.
	OutcomeError Outcome = "error"
)

// Guardrail is the result of one risk check.
type Guardrail struct {
	Outcome       Outcome
	RiskScore     float64
	PolicySignals []string
	Details       map[string]any
}

// Metadata renders g in the shape clients display.
func (g Guardrail) Metadata() map[string]any {
	signals := make([]any, 0, len(g.PolicySignals))
	for _, s := range g.PolicySignals {
		signals = append(signals, s)
	}
	details := g.Details
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"outcome":        string(g.Outcome),
		"risk_score":     g.RiskScore,
		"policy_signals": signals,
		"details":        details,
	}
}

// Entity is one detected sensitive span. Start and End are byte offsets into
// the Discovery text the entity was found in.
type Entity struct {
	Type  string
	Start int
	End   int
	Text  string
	Score float64
}

// Discovery is the output of entity discovery. Text is the exact string the
// entity offsets refer to, which may be a normalized form of the input.
type Discovery struct {
	Text     string
	Entities []Entity
}

// ByType groups entities by type in discovery order.
func (d Discovery) ByType() map[string][]Entity {
	out := make(map[string][]Entity)
	for _, e := range d.Entities {
		out[e.Type] = append(out[e.Type], e)
	}
	return out
}

// Metadata renders the discovery as {TYPE: [{score, location, entity_text}]}.
func (d Discovery) Metadata() map[string]any {
	out := make(map[string]any)
	for typ, entities := range d.ByType() {
		list := make([]any, 0, len(entities))
		for _, e := range entities {
			list = append(list, map[string]any{
				"score": e.Score,
				"location": map[string]any{
					"start_index": e.Start,
					"end_index":   e.End,
				},
				"entity_text": e.Text,
			})
		}
		out[typ] = list
	}
	return out
}

// Redaction reports how a transform went. Success is false when discovery or
// the transform failed and the original text was kept.
type Redaction struct {
	Success       bool
	Method        string
	EntitiesFound int
	Error         string
}

func (r Redaction) Metadata() map[string]any {
	m := map[string]any{
		"success":        r.Success,
		"method":         r.Method,
		"entities_found": r.EntitiesFound,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// Result is the outcome of running text through the pipeline. It is created
// once per evaluated text and never mutated afterwards.
type Result struct {
	OriginalText string
	// ProcessedText is nil when the text was blocked.
	ProcessedText *string
	ShouldBlock   bool
	Mode          types.SafetyMode
	Guardrail     Guardrail
	Discovery     Discovery
	// Redaction is nil when no transform ran.
	Redaction *Redaction
}

// Processed returns the processed text, or "" when blocked.
func (r *Result) Processed() string {
	if r == nil || r.ProcessedText == nil {
		return ""
	}
	return *r.ProcessedText
}

// Metadata renders the result for persistence next to the turn.
func (r *Result) Metadata() map[string]any {
	var processed any
	if r.ProcessedText != nil {
		processed = *r.ProcessedText
	}
	m := map[string]any{
		"original_text":  r.OriginalText,
		"processed_text": processed,
		"should_block":   r.ShouldBlock,
		"mode":           string(r.Mode),
		"guardrails":     r.Guardrail.Metadata(),
		"discovery":      r.Discovery.Metadata(),
		"redaction":      map[string]any{},
		"protection":     map[string]any{},
	}
	if r.Redaction != nil {
		key := "redaction"
		if r.Mode == types.SafetyModeProtect {
			key = "protection"
		}
		m[key] = r.Redaction.Metadata()
	}
	return m
}

// ResponseResult is the outcome of the output pass over model text.
type ResponseResult struct {
	OriginalResponse  string
	ProcessedResponse string
	// ShouldFilter asks the caller to replace the visible content entirely.
	ShouldFilter bool
	Guardrail    Guardrail
	Discovery    Discovery
	Redaction    Redaction
}

func (r *ResponseResult) Metadata() map[string]any {
	return map[string]any{
		"original_response":  r.OriginalResponse,
		"processed_response": r.ProcessedResponse,
		"should_filter":      r.ShouldFilter,
		"guardrails":         r.Guardrail.Metadata(),
		"discovery":          r.Discovery.Metadata(),
		"redaction":          r.Redaction.Metadata(),
	}
}
