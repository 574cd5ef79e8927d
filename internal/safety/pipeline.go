// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package safety

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

const (
	// DefaultThreshold is the risk score above which text is rejected.
	DefaultThreshold = 0.8
	// DefaultScoreThreshold is the minimum discovery confidence kept.
	DefaultScoreThreshold = 0.6
	// DefaultTimeout bounds each call to a remote safety service.
	DefaultTimeout = 10 * time.Second
)

// Backend selects where risk scoring and discovery run.
type Backend string

const (
	BackendHTTP  Backend = "http"
	BackendLocal Backend = "local"
)

// Config configures a Pipeline built by NewFromConfig.
type Config struct {
	// Backend defaults to http when both URLs are set, local otherwise.
	Backend        Backend
	GuardrailURL   string
	DiscoveryURL   string
	Threshold      float64
	ScoreThreshold float64
	Timeout        time.Duration
}

// Pipeline evaluates text for policy risk and sensitive entities and
// transforms it according to a safety mode. It holds no per-call state and is
// safe for concurrent use.
type Pipeline struct {
	scorer     Scorer
	discoverer Discoverer
	threshold  float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithThreshold sets the rejection threshold.
func WithThreshold(t float64) Option {
	return func(p *Pipeline) { p.threshold = t }
}

// New builds a pipeline from its two collaborators.
func New(scorer Scorer, discoverer Discoverer, opts ...Option) (*Pipeline, error) {
	if scorer == nil || discoverer == nil {
		return nil, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "safety pipeline needs a scorer and a discoverer")
	}
	p := &Pipeline{scorer: scorer, discoverer: discoverer, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(p)
	}
	if p.threshold < 0 || p.threshold > 1 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "risk threshold %v outside [0,1]", p.threshold)
	}
	return p, nil
}

// NewFromConfig builds a pipeline with HTTP or local collaborators.
func NewFromConfig(cfg Config) (*Pipeline, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendLocal
		if cfg.GuardrailURL != "" && cfg.DiscoveryURL != "" {
			backend = BackendHTTP
		}
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	switch backend {
	case BackendHTTP:
		if cfg.GuardrailURL == "" || cfg.DiscoveryURL == "" {
			return nil, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue,
				"http safety backend needs both guardrail_url and discovery_url")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		scoreThreshold := cfg.ScoreThreshold
		if scoreThreshold == 0 {
			scoreThreshold = DefaultScoreThreshold
		}
		client := &http.Client{Timeout: timeout}
		return New(NewHTTPScorer(cfg.GuardrailURL, client),
			NewHTTPDiscoverer(cfg.DiscoveryURL, scoreThreshold, client),
			WithThreshold(threshold))
	case BackendLocal:
		scorer, err := NewLocalScorer()
		if err != nil {
			return nil, err
		}
		discoverer, err := NewLocalDiscoverer()
		if err != nil {
			return nil, err
		}
		return New(scorer, discoverer, WithThreshold(threshold))
	default:
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "unknown safety backend %q", backend)
	}
}

// Threshold returns the rejection threshold.
func (p *Pipeline) Threshold() float64 { return p.threshold }

// CheckGuardrail runs the risk check. Scorer failures yield OutcomeError with
// a zero score and never reject.
func (p *Pipeline) CheckGuardrail(ctx context.Context, text string, dir types.Direction) Guardrail {
	score, err := p.scorer.Score(ctx, text, dir)
	if err != nil {
		slog.Warn("guardrail check failed, continuing",
			"direction", string(dir),
			"error", err,
		)
		details := map[string]any{"error": err.Error()}
		for k, v := range score.Details {
			details[k] = v
		}
		return Guardrail{Outcome: OutcomeError, RiskScore: 0, PolicySignals: []string{}, Details: details}
	}

	outcome := OutcomeAccepted
	if score.Value > p.threshold {
		outcome = OutcomeRejected
	}
	signals := score.Signals
	if signals == nil {
		signals = []string{}
	}
	return Guardrail{Outcome: outcome, RiskScore: score.Value, PolicySignals: signals, Details: score.Details}
}

// Evaluate runs only the risk check. Rejected text has no processed text;
// accepted text passes through unchanged.
func (p *Pipeline) Evaluate(ctx context.Context, text string, dir types.Direction) *Result {
	g := p.CheckGuardrail(ctx, text, dir)
	res := &Result{OriginalText: text, Mode: types.SafetyModeNone, Guardrail: g}
	if g.Outcome == OutcomeRejected {
		res.ShouldBlock = true
		return res
	}
	res.ProcessedText = &text
	return res
}

// Run is the full input pipeline: risk check, then entity discovery, then the
// transform selected by mode. Rejected text stops after the risk check and is
// never sent to discovery.
func (p *Pipeline) Run(ctx context.Context, text string, mode types.SafetyMode) *Result {
	if !mode.Valid() {
		mode = types.DefaultSafetyMode
	}

	g := p.CheckGuardrail(ctx, text, types.DirectionInput)
	res := &Result{OriginalText: text, Mode: mode, Guardrail: g}
	if g.Outcome == OutcomeRejected {
		slog.Warn("input rejected by guardrail", "risk_score", g.RiskScore, "outcome", string(g.Outcome))
		res.ShouldBlock = true
		return res
	}

	if mode == types.SafetyModeNone {
		res.ProcessedText = &text
		return res
	}

	if mode == types.SafetyModeProtect {
		slog.Warn("tokenization backend not configured, protect mode redacts instead")
	}
	processed, discovery, redaction := p.redact(ctx, text)
	res.Discovery = discovery
	res.Redaction = &redaction
	res.ProcessedText = &processed
	return res
}

// EvaluateResponse is the output pass over model text. It always redacts,
// and a rejected risk check sets ShouldFilter without stopping discovery.
func (p *Pipeline) EvaluateResponse(ctx context.Context, text string) *ResponseResult {
	g := p.CheckGuardrail(ctx, text, types.DirectionOutput)
	res := &ResponseResult{OriginalResponse: text, Guardrail: g}
	if g.Outcome == OutcomeRejected {
		slog.Warn("response rejected by guardrail", "risk_score", g.RiskScore)
		res.ShouldFilter = true
	}

	processed, discovery, redaction := p.redact(ctx, text)
	res.Discovery = discovery
	res.Redaction = redaction
	res.ProcessedResponse = processed
	return res
}

// redact discovers entities and replaces them. On any failure the original
// text is returned with Success=false.
func (p *Pipeline) redact(ctx context.Context, text string) (string, Discovery, Redaction) {
	discovery, err := p.discoverer.Discover(ctx, text)
	if err != nil {
		slog.Warn("entity discovery failed, passing text through unredacted", "error", err)
		return text, Discovery{}, Redaction{Success: false, Method: "redact", Error: err.Error()}
	}
	if len(discovery.Entities) == 0 {
		return text, discovery, Redaction{Success: true, Method: "redact"}
	}

	out, err := Redact(discovery.Text, discovery.Entities)
	if err != nil {
		slog.Warn("redaction failed, passing text through unredacted", "error", err)
		return text, discovery, Redaction{Success: false, Method: "redact", Error: err.Error()}
	}
	return out, discovery, Redaction{Success: true, Method: "redact", EntitiesFound: len(discovery.Entities)}
}
