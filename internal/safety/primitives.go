// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package safety

import (
	"context"
	"log/slog"
)

// Transform is the output of a single text primitive.
type Transform struct {
	Text      string
	Discovery Discovery
	Redaction Redaction
}

// RedactText discovers and redacts entities in text. Failures keep the
// original text and report Success=false.
func (p *Pipeline) RedactText(ctx context.Context, text string) Transform {
	out, discovery, redaction := p.redact(ctx, text)
	return Transform{Text: out, Discovery: discovery, Redaction: redaction}
}

// Classify reports the entities in text without changing it.
func (p *Pipeline) Classify(ctx context.Context, text string) (Discovery, error) {
	return p.discoverer.Discover(ctx, text)
}

// Protect would tokenize text reversibly. No tokenization backend exists, so
// it redacts.
func (p *Pipeline) Protect(ctx context.Context, text string) Transform {
	slog.Warn("tokenization backend not configured, protect redacts instead")
	return p.RedactText(ctx, text)
}

// Unprotect always fails: redaction is not reversible.
func (p *Pipeline) Unprotect(_ context.Context, _ string) Transform {
	return Transform{Redaction: Redaction{
		Success: false,
		Method:  "unprotect",
		Error:   "tokenization backend not configured; redacted text cannot be restored",
	}}
}
