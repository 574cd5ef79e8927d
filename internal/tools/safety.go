// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tools

import (
	"context"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/sigil-dev/aegis/internal/safety"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// CategorySafety is the built-in category backed by the safety pipeline.
const CategorySafety = "safety"

// Safety tool ids. Each maps to one pipeline primitive.
const (
	ToolRedact     = "safety-redact"
	ToolClassify   = "safety-classify"
	ToolDiscover   = "safety-discover"
	ToolGuardrails = "safety-guardrails"
	ToolProtect    = "safety-protect"
	ToolUnprotect  = "safety-unprotect"
)

func textArg(toolID string, args map[string]any) string {
	text, ok := args["text"].(string)
	if !ok && toolID != ToolGuardrails {
		slog.Warn("tool call has no text argument, using empty string", "tool_id", toolID)
	}
	return text
}

func (r *Router) executeSafety(ctx context.Context, toolID string, args map[string]any) (map[string]any, error) {
	text := textArg(toolID, args)

	switch toolID {
	case ToolRedact:
		t := r.safety.RedactText(ctx, text)
		return map[string]any{
			"redacted_text":   t.Text,
			"original_length": utf8.RuneCountInString(text),
			"redacted_length": utf8.RuneCountInString(t.Text),
			"metadata":        transformMetadata(t),
		}, nil

	case ToolClassify, ToolDiscover:
		d, err := r.safety.Classify(ctx, text)
		if err != nil {
			return nil, err
		}
		byType := d.ByType()
		entityTypes := make([]string, 0, len(byType))
		for typ := range byType {
			entityTypes = append(entityTypes, typ)
		}
		sort.Strings(entityTypes)
		return map[string]any{
			"entities":       d.Metadata(),
			"entity_types":   entityTypes,
			"total_entities": len(d.Entities),
			"original_text":  text,
		}, nil

	case ToolGuardrails:
		return r.safety.CheckGuardrail(ctx, text, types.DirectionInput).Metadata(), nil

	case ToolProtect:
		t := r.safety.Protect(ctx, text)
		return map[string]any{
			"protected_text": t.Text,
			"success":        t.Redaction.Success,
			"metadata":       transformMetadata(t),
		}, nil

	case ToolUnprotect:
		t := r.safety.Unprotect(ctx, text)
		var restored any
		if t.Redaction.Success {
			restored = t.Text
		}
		return map[string]any{
			"unprotected_text": restored,
			"success":          t.Redaction.Success,
			"metadata":         transformMetadata(t),
		}, nil

	default:
		return nil, sigilerr.New(sigilerr.CodeToolCatalogMismatch,
			"no handler for safety tool '"+toolID+"'; the tool catalog and handlers are out of sync",
			sigilerr.FieldToolID(toolID))
	}
}

func transformMetadata(t safety.Transform) map[string]any {
	m := t.Redaction.Metadata()
	m["discovery"] = t.Discovery.Metadata()
	return m
}
