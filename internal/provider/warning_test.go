// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func TestClassifyAndWarning(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		status      int
		wantCode    sigilerr.Code
		wantContent string
	}{
		{
			name:        "rate limited",
			err:         errors.New("429 Too Many Requests"),
			status:      http.StatusTooManyRequests,
			wantCode:    sigilerr.CodeProviderUpstreamRateLimited,
			wantContent: provider.WarningRateLimited,
		},
		{
			name:        "deadline",
			err:         fmt.Errorf("post: %w", context.DeadlineExceeded),
			wantCode:    sigilerr.CodeProviderUpstreamTimeout,
			wantContent: provider.WarningTimeout,
		},
		{
			name:        "gateway timeout",
			err:         errors.New("504"),
			status:      http.StatusGatewayTimeout,
			wantCode:    sigilerr.CodeProviderUpstreamTimeout,
			wantContent: provider.WarningTimeout,
		},
		{
			name:        "server error",
			err:         errors.New("upstream exploded"),
			status:      http.StatusInternalServerError,
			wantCode:    sigilerr.CodeProviderUpstreamFailure,
			wantContent: "⚠️ API error: upstream exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := provider.Classify(tt.err, "openai", tt.status)
			assert.True(t, sigilerr.HasCode(err, tt.wantCode), "got %s", sigilerr.CodeOf(err))

			res := provider.Warning(err)
			assert.Equal(t, provider.StatusCompleted, res.Status)
			assert.Equal(t, tt.wantContent, res.Content)
			assert.Empty(t, res.ToolCalls)
		})
	}

	assert.NoError(t, provider.Classify(nil, "openai", 0))
}

func TestParseArguments(t *testing.T) {
	assert.Equal(t, map[string]any{"text": "hi"}, provider.ParseArguments(`{"text":"hi"}`, "c1"))
	assert.Equal(t, map[string]any{}, provider.ParseArguments(`{"text":`, "c2"))
	assert.Equal(t, map[string]any{}, provider.ParseArguments(`[1,2]`, "c3"))
	assert.Equal(t, map[string]any{}, provider.ParseArguments(`null`, "c4"))
	assert.Equal(t, map[string]any{}, provider.ParseArguments("", "c5"))

	assert.Equal(t, "unknown", provider.CallID(""))
	assert.Equal(t, "call_1", provider.CallID("call_1"))
}

func TestTurns_SkipsPlaceholders(t *testing.T) {
	history := []*store.Message{
		{Role: store.MessageRoleUser, Content: "one"},
		{Role: store.MessageRoleAssistant, Pending: true},
		{Role: store.MessageRoleAssistant, Content: "   "},
		{Role: store.MessageRoleAssistant, Content: "two"},
		{Role: store.MessageRoleUser, Content: "three"},
	}

	turns := provider.Turns(history)
	assert.Equal(t, []provider.Turn{
		{Role: store.MessageRoleUser, Content: "one"},
		{Role: store.MessageRoleAssistant, Content: "two"},
		{Role: store.MessageRoleUser, Content: "three"},
	}, turns)
	assert.Equal(t, "three", provider.LastUserText(history))
	assert.Equal(t, "", provider.SystemPrompt(nil))
}

func TestSchemaProperties(t *testing.T) {
	props, required := provider.SchemaProperties(map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []any{"text", 3},
	})
	assert.Contains(t, props, "text")
	assert.Equal(t, []string{"text"}, required)

	schema := provider.ToolSchema(&store.Tool{ID: "t"})
	assert.Equal(t, "object", schema["type"])
}
