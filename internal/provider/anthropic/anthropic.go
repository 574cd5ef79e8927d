// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
)

// Provider implements provider.Provider using the Anthropic Messages API.
type Provider struct {
	client  anthropicsdk.Client
	model   *store.Model
	modelID string
	health  *provider.HealthTracker
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new Anthropic provider. Returns an error if the API key is missing.
func New(s provider.Settings, extra ...option.RequestOption) (*Provider, error) {
	if s.Credentials.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "anthropic: missing api_key",
			sigilerr.FieldBackend(string(provider.KindAnthropic)))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(s.Credentials.APIKey),
	}
	if s.Credentials.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.Credentials.BaseURL))
	}
	if s.Credentials.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(s.Credentials.Timeout))
	}

	return &Provider{
		client:  anthropicsdk.NewClient(append(opts, extra...)...),
		model:   s.Model,
		modelID: s.ModelID(DefaultModel),
		health:  s.Health,
	}, nil
}

// Factory adapts New to provider.Factory.
func Factory(s provider.Settings) (provider.Provider, error) {
	p, err := New(s)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) Name() string { return string(provider.KindAnthropic) }

func (p *Provider) Send(ctx context.Context, req provider.Request) provider.Result {
	params, ok := p.buildParams(req)
	if !ok {
		return provider.Warning(sigilerr.New(sigilerr.CodeProviderRequestInvalid,
			"anthropic: conversation has no user message", sigilerr.FieldBackend(p.Name())))
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		p.health.Observe(err)
		var apiErr *anthropicsdk.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return provider.Warning(provider.Classify(err, p.Name(), status))
	}
	p.health.Observe(nil)

	var (
		text  strings.Builder
		calls []provider.ToolCall
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			id := provider.CallID(block.ID)
			calls = append(calls, provider.ToolCall{
				ToolID:    block.Name,
				CallID:    id,
				Arguments: provider.ParseArguments(string(block.Input), id),
			})
		}
	}
	return provider.Completed(text.String(), calls...)
}

// Poll returns nil: the Messages API is synchronous.
func (p *Provider) Poll(context.Context, *store.Conversation) *provider.Result { return nil }

// buildParams reports false when the history holds nothing to send.
func (p *Provider) buildParams(req provider.Request) (anthropicsdk.MessageNewParams, bool) {
	msgs, system := convertMessages(provider.Turns(req.History), provider.SystemPrompt(req.Agent))
	if len(msgs) == 0 {
		return anthropicsdk.MessageNewParams{}, false
	}

	maxTokens := int64(defaultMaxTokens)
	if p.model != nil && p.model.MaxTokens > 0 {
		maxTokens = int64(p.model.MaxTokens)
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.modelID),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if p.model != nil && p.model.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(p.model.Temperature)
	}
	if p.model != nil && p.model.SupportsToolCalls && len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, true
}

// convertMessages folds system turns into the system prompt and drops
// leading assistant turns, since the conversation must open with the user.
func convertMessages(turns []provider.Turn, systemPrompt string) ([]anthropicsdk.MessageParam, string) {
	system := []string{}
	if systemPrompt != "" {
		system = append(system, systemPrompt)
	}

	var result []anthropicsdk.MessageParam
	for _, t := range turns {
		switch t.Role {
		case store.MessageRoleSystem:
			system = append(system, t.Content)
		case store.MessageRoleAssistant:
			if len(result) == 0 {
				continue
			}
			result = append(result, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(t.Content)))
		default:
			result = append(result, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(t.Content)))
		}
	}
	return result, strings.Join(system, "\n\n")
}

func convertTools(tools []*store.Tool) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		props, required := provider.SchemaProperties(provider.ToolSchema(t))
		result = append(result, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.ID,
				Description: anthropicsdk.Opt(t.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{Properties: props, Required: required},
			},
		})
	}
	return result
}
