// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

const (
	DefaultModel = "gpt-4o-mini"
	// MaxOutputTokens caps the completion length regardless of the catalog.
	MaxOutputTokens = 4096
)

// Provider implements provider.Provider over the Chat Completions API. It
// also serves OpenAI-compatible endpoints such as OpenRouter and Azure.
type Provider struct {
	client  openaisdk.Client
	name    string
	model   *store.Model
	modelID string
	health  *provider.HealthTracker
}

var _ provider.Provider = (*Provider)(nil)

// New creates an OpenAI provider. Returns an error if the API key is missing.
// Extra options are appended after the ones derived from settings.
func New(s provider.Settings, extra ...option.RequestOption) (*Provider, error) {
	if s.Credentials.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "openai: missing api_key",
			sigilerr.FieldBackend(string(provider.KindOpenAI)))
	}

	opts := []option.RequestOption{option.WithAPIKey(s.Credentials.APIKey)}
	if s.Credentials.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.Credentials.BaseURL))
	}
	return NewCompatible(string(provider.KindOpenAI), s, s.ModelID(DefaultModel), append(opts, extra...)...), nil
}

// NewCompatible builds a Chat Completions provider for any endpoint speaking
// the OpenAI protocol. The caller supplies authentication options.
func NewCompatible(name string, s provider.Settings, modelID string, opts ...option.RequestOption) *Provider {
	if s.Credentials.Timeout > 0 {
		opts = append([]option.RequestOption{option.WithRequestTimeout(s.Credentials.Timeout)}, opts...)
	}
	return &Provider{
		client:  openaisdk.NewClient(opts...),
		name:    name,
		model:   s.Model,
		modelID: modelID,
		health:  s.Health,
	}
}

// Factory adapts New to provider.Factory.
func Factory(s provider.Settings) (provider.Provider, error) {
	p, err := New(s)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Send(ctx context.Context, req provider.Request) provider.Result {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		p.health.Observe(err)
		return provider.Warning(Classify(err, p.name))
	}
	if len(resp.Choices) == 0 {
		err := sigilerr.New(sigilerr.CodeProviderResponseInvalid, p.name+" returned no choices",
			sigilerr.FieldBackend(p.name))
		p.health.Observe(err)
		return provider.Warning(err)
	}
	p.health.Observe(nil)

	msg := resp.Choices[0].Message
	return provider.Completed(msg.Content, parseToolCalls(msg.ToolCalls)...)
}

// Poll returns nil: chat completions are synchronous.
func (p *Provider) Poll(context.Context, *store.Conversation) *provider.Result { return nil }

// Classify maps an SDK error onto a provider error code.
func Classify(err error, backend string) error {
	var apiErr *openaisdk.Error
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return provider.Classify(err, backend, status)
}

func (p *Provider) buildParams(req provider.Request) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.modelID),
		Messages:            convertMessages(provider.Turns(req.History), provider.SystemPrompt(req.Agent)),
		MaxCompletionTokens: param.NewOpt(int64(maxTokens(p.model))),
	}
	if p.model != nil && p.model.Temperature > 0 {
		params.Temperature = param.NewOpt(p.model.Temperature)
	}
	if p.model != nil && p.model.SupportsToolCalls && len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params
}

func maxTokens(m *store.Model) int {
	if m == nil || m.MaxTokens <= 0 {
		return MaxOutputTokens
	}
	return min(m.MaxTokens, MaxOutputTokens)
}

// convertMessages prepends the system prompt, if any, to the history.
func convertMessages(turns []provider.Turn, systemPrompt string) []openaisdk.ChatCompletionMessageParamUnion {
	var result []openaisdk.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, t := range turns {
		switch t.Role {
		case store.MessageRoleAssistant:
			result = append(result, openaisdk.AssistantMessage(t.Content))
		case store.MessageRoleSystem:
			result = append(result, openaisdk.SystemMessage(t.Content))
		default:
			result = append(result, openaisdk.UserMessage(t.Content))
		}
	}
	return result
}

func convertTools(tools []*store.Tool) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.ID,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(provider.ToolSchema(t)),
			},
		})
	}
	return result
}

func parseToolCalls(calls []openaisdk.ChatCompletionMessageToolCall) []provider.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]provider.ToolCall, 0, len(calls))
	for _, c := range calls {
		id := provider.CallID(c.ID)
		out = append(out, provider.ToolCall{
			ToolID:    c.Function.Name,
			CallID:    id,
			Arguments: provider.ParseArguments(c.Function.Arguments, id),
		})
	}
	return out
}
