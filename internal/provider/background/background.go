// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package background runs turns as OpenAI Responses API background jobs.
// Send returns a pending result holding the response id; the turn resolves
// when a client polls after the job finishes.
package background

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

const DefaultModel = "gpt-4o-mini"

// Provider implements provider.Provider over background responses.
type Provider struct {
	client   openaisdk.Client
	settings provider.Settings
	modelID  string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a background provider. Returns an error if the API key is missing.
func New(s provider.Settings, extra ...option.RequestOption) (*Provider, error) {
	if s.Credentials.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "background: missing api_key",
			sigilerr.FieldBackend(string(provider.KindBackground)))
	}

	opts := []option.RequestOption{option.WithAPIKey(s.Credentials.APIKey)}
	if s.Credentials.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.Credentials.BaseURL))
	}
	if s.Credentials.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(s.Credentials.Timeout))
	}

	return &Provider{
		client:   openaisdk.NewClient(append(opts, extra...)...),
		settings: s,
		modelID:  s.ModelID(DefaultModel),
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

func (p *Provider) Name() string { return string(provider.KindBackground) }

func (p *Provider) Send(ctx context.Context, req provider.Request) provider.Result {
	params := responses.ResponseNewParams{
		Model:      shared.ResponsesModel(p.modelID),
		Input:      responses.ResponseNewParamsInputUnion{OfString: openaisdk.String(transcript(provider.Turns(req.History)))},
		Background: openaisdk.Bool(true),
	}
	if sp := provider.SystemPrompt(req.Agent); sp != "" {
		params.Instructions = openaisdk.String(sp)
	}
	if m := p.settings.Model; m != nil && m.SupportsToolCalls && len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return p.failure(err)
	}
	return p.result(resp)
}

// Poll checks the job recorded on the conversation. It returns nil when the
// conversation has no job outstanding.
func (p *Provider) Poll(ctx context.Context, conv *store.Conversation) *provider.Result {
	if conv == nil || conv.PendingHandle == "" {
		return nil
	}

	var res provider.Result
	resp, err := p.client.Responses.Get(ctx, conv.PendingHandle, responses.ResponseGetParams{})
	if err != nil {
		res = p.failure(err)
	} else {
		res = p.result(resp)
	}
	return &res
}

func (p *Provider) failure(err error) provider.Result {
	p.settings.Health.Observe(err)
	var apiErr *openaisdk.Error
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return provider.Warning(provider.Classify(err, p.Name(), status))
}

func (p *Provider) result(resp *responses.Response) provider.Result {
	switch string(resp.Status) {
	case "queued", "in_progress":
		return provider.Pending(resp.ID)
	case "completed":
		p.settings.Health.Observe(nil)
		return provider.Completed(resp.OutputText(), parseToolCalls(resp.Output)...)
	default:
		err := sigilerr.New(sigilerr.CodeProviderUpstreamFailure,
			fmt.Sprintf("background job %s ended with status %s %s", resp.ID, resp.Status, resp.Error.Message),
			sigilerr.FieldBackend(p.Name()))
		p.settings.Health.Observe(err)
		return provider.Warning(err)
	}
}

// transcript flattens history into a single labelled input.
func transcript(turns []provider.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case store.MessageRoleAssistant:
			b.WriteString("Assistant: ")
		case store.MessageRoleSystem:
			b.WriteString("System: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(t.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func convertTools(tools []*store.Tool) []responses.ToolUnionParam {
	result := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.ID,
				Description: openaisdk.String(t.Description),
				Parameters:  provider.ToolSchema(t),
				Strict:      openaisdk.Bool(false),
			},
		})
	}
	return result
}

func parseToolCalls(items []responses.ResponseOutputItemUnion) []provider.ToolCall {
	var out []provider.ToolCall
	for _, item := range items {
		if item.Type != "function_call" {
			continue
		}
		id := provider.CallID(item.CallID)
		out = append(out, provider.ToolCall{
			ToolID:    item.Name,
			CallID:    id,
			Arguments: provider.ParseArguments(item.Arguments, id),
		})
	}
	return out
}
