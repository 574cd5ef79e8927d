// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

const DefaultModel = "gemini-2.5-flash"

// Provider implements provider.Provider using the Gemini API.
type Provider struct {
	client   *genai.Client
	settings provider.Settings
	modelID  string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new Google provider. Returns an error if the API key is missing.
func New(s provider.Settings) (*Provider, error) {
	if s.Credentials.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "google: missing api_key",
			sigilerr.FieldBackend(string(provider.KindGoogle)))
	}

	cfg := &genai.ClientConfig{
		APIKey:  s.Credentials.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.Credentials.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.Credentials.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderConstructInvalid, "google: creating client")
	}

	return &Provider{client: client, settings: s, modelID: s.ModelID(DefaultModel)}, nil
}

// Factory adapts New to provider.Factory.
func Factory(s provider.Settings) (provider.Provider, error) {
	p, err := New(s)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) Name() string { return string(provider.KindGoogle) }

func (p *Provider) Send(ctx context.Context, req provider.Request) provider.Result {
	if d := p.settings.Credentials.Timeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.modelID, convertMessages(provider.Turns(req.History)), p.buildConfig(req))
	if err != nil {
		p.settings.Health.Observe(err)
		var apiErr genai.APIError
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return provider.Warning(provider.Classify(err, p.Name(), status))
	}
	p.settings.Health.Observe(nil)

	var (
		text  strings.Builder
		calls []provider.ToolCall
	)
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if fc := part.FunctionCall; fc != nil {
				args := fc.Args
				if args == nil {
					args = map[string]any{}
				}
				calls = append(calls, provider.ToolCall{ToolID: fc.Name, CallID: provider.CallID(fc.ID), Arguments: args})
			}
		}
		// Only the first candidate is used.
		break
	}
	return provider.Completed(text.String(), calls...)
}

// Poll returns nil: content generation is synchronous.
func (p *Provider) Poll(context.Context, *store.Conversation) *provider.Result { return nil }

func (p *Provider) buildConfig(req provider.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	m := p.settings.Model
	if m != nil && m.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(m.Temperature))
	}
	if m != nil && m.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(m.MaxTokens)
	}
	if sp := provider.SystemPrompt(req.Agent); sp != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: sp}}}
	}
	if m != nil && m.SupportsToolCalls && len(req.Tools) > 0 {
		cfg.Tools = convertTools(req.Tools)
	}
	return cfg
}

// convertMessages maps history onto Gemini roles. System turns are carried
// by the system instruction and skipped here.
func convertMessages(turns []provider.Turn) []*genai.Content {
	var result []*genai.Content
	for _, t := range turns {
		switch t.Role {
		case store.MessageRoleSystem:
			continue
		case store.MessageRoleAssistant:
			result = append(result, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: t.Content}}})
		default:
			result = append(result, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: t.Content}}})
		}
	}
	return result
}

func convertTools(tools []*store.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.ID,
			Description:          t.Description,
			ParametersJsonSchema: provider.ToolSchema(t),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
