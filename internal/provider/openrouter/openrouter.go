// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openrouter

import (
	"github.com/openai/openai-go/option"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/provider/openai"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

const (
	baseURL      = "https://openrouter.ai/api/v1"
	DefaultModel = "openai/gpt-4o-mini"
)

// New creates a provider for OpenRouter's OpenAI-compatible API. Returns an
// error if the API key is missing.
func New(s provider.Settings, extra ...option.RequestOption) (*openai.Provider, error) {
	if s.Credentials.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "openrouter: missing api_key",
			sigilerr.FieldBackend(string(provider.KindOpenRouter)))
	}

	base := baseURL
	if s.Credentials.BaseURL != "" {
		base = s.Credentials.BaseURL
	}

	opts := []option.RequestOption{
		option.WithAPIKey(s.Credentials.APIKey),
		option.WithBaseURL(base),
		option.WithHeader("X-Title", "aegis"),
	}
	return openai.NewCompatible(string(provider.KindOpenRouter), s, s.ModelID(DefaultModel), append(opts, extra...)...), nil
}

// Factory adapts New to provider.Factory.
func Factory(s provider.Settings) (provider.Provider, error) {
	p, err := New(s)
	if err != nil {
		return nil, err
	}
	return p, nil
}
