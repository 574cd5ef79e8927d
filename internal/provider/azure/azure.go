// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package azure adapts Azure OpenAI deployments. Requests go through the
// Chat Completions provider with Azure endpoint routing and api-key auth.
package azure

import (
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/provider/openai"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// DefaultAPIVersion is used when neither the model nor the environment
// names one.
const DefaultAPIVersion = "2024-06-01"

// New creates an Azure OpenAI provider. The endpoint, API key and a
// deployment name are required.
func New(s provider.Settings, extra ...option.RequestOption) (*openai.Provider, error) {
	creds := s.Credentials
	if s.Model != nil {
		if v, ok := s.Model.Config["endpoint"].(string); ok && v != "" {
			creds.BaseURL = v
		}
		if v, ok := s.Model.Config["api_version"].(string); ok && v != "" {
			creds.APIVersion = v
		}
	}

	switch {
	case creds.APIKey == "":
		return nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "azure: missing api_key",
			sigilerr.FieldBackend(string(provider.KindAzure)))
	case creds.BaseURL == "":
		return nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "azure: missing endpoint",
			sigilerr.FieldBackend(string(provider.KindAzure)))
	}
	if creds.APIVersion == "" {
		creds.APIVersion = DefaultAPIVersion
	}

	deployment := s.ModelID("")
	if deployment == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "azure: missing deployment name",
			sigilerr.FieldBackend(string(provider.KindAzure)))
	}

	opts := []option.RequestOption{
		azure.WithEndpoint(creds.BaseURL, creds.APIVersion),
		azure.WithAPIKey(creds.APIKey),
	}
	return openai.NewCompatible(string(provider.KindAzure), s, deployment, append(opts, extra...)...), nil
}

// Factory adapts New to provider.Factory.
func Factory(s provider.Settings) (provider.Provider, error) {
	p, err := New(s)
	if err != nil {
		return nil, err
	}
	return p, nil
}
