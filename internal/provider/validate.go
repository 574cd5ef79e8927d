// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"strings"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

const anthropicVersion = "2023-06-01"

// ValidateKey makes a lightweight call to the backend's model-list endpoint
// to confirm the API key is accepted. creds.BaseURL overrides the default
// endpoint; azure requires it.
func ValidateKey(ctx context.Context, client *http.Client, kind Kind, creds Credentials) error {
	url, headers, err := validationRequest(kind, creds)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeProviderKeyValidationFailure, "building %s validation request", kind)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeProviderKeyValidationFailure, "validating %s key", kind)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return sigilerr.Errorf(sigilerr.CodeProviderConstructInvalid, "invalid %s API key (HTTP %d)", kind, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyValidationFailure, "%s validation failed (HTTP %d)", kind, resp.StatusCode)
	}
	return nil
}

func validationRequest(kind Kind, creds Credentials) (string, map[string]string, error) {
	if creds.APIKey == "" {
		return "", nil, sigilerr.Errorf(sigilerr.CodeProviderConstructInvalid, "%s: api key is empty", kind)
	}
	base := strings.TrimRight(creds.BaseURL, "/")

	switch kind {
	case KindAnthropic:
		return orDefault(base, "https://api.anthropic.com/v1") + "/models", map[string]string{
			"x-api-key":         creds.APIKey,
			"anthropic-version": anthropicVersion,
		}, nil
	case KindOpenAI, KindBackground:
		return orDefault(base, "https://api.openai.com/v1") + "/models", bearer(creds.APIKey), nil
	case KindOpenRouter:
		return orDefault(base, "https://openrouter.ai/api/v1") + "/models", bearer(creds.APIKey), nil
	case KindGoogle:
		// The Generative Language API authenticates via query parameter.
		return orDefault(base, "https://generativelanguage.googleapis.com/v1") + "/models?key=" + creds.APIKey, nil, nil
	case KindAzure:
		if base == "" || creds.APIVersion == "" {
			return "", nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, "azure: endpoint and api version are required")
		}
		return base + "/openai/models?api-version=" + creds.APIVersion, map[string]string{"api-key": creds.APIKey}, nil
	default:
		return "", nil, sigilerr.Errorf(sigilerr.CodeProviderBackendUnknown, "cannot validate keys for backend %q", kind)
	}
}

func bearer(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
