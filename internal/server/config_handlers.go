// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/secrets"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// DefaultKeyValidator checks keys against each backend's model-list endpoint.
func DefaultKeyValidator(client *http.Client) KeyValidator {
	return func(ctx context.Context, kind provider.Kind, creds provider.Credentials) error {
		return provider.ValidateKey(ctx, client, kind, creds)
	}
}

type configureProviderInput struct {
	Body struct {
		Backend    string `json:"backend" doc:"Backend kind" enum:"openai,anthropic,google,openrouter,azure,background" required:"true"`
		APIKey     string `json:"api_key" doc:"Backend API key" minLength:"1" required:"true"`
		BaseURL    string `json:"base_url,omitempty" doc:"Endpoint override used for validation; required for azure"`
		APIVersion string `json:"api_version,omitempty" doc:"Required for azure"`
	}
}

type configureProviderOutput struct {
	Body struct {
		Status  string `json:"status" example:"ok"`
		Backend string `json:"backend"`
		// KeyRef is the value to put in providers.<backend>.api_key.
		KeyRef string `json:"key_ref" example:"keyring://aegis/openai-api-key"`
	}
}

// registerConfigRoutes registers the provider key endpoint. It is only
// mounted when the server has a secret store.
func (s *Server) registerConfigRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "configure-provider",
		Method:      http.MethodPost,
		Path:        "/api/v1/config/providers",
		Summary:     "Validate and store a backend API key",
		Description: "Privileged users only. The key takes effect the next time the gateway starts.",
		Tags:        []string{"config"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusBadGateway},
	}, s.handleConfigureProvider)
}

func (s *Server) handleConfigureProvider(ctx context.Context, input *configureProviderInput) (*configureProviderOutput, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if user.Role != store.RolePrivileged {
		return nil, forbidden(CodeForbidden, "configuring backends requires a privileged user")
	}

	kind := provider.Kind(input.Body.Backend)
	if !kind.Valid() || kind == provider.KindDummy {
		return nil, badRequest(CodeInvalidBackend, fmt.Sprintf("unknown backend %q", input.Body.Backend))
	}

	creds := provider.Credentials{APIKey: input.Body.APIKey, BaseURL: input.Body.BaseURL, APIVersion: input.Body.APIVersion}
	if err := s.services.ValidateKey(ctx, kind, creds); err != nil {
		if sigilerr.IsInvalidInput(err) {
			return nil, badRequest(CodeInvalidAPIKey, err.Error())
		}
		slog.Error("backend key validation failed", "backend", kind, "error", err)
		return nil, apiError(http.StatusBadGateway, CodeUpstreamError, fmt.Sprintf("could not validate %s API key", kind))
	}

	if err := s.services.Secrets.Store(secrets.DefaultService, secrets.BackendKey(string(kind)), input.Body.APIKey); err != nil {
		return nil, internalError("storing API key", err, "backend", kind)
	}

	slog.Info("backend API key configured", "backend", kind, "user_id", user.ID)

	out := &configureProviderOutput{}
	out.Body.Status = "ok"
	out.Body.Backend = string(kind)
	out.Body.KeyRef = secrets.BackendURI(string(kind))
	return out, nil
}
