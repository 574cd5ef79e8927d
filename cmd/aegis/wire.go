// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sigil-dev/aegis/internal/config"
	"github.com/sigil-dev/aegis/internal/orchestrator"
	"github.com/sigil-dev/aegis/internal/provider"
	anthropicprov "github.com/sigil-dev/aegis/internal/provider/anthropic"
	azureprov "github.com/sigil-dev/aegis/internal/provider/azure"
	backgroundprov "github.com/sigil-dev/aegis/internal/provider/background"
	googleprov "github.com/sigil-dev/aegis/internal/provider/google"
	openaiprov "github.com/sigil-dev/aegis/internal/provider/openai"
	openrouterprov "github.com/sigil-dev/aegis/internal/provider/openrouter"
	"github.com/sigil-dev/aegis/internal/safety"
	"github.com/sigil-dev/aegis/internal/secrets"
	"github.com/sigil-dev/aegis/internal/server"
	"github.com/sigil-dev/aegis/internal/store"
	_ "github.com/sigil-dev/aegis/internal/store/sqlite" // register sqlite backend
	"github.com/sigil-dev/aegis/internal/tools"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// keyValidationTimeout bounds the model-list call used to check a key.
const keyValidationTimeout = 10 * time.Second

// builtinProviderFactories maps backend kinds to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[provider.Kind]provider.Factory{
	provider.KindOpenAI:     openaiprov.Factory,
	provider.KindAnthropic:  anthropicprov.Factory,
	provider.KindGoogle:     googleprov.Factory,
	provider.KindOpenRouter: openrouterprov.Factory,
	provider.KindAzure:      azureprov.Factory,
	provider.KindBackground: backgroundprov.Factory,
}

// Gateway holds all wired subsystems and manages their lifecycle.
type Gateway struct {
	Server       *server.Server
	Store        store.Backend
	Resolver     *provider.Resolver
	Orchestrator *orchestrator.Orchestrator
}

// WireGateway creates all subsystems and wires them together. secretStore may
// be nil, in which case the provider key endpoint is not mounted.
func WireGateway(cfg *config.Config, secretStore secrets.Store) (*Gateway, error) {
	backend, err := store.Open(store.Config{
		Backend:         cfg.Store.Backend,
		Path:            cfg.Store.Path,
		EnabledBackends: cfg.Providers.Enabled,
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "opening store")
	}

	gw, err := wireServices(cfg, backend, secretStore)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return gw, nil
}

func wireServices(cfg *config.Config, backend store.Backend, secretStore secrets.Store) (*Gateway, error) {
	pipeline, err := safety.NewFromConfig(safety.Config{
		Backend:        safety.Backend(cfg.Safety.Backend),
		GuardrailURL:   cfg.Safety.GuardrailURL,
		DiscoveryURL:   cfg.Safety.DiscoveryURL,
		Threshold:      cfg.Safety.Threshold,
		ScoreThreshold: cfg.Safety.ScoreThreshold,
		Timeout:        cfg.Safety.Timeout,
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating safety pipeline")
	}

	resolver, err := provider.NewResolver(cfg.Providers.Credentials, enabledFactories(cfg.Providers))
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating provider resolver")
	}
	if configured := cfg.Providers.Configured(); len(configured) == 0 {
		slog.Warn("no backend API keys configured: every model answers with the dummy backend")
	} else {
		slog.Info("backends configured", "backends", configured)
	}

	router, err := tools.New(tools.Config{
		Catalog: backend,
		Safety:  pipeline,
		Timeout: cfg.Safety.ToolTimeout,
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating tool router")
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Store:     backend,
		Catalog:   backend,
		Safety:    pipeline,
		Providers: resolver,
		Tools:     router,
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating orchestrator")
	}

	tokens := tokensFromConfig(cfg.Auth.Tokens)
	if len(tokens) == 0 {
		slog.Warn("authentication disabled: no API tokens configured, every request runs as a privileged local user")
	}

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Server.Listen,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		TurnTimeout:  cfg.Server.TurnTimeout,
		Tokens:       tokens,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating server")
	}

	svc := &server.Services{
		Conversations: backend,
		Catalog:       backend,
		Turns:         orch,
		Health:        resolver,
	}
	if secretStore != nil {
		svc.Secrets = secretStore
		svc.ValidateKey = server.DefaultKeyValidator(&http.Client{Timeout: keyValidationTimeout})
	}
	if err := srv.RegisterServices(svc); err != nil {
		_ = srv.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "registering services")
	}

	return &Gateway{Server: srv, Store: backend, Resolver: resolver, Orchestrator: orch}, nil
}

// enabledFactories restricts the built-in factories to providers.enabled.
// An empty list enables every kind.
func enabledFactories(pc config.ProvidersConfig) map[provider.Kind]provider.Factory {
	if len(pc.Enabled) == 0 {
		return builtinProviderFactories
	}
	out := make(map[provider.Kind]provider.Factory, len(pc.Enabled))
	for _, name := range pc.Enabled {
		kind := provider.Kind(name)
		if f, ok := builtinProviderFactories[kind]; ok {
			out[kind] = f
		}
	}
	return out
}

// tokensFromConfig maps each configured bearer token to its user.
func tokensFromConfig(entries []config.TokenConfig) map[string]store.User {
	tokens := make(map[string]store.User, len(entries))
	for _, tc := range entries {
		tokens[tc.Token] = store.User{ID: tc.UserID, Role: tc.Role}
	}
	return tokens
}

// Close releases all resources held by the gateway.
func (gw *Gateway) Close() error {
	type closer interface{ Close() error }
	closers := []closer{gw.Server, gw.Store}

	var errs []error
	for _, c := range closers {
		if c != nil {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
