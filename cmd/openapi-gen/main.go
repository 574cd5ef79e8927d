// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/secrets"
	"github.com/sigil-dev/aegis/internal/server"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with every route registered, the provider
// key endpoint included, and extracts the OpenAPI document huma builds from
// the Go type annotations.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	err = srv.RegisterServices(&server.Services{
		Conversations: noConversations{},
		Catalog:       noCatalog{},
		Turns:         noTurns{},
		Secrets:       noSecrets{},
		ValidateKey:   func(context.Context, provider.Kind, provider.Credentials) error { return nil },
	})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "registering routes: %w", err)
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// Handlers are never invoked during spec generation, so the services only
// need to satisfy their interfaces.
type (
	noConversations struct{ store.ConversationStore }
	noCatalog       struct{ store.Catalog }
	noTurns         struct{ server.TurnHandler }
	noSecrets       struct{ secrets.Store }
)
