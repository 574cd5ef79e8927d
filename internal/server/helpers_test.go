// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/orchestrator"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/safety"
	"github.com/sigil-dev/aegis/internal/server"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/store/sqlite"
	"github.com/sigil-dev/aegis/internal/tools"
)

const (
	standardToken   = "standard-token"
	privilegedToken = "privileged-token"
)

var testTokens = map[string]store.User{
	standardToken:   {ID: "alice", Role: store.RoleStandard},
	privilegedToken: {ID: "root", Role: store.RolePrivileged},
}

// scriptedProvider answers Send with a fixed result and Poll from a queue.
type scriptedProvider struct {
	mu    sync.Mutex
	send  provider.Result
	polls []*provider.Result
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Send(context.Context, provider.Request) provider.Result { return p.send }

func (p *scriptedProvider) Poll(context.Context, *store.Conversation) *provider.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.polls) == 0 {
		return nil
	}
	r := p.polls[0]
	p.polls = p.polls[1:]
	return r
}

type fixedResolver struct{ p provider.Provider }

func (r fixedResolver) Resolve(*store.Model) provider.Provider { return r.p }

type testEnv struct {
	srv   *server.Server
	store *sqlite.Store
}

type envOptions struct {
	tokens   map[string]store.User
	resolver orchestrator.ProviderResolver
	services func(*server.Services)
}

// newEnv wires a server over a seeded temp-dir catalog, the local safety
// pipeline and, unless overridden, the credential-free dummy backend.
func newEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "aegis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	seedCatalog(t, s)

	resolver := opts.resolver
	if resolver == nil {
		r, err := provider.NewResolver(nil, nil)
		require.NoError(t, err)
		resolver = r
	}

	pipeline, err := safety.NewFromConfig(safety.Config{Backend: safety.BackendLocal})
	require.NoError(t, err)
	router, err := tools.New(tools.Config{Catalog: s, Safety: pipeline})
	require.NoError(t, err)
	orch, err := orchestrator.New(orchestrator.Config{
		Store:     s,
		Catalog:   s,
		Safety:    pipeline,
		Providers: resolver,
		Tools:     router,
	})
	require.NoError(t, err)

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0", Tokens: opts.tokens})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	svc := &server.Services{Conversations: s, Catalog: s, Turns: orch}
	if hr, ok := resolver.(server.HealthReporter); ok {
		svc.Health = hr
	}
	if opts.services != nil {
		opts.services(svc)
	}
	require.NoError(t, srv.RegisterServices(svc))

	return &testEnv{srv: srv, store: s}
}

func seedCatalog(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	models := []*store.Model{
		{ID: "dummy-1", Name: "Dummy One", Backend: "dummy", Active: true, MinRole: store.RoleStandard, DisplayOrder: 1},
		{ID: "dummy-2", Name: "Dummy Two", Backend: "dummy", Active: true, MinRole: store.RoleStandard, DisplayOrder: 2},
		{ID: "secret-model", Name: "Secret", Backend: "dummy", Active: true, MinRole: store.RolePrivileged, DisplayOrder: 3},
	}
	for _, m := range models {
		require.NoError(t, s.UpsertModel(ctx, m))
	}

	toolList := []*store.Tool{
		{ID: tools.ToolRedact, Name: "Redact", Category: tools.CategorySafety, Active: true, MinRole: store.RoleStandard},
		{ID: tools.ToolClassify, Name: "Classify", Category: tools.CategorySafety, Active: true, MinRole: store.RolePrivileged},
	}
	for _, tl := range toolList {
		require.NoError(t, s.UpsertTool(ctx, tl))
	}

	agents := []*store.Agent{
		{
			ID: "helper", Name: "Helper", DefaultModelID: "dummy-2",
			ToolIDs: []string{tools.ToolRedact}, Active: true, MinRole: store.RoleStandard, DisplayOrder: 1,
		},
		{
			ID: "admin-agent", Name: "Admin", DefaultModelID: "secret-model",
			ToolIDs: []string{tools.ToolRedact, tools.ToolClassify}, Active: true, MinRole: store.RolePrivileged, DisplayOrder: 2,
		},
	}
	for _, a := range agents {
		require.NoError(t, s.UpsertAgent(ctx, a))
	}
}

// do sends a JSON request and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type envelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// requireEnvelope asserts status and envelope code.
func requireEnvelope(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	env := decode[envelope](t, w)
	require.Equal(t, code, env.Error.Code, w.Body.String())
}
