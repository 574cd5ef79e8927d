// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package orchestrator_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/orchestrator"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/safety"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/store/sqlite"
	"github.com/sigil-dev/aegis/internal/tools"
	"github.com/sigil-dev/aegis/pkg/types"
)

// scriptedScorer returns fixed scores per direction.
type scriptedScorer struct {
	input  float64
	output float64
	calls  atomic.Int32
}

func (s *scriptedScorer) Score(_ context.Context, _ string, dir types.Direction) (safety.Score, error) {
	s.calls.Add(1)
	if dir == types.DirectionOutput {
		return safety.Score{Value: s.output}, nil
	}
	return safety.Score{Value: s.input}, nil
}

type countingDiscoverer struct {
	inner safety.Discoverer
	calls atomic.Int32
}

func (d *countingDiscoverer) Discover(ctx context.Context, text string) (safety.Discovery, error) {
	d.calls.Add(1)
	return d.inner.Discover(ctx, text)
}

// recordingProvider returns scripted results and records what it was sent.
type recordingProvider struct {
	mu       sync.Mutex
	send     provider.Result
	polls    []*provider.Result
	requests []provider.Request
	pollN    int
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Send(_ context.Context, req provider.Request) provider.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return p.send
}

func (p *recordingProvider) Poll(context.Context, *store.Conversation) *provider.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pollN >= len(p.polls) {
		return nil
	}
	r := p.polls[p.pollN]
	p.pollN++
	return r
}

func (p *recordingProvider) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// fixedResolver hands out one provider for every model.
type fixedResolver struct {
	p provider.Provider
}

func (r fixedResolver) Resolve(*store.Model) provider.Provider { return r.p }

type fixture struct {
	store      *sqlite.Store
	scorer     *scriptedScorer
	discoverer *countingDiscoverer
	pipeline   *safety.Pipeline
	router     *tools.Router
}

const (
	modelID = "dummy-1"
	agentID = "helper"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "aegis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.UpsertModel(ctx, &store.Model{
		ID: modelID, Name: "Dummy", Backend: "dummy", Active: true, MinRole: store.RoleStandard,
	}))
	require.NoError(t, s.UpsertModel(ctx, &store.Model{
		ID: "gpt", Name: "GPT", Backend: "openai", ModelIdentifier: "gpt-4o", Active: true,
		MinRole: store.RoleStandard, SupportsToolCalls: true,
	}))
	for _, id := range []string{tools.ToolRedact, tools.ToolClassify} {
		require.NoError(t, s.UpsertTool(ctx, &store.Tool{
			ID: id, Name: id, Category: tools.CategorySafety, Active: true, MinRole: store.RoleStandard,
		}))
	}
	require.NoError(t, s.UpsertAgent(ctx, &store.Agent{
		ID: agentID, Name: "Helper", SystemPrompt: "Be careful.", DefaultModelID: modelID,
		AllowedModelIDs: []string{modelID, "gpt"},
		ToolIDs:         []string{tools.ToolRedact, tools.ToolClassify},
		Active:          true, MinRole: store.RoleStandard,
	}))

	local, err := safety.NewLocalDiscoverer()
	require.NoError(t, err)
	scorer := &scriptedScorer{input: 0.1, output: 0.1}
	discoverer := &countingDiscoverer{inner: local}
	pipeline, err := safety.New(scorer, discoverer)
	require.NoError(t, err)

	router, err := tools.New(tools.Config{Catalog: s, Safety: pipeline})
	require.NoError(t, err)

	return &fixture{store: s, scorer: scorer, discoverer: discoverer, pipeline: pipeline, router: router}
}

func (f *fixture) orchestrator(t *testing.T, resolver orchestrator.ProviderResolver, hooks *orchestrator.Hooks) *orchestrator.Orchestrator {
	t.Helper()
	o, err := orchestrator.New(orchestrator.Config{
		Store:     f.store,
		Catalog:   f.store,
		Safety:    f.pipeline,
		Providers: resolver,
		Tools:     f.router,
		Hooks:     hooks,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) conversation(t *testing.T, agent, model string) *store.Conversation {
	t.Helper()
	conv := &store.Conversation{UserID: "u1", AgentID: agent, ModelID: model}
	require.NoError(t, f.store.CreateConversation(context.Background(), conv))
	return conv
}

func (f *fixture) messages(t *testing.T, convID string) []*store.Message {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	return msgs
}

func dummyResolver(t *testing.T) *provider.Resolver {
	t.Helper()
	r, err := provider.NewResolver(nil, nil)
	require.NoError(t, err)
	return r
}
