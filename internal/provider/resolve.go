// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// Kind is a backend family. The set is closed; unknown kinds resolve to the
// dummy backend.
type Kind string

const (
	KindDummy      Kind = "dummy"
	KindOpenAI     Kind = "openai"
	KindAnthropic  Kind = "anthropic"
	KindGoogle     Kind = "google"
	KindOpenRouter Kind = "openrouter"
	KindAzure      Kind = "azure"
	KindBackground Kind = "background"
)

// Kinds lists every backend family.
var Kinds = []Kind{KindDummy, KindOpenAI, KindAnthropic, KindGoogle, KindOpenRouter, KindAzure, KindBackground}

func (k Kind) Valid() bool {
	switch k {
	case KindDummy, KindOpenAI, KindAnthropic, KindGoogle, KindOpenRouter, KindAzure, KindBackground:
		return true
	default:
		return false
	}
}

// Credentials carries what a backend needs to talk to its API.
type Credentials struct {
	APIKey     string
	BaseURL    string
	Model      string // default model identifier when the catalog entry has none
	APIVersion string
	Timeout    time.Duration
}

// CredentialSource looks up credentials for a backend family.
type CredentialSource func(kind Kind) Credentials

// Settings is the merged configuration a factory receives.
type Settings struct {
	Model       *store.Model
	Credentials Credentials
	Health      *HealthTracker
}

// ModelID returns the model identifier to send, preferring the catalog
// entry over the credential default.
func (s Settings) ModelID(fallback string) string {
	if s.Model != nil && s.Model.ModelIdentifier != "" {
		return s.Model.ModelIdentifier
	}
	if s.Credentials.Model != "" {
		return s.Credentials.Model
	}
	return fallback
}

// Factory constructs a backend adapter. Returning an error selects the
// dummy fallback.
type Factory func(Settings) (Provider, error)

// Resolver maps catalog models to backend adapters.
type Resolver struct {
	factories map[Kind]Factory
	creds     CredentialSource

	mu     sync.Mutex
	health map[Kind]*HealthTracker
}

// NewResolver registers one factory per backend family. Registering an
// unknown or dummy kind is a configuration error.
func NewResolver(creds CredentialSource, factories map[Kind]Factory) (*Resolver, error) {
	for k := range factories {
		if !k.Valid() || k == KindDummy {
			return nil, sigilerr.Errorf(sigilerr.CodeProviderBackendUnknown, "cannot register backend %q", k)
		}
	}
	if creds == nil {
		creds = func(Kind) Credentials { return Credentials{} }
	}
	return &Resolver{factories: factories, creds: creds, health: make(map[Kind]*HealthTracker)}, nil
}

// Resolve returns the adapter for model. It never fails: a nil model, an
// unknown backend, or a construction failure yields the dummy backend.
func (r *Resolver) Resolve(model *store.Model) Provider {
	if model == nil {
		return NewDummy(nil)
	}

	kind := Kind(model.Backend)
	switch kind {
	case KindDummy:
		return NewDummy(model)
	case KindOpenAI, KindAnthropic, KindGoogle, KindOpenRouter, KindAzure, KindBackground:
		factory, ok := r.factories[kind]
		if !ok {
			slog.Warn("no adapter registered for backend, using dummy", "backend", kind, "model_id", model.ID)
			return NewDummy(model)
		}
		p, err := construct(factory, Settings{Model: model, Credentials: r.creds(kind), Health: r.tracker(kind)})
		if err != nil {
			slog.Warn("backend construction failed, using dummy", "backend", kind, "model_id", model.ID, "error", err)
			return NewDummy(model)
		}
		return p
	default:
		slog.Warn("unknown backend, using dummy", "backend", kind, "model_id", model.ID)
		return NewDummy(model)
	}
}

func construct(f Factory, s Settings) (p Provider, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, sigilerr.New(sigilerr.CodeProviderConstructInvalid, fmt.Sprintf("factory panicked: %v", rec))
		}
	}()
	p, err = f(s)
	if err == nil && p == nil {
		err = sigilerr.New(sigilerr.CodeProviderConstructInvalid, "factory returned no provider")
	}
	return p, err
}

func (r *Resolver) tracker(kind Kind) *HealthTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.health[kind]
	if !ok {
		h, _ = NewHealthTracker(DefaultHealthCooldown)
		r.health[kind] = h
	}
	return h
}

// Health returns a health snapshot for a backend family. Families never
// resolved report healthy.
func (r *Resolver) Health(kind Kind) HealthMetrics {
	return r.tracker(kind).HealthMetrics()
}
