// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// Config controls which backend Open uses and where it keeps its data.
type Config struct {
	Backend string // "sqlite" is the only supported backend for now.
	Path    string
	// EnabledBackends restricts which model backends the catalog exposes.
	// Empty means every backend is enabled.
	EnabledBackends []string
}

// Factory opens a storage backend.
type Factory func(cfg Config) (Backend, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Open creates the store for cfg.
func Open(cfg Config) (Backend, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "sqlite"
	}

	factoriesMu.RLock()
	f, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}
	return f(cfg)
}
