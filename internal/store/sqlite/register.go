// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", openBackend)
}

func openBackend(cfg store.Config) (store.Backend, error) {
	path := cfg.Path
	if path == "" {
		path = "aegis.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "creating data directory %s", dir)
		}
	}
	return Open(path, WithEnabledBackends(cfg.EnabledBackends...))
}
