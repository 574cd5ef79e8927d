// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/secrets"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

//go:embed aegis.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigDir returns ~/.config/aegis.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Wrapf(err, sigilerr.CodeConfigLoadReadFailure, "resolving home directory")
	}
	return filepath.Join(home, ".config", "aegis"), nil
}

// DefaultConfigPath returns ~/.config/aegis/aegis.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "aegis.yaml"), nil
}

// Bootstrap writes the commented default config to path unless a file is
// already there. It reports whether it wrote anything.
func Bootstrap(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, sigilerr.Wrapf(err, sigilerr.CodeConfigLoadReadFailure, "checking %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, sigilerr.Wrapf(err, sigilerr.CodeConfigLoadReadFailure, "creating config directory")
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		return false, sigilerr.Wrapf(err, sigilerr.CodeConfigLoadReadFailure, "writing %s", path)
	}

	slog.Info("created default config", "path", path)
	return true, nil
}

// SetProviderKeyRef points providers.<kind>.api_key in the config file at
// the keyring entry for kind, and adds kind to providers.enabled when that
// list is in use. The file is created from the default when missing.
func SetProviderKeyRef(path string, kind provider.Kind) error {
	if !kind.Valid() || kind == provider.KindDummy {
		return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "cannot store a key for backend %q", kind)
	}
	if _, err := Bootstrap(path); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeConfigParseInvalidFormat, "reading %s", path)
	}

	v.Set("providers."+string(kind)+".api_key", secrets.BackendURI(string(kind)))
	if enabled := v.GetStringSlice("providers.enabled"); len(enabled) > 0 && !contains(enabled, string(kind)) {
		v.Set("providers.enabled", append(enabled, string(kind)))
	}

	if err := v.WriteConfigAs(path); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeConfigLoadReadFailure, "writing %s", path)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
