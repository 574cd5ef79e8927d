// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/provider"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func update(t *testing.T, m initModel, msg tea.Msg) (initModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(initModel)
	require.True(t, ok)
	return nm, cmd
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func stubValidator(t *testing.T, fn func(context.Context, provider.Kind, string) error) {
	t.Helper()
	orig := validateBackendKey
	validateBackendKey = fn
	t.Cleanup(func() { validateBackendKey = orig })
}

func TestInitModel_BackendSelection(t *testing.T) {
	m := newInitModel(newMockSecretStore(), "")

	m, _ = update(t, m, key(tea.KeyUp))
	assert.Equal(t, 0, m.backendIdx, "cannot move above the first entry")

	for range len(wizardBackends) + 2 {
		m, _ = update(t, m, key(tea.KeyDown))
	}
	assert.Equal(t, len(wizardBackends)-1, m.backendIdx)

	m, _ = update(t, m, key(tea.KeyUp))
	m, _ = update(t, m, key(tea.KeyEnter))
	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, wizardBackends[len(wizardBackends)-2], m.result.Backend)

	m, _ = update(t, m, key(tea.KeyEsc))
	assert.Equal(t, stepBackend, m.step)
	assert.Contains(t, m.View(), "openrouter")
}

func TestInitModel_QuitKeys(t *testing.T) {
	m := newInitModel(newMockSecretStore(), "")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m, _ = update(t, m, key(tea.KeyEnter))
	_, cmd = update(t, m, key(tea.KeyCtrlC))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestInitModel_EmptyKeyRejected(t *testing.T) {
	m := newInitModel(newMockSecretStore(), "")
	m, _ = update(t, m, key(tea.KeyEnter))

	m, cmd := update(t, m, key(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Equal(t, stepAPIKey, m.step)
	assert.Contains(t, m.View(), "API key must not be empty")
}

func TestInitModel_ValidationFailureReturnsToKeyStep(t *testing.T) {
	stubValidator(t, func(context.Context, provider.Kind, string) error {
		return sigilerr.New(sigilerr.CodeProviderConstructInvalid, "openai rejected the API key")
	})

	m := newInitModel(newMockSecretStore(), "")
	m, _ = update(t, m, key(tea.KeyEnter))
	m.apiKeyInput.SetValue("sk-bad")

	m, cmd := update(t, m, key(tea.KeyEnter))
	assert.Equal(t, stepValidateKey, m.step)
	require.NotNil(t, cmd)

	msg := validateKeyCmd(m.result.Backend, m.result.APIKey)()
	m, _ = update(t, m, msg)
	assert.Equal(t, stepAPIKey, m.step)
	assert.Contains(t, m.validationErr, "rejected the API key")
}

func TestInitModel_SuccessStoresKeyAndWritesConfig(t *testing.T) {
	isolateEnv(t)
	var gotKind provider.Kind
	var gotKey string
	stubValidator(t, func(_ context.Context, kind provider.Kind, key string) error {
		gotKind, gotKey = kind, key
		return nil
	})

	mock := newMockSecretStore()
	cfgPath := filepath.Join(t.TempDir(), "conf", "aegis.yaml")
	m := newInitModel(mock, cfgPath)

	m, _ = update(t, m, key(tea.KeyDown))
	m, _ = update(t, m, key(tea.KeyEnter))
	m.apiKeyInput.SetValue("  sk-ant-good  ")
	m, _ = update(t, m, key(tea.KeyEnter))

	msg := validateKeyCmd(m.result.Backend, m.result.APIKey)()
	assert.IsType(t, validationSuccessMsg{}, msg)
	assert.Equal(t, provider.KindAnthropic, gotKind)
	assert.Equal(t, "sk-ant-good", gotKey)

	m, cmd := update(t, m, msg)
	require.NotNil(t, cmd)
	written := cmd()
	require.IsType(t, configWrittenMsg{}, written)

	m, cmd = update(t, m, written)
	assert.Equal(t, stepDone, m.step)
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Setup complete")

	assert.Equal(t, "sk-ant-good", mock.data["anthropic-api-key"])
	raw, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "keyring://aegis/anthropic-api-key")
}

func TestInitModel_WriteFailureEndsWizard(t *testing.T) {
	m := newInitModel(newMockSecretStore(), "")
	m, cmd := update(t, m, errors.New("disk full"))
	assert.Equal(t, stepError, m.step)
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Setup failed: disk full")
}

func TestInitCommand_RequiresTerminal(t *testing.T) {
	out, err := runCmd(t, "", "init")
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeCLISetupFailure))
	assert.Contains(t, out, "requires an interactive terminal")
}
