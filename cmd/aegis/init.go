// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/aegis/internal/config"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/secrets"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// initHTTPClient is the HTTP client used for key validation.
// Exposed as a variable so tests can replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// validateBackendKey checks a key against the backend. Replaced in tests.
var validateBackendKey = func(ctx context.Context, kind provider.Kind, key string) error {
	return provider.ValidateKey(ctx, initHTTPClient, kind, provider.Credentials{APIKey: key})
}

// initWizardStep tracks which step of the wizard is active.
type initWizardStep int

const (
	stepBackend     initWizardStep = iota // select backend
	stepAPIKey                            // enter API key
	stepValidateKey                       // validating key (spinner)
	stepDone                              // wizard complete
	stepError                             // terminal error
)

// initResult holds the collected wizard configuration.
type initResult struct {
	Backend provider.Kind
	APIKey  string
}

// --- bubbletea messages ---

type (
	validationSuccessMsg struct{}
	validationErrorMsg   struct{ err error }
	configWrittenMsg     struct{ path string }
)

// --- lipgloss styles ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// wizardBackends can be configured from a key alone. Azure also needs an
// endpoint and is set up with `aegis secret set azure --write-config`.
var wizardBackends = []provider.Kind{
	provider.KindOpenAI,
	provider.KindAnthropic,
	provider.KindGoogle,
	provider.KindOpenRouter,
}

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step          initWizardStep
	backendIdx    int
	apiKeyInput   textinput.Model
	spinner       spinner.Model
	result        initResult
	validationErr string
	configPath    string
	secretStore   secrets.Store
	errFinal      error
}

func newInitModel(store secrets.Store, configPath string) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepBackend,
		apiKeyInput: apiKey,
		spinner:     sp,
		configPath:  configPath,
		secretStore: store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m, writeConfigCmd(m.result, m.secretStore, m.configPath)

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		m.step = stepAPIKey
		m.apiKeyInput.Focus()
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	if m.step == stepAPIKey {
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepBackend:
		return m.handleBackendKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleBackendKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.backendIdx > 0 {
			m.backendIdx--
		}
	case "down", "j":
		if m.backendIdx < len(wizardBackends)-1 {
			m.backendIdx++
		}
	case "enter":
		m.result.Backend = wizardBackends[m.backendIdx]
		m.step = stepAPIKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.step = stepValidateKey
		return m, tea.Batch(
			m.spinner.Tick,
			validateKeyCmd(m.result.Backend, key),
		)
	case "esc":
		m.step = stepBackend
		m.validationErr = ""
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Aegis Setup Wizard  ") + "\n\n")

	switch m.step {
	case stepBackend:
		b.WriteString(promptStyle.Render("Choose the LLM backend to configure") + "\n\n")
		for i, k := range wizardBackends {
			if i == m.backendIdx {
				b.WriteString(selectedStyle.Render("  > "+string(k)) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+string(k)) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render(string(m.result.Backend)+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  esc to go back  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + string(m.result.Backend) + " API key…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		b.WriteString(dimStyle.Render("Key stored as "+secrets.BackendURI(string(m.result.Backend))) + "\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("aegis seed") + " once, then " + promptStyle.Render("aegis serve") + ".\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

// --- tea.Cmd factories ---

func validateKeyCmd(kind provider.Kind, key string) tea.Cmd {
	return func() tea.Msg {
		if err := validateBackendKey(context.Background(), kind, key); err != nil {
			return validationErrorMsg{err: err}
		}
		return validationSuccessMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, path string) tea.Cmd {
	return func() tea.Msg {
		if err := storeKeyAndWriteConfig(result, store, path); err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// storeKeyAndWriteConfig saves the key to the keyring and points the config
// file at it. The config file is created from the default when missing; an
// existing one keeps its other settings.
func storeKeyAndWriteConfig(result initResult, store secrets.Store, path string) error {
	if err := store.Store(secrets.DefaultService, secrets.BackendKey(string(result.Backend)), result.APIKey); err != nil {
		return sigilerr.Errorf(sigilerr.CodeSecretStoreFailure, "storing %s API key: %w", result.Backend, err)
	}
	// If the config write fails the stored key is kept; re-running
	// overwrites it.
	return config.SetProviderKeyRef(path, result.Backend)
}

// --- Cobra command ---

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard for aegis",
		Long: `Run an interactive TUI wizard that picks an LLM backend, validates its API
key against the backend, stores the key in the OS keyring and references it
from the config file as a keyring:// URI. No secret is written in plain text.

Azure OpenAI needs an endpoint as well; configure it with
  aegis secret set azure --write-config
and set providers.azure.base_url in the config file.`,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	// Check if stdin is a terminal; if not, refuse to run interactively.
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"aegis init requires an interactive terminal.\n"+
				"To configure aegis non-interactively, use 'aegis secret set <backend> --write-config'.")
		return sigilerr.New(sigilerr.CodeCLISetupFailure, "aegis init: not an interactive terminal")
	}

	path, err := configPathForWrite(cmd)
	if err != nil {
		return err
	}

	p := tea.NewProgram(newInitModel(secretStoreFactory(), path), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return sigilerr.New(sigilerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configured %s in %s\n", fm.result.Backend, fm.configPath)
	}
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
