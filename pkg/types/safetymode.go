// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"strings"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// SafetyMode selects how the safety pipeline transforms accepted text.
type SafetyMode string

const (
	SafetyModeRedact SafetyMode = "redact"
	// SafetyModeProtect is an alias of redact until a tokenization backend exists.
	SafetyModeProtect SafetyMode = "protect"
	SafetyModeNone    SafetyMode = "none"
)

// DefaultSafetyMode is used when a turn does not name a mode.
const DefaultSafetyMode = SafetyModeRedact

// Valid reports whether m is a recognized safety mode.
func (m SafetyMode) Valid() bool {
	switch m {
	case SafetyModeRedact, SafetyModeProtect, SafetyModeNone:
		return true
	default:
		return false
	}
}

// ParseSafetyMode parses a case-insensitive string into a SafetyMode.
// The empty string yields DefaultSafetyMode.
func ParseSafetyMode(s string) (SafetyMode, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultSafetyMode, nil
	}
	m := SafetyMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", sigilerr.Errorf(sigilerr.CodeOrchestratorInvalidInput,
			"invalid safety mode: %q", s)
	}
	return m, nil
}
