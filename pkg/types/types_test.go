// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"testing"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSafetyMode(t *testing.T) {
	tests := []struct {
		in   string
		want SafetyMode
	}{
		{"redact", SafetyModeRedact},
		{"REDACT", SafetyModeRedact},
		{" protect ", SafetyModeProtect},
		{"none", SafetyModeNone},
		{"", SafetyModeRedact},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSafetyMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSafetyMode_RejectsUnknown(t *testing.T) {
	_, err := ParseSafetyMode("tokenize")
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestDirection_Valid(t *testing.T) {
	assert.True(t, DirectionInput.Valid())
	assert.True(t, DirectionOutput.Valid())
	assert.False(t, Direction("tool").Valid())
}
