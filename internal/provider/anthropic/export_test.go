// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/sigil-dev/aegis/internal/provider"
)

// ConvertMessages exposes convertMessages for white-box testing.
var ConvertMessages = func(turns []provider.Turn, systemPrompt string) ([]anthropicsdk.MessageParam, string) {
	return convertMessages(turns, systemPrompt)
}
