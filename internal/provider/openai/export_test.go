// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	openaisdk "github.com/openai/openai-go"

	"github.com/sigil-dev/aegis/internal/provider"
)

// BuildParams exposes buildParams for white-box testing.
func (p *Provider) BuildParams(req provider.Request) openaisdk.ChatCompletionNewParams {
	return p.buildParams(req)
}
