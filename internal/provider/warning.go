// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// User-facing warnings that stand in for assistant content when a backend
// call fails.
const (
	WarningRateLimited = "⚠️ Rate limit exceeded. Please try again in a moment."
	WarningTimeout     = "⚠️ Request timed out. Please try again."
	warningAPIPrefix   = "⚠️ API error: "
)

// Classify wraps a backend call error with a provider code. status is the
// HTTP status reported by the backend SDK, or 0 when unknown.
func Classify(err error, backend string, status int) error {
	if err == nil {
		return nil
	}

	code := sigilerr.CodeProviderUpstreamFailure
	var netErr net.Error
	switch {
	case status == http.StatusTooManyRequests:
		code = sigilerr.CodeProviderUpstreamRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = sigilerr.CodeProviderUpstreamTimeout
	case errors.Is(err, context.DeadlineExceeded):
		code = sigilerr.CodeProviderUpstreamTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		code = sigilerr.CodeProviderUpstreamTimeout
	}
	return sigilerr.Wrap(err, code, backend+" request failed", sigilerr.FieldBackend(backend))
}

// Warning converts a classified backend error into a completed result. The
// error is logged, never returned.
func Warning(err error) Result {
	slog.Warn("provider call failed", "backend", sigilerr.FieldsOf(err)["backend"], "error", err)

	switch {
	case sigilerr.IsRateLimited(err):
		return Completed(WarningRateLimited)
	case sigilerr.IsTimeout(err):
		return Completed(WarningTimeout)
	default:
		return Completed(warningAPIPrefix + detail(err))
	}
}

// detail returns the innermost error message, which is the one the backend
// SDK produced.
func detail(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
