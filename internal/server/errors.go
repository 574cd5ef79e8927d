// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// Envelope codes returned to clients.
const (
	CodeMessageRequired      = "message_required"
	CodeInvalidModel         = "invalid_model"
	CodeForbiddenModel       = "forbidden_model"
	CodeInvalidAgent         = "invalid_agent"
	CodeForbiddenAgent       = "forbidden_agent"
	CodeNoAvailableLLM       = "no_available_llm"
	CodeConversationNotFound = "conversation_not_found"
	CodeInvalidSafetyMode    = "invalid_safety_mode"
	CodeInvalidBackend       = "invalid_backend"
	CodeInvalidAPIKey        = "invalid_api_key"
	CodeInvalidRequest       = "invalid_request"
	CodeUnauthorized         = "unauthorized"
	CodeForbidden            = "forbidden"
	CodeNotFound             = "not_found"
	CodeRateLimited          = "rate_limited"
	CodeUpstreamError        = "upstream_error"
	CodeServiceUnavailable   = "service_unavailable"
	CodeInternalError        = "internal_error"
)

// ErrorDetail is the body of the error envelope.
type ErrorDetail struct {
	Code    string `json:"code" doc:"Machine-readable error code" example:"message_required"`
	Message string `json:"message" doc:"Human-readable description"`
}

// APIError is every error response: {"error":{"code":"...","message":"..."}}.
type APIError struct {
	status int
	Detail ErrorDetail `json:"error"`
}

var _ huma.StatusError = (*APIError)(nil)

func (e *APIError) Error() string  { return e.Detail.Code + ": " + e.Detail.Message }
func (e *APIError) GetStatus() int { return e.status }

func apiError(status int, code, msg string) *APIError {
	return &APIError{status: status, Detail: ErrorDetail{Code: code, Message: msg}}
}

func badRequest(code, msg string) *APIError { return apiError(http.StatusBadRequest, code, msg) }
func forbidden(code, msg string) *APIError  { return apiError(http.StatusForbidden, code, msg) }
func notFound(code, msg string) *APIError   { return apiError(http.StatusNotFound, code, msg) }

// internalError logs err and hides it from the client.
func internalError(msg string, err error, attrs ...any) *APIError {
	slog.Error(msg, append(attrs, "error", err)...)
	return apiError(http.StatusInternalServerError, CodeInternalError, msg)
}

// fromError maps a coded domain error onto the envelope.
func fromError(msg string, err error, attrs ...any) *APIError {
	status := sigilerr.HTTPStatus(err)
	switch status {
	case http.StatusBadRequest:
		return badRequest(CodeInvalidRequest, err.Error())
	case http.StatusNotFound:
		return notFound(CodeNotFound, msg)
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		slog.Warn(msg, append(attrs, "error", err)...)
		return apiError(status, CodeUpstreamError, msg)
	default:
		return internalError(msg, err, attrs...)
	}
}

// codeForStatus names the envelope code of errors huma raises itself, such
// as malformed bodies.
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeInvalidRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return CodeUpstreamError
	case http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	default:
		return CodeInternalError
	}
}

func newEnvelopeError(status int, msg string, errs ...error) huma.StatusError {
	var details []string
	for _, err := range errs {
		if err == nil {
			continue
		}
		var existing *APIError
		if errors.As(err, &existing) {
			return existing
		}
		details = append(details, err.Error())
	}
	if len(details) > 0 {
		msg = msg + ": " + strings.Join(details, "; ")
	}
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}
	return apiError(status, codeForStatus(status), msg)
}

func init() {
	huma.NewError = newEnvelopeError
}

// writeError renders the envelope outside huma, for middleware.
func writeError(w http.ResponseWriter, e *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		slog.Warn("failed to write error response", "error", err)
	}
}
