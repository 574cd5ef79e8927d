// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/tools"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// TitleLength is how many characters of the first message become the title.
const TitleLength = 50

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat",
		Summary:     "Submit a user message and run the turn",
		Tags:        []string{"chat"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, s.handleChat)

	huma.Register(s.api, huma.Operation{
		OperationID: "poll-turn",
		Method:      http.MethodGet,
		Path:        "/api/v1/chat/{conversationId}/poll",
		Summary:     "Poll a pending asynchronous turn",
		Tags:        []string{"chat"},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, s.handlePoll)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/api/v1/conversations/{conversationId}",
		Summary:     "Get a conversation with its messages",
		Tags:        []string{"conversations"},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, s.handleGetConversation)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-conversation",
		Method:        http.MethodDelete,
		Path:          "/api/v1/conversations/{conversationId}",
		Summary:       "Delete a conversation",
		Tags:          []string{"conversations"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, s.handleDeleteConversation)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/api/v1/models",
		Summary:     "List models available to the caller",
		Tags:        []string{"catalog"},
	}, s.handleListModels)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/api/v1/agents",
		Summary:     "List agents available to the caller",
		Tags:        []string{"catalog"},
	}, s.handleListAgents)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-tools",
		Method:      http.MethodGet,
		Path:        "/api/v1/tools",
		Summary:     "List tools available to the caller",
		Tags:        []string{"catalog"},
	}, s.handleListTools)
}

// --- Request/Response types for huma ---

type chatInput struct {
	Body struct {
		ConversationID string `json:"conversation_id,omitempty" doc:"Existing conversation; omit to start one"`
		Message        string `json:"message,omitempty" doc:"User message"`
		ModelID        string `json:"model_id,omitempty" doc:"Model to use"`
		AgentID        string `json:"agent_id,omitempty" doc:"Agent to use"`
		SafetyMode     string `json:"safety_mode,omitempty" doc:"redact (default), protect or none"`
	}
}

// ChatBody is the response of POST /api/v1/chat.
type ChatBody struct {
	ConversationID string         `json:"conversation_id"`
	Status         string         `json:"status" enum:"completed,pending,blocked,error"`
	Messages       []MessageView  `json:"messages"`
	ToolResults    []tools.Result `json:"tool_results"`
	SafetyMetadata map[string]any `json:"safety_metadata"`
}

type chatOutput struct {
	Body ChatBody
}

type conversationInput struct {
	ConversationID string `path:"conversationId"`
}

// PollBody is the response of GET /api/v1/chat/{id}/poll.
type PollBody struct {
	Status         string         `json:"status" enum:"completed,pending,blocked,error"`
	Response       *MessageView   `json:"response,omitempty"`
	ToolResults    []tools.Result `json:"tool_results,omitempty"`
	SafetyMetadata map[string]any `json:"safety_metadata,omitempty"`
}

type pollOutput struct {
	Body PollBody
}

type getConversationOutput struct {
	Body ConversationView
}

type listModelsOutput struct {
	Body struct {
		Models []ModelView `json:"models"`
	}
}

type listAgentsOutput struct {
	Body struct {
		Agents []AgentView `json:"agents"`
	}
}

type listToolsOutput struct {
	Body struct {
		Tools []ToolView `json:"tools"`
	}
}

// --- Handlers ---

func (s *Server) handleChat(ctx context.Context, input *chatInput) (*chatOutput, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	text := input.Body.Message
	if strings.TrimSpace(text) == "" {
		return nil, badRequest(CodeMessageRequired, "message is required")
	}
	mode, err := types.ParseSafetyMode(input.Body.SafetyMode)
	if err != nil {
		return nil, badRequest(CodeInvalidSafetyMode, err.Error())
	}

	var conv *store.Conversation
	if input.Body.ConversationID != "" {
		if conv, err = s.ownedConversation(ctx, user, input.Body.ConversationID); err != nil {
			return nil, err
		}
		if err := s.reselect(ctx, user, conv, input.Body.AgentID, input.Body.ModelID); err != nil {
			return nil, err
		}
	} else {
		if conv, err = s.startConversation(ctx, user, text, input.Body.AgentID, input.Body.ModelID); err != nil {
			return nil, err
		}
	}

	turnCtx, cancel := s.withTurnTimeout(ctx)
	defer cancel()

	turn, err := s.services.Turns.HandleUserMessage(turnCtx, conv, text, mode)
	if err != nil {
		if sigilerr.IsInvalidInput(err) {
			return nil, badRequest(CodeInvalidRequest, err.Error())
		}
		return nil, internalError("running chat turn", err, "conversation_id", conv.ID)
	}

	out := &chatOutput{}
	out.Body = ChatBody{
		ConversationID: conv.ID,
		Status:         string(turn.Status),
		Messages:       []MessageView{},
		ToolResults:    turn.ToolResults,
		SafetyMetadata: turn.SafetyMetadata(),
	}
	for _, m := range []*store.Message{turn.UserMessage, turn.AssistantMessage} {
		if m != nil {
			out.Body.Messages = append(out.Body.Messages, messageView(m))
		}
	}
	if out.Body.ToolResults == nil {
		out.Body.ToolResults = []tools.Result{}
	}
	return out, nil
}

func (s *Server) handlePoll(ctx context.Context, input *conversationInput) (*pollOutput, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := s.ownedConversation(ctx, user, input.ConversationID)
	if err != nil {
		return nil, err
	}

	turnCtx, cancel := s.withTurnTimeout(ctx)
	defer cancel()

	turn, err := s.services.Turns.Poll(turnCtx, conv)
	if err != nil {
		return nil, internalError("polling turn", err, "conversation_id", conv.ID)
	}

	out := &pollOutput{}
	out.Body.Status = string(turn.Status)
	out.Body.ToolResults = turn.ToolResults
	if turn.AssistantMessage != nil {
		view := messageView(turn.AssistantMessage)
		out.Body.Response = &view
	}
	if md := turn.SafetyMetadata(); len(md) > 0 {
		out.Body.SafetyMetadata = md
	}
	return out, nil
}

func (s *Server) handleGetConversation(ctx context.Context, input *conversationInput) (*getConversationOutput, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := s.ownedConversation(ctx, user, input.ConversationID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.services.Conversations.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fromError("listing messages", err, "conversation_id", conv.ID)
	}

	view := ConversationView{
		ID:        conv.ID,
		Title:     conv.Title,
		AgentID:   conv.AgentID,
		ModelID:   conv.ModelID,
		Pending:   conv.PendingHandle != "",
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  make([]MessageView, 0, len(msgs)),
	}
	for _, m := range msgs {
		view.Messages = append(view.Messages, messageView(m))
	}
	return &getConversationOutput{Body: view}, nil
}

func (s *Server) handleDeleteConversation(ctx context.Context, input *conversationInput) (*struct{}, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := s.ownedConversation(ctx, user, input.ConversationID)
	if err != nil {
		return nil, err
	}

	if err := s.services.Conversations.DeleteConversation(ctx, conv.ID); err != nil {
		if sigilerr.IsNotFound(err) {
			return nil, notFound(CodeConversationNotFound, "conversation not found")
		}
		return nil, internalError("deleting conversation", err, "conversation_id", conv.ID)
	}
	slog.Info("conversation deleted", "conversation_id", conv.ID, "user_id", user.ID)
	return nil, nil
}

func (s *Server) handleListModels(ctx context.Context, _ *struct{}) (*listModelsOutput, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	models, err := s.services.Catalog.ListModels(ctx)
	if err != nil {
		return nil, internalError("listing models", err)
	}

	out := &listModelsOutput{}
	out.Body.Models = []ModelView{}
	for _, m := range store.FilterAuthorized(user, models) {
		view := ModelView{
			ID:                m.ID,
			Name:              m.Name,
			Description:       m.Description,
			Backend:           m.Backend,
			SupportsToolCalls: m.SupportsToolCalls,
			RequiresPolling:   m.RequiresPolling,
		}
		if kind := provider.Kind(m.Backend); s.services.Health != nil && kind.Valid() {
			h := s.services.Health.Health(kind)
			view.Health = &h
		}
		out.Body.Models = append(out.Body.Models, view)
	}
	return out, nil
}

func (s *Server) handleListAgents(ctx context.Context, _ *struct{}) (*listAgentsOutput, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	agents, err := s.services.Catalog.ListAgents(ctx)
	if err != nil {
		return nil, internalError("listing agents", err)
	}

	out := &listAgentsOutput{}
	out.Body.Agents = []AgentView{}
	for _, a := range store.FilterAuthorized(user, agents) {
		out.Body.Agents = append(out.Body.Agents, AgentView{
			ID:             a.ID,
			Name:           a.Name,
			Description:    a.Description,
			DefaultModelID: a.DefaultModelID,
		})
	}
	return out, nil
}

func (s *Server) handleListTools(ctx context.Context, _ *struct{}) (*listToolsOutput, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.services.Catalog.ListTools(ctx)
	if err != nil {
		return nil, internalError("listing tools", err)
	}

	out := &listToolsOutput{}
	out.Body.Tools = []ToolView{}
	for _, t := range store.FilterAuthorized(user, all) {
		out.Body.Tools = append(out.Body.Tools, ToolView{
			ID:          t.ID,
			Name:        t.Name,
			Category:    t.Category,
			Description: t.Description,
		})
	}
	return out, nil
}

// --- Conversation selection ---

// ownedConversation loads id for user. Conversations of other users are
// reported as missing.
func (s *Server) ownedConversation(ctx context.Context, user store.User, id string) (*store.Conversation, error) {
	conv, err := s.services.Conversations.GetConversation(ctx, id)
	if sigilerr.IsNotFound(err) || (err == nil && conv.UserID != user.ID) {
		return nil, notFound(CodeConversationNotFound, fmt.Sprintf("conversation %q not found", id))
	}
	if err != nil {
		return nil, internalError("loading conversation", err, "conversation_id", id)
	}
	return conv, nil
}

// startConversation creates a conversation for the first message, resolving
// the agent and model the caller asked for.
func (s *Server) startConversation(ctx context.Context, user store.User, text, agentID, modelID string) (*store.Conversation, error) {
	var agent *store.Agent
	if agentID != "" {
		a, err := s.services.Catalog.ResolveAgent(ctx, agentID)
		switch {
		case sigilerr.IsNotFound(err):
			return nil, badRequest(CodeInvalidAgent, fmt.Sprintf("agent %q does not exist", agentID))
		case err != nil:
			return nil, internalError("resolving agent", err, "agent_id", agentID)
		case !store.IsAuthorized(user, a):
			return nil, forbidden(CodeForbiddenAgent, fmt.Sprintf("agent %q is not available to you", agentID))
		}
		agent = a
	}

	model, err := s.pickModel(ctx, user, agent, modelID)
	if err != nil {
		return nil, err
	}

	conv := &store.Conversation{
		Title:   ConversationTitle(text),
		UserID:  user.ID,
		AgentID: agentID,
		ModelID: model.ID,
	}
	if err := s.services.Conversations.CreateConversation(ctx, conv); err != nil {
		return nil, internalError("creating conversation", err)
	}
	slog.Info("conversation started",
		"conversation_id", conv.ID, "user_id", user.ID, "agent_id", conv.AgentID, "model_id", conv.ModelID)
	return conv, nil
}

// pickModel chooses the model of a new conversation: the requested one, else
// the agent's default when accessible, else the user's default.
func (s *Server) pickModel(ctx context.Context, user store.User, agent *store.Agent, modelID string) (*store.Model, error) {
	if modelID != "" {
		m, err := s.services.Catalog.ResolveModel(ctx, modelID)
		switch {
		case sigilerr.IsNotFound(err):
			return nil, badRequest(CodeInvalidModel, fmt.Sprintf("model %q does not exist", modelID))
		case err != nil:
			return nil, internalError("resolving model", err, "model_id", modelID)
		case !store.IsAuthorized(user, m):
			return nil, forbidden(CodeForbiddenModel, fmt.Sprintf("model %q is not available to you", modelID))
		}
		return m, nil
	}

	if agent != nil && agent.DefaultModelID != "" {
		if m, ok := s.accessibleModel(ctx, user, agent.DefaultModelID); ok {
			return m, nil
		}
	}

	m, err := s.services.Catalog.DefaultModelForUser(ctx, user)
	if err != nil {
		return nil, internalError("choosing default model", err, "user_id", user.ID)
	}
	if m == nil {
		return nil, badRequest(CodeNoAvailableLLM, "no LLM is available to you")
	}
	return m, nil
}

// reselect applies a changed agent or model to an existing conversation.
// Selections that do not resolve or are not accessible are ignored and the
// current ones kept.
func (s *Server) reselect(ctx context.Context, user store.User, conv *store.Conversation, agentID, modelID string) error {
	var upd store.ConversationUpdate
	if agentID != "" && agentID != conv.AgentID {
		if a, ok := s.accessibleAgent(ctx, user, agentID); ok {
			upd.AgentID = &a.ID
		}
	}
	if modelID != "" && modelID != conv.ModelID {
		if m, ok := s.accessibleModel(ctx, user, modelID); ok {
			upd.ModelID = &m.ID
		}
	}
	if upd.AgentID == nil && upd.ModelID == nil {
		return nil
	}

	if err := s.services.Conversations.UpdateConversation(ctx, conv.ID, upd); err != nil {
		return internalError("updating conversation selection", err, "conversation_id", conv.ID)
	}
	if upd.AgentID != nil {
		conv.AgentID = *upd.AgentID
	}
	if upd.ModelID != nil {
		conv.ModelID = *upd.ModelID
	}
	return nil
}

func (s *Server) accessibleAgent(ctx context.Context, user store.User, id string) (*store.Agent, bool) {
	a, err := s.services.Catalog.ResolveAgent(ctx, id)
	if err != nil {
		if !sigilerr.IsNotFound(err) {
			slog.Warn("resolving agent failed", "agent_id", id, "error", err)
		}
		return nil, false
	}
	return a, store.IsAuthorized(user, a)
}

func (s *Server) accessibleModel(ctx context.Context, user store.User, id string) (*store.Model, bool) {
	m, err := s.services.Catalog.ResolveModel(ctx, id)
	if err != nil {
		if !sigilerr.IsNotFound(err) {
			slog.Warn("resolving model failed", "model_id", id, "error", err)
		}
		return nil, false
	}
	return m, store.IsAuthorized(user, m)
}

// ConversationTitle is the first TitleLength characters of text, with "..."
// appended when it was cut.
func ConversationTitle(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= TitleLength {
		return string(runes)
	}
	return string(runes[:TitleLength]) + "..."
}
