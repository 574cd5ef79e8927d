// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func TestMessageStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	conv := &store.Conversation{UserID: "usr-1"}
	require.NoError(t, s.CreateConversation(ctx, conv))

	user, err := s.AppendMessage(ctx, conv.ID, &store.Message{
		Role:    store.MessageRoleUser,
		Content: "My SSN is 123-45-6789",
		SafetyData: map[string]any{
			"input_processing": map[string]any{"should_block": false, "processed_text": "My SSN is [SSN]"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	assistant, err := s.AppendMessage(ctx, conv.ID, &store.Message{
		Role: store.MessageRoleAssistant, Content: "Noted.", AgentID: "helper", ModelID: "dummy-1", Blocked: true,
	})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, assistant.ID, msgs[1].ID)

	input, ok := msgs[0].SafetyData["input_processing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "My SSN is [SSN]", input["processed_text"])
	assert.Equal(t, false, input["should_block"])

	assert.True(t, msgs[1].Blocked)
	assert.Equal(t, "dummy-1", msgs[1].ModelID)
}

func TestMessageStore_AppendValidation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.AppendMessage(ctx, "missing", &store.Message{Role: store.MessageRoleUser})
	assert.True(t, sigilerr.IsNotFound(err))

	conv := &store.Conversation{}
	require.NoError(t, s.CreateConversation(ctx, conv))
	_, err = s.AppendMessage(ctx, conv.ID, &store.Message{Content: "no role"})
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStoreMessageAppendInvalid))
}

func TestMessageStore_DeleteMessage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	conv := &store.Conversation{}
	require.NoError(t, s.CreateConversation(ctx, conv))
	placeholder, err := s.AppendMessage(ctx, conv.ID, &store.Message{
		Role: store.MessageRoleAssistant, Content: "Working on it...", Pending: true,
	})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Pending)

	require.NoError(t, s.DeleteMessage(ctx, placeholder.ID))

	msgs, err = s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	err = s.DeleteMessage(ctx, placeholder.ID)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStoreMessageNotFound))
}
