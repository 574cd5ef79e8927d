// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"

	"github.com/google/uuid"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg *store.Message) (*store.Message, error) {
	if msg == nil || msg.Role == "" {
		return nil, sigilerr.New(sigilerr.CodeStoreMessageAppendInvalid, "message role is required",
			sigilerr.FieldConversationID(conversationID))
	}
	// Soft-deleted conversations accept no new messages.
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	out := *msg
	out.ConversationID = conversationID
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = s.now()
	}

	data, err := encodeJSON(out.SafetyData)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreMessageAppendInvalid, "encoding safety data for message %s", out.ID)
	}

	const q = `INSERT INTO messages (id, conversation_id, role, content, agent_id, model_id, safety_data, pending, blocked, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		out.ID,
		out.ConversationID,
		string(out.Role),
		out.Content,
		out.AgentID,
		out.ModelID,
		data,
		boolInt(out.Pending),
		boolInt(out.Blocked),
		formatTime(out.CreatedAt),
	)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "appending message to conversation %s", conversationID)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, formatTime(out.CreatedAt), conversationID); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "touching conversation %s", conversationID)
	}

	return &out, nil
}

// ListMessages returns the non-deleted messages of a conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	const q = `SELECT id, conversation_id, role, content, agent_id, model_id, safety_data, pending, blocked, created_at
FROM messages WHERE conversation_id = ? AND deleted_at = '' ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "listing messages for conversation %s", conversationID)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		var (
			m                store.Message
			role, data, ts   string
			pending, blocked int
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.AgentID, &m.ModelID,
			&data, &pending, &blocked, &ts); err != nil {
			return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "scanning message row")
		}
		m.Role = store.MessageRole(role)
		m.SafetyData = decodeJSON(data)
		m.Pending = pending != 0
		m.Blocked = blocked != 0
		m.CreatedAt = parseTime(ts)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "iterating message rows")
	}
	return msgs, nil
}

// DeleteMessage soft-deletes a single message.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at = ? WHERE id = ? AND deleted_at = ''`, formatTime(s.now()), id)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "deleting message %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "checking rows affected for message %s", id)
	}
	if rows == 0 {
		return sigilerr.Errorf(sigilerr.CodeStoreMessageNotFound, "message %s not found", id)
	}
	return nil
}
