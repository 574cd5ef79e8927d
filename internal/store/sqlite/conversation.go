// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func (s *Store) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Title == "" {
		conv.Title = store.DefaultTitle
	}
	now := s.now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	const q = `INSERT INTO conversations (id, title, user_id, agent_id, model_id, pending_handle, pending_message_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		conv.ID,
		conv.Title,
		conv.UserID,
		conv.AgentID,
		conv.ModelID,
		conv.PendingHandle,
		conv.PendingMessageID,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "creating conversation %s", conv.ID)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	const q = `SELECT id, title, user_id, agent_id, model_id, pending_handle, pending_message_id, created_at, updated_at
FROM conversations WHERE id = ? AND deleted_at = ''`

	var conv store.Conversation
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&conv.ID,
		&conv.Title,
		&conv.UserID,
		&conv.AgentID,
		&conv.ModelID,
		&conv.PendingHandle,
		&conv.PendingMessageID,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreConversationNotFound, "conversation %s not found", id)
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "getting conversation %s", id)
	}

	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)
	return &conv, nil
}

func (s *Store) UpdateConversation(ctx context.Context, id string, upd store.ConversationUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(s.now())}

	if upd.AgentID != nil {
		sets = append(sets, "agent_id = ?")
		args = append(args, *upd.AgentID)
	}
	if upd.ModelID != nil {
		sets = append(sets, "model_id = ?")
		args = append(args, *upd.ModelID)
	}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Pending != nil {
		sets = append(sets, "pending_handle = ?", "pending_message_id = ?")
		args = append(args, upd.Pending.Handle, upd.Pending.MessageID)
	}
	args = append(args, id)

	q := "UPDATE conversations SET " + strings.Join(sets, ", ") + " WHERE id = ? AND deleted_at = ''"
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "updating conversation %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "checking rows affected for conversation %s", id)
	}
	if rows == 0 {
		return sigilerr.Errorf(sigilerr.CodeStoreConversationNotFound, "conversation %s not found", id)
	}
	return nil
}

// DeleteConversation soft-deletes the conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "beginning delete of conversation %s", id)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := formatTime(s.now())
	result, err := tx.ExecContext(ctx,
		`UPDATE conversations SET deleted_at = ? WHERE id = ? AND deleted_at = ''`, now, id)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "deleting conversation %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "checking rows affected for conversation %s", id)
	}
	if rows == 0 {
		return sigilerr.Errorf(sigilerr.CodeStoreConversationNotFound, "conversation %s not found", id)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET deleted_at = ? WHERE conversation_id = ? AND deleted_at = ''`, now, id); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "deleting messages of conversation %s", id)
	}

	if err := tx.Commit(); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "committing delete of conversation %s", id)
	}
	return nil
}

func (s *Store) PurgeConversations(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE deleted_at != '' AND deleted_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "purging conversations")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "counting purged conversations")
	}
	return n, nil
}
