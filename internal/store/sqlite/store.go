// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// Compile-time interface check.
var _ store.Backend = (*Store)(nil)

// Store implements every store role backed by a single SQLite database.
type Store struct {
	db      *sql.DB
	enabled map[string]bool // empty = all backends enabled
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithEnabledBackends restricts the catalog to models of the given backends.
func WithEnabledBackends(backends ...string) Option {
	return func(s *Store) {
		for _, b := range backends {
			if b != "" {
				s.enabled[b] = true
			}
		}
	}
}

// Open opens (or creates) a SQLite database at dbPath and initialises the schema.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "migrating sqlite db")
	}

	s := &Store{db: db, enabled: map[string]bool{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL DEFAULT 'New chat',
	user_id            TEXT NOT NULL DEFAULT '',
	agent_id           TEXT NOT NULL DEFAULT '',
	model_id           TEXT NOT NULL DEFAULT '',
	pending_handle     TEXT NOT NULL DEFAULT '',
	pending_message_id TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	deleted_at         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_conversations_active ON conversations(updated_at, deleted_at);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	agent_id        TEXT NOT NULL DEFAULT '',
	model_id        TEXT NOT NULL DEFAULT '',
	safety_data     TEXT NOT NULL DEFAULT '{}',
	pending         INTEGER NOT NULL DEFAULT 0,
	blocked         INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	deleted_at      TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS models (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	backend             TEXT NOT NULL,
	model_identifier    TEXT NOT NULL DEFAULT '',
	temperature         REAL NOT NULL DEFAULT 0,
	max_tokens          INTEGER NOT NULL DEFAULT 4096,
	supports_tool_calls INTEGER NOT NULL DEFAULT 0,
	requires_polling    INTEGER NOT NULL DEFAULT 0,
	active              INTEGER NOT NULL DEFAULT 1,
	min_role            TEXT NOT NULL DEFAULT 'PRIVILEGED',
	display_order       INTEGER NOT NULL DEFAULT 0,
	config              TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS agents (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	system_prompt    TEXT NOT NULL DEFAULT '',
	default_model_id TEXT NOT NULL DEFAULT '',
	active           INTEGER NOT NULL DEFAULT 1,
	min_role         TEXT NOT NULL DEFAULT 'PRIVILEGED',
	display_order    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS agent_models (
	agent_id TEXT NOT NULL,
	model_id TEXT NOT NULL,
	PRIMARY KEY (agent_id, model_id),
	FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tools (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	schema        TEXT NOT NULL DEFAULT '{}',
	active        INTEGER NOT NULL DEFAULT 1,
	min_role      TEXT NOT NULL DEFAULT 'PRIVILEGED',
	requires_auth INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS agent_tools (
	agent_id TEXT NOT NULL,
	tool_id  TEXT NOT NULL,
	PRIMARY KEY (agent_id, tool_id),
	FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS users (
	id   TEXT PRIMARY KEY,
	role TEXT NOT NULL DEFAULT 'STANDARD'
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout keeps a fixed-width fraction so stored values sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime serialises a time for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func encodeJSON(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
