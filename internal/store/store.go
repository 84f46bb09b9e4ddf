// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides sqlite-backed conversation persistence, shared by
// the HTTP API and the interactive chat's /save command.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jeranaias/puppet/internal/llm"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// =============================================================================
// TYPES
// =============================================================================

// Conversation is a persisted transcript.
type Conversation struct {
	ID        string        `json:"id"`
	Summary   string        `json:"summary"`
	Messages  []llm.Message `json:"messages"`
	CreatedAt time.Time     `json:"created_time"`
}

// Meta is the listing row for a conversation, without its messages.
type Meta struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_time"`
}

// =============================================================================
// STORE
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS conversation (
	id           TEXT PRIMARY KEY,
	summary      TEXT NOT NULL,
	messages     TEXT NOT NULL,
	created_time TIMESTAMP NOT NULL
);
`

// Store handles conversation persistence on a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Create persists a transcript and returns its generated ID. An empty
// summary is derived from the first user message.
func (s *Store) Create(ctx context.Context, summary string, messages []llm.Message) (string, error) {
	if summary == "" {
		summary = summarize(messages)
	}

	encoded, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation (id, summary, messages, created_time) VALUES (?, ?, ?, ?)`,
		id, summary, string(encoded), time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get retrieves a conversation by ID.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, summary, messages, created_time FROM conversation WHERE id = ?`, id)

	var conv Conversation
	var encoded string
	if err := row.Scan(&conv.ID, &conv.Summary, &encoded, &conv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(encoded), &conv.Messages); err != nil {
		return nil, err
	}
	return &conv, nil
}

// List returns metadata for all conversations, most recent first.
func (s *Store) List(ctx context.Context) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, summary, messages, created_time FROM conversation ORDER BY created_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metas := []Meta{}
	for rows.Next() {
		var meta Meta
		var encoded string
		if err := rows.Scan(&meta.ID, &meta.Summary, &encoded, &meta.CreatedAt); err != nil {
			return nil, err
		}
		var messages []llm.Message
		if err := json.Unmarshal([]byte(encoded), &messages); err == nil {
			meta.MessageCount = len(messages)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Delete removes a conversation by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversation WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// summarize derives a one-line summary from the first user message.
func summarize(messages []llm.Message) string {
	for _, msg := range messages {
		if msg.Role != llm.RoleUser {
			continue
		}
		text := strings.ReplaceAll(msg.Text(), "\n", " ")
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > 50 {
			return string(runes[:47]) + "..."
		}
		return text
	}
	return "New conversation"
}
