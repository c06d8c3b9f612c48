// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/util"
)

// previewRunes bounds the preview shown in chat listings.
const previewRunes = 60

// =============================================================================
// ERRORS
// =============================================================================

// ChatError represents a chat storage error.
// It implements the error interface and can be compared using errors.Is.
type ChatError struct {
	Message string
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing chat errors.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrNotFound is returned when a chat doesn't exist.
	// Use errors.Is(err, ErrNotFound) to check for this error.
	ErrNotFound = &ChatError{Message: "chat not found"}

	// ErrExists is returned when creating a chat whose ID is already taken.
	ErrExists = &ChatError{Message: "chat already exists"}
)

// =============================================================================
// STORE
// =============================================================================

// ChatMeta is the listing view of a chat, without its messages.
type ChatMeta struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Provider     model.Provider `json:"provider"`
	Model        string         `json:"model"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	MessageCount int            `json:"message_count"`
	Preview      string         `json:"preview"`
}

// Store persists chats in SQLite. It is safe for concurrent use; SQLite
// serializes writers and the pool is limited to one connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the chat database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new chat together with any messages it already carries.
func (s *Store) Create(ctx context.Context, chat *model.Chat) error {
	if err := chat.Validate(); err != nil {
		return fmt.Errorf("invalid chat: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM chats WHERE id = ?", chat.ID).Scan(&exists)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrExists, chat.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to check chat: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, name, provider, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.Name, string(chat.Provider), chat.Model,
		chat.CreatedAt.UTC().UnixNano(), chat.UpdatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat: %w", err)
	}

	if err := insertMessages(ctx, tx, chat.ID, 0, chat.Messages); err != nil {
		return err
	}

	return tx.Commit()
}

// Get loads a chat with all of its messages in order.
func (s *Store) Get(ctx context.Context, id string) (*model.Chat, error) {
	var (
		chat             model.Chat
		provider         string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, provider, model, created_at, updated_at
		FROM chats WHERE id = ?`, id,
	).Scan(&chat.ID, &chat.Name, &provider, &chat.Model, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	chat.Provider = model.Provider(provider)
	chat.CreatedAt = time.Unix(0, created).UTC()
	chat.UpdatedAt = time.Unix(0, updated).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM messages
		WHERE chat_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	chat.Messages = []model.Message{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		chat.Messages = append(chat.Messages, model.Message{Role: model.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	return &chat, nil
}

// List returns every chat, most recently updated first.
func (s *Store) List(ctx context.Context) ([]ChatMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.provider, c.model, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id),
		       COALESCE((SELECT content FROM messages m WHERE m.chat_id = c.id ORDER BY seq LIMIT 1), '')
		FROM chats c
		ORDER BY c.updated_at DESC, c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	metas := []ChatMeta{}
	for rows.Next() {
		var (
			meta             ChatMeta
			provider, first  string
			created, updated int64
		)
		if err := rows.Scan(&meta.ID, &meta.Name, &provider, &meta.Model, &created, &updated, &meta.MessageCount, &first); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		meta.Provider = model.Provider(provider)
		meta.CreatedAt = time.Unix(0, created).UTC()
		meta.UpdatedAt = time.Unix(0, updated).UTC()
		meta.Preview = util.Title(first, previewRunes)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// AppendMessages adds messages to the end of a chat and bumps its update time.
func (s *Store) AppendMessages(ctx context.Context, id string, msgs ...model.Message) error {
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touch(ctx, tx, id); err != nil {
		return err
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq) + 1, 0) FROM messages WHERE chat_id = ?", id,
	).Scan(&next); err != nil {
		return fmt.Errorf("failed to read message sequence: %w", err)
	}

	if err := insertMessages(ctx, tx, id, next, msgs); err != nil {
		return err
	}
	return tx.Commit()
}

// Rename changes a chat's name.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("chat name is required")
	}
	if len([]rune(name)) > model.MaxNameRunes {
		return fmt.Errorf("chat name exceeds %d characters", model.MaxNameRunes)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE chats SET name = ?, updated_at = ? WHERE id = ?",
		name, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to rename chat: %w", err)
	}
	return requireOne(res, id)
}

// Delete removes a chat and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return requireOne(res, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func insertMessages(ctx context.Context, tx *sql.Tx, chatID string, start int, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (chat_id, seq, role, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		if _, err := stmt.ExecContext(ctx, chatID, start+i, string(m.Role), m.Content); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return nil
}

// touch bumps updated_at and reports ErrNotFound for unknown chats.
func touch(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE chats SET updated_at = ? WHERE id = ?", time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update chat: %w", err)
	}
	return requireOne(res, id)
}

func requireOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
