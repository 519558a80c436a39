// Package store provides storage backends for conversation state.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soldasur/advisor/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversations in an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is the database file
// path; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveConversation inserts or replaces the conversation row.
func (s *SQLiteStore) SaveConversation(state *models.ConversationState) error {
	if state == nil || state.ConversationID == "" {
		return fmt.Errorf("conversation state without id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", state.ConversationID, err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO conversations (id, state, updated_at) VALUES (?, ?, ?)`,
		state.ConversationID, string(data), state.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save conversation %s: %w", state.ConversationID, err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "conversationID", state.ConversationID)
	return nil
}

// GetConversation fetches a conversation, or nil when absent.
func (s *SQLiteStore) GetConversation(conversationID string) (*models.ConversationState, error) {
	var data string
	err := s.db.QueryRow(`SELECT state FROM conversations WHERE id = ?`, conversationID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}
	return &state, nil
}

// DeleteConversation removes a conversation row.
func (s *SQLiteStore) DeleteConversation(conversationID string) error {
	if _, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		slog.Error("SQLiteStore DeleteConversation failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
