// Package store provides storage backends for conversation state.
//
// This file implements the Postgres-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/soldasur/advisor/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversations in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store from a postgres:// DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveConversation upserts the conversation row.
func (s *PostgresStore) SaveConversation(state *models.ConversationState) error {
	if state == nil || state.ConversationID == "" {
		return fmt.Errorf("conversation state without id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", state.ConversationID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO conversations (id, state, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		state.ConversationID, string(data), state.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save conversation %s: %w", state.ConversationID, err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "conversationID", state.ConversationID)
	return nil
}

// GetConversation fetches a conversation, or nil when absent.
func (s *PostgresStore) GetConversation(conversationID string) (*models.ConversationState, error) {
	var data string
	err := s.db.QueryRow(`SELECT state FROM conversations WHERE id = $1`, conversationID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}
	return &state, nil
}

// DeleteConversation removes a conversation row.
func (s *PostgresStore) DeleteConversation(conversationID string) error {
	if _, err := s.db.Exec(`DELETE FROM conversations WHERE id = $1`, conversationID); err != nil {
		slog.Error("PostgresStore DeleteConversation failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
