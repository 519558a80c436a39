// Package store provides storage backends for conversation state.
//
// It includes an in-memory store (the default), plus SQLite, Postgres and
// Redis backends selected by DSN. All backends persist the full
// ConversationState as JSON; the orchestrator owns concurrency, so a
// backend only needs to be safe for concurrent calls, not transactional
// across them.
package store

import (
	"strings"
	"time"

	"github.com/soldasur/advisor/internal/models"
)

// Store persists conversation state.
type Store interface {
	// SaveConversation inserts or replaces the state for its conversation id.
	SaveConversation(state *models.ConversationState) error
	// GetConversation returns the state, or nil without error when the
	// conversation does not exist.
	GetConversation(conversationID string) (*models.ConversationState, error)
	// DeleteConversation removes a conversation. Deleting a missing
	// conversation is not an error.
	DeleteConversation(conversationID string) error
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN string
	// TTL expires idle conversations on backends that support it (Redis).
	TTL time.Duration
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the backend connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithTTL sets the idle-conversation expiry for backends that support it.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// DSNType identifies which backend a DSN selects.
type DSNType string

const (
	// DSNTypeMemory selects the in-memory store.
	DSNTypeMemory DSNType = "memory"
	// DSNTypePostgres selects the Postgres store.
	DSNTypePostgres DSNType = "postgres"
	// DSNTypeRedis selects the Redis store.
	DSNTypeRedis DSNType = "redis"
	// DSNTypeSQLite selects the SQLite store.
	DSNTypeSQLite DSNType = "sqlite"
)

// DetectDSNType inspects a DSN and decides which backend it addresses.
// An empty DSN selects the in-memory store; URLs select Postgres or Redis;
// anything else is treated as an SQLite file path.
func DetectDSNType(dsn string) DSNType {
	switch {
	case dsn == "":
		return DSNTypeMemory
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DSNTypePostgres
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return DSNTypeRedis
	default:
		return DSNTypeSQLite
	}
}

// NewStore creates the backend the DSN selects.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch DetectDSNType(cfg.DSN) {
	case DSNTypeMemory:
		return NewInMemoryStore(), nil
	case DSNTypePostgres:
		return NewPostgresStore(opts...)
	case DSNTypeRedis:
		return NewRedisStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}
