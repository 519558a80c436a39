// Package store provides storage backends for conversation state.
//
// This file implements the Redis-backed store. Conversations are stored
// as JSON values with an optional idle TTL, which suits deployments where
// abandoned conversations should expire on their own.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soldasur/advisor/internal/models"
)

const (
	redisKeyPrefix = "advisor:conversation:"
	// DefaultRedisTTL expires idle conversations after a day.
	DefaultRedisTTL = 24 * time.Hour
	redisOpTimeout  = 5 * time.Second
)

// RedisStore persists conversations in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a new Redis store from a redis:// DSN.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewRedisStore invoked", "DSN_set", cfg.DSN != "", "ttl", cfg.TTL)

	if cfg.DSN == "" {
		slog.Error("RedisStore DSN not set")
		return nil, fmt.Errorf("redis DSN not set")
	}
	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		slog.Error("Failed to parse Redis DSN", "error", err)
		return nil, fmt.Errorf("failed to parse redis DSN: %w", err)
	}
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// SaveConversation stores the conversation JSON, refreshing the TTL.
func (s *RedisStore) SaveConversation(state *models.ConversationState) error {
	if state == nil || state.ConversationID == "" {
		return fmt.Errorf("conversation state without id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", state.ConversationID, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, redisKeyPrefix+state.ConversationID, data, s.ttl).Err(); err != nil {
		slog.Error("RedisStore SaveConversation failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save conversation %s: %w", state.ConversationID, err)
	}
	slog.Debug("RedisStore SaveConversation succeeded", "conversationID", state.ConversationID)
	return nil
}

// GetConversation fetches a conversation, or nil when absent or expired.
func (s *RedisStore) GetConversation(conversationID string) (*models.ConversationState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	data, err := s.client.Get(ctx, redisKeyPrefix+conversationID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetConversation failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}
	return &state, nil
}

// DeleteConversation removes a conversation key.
func (s *RedisStore) DeleteConversation(conversationID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.client.Del(ctx, redisKeyPrefix+conversationID).Err(); err != nil {
		slog.Error("RedisStore DeleteConversation failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
