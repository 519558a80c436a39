package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/soldasur/advisor/internal/models"
)

// InMemoryStore keeps conversation state in process memory. It is the
// default backend and the one the tests use.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	slog.Debug("NewInMemoryStore created")
	return &InMemoryStore{conversations: make(map[string][]byte)}
}

// SaveConversation stores a JSON snapshot of the state. Snapshotting keeps
// callers from aliasing stored state through retained pointers.
func (s *InMemoryStore) SaveConversation(state *models.ConversationState) error {
	if state == nil || state.ConversationID == "" {
		return fmt.Errorf("conversation state without id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", state.ConversationID, err)
	}
	s.mu.Lock()
	s.conversations[state.ConversationID] = data
	s.mu.Unlock()
	return nil
}

// GetConversation returns a copy of the stored state, or nil when absent.
func (s *InMemoryStore) GetConversation(conversationID string) (*models.ConversationState, error) {
	s.mu.RLock()
	data, ok := s.conversations[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var state models.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}
	return &state, nil
}

// DeleteConversation removes a conversation.
func (s *InMemoryStore) DeleteConversation(conversationID string) error {
	s.mu.Lock()
	delete(s.conversations, conversationID)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
