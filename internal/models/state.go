// Package models defines state management structures for advisor conversations.
package models

import "time"

// Mode selects which engine drives a conversation.
type Mode string

const (
	// ModeExpert runs the guided dialogue graph.
	ModeExpert Mode = "expert"
	// ModeRetrieval answers free questions via retrieval.
	ModeRetrieval Mode = "retrieval"
	// ModeHybrid combines retrieval answers with guided suggestions.
	ModeHybrid Mode = "hybrid"
)

// Valid reports whether m is a known conversation mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeExpert, ModeRetrieval, ModeHybrid:
		return true
	}
	return false
}

// Label returns the Spanish UI label for the mode.
func (m Mode) Label() string {
	switch m {
	case ModeExpert:
		return "Modo Experto"
	case ModeRetrieval:
		return "Modo Chat"
	default:
		return "Modo Híbrido"
	}
}

// Snapshot records one visited node with the variables at that point.
// History is append-only and never consulted by engine logic.
type Snapshot struct {
	NodeID string  `json:"node_id"`
	Vars   Context `json:"vars"`
}

// ConversationState is the full persisted state of one conversation.
// It is owned by the orchestrator, which serializes access per conversation.
type ConversationState struct {
	ConversationID string     `json:"conversation_id"`
	Mode           Mode       `json:"mode"`
	CurrentNodeID  string     `json:"current_node_id"`
	Vars           Context    `json:"vars"`
	History        []Snapshot `json:"history,omitempty"`
	// PausedNodeID remembers where the guided flow stopped when a
	// clarification interrupted it. Empty when nothing is paused.
	PausedNodeID string    `json:"paused_node_id,omitempty"`
	Interactions int       `json:"interactions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewConversationState creates a fresh conversation positioned at the start node.
func NewConversationState(conversationID string, mode Mode) *ConversationState {
	if !mode.Valid() {
		mode = ModeHybrid
	}
	now := time.Now()
	return &ConversationState{
		ConversationID: conversationID,
		Mode:           mode,
		CurrentNodeID:  StartNodeID,
		Vars:           make(Context),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordVisit appends the current node and a copy of the variables to history.
func (s *ConversationState) RecordVisit(nodeID string) {
	s.History = append(s.History, Snapshot{NodeID: nodeID, Vars: s.Vars.Clone()})
}
