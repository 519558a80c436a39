package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/soldasur/advisor/internal/models"
)

// StartRequest is the payload of POST /start.
type StartRequest struct {
	ConversationID string      `json:"conversation_id,omitempty"`
	Mode           models.Mode `json:"mode,omitempty"`
}

// MessageRequest is the payload of POST /message. Exactly one of Message,
// OptionIndex or InputValues carries the user turn.
type MessageRequest struct {
	ConversationID string            `json:"conversation_id"`
	Message        string            `json:"message,omitempty"`
	OptionIndex    *int              `json:"option_index,omitempty"`
	InputValues    map[string]string `json:"input_values,omitempty"`
}

// startHandler handles POST /start.
func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("startHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("startHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Mode != "" && !req.Mode.Valid() {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown mode: "+string(req.Mode)))
		return
	}

	resp, err := s.orch.StartConversation(r.Context(), req.ConversationID, req.Mode)
	if err != nil {
		slog.Error("startHandler failed", "error", err)
		turnFailures.Inc()
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start conversation"))
		return
	}
	conversationsStarted.WithLabelValues(string(resp.Mode)).Inc()
	writeJSONResponse(w, http.StatusCreated, models.Success(resp))
}

// messageHandler handles POST /message.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("messageHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("messageHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.ConversationID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("conversation_id is required"))
		return
	}
	if req.Message == "" && req.OptionIndex == nil && len(req.InputValues) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("One of message, option_index or input_values is required"))
		return
	}

	resp, err := s.orch.HandleTurn(r.Context(), req.ConversationID, req.Message, req.OptionIndex, req.InputValues)
	if err != nil {
		if errors.Is(err, models.ErrConversationNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
			return
		}
		slog.Error("messageHandler failed", "error", err, "conversationID", req.ConversationID)
		turnFailures.Inc()
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		return
	}
	turnsProcessed.WithLabelValues(string(resp.Type)).Inc()
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success("ok"))
}
