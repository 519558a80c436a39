package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soldasur/advisor/internal/catalog"
	"github.com/soldasur/advisor/internal/graph"
	"github.com/soldasur/advisor/internal/models"
	"github.com/soldasur/advisor/internal/orchestrator"
	"github.com/soldasur/advisor/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	g, err := graph.Load("")
	if err != nil {
		t.Fatalf("graph.Load error: %v", err)
	}
	products, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load error: %v", err)
	}
	orch, err := orchestrator.New(
		orchestrator.WithStore(store.NewInMemoryStore()),
		orchestrator.WithGraph(graph.NewEngine(g, products, nil)),
	)
	if err != nil {
		t.Fatalf("orchestrator.New error: %v", err)
	}
	srv, err := NewServer(orch)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, srv *Server, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeTurn(t *testing.T, rec *httptest.ResponseRecorder) models.TurnResponse {
	t.Helper()
	var envelope struct {
		Status string              `json:"status"`
		Result models.TurnResponse `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Status != "ok" {
		t.Fatalf("expected ok status, got %q", envelope.Status)
	}
	return envelope.Result
}

func TestStartEndpointCreatesConversation(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv, "/start", StartRequest{Mode: models.ModeExpert})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	turn := decodeTurn(t, rec)
	if turn.ConversationID == "" {
		t.Error("expected a conversation id")
	}
	if turn.Type != models.ResponseQuestion || turn.NodeID != models.StartNodeID {
		t.Errorf("expected the guided start question, got %+v", turn)
	}
}

func TestStartEndpointRejectsUnknownMode(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv, "/start", StartRequest{Mode: models.Mode("turbo")})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestStartEndpointRejectsGet(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/start", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestMessageEndpointFullGuidedExchange(t *testing.T) {
	srv := newTestServer(t)
	start := decodeTurn(t, postJSON(t, srv, "/start", StartRequest{Mode: models.ModeExpert}))

	idx := 0
	rec := postJSON(t, srv, "/message", MessageRequest{
		ConversationID: start.ConversationID,
		OptionIndex:    &idx,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	turn := decodeTurn(t, rec)
	if turn.InputType == "" {
		t.Fatalf("expected an input request, got %+v", turn)
	}

	rec = postJSON(t, srv, "/message", MessageRequest{
		ConversationID: start.ConversationID,
		InputValues:    map[string]string{"superficie": "30"},
	})
	turn = decodeTurn(t, rec)
	if turn.Error != "" {
		t.Fatalf("input rejected: %s", turn.Error)
	}
	if len(turn.Options) == 0 {
		t.Errorf("expected zone options after the surface input, got %+v", turn)
	}
}

func TestMessageEndpointValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/message", MessageRequest{Message: "hola"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing conversation_id should be 400, got %d", rec.Code)
	}

	rec = postJSON(t, srv, "/message", MessageRequest{ConversationID: "c1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty turn should be 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON should be 400, got %d", rec2.Code)
	}
}

func TestMessageEndpointUnknownConversation(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv, "/message", MessageRequest{ConversationID: "ghost", Message: "hola"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from metrics, got %d", rec.Code)
	}
}
