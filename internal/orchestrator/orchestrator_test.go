package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/soldasur/advisor/internal/catalog"
	"github.com/soldasur/advisor/internal/graph"
	"github.com/soldasur/advisor/internal/models"
	"github.com/soldasur/advisor/internal/retrieval"
	"github.com/soldasur/advisor/internal/store"
)

type stubRetriever struct {
	result          retrieval.Result
	queryCalls      int
	searchOnlyCalls int
	lastQuery       string
}

func (s *stubRetriever) Query(_ context.Context, query string, _ models.Context) retrieval.Result {
	s.queryCalls++
	s.lastQuery = query
	return s.result
}

func (s *stubRetriever) SearchOnly(_ context.Context, query string) retrieval.Result {
	s.searchOnlyCalls++
	s.lastQuery = query
	return s.result
}

type stubGenerator struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (s *stubGenerator) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.lastSystem = systemPrompt
	s.lastUser = userPrompt
	return s.reply, s.err
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, store.Store) {
	t.Helper()
	g, err := graph.Load("")
	if err != nil {
		t.Fatalf("graph.Load error: %v", err)
	}
	products, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load error: %v", err)
	}
	s := store.NewInMemoryStore()
	all := append([]Option{
		WithStore(s),
		WithGraph(graph.NewEngine(g, products, nil)),
	}, opts...)
	o, err := New(all...)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return o, s
}

func intPtr(i int) *int { return &i }

func TestNewRequiresStoreAndGraph(t *testing.T) {
	if _, err := New(); err == nil {
		t.Error("expected error without store")
	}
	if _, err := New(WithStore(store.NewInMemoryStore())); err == nil {
		t.Error("expected error without graph")
	}
}

func TestStartConversationExpertRendersStartNode(t *testing.T) {
	o, s := newTestOrchestrator(t)
	resp, err := o.StartConversation(context.Background(), "c1", models.ModeExpert)
	if err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	if resp.Type != models.ResponseQuestion {
		t.Fatalf("expected question, got %s", resp.Type)
	}
	if resp.NodeID != models.StartNodeID {
		t.Errorf("expected start node, got %s", resp.NodeID)
	}
	if resp.ModeLabel != "Modo Experto" {
		t.Errorf("unexpected mode label %q", resp.ModeLabel)
	}
	state, _ := s.GetConversation("c1")
	if state == nil || state.Mode != models.ModeExpert {
		t.Errorf("conversation not persisted in expert mode: %+v", state)
	}
}

func TestStartConversationGeneratesID(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	resp, err := o.StartConversation(context.Background(), "", models.ModeHybrid)
	if err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	if resp.ConversationID == "" {
		t.Error("expected a generated conversation id")
	}
}

func TestStartConversationGreetings(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	retrievalResp, err := o.StartConversation(context.Background(), "c-retrieval", models.ModeRetrieval)
	if err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	if retrievalResp.Text != greetingRetrieval || retrievalResp.ModeLabel != "Modo Chat" {
		t.Errorf("unexpected retrieval greeting: %+v", retrievalResp)
	}
	hybridResp, err := o.StartConversation(context.Background(), "c-hybrid", models.ModeHybrid)
	if err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	if hybridResp.Text != greetingHybrid || hybridResp.ModeLabel != "Modo Híbrido" {
		t.Errorf("unexpected hybrid greeting: %+v", hybridResp)
	}
}

func TestHandleTurnUnknownConversation(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.HandleTurn(context.Background(), "ghost", "hola", nil, nil)
	if !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestGuidedIntentSwitchesToExpert(t *testing.T) {
	o, s := newTestOrchestrator(t)
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeHybrid); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	resp, err := o.HandleTurn(context.Background(), "c1", "quiero calcular cuántos radiadores necesito", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if resp.Type != models.ResponseQuestion || resp.NodeID != models.StartNodeID {
		t.Fatalf("expected guided flow to start, got %+v", resp)
	}
	state, _ := s.GetConversation("c1")
	if state.Mode != models.ModeExpert {
		t.Errorf("mode not switched to expert: %s", state.Mode)
	}
}

func TestStructuredInputAdvancesGuidedFlow(t *testing.T) {
	o, s := newTestOrchestrator(t)
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeExpert); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	resp, err := o.HandleTurn(context.Background(), "c1", "", intPtr(0), nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.InputType == "" {
		t.Fatalf("expected an input request after selecting an option, got %+v", resp)
	}
	state, _ := s.GetConversation("c1")
	if state.CurrentNodeID == models.StartNodeID {
		t.Error("flow did not advance past the start node")
	}
}

func TestNumericMessageFeedsExpertFlow(t *testing.T) {
	o, s := newTestOrchestrator(t)
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeExpert); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	// Piso radiante branch asks for a single surface value.
	if _, err := o.HandleTurn(context.Background(), "c1", "", intPtr(0), nil); err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	resp, err := o.HandleTurn(context.Background(), "c1", "30", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("numeric message rejected: %s", resp.Error)
	}
	state, _ := s.GetConversation("c1")
	if v, ok := state.Vars.Number("superficie"); !ok || v != 30 {
		t.Errorf("surface not captured from free-text number: %v", state.Vars)
	}
}

func TestClarificationPausesFlow(t *testing.T) {
	ret := &stubRetriever{result: retrieval.Result{Summary: "Una caldera calienta agua."}}
	o, s := newTestOrchestrator(t, WithRetriever(ret))
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeExpert); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	resp, err := o.HandleTurn(context.Background(), "c1", "qué significa carga térmica", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if resp.Type != models.ResponseChat {
		t.Fatalf("expected chat response, got %s", resp.Type)
	}
	if resp.ModeLabel != clarificationLabel {
		t.Errorf("unexpected mode label %q", resp.ModeLabel)
	}
	if resp.Suggestion == nil || resp.Suggestion.Type != models.SuggestResumeExpert {
		t.Fatalf("expected resume suggestion, got %+v", resp.Suggestion)
	}
	state, _ := s.GetConversation("c1")
	if state.PausedNodeID != models.StartNodeID {
		t.Errorf("flow not paused at current node: %q", state.PausedNodeID)
	}
	if state.Mode != models.ModeExpert {
		t.Errorf("clarification must not change the mode: %s", state.Mode)
	}
}

func TestSwitchToExpertResumesPausedFlow(t *testing.T) {
	ret := &stubRetriever{result: retrieval.Result{Summary: "Respuesta."}}
	o, s := newTestOrchestrator(t, WithRetriever(ret))
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeExpert); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	if _, err := o.HandleTurn(context.Background(), "c1", "no entiendo", nil, nil); err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	resp, err := o.HandleTurn(context.Background(), "c1", "prefiero que me guíes", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if resp.Type != models.ResponseModeSwitch {
		t.Fatalf("expected mode switch, got %s", resp.Type)
	}
	if resp.NodeID != models.StartNodeID {
		t.Errorf("expected resumed node, got %q", resp.NodeID)
	}
	state, _ := s.GetConversation("c1")
	if state.PausedNodeID != "" {
		t.Errorf("paused node not cleared: %q", state.PausedNodeID)
	}
}

func TestModeSwitchIsIdempotent(t *testing.T) {
	o, s := newTestOrchestrator(t)
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeHybrid); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	first, err := o.HandleTurn(context.Background(), "c1", "modo chat", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	second, err := o.HandleTurn(context.Background(), "c1", "modo chat", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if first.Type != models.ResponseModeSwitch || second.Type != models.ResponseModeSwitch {
		t.Fatalf("expected mode switch responses, got %s and %s", first.Type, second.Type)
	}
	if first.Text != second.Text {
		t.Errorf("repeated switch changed the response: %q vs %q", first.Text, second.Text)
	}
	state, _ := s.GetConversation("c1")
	if state.Mode != models.ModeRetrieval {
		t.Errorf("expected retrieval mode, got %s", state.Mode)
	}
}

func TestProductSearchDoesNotChangeMode(t *testing.T) {
	ret := &stubRetriever{result: retrieval.Result{
		Candidates: []models.Candidate{{Model: "DIVA DS 24", Type: "Caldera mural", PowerWatts: 24000}},
		Summary:    "Tipos disponibles: Caldera mural",
	}}
	o, s := newTestOrchestrator(t, WithRetriever(ret))
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeHybrid); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	resp, err := o.HandleTurn(context.Background(), "c1", "busco una caldera mural", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if resp.Type != models.ResponseProducts {
		t.Fatalf("expected products response, got %s", resp.Type)
	}
	if resp.ModeLabel != productSearchLabel {
		t.Errorf("unexpected mode label %q", resp.ModeLabel)
	}
	if ret.searchOnlyCalls != 1 || ret.queryCalls != 0 {
		t.Errorf("expected one SearchOnly call, got search=%d query=%d", ret.searchOnlyCalls, ret.queryCalls)
	}
	if len(resp.Products) != 1 {
		t.Errorf("products not attached: %+v", resp.Products)
	}
	state, _ := s.GetConversation("c1")
	if state.Mode != models.ModeHybrid {
		t.Errorf("product search must not change the mode: %s", state.Mode)
	}
}

func TestFreeQueryFallsBackToProductListing(t *testing.T) {
	ret := &stubRetriever{result: retrieval.Result{
		Candidates: []models.Candidate{{Model: "BROEN 500", Type: "Radiador", PowerWatts: 900, Description: "Radiador de aluminio"}},
		Summary:    "Tipos disponibles: Radiador",
	}}
	gen := &stubGenerator{err: errors.New("model unavailable")}
	o, _ := newTestOrchestrator(t, WithRetriever(ret), WithGenerator(gen))
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeRetrieval); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	resp, err := o.HandleTurn(context.Background(), "c1", "qué es un radiador de aluminio", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if !strings.Contains(resp.Text, "BROEN 500") {
		t.Errorf("fallback listing missing product: %q", resp.Text)
	}
}

func TestFreeQueryUsesGeneratorWithGroundedPrompt(t *testing.T) {
	ret := &stubRetriever{result: retrieval.Result{
		Candidates: []models.Candidate{{Model: "BROEN 500", Type: "Radiador", PowerWatts: 900}},
	}}
	gen := &stubGenerator{reply: "Un radiador de aluminio calienta por convección."}
	o, s := newTestOrchestrator(t, WithRetriever(ret), WithGenerator(gen))
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeRetrieval); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	state, _ := s.GetConversation("c1")
	state.Vars["superficie"] = models.NumberValue(30)
	if err := s.SaveConversation(state); err != nil {
		t.Fatalf("SaveConversation error: %v", err)
	}

	resp, err := o.HandleTurn(context.Background(), "c1", "qué es un radiador de aluminio", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if resp.Text != gen.reply {
		t.Errorf("generator answer not used: %q", resp.Text)
	}
	if !strings.Contains(gen.lastUser, "qué es un radiador de aluminio") {
		t.Errorf("prompt missing the question: %q", gen.lastUser)
	}
	if !strings.Contains(gen.lastUser, "BROEN 500") {
		t.Errorf("prompt missing retrieved products: %q", gen.lastUser)
	}
	if !strings.Contains(gen.lastUser, "Superficie: 30") {
		t.Errorf("prompt missing client data: %q", gen.lastUser)
	}
}

func TestFreeQueryWithCalculationKeywordSuggestsGuidedFlow(t *testing.T) {
	ret := &stubRetriever{}
	o, _ := newTestOrchestrator(t, WithRetriever(ret))
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeRetrieval); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	resp, err := o.HandleTurn(context.Background(), "c1", "qué es mejor si necesito calefaccionar un local", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if resp.Suggestion == nil || resp.Suggestion.Type != models.SuggestSwitchToExpert {
		t.Fatalf("expected guided flow offer, got %+v", resp.Suggestion)
	}
	if resp.Suggestion.Message != guidedOfferMessage {
		t.Errorf("unexpected offer message %q", resp.Suggestion.Message)
	}
}

func TestHybridSuggestsNextMissingStep(t *testing.T) {
	ret := &stubRetriever{result: retrieval.Result{Summary: "Resumen."}}
	o, _ := newTestOrchestrator(t, WithRetriever(ret))
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeHybrid); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	resp, err := o.HandleTurn(context.Background(), "c1", "tengo 30 metros cuadrados", nil, nil)
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if resp.Type != models.ResponseHybrid {
		t.Fatalf("expected hybrid response, got %s", resp.Type)
	}
	if resp.Suggestion == nil || resp.Suggestion.Type != models.SuggestNextStep {
		t.Errorf("expected next step suggestion, got %+v", resp.Suggestion)
	}
}

func TestTurnsForSameConversationAreSerialized(t *testing.T) {
	o, s := newTestOrchestrator(t)
	if _, err := o.StartConversation(context.Background(), "c1", models.ModeHybrid); err != nil {
		t.Fatalf("StartConversation error: %v", err)
	}
	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.HandleTurn(context.Background(), "c1", "hola", nil, nil); err != nil {
				t.Errorf("HandleTurn error: %v", err)
			}
		}()
	}
	wg.Wait()
	state, _ := s.GetConversation("c1")
	if state.Interactions != turns {
		t.Errorf("expected %d interactions, got %d", turns, state.Interactions)
	}
}
