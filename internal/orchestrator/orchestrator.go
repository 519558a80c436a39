package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soldasur/advisor/internal/genai"
	"github.com/soldasur/advisor/internal/graph"
	"github.com/soldasur/advisor/internal/models"
	"github.com/soldasur/advisor/internal/retrieval"
	"github.com/soldasur/advisor/internal/store"
)

const (
	greetingRetrieval = "Perfecto, ahora puedes hacerme cualquier pregunta sobre calefacción."
	greetingHybrid    = "Modo híbrido activado. Puedo guiarte o responder preguntas libremente."

	productSearchLabel = "Búsqueda de Productos"
	clarificationLabel = "Aclaración"

	resumeOptionLabel = "Continuar con el cálculo"

	guidedOfferMessage = "¿Querés que te guíe en un cálculo preciso paso a paso?"

	systemPrompt = "Sos un asistente técnico de Soldasur, especialista en calefacción " +
		"y productos PEISA. Respondé siempre en español, de forma clara y concreta. " +
		"Basate únicamente en los productos listados y los datos del cliente."
)

// guidedFlowKeywords, found in a free question, trigger an offer to switch
// into the guided calculation flow.
var guidedFlowKeywords = []string{"calcular", "dimensionar", "cuántos", "necesito"}

// Retriever is the slice of the retrieval engine the orchestrator uses.
type Retriever interface {
	Query(ctx context.Context, query string, convCtx models.Context) retrieval.Result
	SearchOnly(ctx context.Context, query string) retrieval.Result
}

// Opts holds configuration for an Orchestrator.
type Opts struct {
	Store     store.Store
	Graph     *graph.Engine
	Retriever Retriever
	Generator genai.Generator
}

// Option configures an Orchestrator.
type Option func(*Opts)

// WithStore sets the conversation store.
func WithStore(s store.Store) Option { return func(o *Opts) { o.Store = s } }

// WithGraph sets the dialogue graph engine.
func WithGraph(g *graph.Engine) Option { return func(o *Opts) { o.Graph = g } }

// WithRetriever sets the retrieval engine.
func WithRetriever(r Retriever) Option { return func(o *Opts) { o.Retriever = r } }

// WithGenerator sets the text generator used for free-form answers. The
// orchestrator works without one, falling back to deterministic product
// listings.
func WithGenerator(g genai.Generator) Option { return func(o *Opts) { o.Generator = g } }

// Orchestrator routes conversation turns between the guided dialogue
// engine and the retrieval engine, keeping per-conversation state in the
// store. Turns for the same conversation are serialized.
type Orchestrator struct {
	store      store.Store
	graph      *graph.Engine
	retriever  Retriever
	generator  genai.Generator
	classifier *Classifier
	locks      sync.Map
}

// New creates an Orchestrator. Store and Graph are required; Retriever
// and Generator are optional and degrade gracefully when absent.
func New(opts ...Option) (*Orchestrator, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a conversation store")
	}
	if cfg.Graph == nil {
		return nil, fmt.Errorf("orchestrator requires a dialogue graph engine")
	}
	return &Orchestrator{
		store:      cfg.Store,
		graph:      cfg.Graph,
		retriever:  cfg.Retriever,
		generator:  cfg.Generator,
		classifier: NewClassifier(),
	}, nil
}

func (o *Orchestrator) lockFor(conversationID string) *sync.Mutex {
	mu, _ := o.locks.LoadOrStore(conversationID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// StartConversation creates a conversation in the given mode and returns
// the opening turn. An empty conversationID gets a generated one; an
// invalid mode falls back to hybrid.
func (o *Orchestrator) StartConversation(ctx context.Context, conversationID string, mode models.Mode) (models.TurnResponse, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	mu := o.lockFor(conversationID)
	mu.Lock()
	defer mu.Unlock()

	state := models.NewConversationState(conversationID, mode)
	slog.Debug("Orchestrator.StartConversation", "conversationID", conversationID, "mode", state.Mode)

	var resp models.TurnResponse
	if state.Mode == models.ModeExpert {
		resp = o.graph.Step(ctx, state, nil, nil)
	} else {
		text := greetingHybrid
		if state.Mode == models.ModeRetrieval {
			text = greetingRetrieval
		}
		resp = models.TurnResponse{
			Type: models.ResponseChat,
			Text: text,
		}
	}
	o.stamp(&resp, state)
	if err := o.store.SaveConversation(state); err != nil {
		return models.TurnResponse{}, fmt.Errorf("failed to persist new conversation: %w", err)
	}
	return resp, nil
}

// HandleTurn processes one user turn. Exactly one of message, optionIndex
// or inputValues is expected; structured input (option or values) goes
// straight to the guided flow, free text is classified and routed.
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID, message string, optionIndex *int, inputValues map[string]string) (models.TurnResponse, error) {
	mu := o.lockFor(conversationID)
	mu.Lock()
	defer mu.Unlock()

	state, err := o.store.GetConversation(conversationID)
	if err != nil {
		return models.TurnResponse{}, err
	}
	if state == nil {
		return models.TurnResponse{}, fmt.Errorf("%w: %s", models.ErrConversationNotFound, conversationID)
	}
	state.Interactions++
	state.UpdatedAt = time.Now().UTC()

	var resp models.TurnResponse
	switch {
	case optionIndex != nil || len(inputValues) > 0:
		resp = o.handleStructuredInput(ctx, state, optionIndex, inputValues)
	default:
		resp = o.handleMessage(ctx, state, message)
	}

	if resp.ModeLabel == "" {
		o.stamp(&resp, state)
	} else {
		resp.ConversationID = state.ConversationID
		resp.Mode = state.Mode
	}
	if err := o.store.SaveConversation(state); err != nil {
		return models.TurnResponse{}, fmt.Errorf("failed to persist conversation: %w", err)
	}
	return resp, nil
}

func (o *Orchestrator) stamp(resp *models.TurnResponse, state *models.ConversationState) {
	resp.ConversationID = state.ConversationID
	resp.Mode = state.Mode
	resp.ModeLabel = state.Mode.Label()
}

// handleStructuredInput feeds an option selection or form values to the
// guided flow. A selection of the resume option after a clarification
// picks the flow up where it paused.
func (o *Orchestrator) handleStructuredInput(ctx context.Context, state *models.ConversationState, optionIndex *int, inputValues map[string]string) models.TurnResponse {
	if state.PausedNodeID != "" {
		state.CurrentNodeID = state.PausedNodeID
		state.PausedNodeID = ""
	}
	if state.Mode != models.ModeExpert {
		state.Mode = models.ModeExpert
	}
	return o.graph.Step(ctx, state, optionIndex, inputValues)
}

func (o *Orchestrator) handleMessage(ctx context.Context, state *models.ConversationState, message string) models.TurnResponse {
	intent := o.classifier.Classify(message, state.Mode)
	slog.Debug("Orchestrator.handleMessage classified",
		"conversationID", state.ConversationID,
		"intent", intent.Type,
		"confidence", intent.Confidence,
		"mode", state.Mode)

	switch intent.Type {
	case models.IntentClarification:
		return o.handleClarification(ctx, state, message)
	case models.IntentSwitchMode:
		return o.handleModeSwitch(ctx, state, intent.TargetMode)
	case models.IntentGuidedCalculation:
		return o.handleGuidedCalculation(ctx, state, message)
	case models.IntentProductSearch:
		return o.handleProductSearch(ctx, state, message)
	case models.IntentFreeQuery:
		return o.handleFreeQuery(ctx, state, message)
	default:
		return o.handleHybrid(ctx, state, message)
	}
}

// handleClarification answers a side question during an expert flow
// without losing the flow position. The current node is paused and a
// resume suggestion is attached.
func (o *Orchestrator) handleClarification(ctx context.Context, state *models.ConversationState, message string) models.TurnResponse {
	if state.PausedNodeID == "" {
		state.PausedNodeID = state.CurrentNodeID
	}
	text := o.answerFreely(ctx, message, state.Vars)
	return models.TurnResponse{
		Type:      models.ResponseChat,
		Text:      text,
		ModeLabel: clarificationLabel,
		Suggestion: &models.Suggestion{
			Type:    models.SuggestResumeExpert,
			Message: "¿Continuamos con el cálculo?",
			Options: []string{resumeOptionLabel},
		},
	}
}

// handleModeSwitch changes the conversation mode. Switching to the mode
// already active is a no-op beyond the confirmation text. Switching back
// to expert resumes a paused flow when there is one.
func (o *Orchestrator) handleModeSwitch(ctx context.Context, state *models.ConversationState, target models.Mode) models.TurnResponse {
	if !target.Valid() {
		target = models.ModeHybrid
	}
	previous := state.Mode
	state.Mode = target

	if target == models.ModeExpert {
		if state.PausedNodeID != "" {
			state.CurrentNodeID = state.PausedNodeID
			state.PausedNodeID = ""
		}
		resp := o.graph.Step(ctx, state, nil, nil)
		resp.Type = models.ResponseModeSwitch
		return resp
	}

	text := greetingHybrid
	if target == models.ModeRetrieval {
		text = greetingRetrieval
	}
	if previous == target {
		slog.Debug("Orchestrator.handleModeSwitch no-op", "conversationID", state.ConversationID, "mode", target)
	}
	return models.TurnResponse{
		Type: models.ResponseModeSwitch,
		Text: text,
	}
}

// handleGuidedCalculation moves the conversation into the expert flow.
// A numeric message inside an active expert flow is treated as the answer
// to the current input node.
func (o *Orchestrator) handleGuidedCalculation(ctx context.Context, state *models.ConversationState, message string) models.TurnResponse {
	trimmed := strings.TrimSpace(message)
	if state.Mode == models.ModeExpert && trimmed != "" {
		if _, err := graph.ParseLocalizedNumber(trimmed); err == nil {
			return o.graph.Step(ctx, state, nil, map[string]string{"value": trimmed})
		}
	}
	state.Mode = models.ModeExpert
	if state.PausedNodeID != "" {
		state.CurrentNodeID = state.PausedNodeID
		state.PausedNodeID = ""
	}
	return o.graph.Step(ctx, state, nil, nil)
}

// handleProductSearch runs a catalog search without the conversation
// context filters and without changing the conversation mode.
func (o *Orchestrator) handleProductSearch(ctx context.Context, state *models.ConversationState, message string) models.TurnResponse {
	if o.retriever == nil {
		return models.TurnResponse{
			Type:      models.ResponseProducts,
			Text:      retrieval.NoResultsSummary,
			ModeLabel: productSearchLabel,
		}
	}
	result := o.retriever.SearchOnly(ctx, message)
	return models.TurnResponse{
		Type:      models.ResponseProducts,
		Text:      result.Summary,
		Products:  result.Candidates,
		ModeLabel: productSearchLabel,
	}
}

// handleFreeQuery answers an open question, grounding the answer in
// retrieved products and known client data. When a generator is not
// available, or fails, the retrieved product listing is the answer.
func (o *Orchestrator) handleFreeQuery(ctx context.Context, state *models.ConversationState, message string) models.TurnResponse {
	state.Mode = models.ModeRetrieval
	text, products := o.freeAnswerWithProducts(ctx, message, state.Vars)
	resp := models.TurnResponse{
		Type:     models.ResponseChat,
		Text:     text,
		Products: products,
	}
	if suggestion := guidedFlowSuggestion(message); suggestion != nil {
		resp.Suggestion = suggestion
	}
	return resp
}

// handleHybrid combines a retrieval-grounded answer with a pointer to the
// next missing piece of data for a guided calculation.
func (o *Orchestrator) handleHybrid(ctx context.Context, state *models.ConversationState, message string) models.TurnResponse {
	text, products := o.freeAnswerWithProducts(ctx, message, state.Vars)
	resp := models.TurnResponse{
		Type:     models.ResponseHybrid,
		Text:     text,
		Products: products,
	}
	if step := o.graph.SuggestNextStep(state.Vars); step != nil {
		resp.Suggestion = step
	} else if suggestion := guidedFlowSuggestion(message); suggestion != nil {
		resp.Suggestion = suggestion
	}
	return resp
}

func guidedFlowSuggestion(message string) *models.Suggestion {
	lower := strings.ToLower(message)
	for _, kw := range guidedFlowKeywords {
		if strings.Contains(lower, kw) {
			return &models.Suggestion{
				Type:    models.SuggestSwitchToExpert,
				Message: guidedOfferMessage,
				Options: []string{"Sí, guiame", "No, seguir charlando"},
			}
		}
	}
	return nil
}

// answerFreely produces a free-text answer without returning products.
func (o *Orchestrator) answerFreely(ctx context.Context, message string, convCtx models.Context) string {
	text, _ := o.freeAnswerWithProducts(ctx, message, convCtx)
	return text
}

// freeAnswerWithProducts retrieves candidate products for the question and
// asks the generator for a grounded answer. The deterministic product
// listing doubles as the fallback answer.
func (o *Orchestrator) freeAnswerWithProducts(ctx context.Context, message string, convCtx models.Context) (string, []models.Candidate) {
	var result retrieval.Result
	if o.retriever != nil {
		result = o.retriever.Query(ctx, message, convCtx)
	} else {
		result.Summary = retrieval.NoResultsSummary
	}

	var fallback string
	switch {
	case len(result.Candidates) > 0:
		fallback = retrieval.FormatProductList(result.Candidates)
	case result.Summary != "":
		fallback = result.Summary
	default:
		fallback = retrieval.NoResultsSummary
	}
	if o.generator == nil {
		return fallback, result.Candidates
	}

	prompt := buildUserPrompt(message, convCtx, result.Candidates)
	answer, err := o.generator.Generate(ctx, systemPrompt, prompt)
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			slog.Error("Orchestrator free answer generation failed", "error", err)
		}
		return fallback, result.Candidates
	}
	return answer, result.Candidates
}

// buildUserPrompt assembles the generator prompt from the question, the
// data collected so far and the retrieved products.
func buildUserPrompt(message string, convCtx models.Context, products []models.Candidate) string {
	var b strings.Builder
	b.WriteString("Pregunta del cliente: ")
	b.WriteString(message)
	b.WriteString("\n")

	var facts []string
	if v, ok := convCtx.Number("superficie"); ok {
		facts = append(facts, fmt.Sprintf("Superficie: %.0f m²", v))
	}
	if v, ok := convCtx.Text("piso_zona"); ok {
		facts = append(facts, "Zona: "+v)
	} else if v, ok := convCtx.Text("zona"); ok {
		facts = append(facts, "Zona: "+v)
	}
	if v, ok := convCtx.Number("carga_termica"); ok {
		facts = append(facts, fmt.Sprintf("Carga térmica: %.0f W", v))
	}
	if v, ok := convCtx.Text("tipo_calefaccion"); ok {
		facts = append(facts, "Tipo de calefacción: "+v)
	} else if v, ok := convCtx.Text("inicio"); ok {
		facts = append(facts, "Tipo de calefacción: "+v)
	}
	if len(facts) > 0 {
		b.WriteString("Datos del cliente:\n")
		for _, f := range facts {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}
	if listing := retrieval.FormatProductList(products); listing != "" {
		b.WriteString("Productos relevantes:\n")
		b.WriteString(listing)
		b.WriteString("\n")
	}
	return b.String()
}
