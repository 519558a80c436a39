package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/soldasur/advisor/internal/expr"
	"github.com/soldasur/advisor/internal/models"
	"github.com/soldasur/advisor/internal/retrieval"
)

// User-facing messages for recoverable input problems. The node is
// re-rendered with the message attached so the user can try again.
const (
	MsgInvalidNumber   = "Por favor ingrese valores numéricos válidos (ej: 4.5, 3.75)"
	MsgInvalidOption   = "Opción inválida"
	MsgNodeNotFound    = "Nodo no encontrado"
	MsgCalculationFail = "No pudimos completar el cálculo con los datos ingresados"
)

// maxCalculationChain bounds automatic calculation chaining so a cyclic
// knowledge base cannot loop forever.
const maxCalculationChain = 100

// Retriever supplies enrichment material for nodes flagged with
// enrich_with_retrieval. Implemented by the retrieval engine.
type Retriever interface {
	ContextFor(ctx context.Context, query string, convCtx models.Context) retrieval.Result
}

// Engine walks a conversation through the dialogue graph.
type Engine struct {
	graph     *Graph
	funcs     expr.Registry
	retriever Retriever
}

// NewEngine creates a dialogue engine. The retriever may be nil, which
// disables enrichment.
func NewEngine(g *Graph, products []models.Candidate, retriever Retriever) *Engine {
	return &Engine{graph: g, funcs: NewRegistry(products), retriever: retriever}
}

// Step processes one turn: it applies the user's option selection or input
// values to the current node, advances, chains through calculation nodes
// and renders the landing node. On recoverable input errors the current
// node is re-rendered with an error message and the state is unchanged.
func (e *Engine) Step(ctx context.Context, state *models.ConversationState, optionIndex *int, inputValues map[string]string) models.TurnResponse {
	node, ok := e.graph.Node(state.CurrentNodeID)
	if !ok {
		slog.Error("graph.Step node not found", "conversationID", state.ConversationID, "nodeID", state.CurrentNodeID)
		return models.TurnResponse{
			NodeID: state.CurrentNodeID,
			Type:   models.ResponseError,
			Error:  MsgNodeNotFound,
		}
	}

	if optionIndex != nil || len(inputValues) > 0 {
		next, errMsg := e.applyUserInput(node, state.Vars, optionIndex, inputValues)
		if errMsg != "" {
			resp := e.render(ctx, node, state)
			resp.Error = errMsg
			return resp
		}
		if next != "" {
			if _, ok := e.graph.Node(next); !ok {
				slog.Error("graph.Step advanced to unknown node", "conversationID", state.ConversationID, "nodeID", next)
				return models.TurnResponse{NodeID: next, Type: models.ResponseError, Error: MsgNodeNotFound}
			}
			state.CurrentNodeID = next
			state.RecordVisit(next)
			node, _ = e.graph.Node(next)
		}
	}

	node, errResp := e.chainCalculations(node, state)
	if errResp != nil {
		return *errResp
	}
	return e.render(ctx, node, state)
}

// applyUserInput processes the pending selection or input against the
// current node. It returns the id of the next node, or a user-facing error
// message when the input is invalid. The context is only modified when the
// whole input is valid.
func (e *Engine) applyUserInput(node *models.Node, vars models.Context, optionIndex *int, inputValues map[string]string) (next, errMsg string) {
	switch node.Kind {
	case models.NodeInput:
		parsed := make(map[string]float64, len(node.InputVars))
		for _, name := range node.InputVars {
			raw, ok := inputValues[name]
			if !ok && len(node.InputVars) == 1 {
				raw = inputValues["value"]
			}
			val, err := ParseLocalizedNumber(raw)
			if err != nil {
				slog.Debug("graph.applyUserInput rejected number", "node", node.ID, "var", name, "raw", raw)
				return "", MsgInvalidNumber
			}
			parsed[name] = val
		}
		for name, val := range parsed {
			vars[name] = models.NumberValue(val)
		}
		return node.Next, ""

	case models.NodeQuestion, models.NodeAnswer:
		if optionIndex == nil {
			return "", ""
		}
		if *optionIndex < 0 || *optionIndex >= len(node.Options) {
			return "", MsgInvalidOption
		}
		opt := node.Options[*optionIndex]
		value := opt.Value
		if value == "" {
			value = opt.Label
		}
		vars[node.ID] = models.StringValue(value)
		vars[node.ID+"_texto"] = models.StringValue(opt.Label)
		return opt.Next, ""

	case models.NodeDynamicOptions:
		if optionIndex == nil {
			return "", ""
		}
		candidates, _ := vars.Candidates(e.sourceVar(node))
		if *optionIndex < 0 || *optionIndex >= len(candidates) {
			return "", MsgInvalidOption
		}
		chosen := candidates[*optionIndex]
		vars[node.ID] = models.StringValue(chosen.Model)
		vars[node.ID+"_texto"] = models.StringValue(dynamicOptionLabel(chosen))
		return node.Next, ""
	}
	return "", ""
}

// chainCalculations runs calculation nodes until an interactive or
// terminal node is reached. Each node's steps run against a copy of the
// variables that is folded back only when every step succeeds, so a failed
// calculation commits nothing.
func (e *Engine) chainCalculations(node *models.Node, state *models.ConversationState) (*models.Node, *models.TurnResponse) {
	for hops := 0; node.Kind == models.NodeCalculation; hops++ {
		if hops >= maxCalculationChain {
			slog.Error("graph.chainCalculations cycle detected", "conversationID", state.ConversationID, "nodeID", node.ID)
			return nil, &models.TurnResponse{NodeID: node.ID, Type: models.ResponseError, Error: MsgCalculationFail}
		}

		scratch := state.Vars.Clone()
		for name, val := range node.Params {
			scratch[name] = models.NumberValue(val)
		}
		failed := false
		for _, step := range node.Steps {
			if err := expr.EvalAssignment(step, scratch, e.funcs); err != nil {
				slog.Error("graph.chainCalculations step failed", "conversationID", state.ConversationID, "nodeID", node.ID, "error", err)
				failed = true
				break
			}
		}
		if failed {
			return nil, &models.TurnResponse{NodeID: node.ID, Type: models.ResponseError, Error: MsgCalculationFail}
		}
		state.Vars = scratch

		next, ok := e.graph.Node(node.Next)
		if !ok {
			return nil, &models.TurnResponse{NodeID: node.Next, Type: models.ResponseError, Error: MsgNodeNotFound}
		}
		state.CurrentNodeID = next.ID
		state.RecordVisit(next.ID)
		node = next
	}
	return node, nil
}

// render produces the response for the node the conversation landed on.
func (e *Engine) render(ctx context.Context, node *models.Node, state *models.ConversationState) models.TurnResponse {
	resp := models.TurnResponse{
		ConversationID: state.ConversationID,
		NodeID:         node.ID,
		Text:           RenderTemplate(node.Prompt, state.Vars),
	}

	switch node.Kind {
	case models.NodeQuestion:
		resp.Type = models.ResponseQuestion
		resp.Options = optionLabels(node.Options)

	case models.NodeInput:
		resp.Type = models.ResponseQuestion
		if len(node.InputVars) == 1 {
			resp.InputType = "number"
			resp.InputLabel = "Ingrese el valor"
		} else {
			resp.InputType = "multiple"
			for _, name := range node.InputVars {
				resp.Inputs = append(resp.Inputs, models.InputField{
					Name:  name,
					Label: fmt.Sprintf("Ingrese %s (metros)", name),
					Type:  "number",
				})
			}
		}

	case models.NodeAnswer:
		resp.Type = models.ResponseAnswer
		if len(node.Options) > 0 {
			resp.Options = optionLabels(node.Options)
		} else {
			resp.IsFinal = true
		}

	case models.NodeDynamicOptions:
		resp.Type = models.ResponseQuestion
		candidates, _ := state.Vars.Candidates(e.sourceVar(node))
		for _, c := range candidates {
			resp.Options = append(resp.Options, dynamicOptionLabel(c))
		}
		resp.Products = candidates
	}

	if node.EnrichWithRetrieval && e.retriever != nil {
		query := node.RetrievalQuery
		if query == "" {
			query = node.Prompt
		}
		result := e.retriever.ContextFor(ctx, RenderTemplate(query, state.Vars), state.Vars)
		if result.Summary != "" && result.Summary != retrieval.NoResultsSummary {
			resp.AdditionalInfo = result.Summary
		}
		if len(result.Candidates) > 0 {
			resp.Products = result.Candidates
		}
	}
	return resp
}

func (e *Engine) sourceVar(node *models.Node) string {
	if node.SourceVar != "" {
		return node.SourceVar
	}
	return models.DefaultSourceVar
}

func optionLabels(options []models.NodeOption) []string {
	labels := make([]string, len(options))
	for i, opt := range options {
		labels[i] = opt.Label
	}
	return labels
}

func dynamicOptionLabel(c models.Candidate) string {
	coef := c.Coefficient
	if coef == 0 {
		coef = 1
	}
	return fmt.Sprintf("%s (Potencia: %.0f kcal/h)", c.Model, c.PowerWatts*coef)
}

// ParseLocalizedNumber parses a decimal that may use a comma or a dot as
// the decimal separator.
func ParseLocalizedNumber(raw string) (float64, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if trimmed == "" {
		return 0, fmt.Errorf("empty number")
	}
	val, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", raw, err)
	}
	return val, nil
}

// SuggestNextStep inspects the variables gathered so far and proposes the
// next missing piece of information: heating type, then surface, then
// location. With everything present it proposes running the calculation.
func (e *Engine) SuggestNextStep(convCtx models.Context) *models.Suggestion {
	_, hasType := convCtx["tipo_calefaccion"]
	if !hasType {
		_, hasType = convCtx[models.StartNodeID]
	}
	_, hasArea := convCtx["superficie"]
	if !hasArea {
		for name := range convCtx {
			if strings.Contains(strings.ToLower(name), "m2") {
				hasArea = true
				break
			}
		}
	}
	_, hasLocation := convCtx["zona"]
	if !hasLocation {
		_, hasLocation = convCtx["ubicacion"]
	}
	if !hasLocation {
		_, hasLocation = convCtx["piso_zona"]
	}

	switch {
	case !hasType:
		return &models.Suggestion{
			Type:    models.SuggestNextStep,
			Message: "¿Qué tipo de calefacción deseas calcular?",
			Options: []string{"Piso radiante", "Radiadores", "Calderas"},
		}
	case !hasArea:
		return &models.Suggestion{
			Type:       models.SuggestNextStep,
			Message:    "¿Cuál es la superficie a calefaccionar?",
			InputType:  "number",
			InputLabel: "Superficie en m²",
		}
	case !hasLocation:
		return &models.Suggestion{
			Type:    models.SuggestNextStep,
			Message: "¿En qué zona geográfica se encuentra?",
			Options: []string{"Norte", "Centro", "Sur"},
		}
	default:
		return &models.Suggestion{
			Type:    models.SuggestNextStep,
			Message: "Tengo suficiente información. ¿Querés que continúe con el cálculo?",
			Options: []string{"Sí, continuar", "No, quiero modificar algo"},
		}
	}
}
