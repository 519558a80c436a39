// Package orchestrator coordinates the guided dialogue engine and the
// retrieval engine behind a single conversational entry point.
//
// Every user message is classified into an intent and routed to the engine
// that should handle it; the orchestrator owns conversation state and
// serializes turns per conversation.
package orchestrator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/soldasur/advisor/internal/models"
)

// Classifier assigns an intent to each user message using rule-based
// Spanish patterns. Classification is deterministic on purpose: routing
// must not depend on a model call.
type Classifier struct{}

// NewClassifier creates the rule-based intent classifier.
func NewClassifier() *Classifier { return &Classifier{} }

var (
	guidedPatterns = compileAll(
		`quiero calcular`,
		`necesito dimensionar`,
		`cuántos radiadores`,
		`piso radiante`,
		`ayúdame a calcular`,
		`guíame`,
		`paso a paso`,
	)
	freeQueryPatterns = compileAll(
		`qué es`,
		`cómo funciona`,
		`diferencia entre`,
		`explica`,
		`cuál es mejor`,
		`ventajas`,
		`desventajas`,
	)
	productSearchPatterns = compileAll(
		`precio`,
		`modelo`,
		`disponibilidad`,
		`características`,
		`catálogo`,
		`tienen.*\?`,
		`busco`,
	)
	switchModePatterns = compileAll(
		`prefiero que me guíes`,
		`quiero preguntar libremente`,
		`modo experto`,
		`modo chat`,
		`cambiar modo`,
	)
	clarificationPatterns = compileAll(
		`qué significa`,
		`no entiendo`,
		`explícame`,
		`qué quiere decir`,
	)

	digitsPattern = regexp.MustCompile(`\d+`)

	knownLocations = []string{"ushuaia", "buenos aires", "córdoba", "mendoza", "norte", "sur"}

	expertModeKeywords    = []string{"guíes", "experto", "paso a paso"}
	retrievalModeKeywords = []string{"libremente", "chat", "preguntar"}
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// Classify decides what the message is asking for, given the conversation
// mode. During an expert flow, clarification questions and bare numeric
// answers are recognized before anything else so the guided flow is not
// derailed by a digit-bearing reply.
func (c *Classifier) Classify(message string, mode models.Mode) models.Intent {
	lower := strings.ToLower(strings.TrimSpace(message))

	if mode == models.ModeExpert {
		if matchesAny(lower, clarificationPatterns) {
			return models.Intent{Type: models.IntentClarification, Confidence: 0.9}
		}
		if isNumericInput(lower) {
			return models.Intent{Type: models.IntentGuidedCalculation, Confidence: 1.0}
		}
	}

	if matchesAny(lower, switchModePatterns) {
		return models.Intent{
			Type:       models.IntentSwitchMode,
			Confidence: 0.95,
			TargetMode: extractTargetMode(lower),
		}
	}
	if matchesAny(lower, productSearchPatterns) {
		return models.Intent{Type: models.IntentProductSearch, Confidence: 0.85}
	}
	if matchesAny(lower, guidedPatterns) {
		return models.Intent{Type: models.IntentGuidedCalculation, Confidence: 0.9}
	}
	if matchesAny(lower, freeQueryPatterns) {
		return models.Intent{Type: models.IntentFreeQuery, Confidence: 0.85}
	}
	if hasSpecificData(lower) {
		return models.Intent{Type: models.IntentHybrid, Confidence: 0.75}
	}
	return models.Intent{Type: models.IntentHybrid, Confidence: 0.5}
}

func matchesAny(message string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

func isNumericInput(message string) bool {
	_, err := strconv.ParseFloat(strings.ReplaceAll(message, ",", "."), 64)
	return err == nil
}

func extractTargetMode(message string) models.Mode {
	for _, kw := range expertModeKeywords {
		if strings.Contains(message, kw) {
			return models.ModeExpert
		}
	}
	for _, kw := range retrievalModeKeywords {
		if strings.Contains(message, kw) {
			return models.ModeRetrieval
		}
	}
	return models.ModeHybrid
}

// hasSpecificData detects concrete data in an otherwise open message,
// like dimensions or a known location.
func hasSpecificData(message string) bool {
	if digitsPattern.MatchString(message) {
		return true
	}
	for _, loc := range knownLocations {
		if strings.Contains(message, loc) {
			return true
		}
	}
	return false
}
