package models

// IntentType classifies what the user is trying to do with a message.
type IntentType string

const (
	// IntentGuidedCalculation continues or starts the guided dialogue flow.
	IntentGuidedCalculation IntentType = "guided_calculation"
	// IntentFreeQuery is an open question answered via retrieval plus generation.
	IntentFreeQuery IntentType = "free_query"
	// IntentProductSearch asks for products, prices or availability.
	IntentProductSearch IntentType = "product_search"
	// IntentSwitchMode explicitly requests a different conversation mode.
	IntentSwitchMode IntentType = "switch_mode"
	// IntentClarification is a tangential question during the guided flow.
	IntentClarification IntentType = "clarification"
	// IntentHybrid is ambiguous or data-bearing input handled by both engines.
	IntentHybrid IntentType = "hybrid"
)

// Intent is the result of classifying one user message.
type Intent struct {
	Type       IntentType `json:"type"`
	Confidence float64    `json:"confidence"`
	// TargetMode is set for switch-mode intents.
	TargetMode Mode `json:"target_mode,omitempty"`
}
