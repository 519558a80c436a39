package models

// ResponseType tags the shape of a turn response for clients.
type ResponseType string

const (
	// ResponseQuestion prompts with options or waits for input.
	ResponseQuestion ResponseType = "question"
	// ResponseAnswer presents text from the dialogue graph.
	ResponseAnswer ResponseType = "answer"
	// ResponseChat is a free-form retrieval-backed answer.
	ResponseChat ResponseType = "chat_response"
	// ResponseProducts lists products from a catalog search.
	ResponseProducts ResponseType = "products"
	// ResponseHybrid merges a retrieval answer with a guided suggestion.
	ResponseHybrid ResponseType = "hybrid"
	// ResponseModeSwitch acknowledges a mode change.
	ResponseModeSwitch ResponseType = "mode_switch"
	// ResponseError reports a non-fatal problem with the turn.
	ResponseError ResponseType = "error"
)

// InputField describes one field of a multi-value input request.
type InputField struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// SuggestionType tags the affordances attached to a turn response.
type SuggestionType string

const (
	// SuggestSwitchToExpert proposes starting the guided flow.
	SuggestSwitchToExpert SuggestionType = "switch_to_expert"
	// SuggestResumeExpert proposes resuming a paused guided flow.
	SuggestResumeExpert SuggestionType = "resume_expert"
	// SuggestNextStep proposes the next piece of missing information.
	SuggestNextStep SuggestionType = "next_step"
)

// Suggestion is an optional affordance the client can render as a shortcut.
type Suggestion struct {
	Type       SuggestionType `json:"type"`
	Message    string         `json:"message"`
	Options    []string       `json:"options,omitempty"`
	InputType  string         `json:"input_type,omitempty"`
	InputLabel string         `json:"input_label,omitempty"`
}

// TurnResponse is the unified payload returned for every conversation turn,
// regardless of which engine produced it.
type TurnResponse struct {
	ConversationID string       `json:"conversation_id"`
	Mode           Mode         `json:"mode"`
	ModeLabel      string       `json:"mode_label"`
	NodeID         string       `json:"node_id,omitempty"`
	Type           ResponseType `json:"type"`
	Text           string       `json:"text,omitempty"`
	Options        []string     `json:"options,omitempty"`
	InputType      string       `json:"input_type,omitempty"`
	InputLabel     string       `json:"input_label,omitempty"`
	Inputs         []InputField `json:"inputs,omitempty"`
	IsFinal        bool         `json:"is_final"`
	Products       []Candidate  `json:"products,omitempty"`
	AdditionalInfo string       `json:"additional_info,omitempty"`
	Suggestion     *Suggestion  `json:"suggestion,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope of the HTTP layer.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithResult(result).Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusError).WithMessage(message).Build()
}
