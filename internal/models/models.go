// Package models defines the shared data structures for the Soldasur advisor.
//
// It contains the dialogue graph node types, conversation state, intent
// classification results, product candidates and the API response envelope
// used across the engine packages.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine packages.
var (
	// ErrNodeNotFound indicates a dialogue node id does not exist in the graph.
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidOption indicates an option index outside the node's option list.
	ErrInvalidOption = errors.New("invalid option index")
	// ErrInvalidNumber indicates user input that could not be parsed as a number.
	ErrInvalidNumber = errors.New("invalid numeric input")
	// ErrConversationNotFound indicates an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrEmptyCatalog indicates the product catalog has no entries.
	ErrEmptyCatalog = errors.New("product catalog is empty")
)

// Candidate is a product catalog entry annotated with retrieval metadata.
// Catalog attributes are copied through untouched; Similarity and Rank are
// transient annotations added by the retrieval engine.
type Candidate struct {
	Model          string   `json:"model"`
	Family         string   `json:"family"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	PowerWatts     float64  `json:"power_w" yaml:"power_w"`
	Coefficient    float64  `json:"coefficient,omitempty"`
	Liters         float64  `json:"liters,omitempty"`
	MaxPressureBar float64  `json:"max_pressure_bar,omitempty" yaml:"max_pressure_bar"`
	Dimensions     string   `json:"dimensions,omitempty"`
	Colors         []string `json:"colors,omitempty"`
	Features       []string `json:"features,omitempty"`
	Applications   []string `json:"applications,omitempty"`
	Similarity     float64  `json:"similarity,omitempty"`
	Rank           int      `json:"rank,omitempty"`
}

// ValueKind discriminates the possible types of a context value.
type ValueKind int

const (
	// KindNumber is a float64 value.
	KindNumber ValueKind = iota
	// KindString is a text value.
	KindString
	// KindCandidates is a list of product candidates.
	KindCandidates
)

// Value is a discriminated union of the types a dialogue variable can hold.
// The zero value is the number 0.
type Value struct {
	kind       ValueKind
	num        float64
	str        string
	candidates []Candidate
}

// NumberValue creates a numeric Value.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// StringValue creates a text Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// CandidatesValue creates a Value holding a candidate list.
func CandidatesValue(c []Candidate) Value { return Value{kind: KindCandidates, candidates: c} }

// Kind reports the discriminant of the value.
func (v Value) Kind() ValueKind { return v.kind }

// Number returns the numeric payload and whether the value is a number.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// String returns a display form of the value. Numbers render without a
// trailing ".0" when they are integral so templates read naturally.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		if v.num == float64(int64(v.num)) {
			return fmt.Sprintf("%d", int64(v.num))
		}
		return fmt.Sprintf("%g", v.num)
	case KindString:
		return v.str
	case KindCandidates:
		return fmt.Sprintf("[%d productos]", len(v.candidates))
	}
	return ""
}

// Text returns the string payload and whether the value is text.
func (v Value) Text() (string, bool) { return v.str, v.kind == KindString }

// Candidates returns the candidate list payload and whether the value holds one.
func (v Value) Candidates() ([]Candidate, bool) {
	return v.candidates, v.kind == KindCandidates
}

// MarshalJSON encodes the value as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindCandidates:
		return json.Marshal(v.candidates)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes a value from its natural JSON type.
func (v *Value) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*v = NumberValue(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*v = StringValue(str)
		return nil
	}
	var list []Candidate
	if err := json.Unmarshal(data, &list); err == nil {
		*v = CandidatesValue(list)
		return nil
	}
	return fmt.Errorf("value is not a number, string or candidate list: %s", string(data))
}

// Context holds the named variables accumulated during a conversation.
// Writes are last-write-wins.
type Context map[string]Value

// Clone returns a shallow copy of the context. Candidate slices are shared,
// which is safe because candidates are never mutated after creation.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Number fetches a numeric variable.
func (c Context) Number(name string) (float64, bool) {
	v, ok := c[name]
	if !ok {
		return 0, false
	}
	return v.Number()
}

// Text fetches a text variable.
func (c Context) Text(name string) (string, bool) {
	v, ok := c[name]
	if !ok {
		return "", false
	}
	return v.Text()
}

// Candidates fetches a candidate-list variable.
func (c Context) Candidates(name string) ([]Candidate, bool) {
	v, ok := c[name]
	if !ok {
		return nil, false
	}
	return v.Candidates()
}
