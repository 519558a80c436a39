package models

import "fmt"

// StartNodeID is the entry node every dialogue graph must define.
const StartNodeID = "inicio"

// NodeKind identifies the behavior of a dialogue graph node.
type NodeKind string

const (
	// NodeQuestion presents a prompt with a fixed list of options.
	NodeQuestion NodeKind = "question"
	// NodeInput requests one or more numeric values from the user.
	NodeInput NodeKind = "input"
	// NodeCalculation evaluates assignment expressions and advances automatically.
	NodeCalculation NodeKind = "calculation"
	// NodeAnswer presents text; terminal unless it carries options.
	NodeAnswer NodeKind = "answer"
	// NodeDynamicOptions presents options synthesized from a context variable.
	NodeDynamicOptions NodeKind = "dynamic_options"
)

// NodeOption is a selectable option on a question or answer node.
type NodeOption struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	Next  string `json:"next" yaml:"next"`
}

// Node is a single node of the dialogue graph. Which fields are meaningful
// depends on Kind; Validate enforces the per-kind shape at load time.
type Node struct {
	ID      string       `json:"id" yaml:"id"`
	Kind    NodeKind     `json:"kind" yaml:"kind"`
	Prompt  string       `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Options []NodeOption `json:"options,omitempty" yaml:"options,omitempty"`

	// Input nodes: variables to collect. A single entry renders as one
	// numeric field, several entries as a multi-field form.
	InputVars []string `json:"input_vars,omitempty" yaml:"input_vars,omitempty"`

	// Calculation nodes: constants folded into the context before Steps,
	// then assignment expressions of the form "name = expr".
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
	Steps  []string           `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Next is the unconditional successor for input and calculation nodes.
	Next string `json:"next,omitempty" yaml:"next,omitempty"`

	// Retrieval enrichment.
	EnrichWithRetrieval bool   `json:"enrich_with_retrieval,omitempty" yaml:"enrich_with_retrieval,omitempty"`
	RetrievalQuery      string `json:"retrieval_query,omitempty" yaml:"retrieval_query,omitempty"`

	// Dynamic options: context variable holding the candidate list.
	// Defaults to "modelos_recomendados" when empty.
	SourceVar string `json:"source_var,omitempty" yaml:"source_var,omitempty"`
}

// DefaultSourceVar is the context variable dynamic-options nodes read when
// SourceVar is not set.
const DefaultSourceVar = "modelos_recomendados"

// Validate checks that the node carries the fields its kind requires.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node without id")
	}
	switch n.Kind {
	case NodeQuestion:
		if n.Prompt == "" {
			return fmt.Errorf("question node %q: missing prompt", n.ID)
		}
		if len(n.Options) == 0 {
			return fmt.Errorf("question node %q: missing options", n.ID)
		}
	case NodeInput:
		if len(n.InputVars) == 0 {
			return fmt.Errorf("input node %q: missing input_vars", n.ID)
		}
		if n.Next == "" {
			return fmt.Errorf("input node %q: missing next", n.ID)
		}
	case NodeCalculation:
		if len(n.Steps) == 0 {
			return fmt.Errorf("calculation node %q: missing steps", n.ID)
		}
		if n.Next == "" {
			return fmt.Errorf("calculation node %q: missing next", n.ID)
		}
	case NodeAnswer:
		if n.Prompt == "" {
			return fmt.Errorf("answer node %q: missing prompt", n.ID)
		}
	case NodeDynamicOptions:
		if n.Prompt == "" {
			return fmt.Errorf("dynamic options node %q: missing prompt", n.ID)
		}
	default:
		return fmt.Errorf("node %q: unknown kind %q", n.ID, n.Kind)
	}
	for _, opt := range n.Options {
		if opt.Label == "" {
			return fmt.Errorf("node %q: option without label", n.ID)
		}
		if opt.Next == "" {
			return fmt.Errorf("node %q: option %q without next", n.ID, opt.Label)
		}
	}
	return nil
}

// IsTerminal reports whether the node ends the guided flow. Only answer
// nodes without options are terminal.
func (n *Node) IsTerminal() bool {
	return n.Kind == NodeAnswer && len(n.Options) == 0
}
