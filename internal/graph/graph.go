// Package graph implements the guided dialogue engine.
//
// A dialogue is a graph of typed nodes loaded from JSON or YAML and
// validated at startup. The engine advances a conversation one turn at a
// time: it applies pending user input to the current node, follows the
// edge, chains through calculation nodes and renders the landing node.
package graph

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soldasur/advisor/internal/models"
)

//go:embed knowledge_base.json
var defaultKnowledgeBase []byte

// Graph is a validated dialogue graph.
type Graph struct {
	nodes map[string]*models.Node
	order []string
}

// Load reads a dialogue graph from path. JSON is assumed unless the file
// ends in .yaml or .yml. An empty path loads the embedded knowledge base.
func Load(path string) (*Graph, error) {
	data := defaultKnowledgeBase
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
		}
	}

	var nodes []models.Node
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &nodes); err != nil {
			return nil, fmt.Errorf("failed to parse knowledge base YAML: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &nodes); err != nil {
			return nil, fmt.Errorf("failed to parse knowledge base JSON: %w", err)
		}
	}
	return New(nodes)
}

// New builds and validates a graph from a node list. Any structural
// violation fails loudly so a bad knowledge base never reaches users.
func New(nodes []models.Node) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*models.Node, len(nodes))}
	for i := range nodes {
		n := &nodes[i]
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("invalid knowledge base: %w", err)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("invalid knowledge base: duplicate node id %q", n.ID)
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}

	if _, ok := g.nodes[models.StartNodeID]; !ok {
		return nil, fmt.Errorf("invalid knowledge base: missing start node %q", models.StartNodeID)
	}

	var hasTerminal bool
	for _, id := range g.order {
		n := g.nodes[id]
		if n.IsTerminal() {
			hasTerminal = true
		}
		if n.Next != "" {
			if _, ok := g.nodes[n.Next]; !ok {
				return nil, fmt.Errorf("invalid knowledge base: node %q points to unknown node %q", n.ID, n.Next)
			}
		}
		for _, opt := range n.Options {
			if _, ok := g.nodes[opt.Next]; !ok {
				return nil, fmt.Errorf("invalid knowledge base: node %q option %q points to unknown node %q", n.ID, opt.Label, opt.Next)
			}
		}
		if n.Kind == models.NodeDynamicOptions && n.Next == "" {
			return nil, fmt.Errorf("invalid knowledge base: dynamic options node %q has no next", n.ID)
		}
	}
	if !hasTerminal {
		return nil, fmt.Errorf("invalid knowledge base: no terminal answer node")
	}

	slog.Info("graph.New validated knowledge base", "nodes", len(g.order))
	return g, nil
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*models.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// RenderTemplate substitutes {{name}} placeholders with context values.
// Only number and string variables substitute; unknown placeholders are
// left as-is so a typo in the knowledge base is visible, not silent.
func RenderTemplate(text string, ctx models.Context) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	for name, val := range ctx {
		if val.Kind() == models.KindCandidates {
			continue
		}
		text = strings.ReplaceAll(text, "{{"+name+"}}", val.String())
	}
	return text
}
