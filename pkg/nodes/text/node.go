// Package text provides executors for nodes whose output is authored text.
package text

import (
	"context"
	"fmt"

	"github.com/dukex/actflow/pkg/template"
)

// TextNode emits its text, rendered against the node input when it holds
// template actions.
type TextNode struct {
	id     string
	text   string
	render bool
}

// NewTextNode creates a text node. Memo nodes pass render=false and emit their text verbatim.
func NewTextNode(id string, config map[string]any, render bool) *TextNode {
	text, _ := config["text"].(string)

	return &TextNode{id: id, text: text, render: render}
}

func (n *TextNode) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	if !n.render || !template.IsTemplate(n.text) {
		return map[string]any{"output": n.text}, nil
	}

	rendered, err := template.RenderWithInput(n.text, input)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.id, err)
	}

	return map[string]any{"output": rendered}, nil
}
