package text

import (
	"context"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/protocol"
)

var textSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text": map[string]any{
			"type":        "string",
			"description": "Text emitted on the output port.",
		},
	},
}

// TextNodeFactory creates text nodes that render templates.
type TextNodeFactory struct{}

func (f *TextNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewTextNode(node.ID, node.Content, true), nil
}

func (f *TextNodeFactory) Type() models.NodeType { return models.NodeTypeText }
func (f *TextNodeFactory) Name() string { return "Text" }
func (f *TextNodeFactory) Description() string {
	return "Emits text, rendering {{ .input.<port> }} references against its inputs"
}
func (f *TextNodeFactory) Schema() map[string]any { return textSchema }

func NewTextNodeFactory() protocol.ExecutorFactory {
	return &TextNodeFactory{}
}

// MemoNodeFactory creates memo nodes, which emit their note unchanged.
type MemoNodeFactory struct{}

func (f *MemoNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewTextNode(node.ID, node.Content, false), nil
}

func (f *MemoNodeFactory) Type() models.NodeType { return models.NodeTypeMemo }
func (f *MemoNodeFactory) Name() string { return "Memo" }
func (f *MemoNodeFactory) Description() string { return "A note; its text is available to connected nodes" }
func (f *MemoNodeFactory) Schema() map[string]any { return textSchema }

func NewMemoNodeFactory() protocol.ExecutorFactory {
	return &MemoNodeFactory{}
}
