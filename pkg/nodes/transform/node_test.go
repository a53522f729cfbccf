package transform

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/protocol"
)

func TestNewTransformNode(t *testing.T) {
	node, err := NewTransformNode("test-transform", map[string]any{
		"expression": "{{.input.name}}",
	})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	if node.ID() != "test-transform" {
		t.Errorf("Expected ID 'test-transform', got: %s", node.ID())
	}

	if node.expression != "{{.input.name}}" {
		t.Errorf("Expected expression to be set correctly")
	}
}

func TestNewTransformNode_MissingExpression(t *testing.T) {
	_, err := NewTransformNode("test-transform", map[string]any{})
	if err == nil {
		t.Fatal("Expected error when expression is missing")
	}

	if err.Error() != "missing required field 'expression'" {
		t.Errorf("Expected specific error message, got: %s", err.Error())
	}
}

func TestTransformNode_Execute_Success(t *testing.T) {
	node, err := NewTransformNode("test-transform", map[string]any{
		"expression": "{{.input.name}} - {{.input.age}}",
	})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	output, err := node.Execute(context.Background(), map[string]any{
		"name": "John Doe",
		"age":  30,
	})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if output[models.DefaultPort] != "John Doe - 30" {
		t.Errorf("Expected 'John Doe - 30', got: %v", output[models.DefaultPort])
	}
}

func TestTransformNode_Execute_JSONResult(t *testing.T) {
	node, err := NewTransformNode("test-transform", map[string]any{
		"expression": `{"total": {{len .input.items}}}`,
	})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	output, err := node.Execute(context.Background(), map[string]any{"items": []any{1, 2, 3}})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	result, ok := output[models.DefaultPort].(map[string]any)
	if !ok {
		t.Fatalf("Expected object result, got: %#v", output[models.DefaultPort])
	}

	if result["total"] != 3.0 {
		t.Errorf("Expected total 3, got: %v", result["total"])
	}
}

func TestTransformNode_Execute_TemplateError(t *testing.T) {
	node, err := NewTransformNode("test-transform", map[string]any{
		"expression": "{{ undefinedFunc .input }}",
	})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	_, err = node.Execute(context.Background(), map[string]any{})
	if err == nil {
		t.Fatal("Expected transformation error")
	}

	var executorErr *protocol.ExecutorError
	if !errors.As(err, &executorErr) {
		t.Fatalf("Expected ExecutorError, got: %T", err)
	}

	if executorErr.Code != "transform_failed" {
		t.Errorf("Expected code transform_failed, got: %s", executorErr.Code)
	}
}
