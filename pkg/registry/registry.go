// Package registry maps node types to executor factories. A Registry is
// built once at startup and handed to the task runner.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrExecutorNotRegistered indicates a node type with no registered executor.
	ErrExecutorNotRegistered = errors.New("executor not registered")

	// ErrInvalidNodeContent indicates node content rejected by its type's schema.
	ErrInvalidNodeContent = errors.New("invalid node content")
)

type Registry struct {
	logger    *slog.Logger
	factories map[models.NodeType]protocol.ExecutorFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		factories: make(map[models.NodeType]protocol.ExecutorFactory),
	}
}

// Register adds a factory, replacing any previous factory for the same type.
func (r *Registry) Register(factory protocol.ExecutorFactory) {
	r.factories[factory.Type()] = factory
	r.logger.Debug("Registered node executor", "node_type", factory.Type())
}

// Lookup returns the factory for a node type.
func (r *Registry) Lookup(nodeType models.NodeType) (protocol.ExecutorFactory, bool) {
	factory, ok := r.factories[nodeType]

	return factory, ok
}

// Factories returns every registered factory ordered by node type.
func (r *Registry) Factories() []protocol.ExecutorFactory {
	factories := make([]protocol.ExecutorFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b protocol.ExecutorFactory) int {
		return strings.Compare(string(a.Type()), string(b.Type()))
	})

	return factories
}

// Execute runs the executor of the node's type. Any failure, including a
// missing executor, is returned as a *protocol.ExecutorError.
func (r *Registry) Execute(ctx context.Context, node *models.Node, input map[string]any) (map[string]any, error) {
	factory, ok := r.factories[node.Type]
	if !ok {
		return nil, protocol.AsExecutorError(string(node.Type), fmt.Errorf("%w: %s", ErrExecutorNotRegistered, node.Type))
	}

	executor, err := factory.Create(ctx, node)
	if err != nil {
		return nil, protocol.AsExecutorError(string(node.Type), err)
	}

	output, err := executor.Execute(ctx, input)
	if err != nil {
		return nil, protocol.AsExecutorError(string(node.Type), err)
	}

	return output, nil
}

// ValidateNode checks the node content against its factory's schema.
func (r *Registry) ValidateNode(node *models.Node) error {
	factory, ok := r.factories[node.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutorNotRegistered, node.Type)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	content := node.Content
	if content == nil {
		content = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(content))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("%w: node %s: %s", ErrInvalidNodeContent, node.ID, strings.Join(errs, "; "))
	}

	return nil
}

// ValidateWorkspace checks every node of a workspace that has a registered executor.
func (r *Registry) ValidateWorkspace(workspace *models.Workspace) error {
	for _, node := range workspace.Nodes {
		if _, ok := r.factories[node.Type]; !ok {
			continue
		}

		err := r.ValidateNode(node)
		if err != nil {
			return err
		}
	}

	return nil
}
