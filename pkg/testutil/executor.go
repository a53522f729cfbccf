package testutil

import (
	"context"
	"sync"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/protocol"
)

// FakeExecutorFactory serves one node type with per-node behaviors and
// counts invocations per node id. Nodes without a behavior output their
// own id on the default port.
type FakeExecutorFactory struct {
	nodeType models.NodeType

	mu        sync.Mutex
	calls     map[string]int
	behaviors map[string]protocol.ExecutorFunc
}

func NewFakeExecutorFactory(nodeType models.NodeType) *FakeExecutorFactory {
	return &FakeExecutorFactory{
		nodeType:  nodeType,
		calls:     make(map[string]int),
		behaviors: make(map[string]protocol.ExecutorFunc),
	}
}

// On sets the behavior of the executor for nodeID.
func (f *FakeExecutorFactory) On(nodeID string, behavior protocol.ExecutorFunc) *FakeExecutorFactory {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.behaviors[nodeID] = behavior

	return f
}

// Calls returns how many times the executor ran for nodeID.
func (f *FakeExecutorFactory) Calls(nodeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[nodeID]
}

func (f *FakeExecutorFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return protocol.ExecutorFunc(func(ctx context.Context, input map[string]any) (map[string]any, error) {
		f.mu.Lock()
		f.calls[node.ID]++
		behavior := f.behaviors[node.ID]
		f.mu.Unlock()

		if behavior != nil {
			return behavior(ctx, input)
		}

		return map[string]any{models.DefaultPort: node.ID, "input": input}, nil
	}), nil
}

func (f *FakeExecutorFactory) Type() models.NodeType { return f.nodeType }
func (f *FakeExecutorFactory) Name() string { return "Fake " + string(f.nodeType) }
func (f *FakeExecutorFactory) Description() string { return "Test executor" }
func (f *FakeExecutorFactory) Schema() map[string]any { return nil }
