package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycleDetected indicates a dependency cycle inside a trigger-bearing component.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrDanglingConnection indicates a connection to or from an unknown node.
	ErrDanglingConnection = errors.New("dangling connection")

	// ErrDuplicateNode indicates two nodes sharing the same id.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrInvalidPort indicates a connection whose port id cannot be parsed.
	ErrInvalidPort = errors.New("invalid port")
)

// GraphError reports a malformed workspace graph together with the nodes involved.
type GraphError struct {
	Kind  error
	Nodes []string
}

func (e *GraphError) Error() string {
	if len(e.Nodes) == 0 {
		return e.Kind.Error()
	}

	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.Nodes, ", "))
}

func (e *GraphError) Unwrap() error {
	return e.Kind
}

func newGraphError(kind error, nodes ...string) *GraphError {
	return &GraphError{Kind: kind, Nodes: nodes}
}

// IsGraphError checks if an error is a graph validation failure.
func IsGraphError(err error) bool {
	var graphErr *GraphError

	return errors.As(err, &graphErr)
}
