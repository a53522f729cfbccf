package task

import (
	"fmt"

	"github.com/dukex/actflow/pkg/models"
)

// ResolveInput builds the input snapshot of node from the outputs of the
// completed upstream nodes of the task. Each incoming connection copies
// the upstream output port into the target port. When several connections
// target the same port the values are collected in connection order.
// Trigger nodes also receive the act payload on the payload port.
func ResolveInput(task *models.Task, node *models.Node, outputs map[string]map[string]any) (map[string]any, error) {
	input := make(map[string]any)

	if node.IsTrigger() {
		input[models.PayloadPort] = copyMap(task.Payload)
	}

	collected := make(map[string][]any)

	var ports []string

	for _, conn := range task.IncomingConnections(node.ID) {
		sourceNodeID, sourcePort, _ := models.ParsePortID(conn.SourcePort)
		_, targetPort, _ := models.ParsePortID(conn.TargetPort)

		upstream, ok := outputs[sourceNodeID]
		if !ok {
			return nil, fmt.Errorf("%w: node %s depends on %s which has not completed", ErrUnresolvedInput, node.ID, sourceNodeID)
		}

		if _, seen := collected[targetPort]; !seen {
			ports = append(ports, targetPort)
		}

		collected[targetPort] = append(collected[targetPort], copyValue(upstream[sourcePort]))
	}

	for _, port := range ports {
		values := collected[port]
		if len(values) == 1 {
			input[port] = values[0]
		} else {
			input[port] = values
		}
	}

	return input, nil
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}

	return out
}

func copyValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return copyMap(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = copyValue(item)
		}

		return out
	default:
		return value
	}
}
