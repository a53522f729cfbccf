package models

// DefaultPort is used when a port id carries no explicit port name.
const DefaultPort = "output"

// ParsePortID parses a port ID in format "{node_id}:{port_name}" into components.
// A bare node id is accepted and maps to DefaultPort.
func ParsePortID(portID string) (string, string, bool) {
	for i := range len(portID) {
		if portID[i] == ':' {
			if i == 0 {
				return "", "", false
			}

			return portID[:i], portID[i+1:], true
		}
	}

	if portID == "" {
		return "", "", false
	}

	return portID, DefaultPort, true
}

// MakePortID creates a port ID from node ID and port name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}

// PayloadPort is the input port through which trigger nodes receive the act payload.
const PayloadPort = "payload"
