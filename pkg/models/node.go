package models

// NodeType is the closed set of node type tags understood by the engine.
type NodeType string

const (
	NodeTypeTrigger         NodeType = "trigger"
	NodeTypeTextGeneration  NodeType = "text-generation"
	NodeTypeImageGeneration NodeType = "image-generation"
	NodeTypeDataQuery       NodeType = "data-query"
	NodeTypeDataStore       NodeType = "data-store"
	NodeTypeWebSearch       NodeType = "web-search"
	NodeTypeMemo            NodeType = "memo"
	NodeTypeText            NodeType = "text"
	NodeTypeTransform       NodeType = "transform"
	NodeTypeHTTPRequest     NodeType = "http-request"
)

// NodeTypes lists every known node type.
var NodeTypes = []NodeType{
	NodeTypeTrigger,
	NodeTypeTextGeneration,
	NodeTypeImageGeneration,
	NodeTypeDataQuery,
	NodeTypeDataStore,
	NodeTypeWebSearch,
	NodeTypeMemo,
	NodeTypeText,
	NodeTypeTransform,
	NodeTypeHTTPRequest,
}

// IsValid reports whether t belongs to the closed set of node types.
func (t NodeType) IsValid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Node is a vertex of a workspace graph. Content is opaque to the engine.
type Node struct {
	ID      string         `json:"id"                validate:"required"`
	Type    NodeType       `json:"type"              validate:"required,nodetype"`
	Name    string         `json:"name,omitempty"`
	Content map[string]any `json:"content,omitempty"`
}

func (n *Node) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	ID         string `json:"id"`
	SourcePort string `json:"source_port" validate:"required"` // "{node_id}:{port_name}"
	TargetPort string `json:"target_port" validate:"required"` // "{node_id}:{port_name}"
}

// SourceNodeID returns the id of the node the connection starts from.
func (c *Connection) SourceNodeID() string {
	nodeID, _, _ := ParsePortID(c.SourcePort)

	return nodeID
}

// TargetNodeID returns the id of the node the connection points to.
func (c *Connection) TargetNodeID() string {
	nodeID, _, _ := ParsePortID(c.TargetPort)

	return nodeID
}
