// Package httprequest provides HTTP request node factories for the registry.
package httprequest

import (
	"context"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/protocol"
)

// HTTPRequestNodeFactory creates HTTPRequestNode instances for one node type.
type HTTPRequestNodeFactory struct {
	nodeType models.NodeType
	name     string
}

// NewHTTPRequestNodeFactory creates the factory of http-request nodes.
func NewHTTPRequestNodeFactory() protocol.ExecutorFactory {
	return &HTTPRequestNodeFactory{nodeType: models.NodeTypeHTTPRequest, name: "HTTP Request"}
}

// NewDataQueryNodeFactory creates the factory of data-query nodes, which
// query an HTTP data source with the same content as http-request nodes.
func NewDataQueryNodeFactory() protocol.ExecutorFactory {
	return &HTTPRequestNodeFactory{nodeType: models.NodeTypeDataQuery, name: "Data Query"}
}

func (f *HTTPRequestNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewHTTPRequestNode(node.ID, f.nodeType, node.Content)
}

func (f *HTTPRequestNodeFactory) Type() models.NodeType {
	return f.nodeType
}

func (f *HTTPRequestNodeFactory) Name() string {
	return f.name
}

func (f *HTTPRequestNodeFactory) Description() string {
	return "Performs HTTP requests with retries, rendering url, headers and body against the node inputs"
}

// Schema returns the JSON schema for HTTP request node configuration.
func (f *HTTPRequestNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP URL to request. Supports templating with {{.input.<port>}}",
				"examples": []string{
					"https://api.example.com/users",
					"{{.input.user_url}}",
					"https://{{.env.API_HOST}}/hooks/{{.input.payload.id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers. Values support templating",
				"examples": []map[string]any{
					{"Authorization": "Bearer {{.env.API_TOKEN}}"},
					{"Content-Type": "application/json", "User-Agent": "actflow/1.0"},
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating for dynamic content",
				"examples": []string{
					`{"name": "{{.input.user_name}}", "email": "{{.input.payload.email}}"}`,
					`{{json .input.output}}`,
				},
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     30,
				"minimum":     1,
				"maximum":     300,
			},
			"retries": map[string]any{
				"type":        "object",
				"description": "Retry configuration for failed requests",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":        "number",
						"description": "Number of retry attempts (including initial request)",
						"default":     1,
						"minimum":     1,
						"maximum":     10,
					},
					"delay": map[string]any{
						"type":        "number",
						"description": "Delay between retries in milliseconds",
						"default":     1000,
						"minimum":     0,
						"maximum":     30000,
					},
				},
				"examples": []map[string]any{
					{"attempts": 3, "delay": 1000},
					{"attempts": 5, "delay": 2000},
				},
			},
		},
		"required": []string{"url"},
		"examples": []map[string]any{
			{
				"url":    "https://api.github.com/user",
				"method": "GET",
				"headers": map[string]string{
					"Authorization": "Bearer {{.env.GITHUB_TOKEN}}",
					"Accept":        "application/vnd.github.v3+json",
				},
			},
			{
				"url":     "{{.input.webhook_url}}",
				"method":  "POST",
				"headers": map[string]string{"Content-Type": "application/json"},
				"body":    `{"status": "completed", "result": {{json .input.output}}}`,
				"retries": map[string]any{"attempts": 3, "delay": 1000},
			},
		},
	}
}
