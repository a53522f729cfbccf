// Package httprequest provides the HTTP request node executor.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/protocol"
	"github.com/dukex/actflow/pkg/template"
)

// HTTPRequestNode performs one HTTP request per execution.
type HTTPRequestNode struct {
	id       string
	nodeType models.NodeType
	config   HTTPRequestConfig
	client   *http.Client
}

// HTTPRequestConfig defines the content of HTTP request nodes.
type HTTPRequestConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
	Timeout int               `json:"timeout"`
	Retries RetryConfig       `json:"retries"`
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int `json:"attempts"`
	Delay    int `json:"delay"`
}

// NewHTTPRequestNode creates a new HTTP request node.
func NewHTTPRequestNode(id string, nodeType models.NodeType, config map[string]any) (*HTTPRequestNode, error) {
	httpConfig := HTTPRequestConfig{
		Method:  "GET",
		Headers: make(map[string]string),
		Timeout: 30,
		Retries: RetryConfig{Attempts: 1, Delay: 0},
	}

	if url, ok := config["url"].(string); ok {
		httpConfig.URL = url
	} else {
		return nil, errors.New("missing required field 'url'")
	}

	if method, ok := config["method"].(string); ok {
		httpConfig.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if strVal, ok := v.(string); ok {
				httpConfig.Headers[k] = strVal
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		httpConfig.Body = body
	}

	if timeout, ok := config["timeout"].(float64); ok {
		httpConfig.Timeout = int(timeout)
	}

	if retries, ok := config["retries"].(map[string]any); ok {
		if attempts, ok := retries["attempts"].(float64); ok && attempts >= 1 {
			httpConfig.Retries.Attempts = int(attempts)
		}

		if delay, ok := retries["delay"].(float64); ok {
			httpConfig.Retries.Delay = int(delay)
		}
	}

	return &HTTPRequestNode{
		id:       id,
		nodeType: nodeType,
		config:   httpConfig,
		client:   &http.Client{Timeout: time.Duration(httpConfig.Timeout) * time.Second},
	}, nil
}

// Execute renders the request against the node input and performs it,
// retrying network failures and 5xx responses.
func (n *HTTPRequestNode) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	renderedURL, err := template.RenderWithInput(n.config.URL, input)
	if err != nil {
		return nil, n.executorError("template_error", fmt.Sprintf("failed to render URL template: %v", err), nil)
	}

	urlStr, ok := renderedURL.(string)
	if !ok {
		return nil, n.executorError("template_error", "URL template must render to string", nil)
	}

	var renderedBody string

	if n.config.Body != "" {
		renderedBodyAny, err := template.RenderWithInput(n.config.Body, input)
		if err != nil {
			return nil, n.executorError("template_error", fmt.Sprintf("failed to render body template: %v", err), nil)
		}

		renderedBody = bodyString(renderedBodyAny)
	}

	renderedHeaders := make(map[string]string)

	for key, value := range n.config.Headers {
		renderedValue, err := template.RenderWithInput(value, input)
		if err != nil {
			renderedHeaders[key] = value
		} else {
			renderedHeaders[key] = fmt.Sprint(renderedValue)
		}
	}

	var lastErr error

	for attempt := 1; attempt <= n.config.Retries.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(n.config.Retries.Delay) * time.Millisecond):
			}
		}

		result, err := n.performRequest(ctx, urlStr, renderedBody, renderedHeaders)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// client errors are not retried
		httpErr := &HTTPError{}
		if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
			break
		}
	}

	details := map[string]any{"url": urlStr, "attempts": n.config.Retries.Attempts}

	httpErr := &HTTPError{}
	if errors.As(lastErr, &httpErr) {
		details["status_code"] = httpErr.StatusCode
	}

	return nil, n.executorError("http_error", fmt.Sprintf("HTTP request failed: %v", lastErr), details)
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (n *HTTPRequestNode) performRequest(ctx context.Context, url, body string, headers map[string]string) (map[string]any, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, n.config.Method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	headerMap := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headerMap[key] = resp.Header.Get(key)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headerMap,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
		result[models.DefaultPort] = jsonBody
	} else {
		result[models.DefaultPort] = string(respBody)
	}

	return result, nil
}

func (n *HTTPRequestNode) executorError(code, message string, details map[string]any) *protocol.ExecutorError {
	if details == nil {
		details = map[string]any{}
	}

	details["node_id"] = n.id

	return protocol.NewExecutorError(string(n.nodeType), code, message, details)
}

func bodyString(v any) string {
	switch body := v.(type) {
	case string:
		return body
	case map[string]any, []any:
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Sprint(body)
		}

		return string(b)
	default:
		return fmt.Sprint(body)
	}
}
