package protocol

import (
	"errors"
	"fmt"
)

// ExecutorError is a node-type-specific failure. Its payload becomes the
// failed generation's error.
type ExecutorError struct {
	NodeType string
	Code     string
	Message  string
	Details  map[string]any
	Err      error
}

func (e *ExecutorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s executor failed (%s): %s", e.NodeType, e.Code, e.Message)
	}

	return fmt.Sprintf("%s executor failed: %s", e.NodeType, e.Message)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// NewExecutorError creates an executor error carrying a code and details.
func NewExecutorError(nodeType, code, message string, details map[string]any) *ExecutorError {
	return &ExecutorError{NodeType: nodeType, Code: code, Message: message, Details: details}
}

// AsExecutorError returns err as an ExecutorError, wrapping it when needed.
func AsExecutorError(nodeType string, err error) *ExecutorError {
	var executorErr *ExecutorError
	if errors.As(err, &executorErr) {
		if executorErr.NodeType == "" {
			executorErr.NodeType = nodeType
		}

		return executorErr
	}

	return &ExecutorError{NodeType: nodeType, Message: err.Error(), Err: err}
}
