package task

import "errors"

// ErrUnresolvedInput indicates a node dispatched before one of its upstream
// generations completed. It is fatal to the task and never retried.
var ErrUnresolvedInput = errors.New("unresolved input")
