package act

import "errors"

var (
	// ErrNoExecutableTasks indicates a workspace without any trigger-reachable node.
	ErrNoExecutableTasks = errors.New("workspace has no trigger-reachable nodes")

	// ErrTriggerNodeNotFound indicates a request for a trigger node missing from the workspace.
	ErrTriggerNodeNotFound = errors.New("trigger node not found")

	// ErrActAlreadyRunning indicates the act is already being run by this process.
	ErrActAlreadyRunning = errors.New("act already running")

	// ErrActNotFailed indicates a retry of an act that did not fail.
	ErrActNotFailed = errors.New("act has not failed")
)
