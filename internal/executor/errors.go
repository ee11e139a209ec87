package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNodeType is returned when dispatch hits a node type with
	// no handler. This aborts the whole plan.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrPlanningNotImplemented is returned for planning nodes, which are
	// reserved for future recursive sub-plan execution.
	ErrPlanningNotImplemented = errors.New("planning nodes are not implemented")
)

// ValidationError is a configuration error raised at construction or
// dispatch time. It propagates out of Execute uncaught; the caller is
// responsible for surfacing it.
type ValidationError struct {
	// Op is the operation that failed
	Op string
	// Node is the name of the node involved (if any)
	Node string
	// Err is the underlying error
	Err error
}

func (e *ValidationError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("validation failed: %s: node '%s': %v", e.Op, e.Node, e.Err)
	}
	return fmt.Sprintf("validation failed: %s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError
func NewValidationError(op string, node string, err error) error {
	return &ValidationError{
		Op:   op,
		Node: node,
		Err:  err,
	}
}

// ExecutionError represents an error during node execution
type ExecutionError struct {
	// Phase is the execution phase where the error occurred
	Phase string
	// Node is the name of the node being executed
	Node string
	// Err is the underlying error
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error: %s: node '%s': %v", e.Phase, e.Node, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError creates a new ExecutionError
func NewExecutionError(phase string, node string, err error) error {
	return &ExecutionError{
		Phase: phase,
		Node:  node,
		Err:   err,
	}
}
