// Package errs defines the error taxonomy shared across the engine: one
// exported type per failure mode named in the design, each carrying enough
// context for callers to branch on with errors.As rather than string
// matching.
package errs

import "fmt"

// ValidationFailed reports structural errors found against a workflow
// definition before any node runs.
type ValidationFailed struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationFailed) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", e.Errors[0])
}

// CycleDetected reports a cycle found in the workflow graph.
type CycleDetected struct {
	Path []string
}

func (e *CycleDetected) Error() string {
	msg := "cycle detected in workflow graph"
	if len(e.Path) > 0 {
		msg += ":"
		for _, id := range e.Path {
			msg += " " + id
		}
	}
	return msg
}

// UnknownNodeType reports a registry miss for a node type tag.
type UnknownNodeType struct {
	Type string
}

func (e *UnknownNodeType) Error() string {
	return fmt.Sprintf("unknown node type: %s", e.Type)
}

// TemplateError reports a template rendering failure for a node's config.
type TemplateError struct {
	Template string
	Cause    error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template rendering error: %v", e.Cause)
}

func (e *TemplateError) Unwrap() error { return e.Cause }

// UnsafeExpression reports that an expression used a disallowed syntactic
// form (name lookup, call, attribute access, import, lambda, ...).
type UnsafeExpression struct {
	Expression string
	Reason     string
}

func (e *UnsafeExpression) Error() string {
	return fmt.Sprintf("unsafe expression %q: %s", e.Expression, e.Reason)
}

// ExpressionError reports a runtime failure while evaluating an otherwise
// safe expression (division by zero, malformed syntax).
type ExpressionError struct {
	Expression string
	Cause      error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression evaluation error %q: %v", e.Expression, e.Cause)
}

func (e *ExpressionError) Unwrap() error { return e.Cause }

// NodeExecutionFailed wraps an error raised by a node's own execute method.
type NodeExecutionFailed struct {
	NodeID string
	Cause  error
}

func (e *NodeExecutionFailed) Error() string {
	return fmt.Sprintf("node %s execution failed: %v", e.NodeID, e.Cause)
}

func (e *NodeExecutionFailed) Unwrap() error { return e.Cause }

// LevelTimeout reports that a bounded pool site did not complete within its
// configured timeout.
type LevelTimeout struct {
	Scope   string
	Timeout string
}

func (e *LevelTimeout) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Scope, e.Timeout)
}

// ForkLimitExceeded reports a fork whose downstream node counts exceed its
// configured guard rails.
type ForkLimitExceeded struct {
	PathID string
	Limit  int
	Actual int
}

func (e *ForkLimitExceeded) Error() string {
	if e.PathID != "" {
		return fmt.Sprintf("fork path %s exceeds limit: %d > %d", e.PathID, e.Actual, e.Limit)
	}
	return fmt.Sprintf("fork total nodes exceed limit: %d > %d", e.Actual, e.Limit)
}

// WorkflowHalted reports an explicit halt requested via the coordinator.
type WorkflowHalted struct {
	Reason string
}

func (e *WorkflowHalted) Error() string {
	return fmt.Sprintf("workflow halted: %s", e.Reason)
}
