// Package graph provides the workflow engine for lexgraph: a validated,
// acyclic graph of named steps with one conditional branch point, and an
// Executor that threads a State through it and streams snapshots.
package graph

import "errors"

// Graph configuration error codes.
const (
	CodeInvalidStep           = "INVALID_STEP"
	CodeDuplicateStep         = "DUPLICATE_STEP"
	CodeUndeclaredEntry       = "UNDECLARED_ENTRY"
	CodeUndeclaredStep        = "UNDECLARED_STEP"
	CodeDuplicateConditional  = "DUPLICATE_CONDITIONAL"
	CodeNoConditional         = "NO_CONDITIONAL"
	CodeStaticFromConditional = "STATIC_FROM_CONDITIONAL"
	CodeLabelMismatch         = "LABEL_MISMATCH"
	CodeMissingFallback       = "MISSING_FALLBACK"
	CodeCycle                 = "CYCLE"
	CodeDeadEnd               = "DEAD_END"
	CodeUnreachable           = "UNREACHABLE"
)

// GraphConfigError reports a structural problem found while building a Graph.
// Runs never fail; configuration is the only place the engine returns errors.
type GraphConfigError struct {
	// Code is a machine-readable error code (see the Code constants).
	Code string

	// Message is the human-readable description.
	Message string

	// Step is the step involved, if any.
	Step StepID
}

func (e *GraphConfigError) Error() string {
	msg := e.Message
	if e.Step != "" {
		msg = "step " + string(e.Step) + ": " + msg
	}
	if e.Code != "" {
		return e.Code + ": " + msg
	}
	return msg
}

// Is matches another *GraphConfigError with the same code, so callers can
// write errors.Is(err, &GraphConfigError{Code: CodeCycle}).
func (e *GraphConfigError) Is(target error) bool {
	t, ok := target.(*GraphConfigError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// ErrGraphConfig matches any *GraphConfigError with errors.Is.
var ErrGraphConfig error = &GraphConfigError{}

// ErrNilGraph is returned by NewExecutor when no graph is supplied.
var ErrNilGraph = errors.New("graph is nil")

// ErrInvalidOption wraps every rejected executor Option.
var ErrInvalidOption = errors.New("invalid executor option")

func configErr(code string, step StepID, msg string) *GraphConfigError {
	return &GraphConfigError{Code: code, Message: msg, Step: step}
}
