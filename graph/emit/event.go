package emit

import "time"

// Event message kinds emitted by the Executor.
const (
	MsgRunStart          = "run_start"
	MsgStepStart         = "step_start"
	MsgStepEnd           = "step_end"
	MsgRoute             = "route"
	MsgCollaboratorError = "collaborator_error"
	MsgStepPanic         = "step_panic"
	MsgRunEnd            = "run_end"
)

// Event is one observability record from a workflow run.
//
// Common Meta keys:
//   - "duration_ms": step or run duration in milliseconds
//   - "labels": route labels chosen by the conditional router
//   - "fallback": why routing fell back to synthesize
//   - "error": failure text for collaborator errors and panics
//   - "completed": whether the run reached the terminal marker
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Seq is the 1-based position of the step in the run.
	// Zero for run-level events.
	Seq int

	// Step names the step that emitted this event.
	// Empty for run-level events.
	Step string

	// Msg is the event kind (see the Msg constants).
	Msg string

	// Time is when the event was produced.
	Time time.Time

	// Meta carries event-specific structured data.
	Meta map[string]interface{}
}
