package workflow

import "github.com/queryloom/queryloom/observability"

const (
	// EventLoopExhausted marks a run whose branch loop was cut by its call
	// limit rather than by a final answer. Exhaustion is a normal
	// termination, not a failure; the event exists so logs and tests can
	// tell the two apart.
	EventLoopExhausted observability.EventType = "loop.exhausted"

	EventRunStart    observability.EventType = "run.start"
	EventRunComplete observability.EventType = "run.complete"
)
