package graph

import "github.com/queryloom/queryloom/observability"

const (
	EventGraphStart     observability.EventType = "graph.start"
	EventGraphComplete  observability.EventType = "graph.complete"
	EventStepStart      observability.EventType = "step.start"
	EventStepComplete   observability.EventType = "step.complete"
	EventEdgeTransition observability.EventType = "edge.transition"
)
