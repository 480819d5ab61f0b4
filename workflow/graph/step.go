package graph

import (
	"context"

	"github.com/queryloom/queryloom/workflow/state"
)

// StepID names a computation step in a graph.
type StepID string

// End is the terminal marker. Edges and router targets may point to End to
// stop execution; no step named End can be registered.
const End StepID = "__end__"

// Step is a computation step in a graph.
//
// Steps receive an immutable state snapshot and return a patch describing
// only the fields they change. The executor owns merging, so a step can
// never clobber another step's writes.
type Step interface {
	// Run computes the step's state patch. Context enables cancellation
	// and deadlines for capability and tool calls.
	Run(ctx context.Context, s state.State) (state.Patch, error)
}

// StepFunc adapts a function to the Step interface.
type StepFunc func(ctx context.Context, s state.State) (state.Patch, error)

// Run calls the wrapped function.
func (f StepFunc) Run(ctx context.Context, s state.State) (state.Patch, error) {
	return f(ctx, s)
}

// Label is a routing outcome returned by a Router.
type Label string

// Router inspects a state snapshot and selects the label of the edge to
// follow. Routers must be pure: no capability calls, no mutation, same
// label for the same snapshot.
type Router func(s state.State) Label
