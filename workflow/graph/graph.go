// Package graph provides the workflow state-machine executor: a directed
// graph of steps connected by unconditional edges and labeled conditional
// edges. Steps compute state patches; the executor merges them and routes on
// the merged snapshot, so routing never races a step's writes.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/queryloom/queryloom/observability"
	"github.com/queryloom/queryloom/workflow/state"
)

// DefaultMaxIterations bounds a run when no explicit limit is configured.
// The two branch loops are bounded by their own counters well below this;
// the executor limit is the backstop against miswired graphs.
const DefaultMaxIterations = 50

type conditional struct {
	router  Router
	targets map[Label]StepID
}

// Graph is a directed workflow graph. Build it once with AddStep, AddEdge,
// AddConditionalEdges and SetEntryPoint, then share it across sessions:
// execution never mutates the graph, only the per-run state.
type Graph struct {
	name          string
	steps         map[StepID]Step
	edges         map[StepID]StepID
	conditionals  map[StepID]conditional
	entryPoint    StepID
	maxIterations int
	observer      observability.Observer
}

// Option configures a Graph.
type Option func(*Graph)

// WithObserver sets the observer receiving execution events.
func WithObserver(observer observability.Observer) Option {
	return func(g *Graph) {
		if observer != nil {
			g.observer = observer
		}
	}
}

// WithMaxIterations overrides the executor's iteration limit per run.
func WithMaxIterations(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.maxIterations = n
		}
	}
}

// New creates an empty graph.
func New(name string, opts ...Option) *Graph {
	g := &Graph{
		name:          name,
		steps:         make(map[StepID]Step),
		edges:         make(map[StepID]StepID),
		conditionals:  make(map[StepID]conditional),
		maxIterations: DefaultMaxIterations,
		observer:      observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the graph identifier used in event metadata.
func (g *Graph) Name() string {
	return g.name
}

// AddStep registers a computation step. Step ids must be unique and may not
// collide with the End marker.
func (g *Graph) AddStep(id StepID, step Step) error {
	if id == "" {
		return fmt.Errorf("step id cannot be empty")
	}
	if id == End {
		return fmt.Errorf("step id %s is reserved", End)
	}
	if step == nil {
		return fmt.Errorf("step cannot be nil")
	}
	if _, exists := g.steps[id]; exists {
		return fmt.Errorf("step %s already exists", id)
	}

	g.steps[id] = step
	return nil
}

// AddEdge creates an unconditional transition. The source must be a
// registered step with no outgoing edge yet; the target must be a registered
// step or End.
func (g *Graph) AddEdge(from, to StepID) error {
	if err := g.checkSource(from); err != nil {
		return err
	}
	if to != End {
		if _, exists := g.steps[to]; !exists {
			return fmt.Errorf("to step %s does not exist", to)
		}
	}

	g.edges[from] = to
	return nil
}

// AddConditionalEdges attaches a router to a step. The targets map must
// cover every label the router can return; an uncovered label at runtime is
// an execution error, so completeness is checked again when routing.
func (g *Graph) AddConditionalEdges(from StepID, router Router, targets map[Label]StepID) error {
	if err := g.checkSource(from); err != nil {
		return err
	}
	if router == nil {
		return fmt.Errorf("router cannot be nil")
	}
	if len(targets) == 0 {
		return fmt.Errorf("conditional edges from %s have no targets", from)
	}
	for label, to := range targets {
		if label == "" {
			return fmt.Errorf("conditional edge from %s has an empty label", from)
		}
		if to != End {
			if _, exists := g.steps[to]; !exists {
				return fmt.Errorf("target step %s for label %s does not exist", to, label)
			}
		}
	}

	g.conditionals[from] = conditional{router: router, targets: targets}
	return nil
}

func (g *Graph) checkSource(from StepID) error {
	if from == "" {
		return fmt.Errorf("from step cannot be empty")
	}
	if _, exists := g.steps[from]; !exists {
		return fmt.Errorf("from step %s does not exist", from)
	}
	if _, exists := g.edges[from]; exists {
		return fmt.Errorf("step %s already has an outgoing edge", from)
	}
	if _, exists := g.conditionals[from]; exists {
		return fmt.Errorf("step %s already has conditional edges", from)
	}
	return nil
}

// SetEntryPoint defines the starting step. Only one entry point is allowed.
func (g *Graph) SetEntryPoint(id StepID) error {
	if id == "" {
		return fmt.Errorf("entry point cannot be empty")
	}
	if g.entryPoint != "" {
		return fmt.Errorf("entry point already set to %s", g.entryPoint)
	}
	if _, exists := g.steps[id]; !exists {
		return fmt.Errorf("entry point step %s does not exist", id)
	}

	g.entryPoint = id
	return nil
}

// Validate checks the graph structure before execution:
//
//   - at least one step exists
//   - the entry point is set
//   - every step has exactly one outgoing edge or conditional edge set
//
// Execute calls this internally; call it explicitly to fail fast at wiring
// time.
func (g *Graph) Validate() error {
	if len(g.steps) == 0 {
		return fmt.Errorf("graph has no steps")
	}
	if g.entryPoint == "" {
		return fmt.Errorf("entry point not set")
	}

	for id := range g.steps {
		_, hasEdge := g.edges[id]
		_, hasConditional := g.conditionals[id]
		if !hasEdge && !hasConditional {
			return fmt.Errorf("step %s has no outgoing edges", id)
		}
	}

	return nil
}

// Execute runs the graph to completion and returns the final state.
//
// Each iteration runs the current step, merges its patch, emits observer
// events, then routes on the merged snapshot. Returns ExecutionError with
// the failing step, state snapshot and execution path on failure.
func (g *Graph) Execute(ctx context.Context, initial state.State) (state.State, error) {
	return g.run(ctx, initial, nil)
}

// Event is one execution milestone delivered on a Stream channel. Every
// completed step yields an event carrying its patch; the final event
// additionally carries the terminal state or the execution error.
type Event struct {
	Step  StepID
	Patch state.Patch

	// State is non-nil only on the final event.
	State *state.State

	// Err is non-nil only on the final event of a failed run.
	Err error
}

// Stream runs the graph in a goroutine and delivers per-step events. The
// channel is buffered to the iteration limit so execution never blocks on
// a slow consumer, and is closed once the run ends.
func (g *Graph) Stream(ctx context.Context, initial state.State) <-chan Event {
	events := make(chan Event, g.maxIterations+1)

	go func() {
		defer close(events)

		final, err := g.run(ctx, initial, events)
		events <- Event{State: &final, Err: err}
	}()

	return events
}

func (g *Graph) run(ctx context.Context, initial state.State, events chan<- Event) (state.State, error) {
	if err := g.Validate(); err != nil {
		return initial, fmt.Errorf("graph validation failed: %w", err)
	}

	g.emit(ctx, EventGraphStart, observability.LevelInfo, map[string]any{
		"entry_point": string(g.entryPoint),
		"run_id":      initial.RunID,
		"steps":       len(g.steps),
	})

	current := g.entryPoint
	st := initial
	iterations := 0
	path := make([]StepID, 0, g.maxIterations)

	for {
		if err := ctx.Err(); err != nil {
			return st, &ExecutionError{
				Step:  current,
				State: st,
				Path:  path,
				Err:   fmt.Errorf("execution cancelled: %w", err),
			}
		}

		iterations++
		if iterations > g.maxIterations {
			return st, &ExecutionError{
				Step:  current,
				State: st,
				Path:  path,
				Err:   fmt.Errorf("max iterations (%d) exceeded", g.maxIterations),
			}
		}

		path = append(path, current)

		step, exists := g.steps[current]
		if !exists {
			return st, &ExecutionError{
				Step:  current,
				State: st,
				Path:  path,
				Err:   fmt.Errorf("step %s not found", current),
			}
		}

		g.emit(ctx, EventStepStart, observability.LevelVerbose, map[string]any{
			"step":      string(current),
			"iteration": iterations,
			"run_id":    st.RunID,
		})

		patch, err := step.Run(ctx, st)

		g.emit(ctx, EventStepComplete, observability.LevelVerbose, map[string]any{
			"step":      string(current),
			"iteration": iterations,
			"run_id":    st.RunID,
			"error":     err != nil,
		})

		if err != nil {
			return st, &ExecutionError{
				Step:  current,
				State: st,
				Path:  path,
				Err:   fmt.Errorf("step execution failed: %w", err),
			}
		}

		st = st.Merge(patch)

		if events != nil {
			events <- Event{Step: current, Patch: patch}
		}

		next, err := g.next(current, st)
		if err != nil {
			return st, &ExecutionError{
				Step:  current,
				State: st,
				Path:  path,
				Err:   err,
			}
		}

		g.emit(ctx, EventEdgeTransition, observability.LevelVerbose, map[string]any{
			"from":   string(current),
			"to":     string(next),
			"run_id": st.RunID,
		})

		if next == End {
			g.emit(ctx, EventGraphComplete, observability.LevelInfo, map[string]any{
				"exit_step":  string(current),
				"iterations": iterations,
				"run_id":     st.RunID,
			})
			return st, nil
		}

		current = next
	}
}

func (g *Graph) next(from StepID, st state.State) (StepID, error) {
	if to, exists := g.edges[from]; exists {
		return to, nil
	}

	cond, exists := g.conditionals[from]
	if !exists {
		return "", fmt.Errorf("step %s has no outgoing edges", from)
	}

	label := cond.router(st)
	to, exists := cond.targets[label]
	if !exists {
		return "", fmt.Errorf("router at step %s returned uncovered label %q", from, label)
	}
	return to, nil
}

func (g *Graph) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	g.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    g.name,
		Data:      data,
	})
}
