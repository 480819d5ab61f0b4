package graph_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/queryloom/queryloom/core/protocol"
	"github.com/queryloom/queryloom/workflow/graph"
	"github.com/queryloom/queryloom/workflow/state"
)

func appendStep(content string) graph.Step {
	return graph.StepFunc(func(_ context.Context, _ state.State) (state.Patch, error) {
		return state.Patch{
			Messages: []protocol.Message{protocol.NewMessage(protocol.RoleAssistant, content)},
		}, nil
	})
}

func TestAddStepErrors(t *testing.T) {
	tests := []struct {
		name    string
		id      graph.StepID
		step    graph.Step
		wantErr string
	}{
		{name: "empty id", id: "", step: appendStep("x"), wantErr: "cannot be empty"},
		{name: "reserved id", id: graph.End, step: appendStep("x"), wantErr: "reserved"},
		{name: "nil step", id: "a", step: nil, wantErr: "cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New("test")
			err := g.AddStep(tt.id, tt.step)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAddStepDuplicate(t *testing.T) {
	g := graph.New("test")
	if err := g.AddStep("a", appendStep("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddStep("a", appendStep("x")); err == nil {
		t.Error("expected duplicate step error")
	}
}

func TestAddEdgeUnknownSteps(t *testing.T) {
	g := graph.New("test")
	if err := g.AddStep("a", appendStep("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := g.AddEdge("missing", "a"); err == nil {
		t.Error("expected error for unknown source")
	}
	if err := g.AddEdge("a", "missing"); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestAddEdgeConflictsWithConditional(t *testing.T) {
	g := graph.New("test")
	if err := g.AddStep("a", appendStep("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	router := func(state.State) graph.Label { return "done" }
	if err := g.AddConditionalEdges("a", router, map[graph.Label]graph.StepID{"done": graph.End}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := g.AddEdge("a", graph.End); err == nil {
		t.Error("expected error adding edge over conditional edges")
	}
}

func TestExecuteLinear(t *testing.T) {
	g := graph.New("test")
	for _, id := range []graph.StepID{"first", "second"} {
		if err := g.AddStep(id, appendStep(string(id))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := g.AddEdge("first", "second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("second", graph.End); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetEntryPoint("first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, err := g.Execute(context.Background(), state.New("s", "q"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(final.MessageLog) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(final.MessageLog))
	}
	if final.MessageLog[1].Content != "first" || final.MessageLog[2].Content != "second" {
		t.Error("expected step patches merged in execution order")
	}
}

func TestExecuteConditionalRouting(t *testing.T) {
	route := state.RouteDataQuery

	g := graph.New("test")
	classify := graph.StepFunc(func(_ context.Context, _ state.State) (state.Patch, error) {
		return state.Patch{Route: &route}, nil
	})
	if err := g.AddStep("classify", classify); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range []graph.StepID{"data", "code"} {
		if err := g.AddStep(id, appendStep(string(id))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	router := func(s state.State) graph.Label {
		if s.Route == state.RouteDataQuery {
			return "data_query"
		}
		return "code"
	}
	err := g.AddConditionalEdges("classify", router, map[graph.Label]graph.StepID{
		"data_query": "data",
		"code":       "code",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("data", graph.End); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("code", graph.End); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetEntryPoint("classify"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, err := g.Execute(context.Background(), state.New("s", "q"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last, _ := final.LastMessage()
	if last.Content != "data" {
		t.Errorf("expected data branch taken, got %q", last.Content)
	}
}

func TestExecuteUncoveredLabel(t *testing.T) {
	g := graph.New("test")
	if err := g.AddStep("a", appendStep("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	router := func(state.State) graph.Label { return "surprise" }
	if err := g.AddConditionalEdges("a", router, map[graph.Label]graph.StepID{"done": graph.End}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetEntryPoint("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := g.Execute(context.Background(), state.New("s", "q"))

	var execErr *graph.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if !strings.Contains(execErr.Err.Error(), "uncovered label") {
		t.Errorf("expected uncovered label error, got %v", execErr.Err)
	}
}

func TestExecuteMaxIterations(t *testing.T) {
	g := graph.New("test", graph.WithMaxIterations(5))
	if err := g.AddStep("loop", appendStep("again")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("loop", "loop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetEntryPoint("loop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := g.Execute(context.Background(), state.New("s", "q"))

	var execErr *graph.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if !strings.Contains(execErr.Err.Error(), "max iterations") {
		t.Errorf("expected max iterations error, got %v", execErr.Err)
	}
	if len(execErr.Path) != 5 {
		t.Errorf("expected path of 5 steps, got %d", len(execErr.Path))
	}
}

func TestExecuteStepFailureKeepsPriorState(t *testing.T) {
	boom := errors.New("boom")

	g := graph.New("test")
	if err := g.AddStep("first", appendStep("first")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failing := graph.StepFunc(func(context.Context, state.State) (state.Patch, error) {
		return state.Patch{}, boom
	})
	if err := g.AddStep("second", failing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("first", "second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("second", graph.End); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetEntryPoint("first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := g.Execute(context.Background(), state.New("s", "q"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped step error, got %v", err)
	}

	var execErr *graph.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if execErr.Step != "second" {
		t.Errorf("expected failure at step second, got %s", execErr.Step)
	}
	last, _ := execErr.State.LastMessage()
	if last.Content != "first" {
		t.Error("expected state snapshot to include the first step's patch")
	}
}

func TestExecuteCancellation(t *testing.T) {
	g := graph.New("test")
	if err := g.AddStep("a", appendStep("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("a", graph.End); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetEntryPoint("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Execute(ctx, state.New("s", "q"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	g := graph.New("test")
	if err := g.Validate(); err == nil {
		t.Error("expected error for empty graph")
	}

	if err := g.AddStep("a", appendStep("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Validate(); err == nil {
		t.Error("expected error for missing entry point")
	}

	if err := g.SetEntryPoint("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Validate(); err == nil {
		t.Error("expected error for step without outgoing edges")
	}

	if err := g.AddEdge("a", graph.End); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStreamDeliversStepEventsAndFinalState(t *testing.T) {
	g := graph.New("test")
	for _, id := range []graph.StepID{"first", "second"} {
		if err := g.AddStep(id, appendStep(string(id))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := g.AddEdge("first", "second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("second", graph.End); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetEntryPoint("first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var events []graph.Event
	for ev := range g.Stream(context.Background(), state.New("s", "q")) {
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Step != "first" || events[1].Step != "second" {
		t.Error("expected step events in execution order")
	}
	final := events[2]
	if final.State == nil {
		t.Fatal("expected final event to carry terminal state")
	}
	if final.Err != nil {
		t.Errorf("unexpected error: %v", final.Err)
	}
	if len(final.State.MessageLog) != 3 {
		t.Errorf("expected 3 messages in terminal state, got %d", len(final.State.MessageLog))
	}
}

func TestStreamReportsFailure(t *testing.T) {
	boom := errors.New("boom")

	g := graph.New("test")
	failing := graph.StepFunc(func(context.Context, state.State) (state.Patch, error) {
		return state.Patch{}, boom
	})
	if err := g.AddStep("a", failing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("a", graph.End); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetEntryPoint("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var final graph.Event
	for ev := range g.Stream(context.Background(), state.New("s", "q")) {
		final = ev
	}

	if !errors.Is(final.Err, boom) {
		t.Errorf("expected final event error, got %v", final.Err)
	}
}
