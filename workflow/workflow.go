// Package workflow assembles and runs the query state machine: a query is
// classified, then resolved through either a bounded data-query tool loop or
// a bounded code-generation/execution loop.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/queryloom/queryloom/capability"
	"github.com/queryloom/queryloom/observability"
	"github.com/queryloom/queryloom/session"
	"github.com/queryloom/queryloom/tools"
	"github.com/queryloom/queryloom/workflow/graph"
	"github.com/queryloom/queryloom/workflow/route"
	"github.com/queryloom/queryloom/workflow/state"
	"github.com/queryloom/queryloom/workflow/steps"
)

// Capabilities bundles the model-facing collaborators a Workflow needs. All
// fields are required.
type Capabilities struct {
	Classifier capability.Classifier
	Context    capability.ContextRetriever

	// DataQuery drives the document-store tool loop; CodeGenerator and
	// CodeExecutor drive the code branch. The three are distinct because
	// they are typically prompted differently.
	DataQuery     capability.Generator
	CodeGenerator capability.Generator
	CodeExecutor  capability.Generator

	Summarizer capability.Summarizer
	Reformat   capability.ReformatDecider
}

func (c Capabilities) validate() error {
	missing := ""
	switch {
	case c.Classifier == nil:
		missing = "classifier"
	case c.Context == nil:
		missing = "context retriever"
	case c.DataQuery == nil:
		missing = "data-query generator"
	case c.CodeGenerator == nil:
		missing = "code generator"
	case c.CodeExecutor == nil:
		missing = "code executor"
	case c.Summarizer == nil:
		missing = "summarizer"
	case c.Reformat == nil:
		missing = "reformat decider"
	}
	if missing != "" {
		return fmt.Errorf("missing capability: %s", missing)
	}
	return nil
}

// Workflow is the assembled query graph plus its collaborators. Build it
// once and share it: Invoke and Stream are safe for concurrent use, each run
// owning its own state.
type Workflow struct {
	graph    *graph.Graph
	sessions session.Store
	observer observability.Observer
	timeout  time.Duration
	bufSize  int
}

// Result is the outcome of a synchronous run. At most one of Generation and
// Error carries content.
type Result struct {
	Generation string
	Error      string
	SessionID  string
	RunID      string

	// Steps is the number of graph steps the run executed.
	Steps int
}

// New validates the configuration and capabilities and assembles the query
// graph.
func New(cfg Config, caps Capabilities, registry *tools.Registry) (*Workflow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := caps.validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	sessions, err := session.New(&cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	g, err := buildGraph(cfg, caps, registry, observer)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble graph: %w", err)
	}

	return &Workflow{
		graph:    g,
		sessions: sessions,
		observer: observer,
		timeout:  time.Duration(cfg.Timeout),
		bufSize:  cfg.MaxIterations + 1,
	}, nil
}

// buildGraph wires the fixed query graph:
//
//	set_query -> schema_context -> classify_query
//	classify_query --(branch)--> data_query | generate_code
//	data_query --(continue)--> data_query_tools -> data_query; --(end)--> End
//	generate_code --(mode)--> execute_code | summarize_code
//	summarize_code -> End
//	execute_code --(continue)--> run_script; --(end)--> End
//	run_script --(reformat)--> generate_code; --(no_reformat)--> execute_code
func buildGraph(cfg Config, caps Capabilities, registry *tools.Registry, observer observability.Observer) (*graph.Graph, error) {
	g := graph.New("query-workflow",
		graph.WithObserver(observer),
		graph.WithMaxIterations(cfg.MaxIterations),
	)

	stepSet := map[graph.StepID]graph.Step{
		steps.SetQuery:       steps.NewSetQuery(),
		steps.SchemaContext:  steps.NewSchemaContext(caps.Context),
		steps.ClassifyQuery:  steps.NewClassifyQuery(caps.Classifier),
		steps.DataQuery:      steps.NewDataQuery(caps.DataQuery, registry),
		steps.DataQueryTools: steps.NewDataQueryTools(registry),
		steps.GenerateCode:   steps.NewGenerateCode(caps.CodeGenerator),
		steps.SummarizeCode:  steps.NewSummarizeCode(caps.Summarizer),
		steps.ExecuteCode:    steps.NewExecuteCode(caps.CodeExecutor, registry),
		steps.RunScript:      steps.NewRunScript(registry, caps.Reformat),
	}
	for id, step := range stepSet {
		if err := g.AddStep(id, step); err != nil {
			return nil, err
		}
	}

	if err := g.AddEdge(steps.SetQuery, steps.SchemaContext); err != nil {
		return nil, err
	}
	if err := g.AddEdge(steps.SchemaContext, steps.ClassifyQuery); err != nil {
		return nil, err
	}
	if err := g.AddEdge(steps.DataQueryTools, steps.DataQuery); err != nil {
		return nil, err
	}
	if err := g.AddEdge(steps.SummarizeCode, graph.End); err != nil {
		return nil, err
	}

	err := g.AddConditionalEdges(steps.ClassifyQuery, route.SelectBranch, map[graph.Label]graph.StepID{
		route.LabelDataQuery: steps.DataQuery,
		route.LabelCode:      steps.GenerateCode,
	})
	if err != nil {
		return nil, err
	}

	err = g.AddConditionalEdges(steps.DataQuery, route.DataQueryNext(cfg.DataQueryCallLimit), map[graph.Label]graph.StepID{
		route.LabelContinue: steps.DataQueryTools,
		route.LabelEnd:      graph.End,
	})
	if err != nil {
		return nil, err
	}

	err = g.AddConditionalEdges(steps.GenerateCode, route.ExecuteOrSummarize, map[graph.Label]graph.StepID{
		route.LabelExecute:   steps.ExecuteCode,
		route.LabelSummarize: steps.SummarizeCode,
	})
	if err != nil {
		return nil, err
	}

	err = g.AddConditionalEdges(steps.ExecuteCode, route.CodeRunNext(cfg.CodeExecuteCallLimit), map[graph.Label]graph.StepID{
		route.LabelContinue: steps.RunScript,
		route.LabelEnd:      graph.End,
	})
	if err != nil {
		return nil, err
	}

	err = g.AddConditionalEdges(steps.RunScript, route.ReformatNext, map[graph.Label]graph.StepID{
		route.LabelReformat:   steps.GenerateCode,
		route.LabelNoReformat: steps.ExecuteCode,
	})
	if err != nil {
		return nil, err
	}

	if err := g.SetEntryPoint(steps.SetQuery); err != nil {
		return nil, err
	}

	return g, g.Validate()
}

// Invoke runs one query to completion and returns the outcome. An empty
// sessionID starts a new session; the run's messages are appended to the
// session store either way.
func (w *Workflow) Invoke(ctx context.Context, query, sessionID string) (*Result, error) {
	var (
		final graph.Event
		count int
	)
	for ev := range w.Stream(ctx, query, sessionID) {
		if ev.State != nil {
			final = ev
			continue
		}
		count++
	}

	if final.State == nil {
		return nil, fmt.Errorf("run produced no terminal event")
	}
	if final.Err != nil {
		return nil, final.Err
	}

	return &Result{
		Generation: final.State.Generation,
		Error:      final.State.Error,
		SessionID:  final.State.SessionID,
		RunID:      final.State.RunID,
		Steps:      count,
	}, nil
}

// Stream runs one query and delivers per-step events; the final event
// carries the terminal state or the execution error. The channel is closed
// when the run ends.
func (w *Workflow) Stream(ctx context.Context, query, sessionID string) <-chan graph.Event {
	if sessionID == "" {
		sessionID = session.NewID()
	}

	out := make(chan graph.Event, w.bufSize)

	go func() {
		defer close(out)

		ctx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()

		initial := state.New(sessionID, query)

		w.emit(ctx, EventRunStart, observability.LevelInfo, map[string]any{
			"session_id": sessionID,
			"run_id":     initial.RunID,
		})

		for ev := range w.graph.Stream(ctx, initial) {
			if ev.State != nil {
				w.finish(ctx, ev)
			}
			out <- ev
		}
	}()

	return out
}

// finish runs end-of-run bookkeeping on the terminal event: loop-exhaustion
// reporting and session persistence.
func (w *Workflow) finish(ctx context.Context, final graph.Event) {
	st := final.State

	if final.Err == nil && st.Error == "" && len(st.PendingToolCalls()) > 0 {
		w.emit(ctx, EventLoopExhausted, observability.LevelWarning, map[string]any{
			"run_id":        st.RunID,
			"route":         string(st.Route),
			"call_count":    st.DataQuery.CallCount,
			"execute_count": st.Code.ExecuteCount,
			"pending_calls": len(st.PendingToolCalls()),
		})
	}

	if err := w.sessions.Append(ctx, st.SessionID, st.MessageLog...); err != nil {
		w.emit(ctx, EventRunComplete, observability.LevelError, map[string]any{
			"run_id": st.RunID,
			"error":  fmt.Sprintf("session append failed: %v", err),
		})
		return
	}

	w.emit(ctx, EventRunComplete, observability.LevelInfo, map[string]any{
		"run_id":     st.RunID,
		"session_id": st.SessionID,
		"error":      final.Err != nil || st.Error != "",
	})
}

func (w *Workflow) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	w.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "workflow",
		Data:      data,
	})
}

// Sessions exposes the workflow's session store for front-ends that render
// or clear conversation threads.
func (w *Workflow) Sessions() session.Store {
	return w.sessions
}
