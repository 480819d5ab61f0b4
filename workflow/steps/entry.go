package steps

import (
	"context"
	"fmt"

	"github.com/queryloom/queryloom/capability"
	"github.com/queryloom/queryloom/core/protocol"
	"github.com/queryloom/queryloom/workflow/graph"
	"github.com/queryloom/queryloom/workflow/state"
)

// NewSetQuery is the entry step. It pins the query from the most recent user
// message and resets both branch counters, so a state carried over from a
// prior run starts its loops from zero.
func NewSetQuery() graph.Step {
	return graph.StepFunc(func(_ context.Context, s state.State) (state.Patch, error) {
		query := s.Query
		for i := len(s.MessageLog) - 1; i >= 0; i-- {
			if s.MessageLog[i].Role == protocol.RoleUser {
				query = s.MessageLog[i].Content
				break
			}
		}

		return state.Patch{
			Query:     &query,
			DataQuery: &state.DataQueryState{},
			Code:      &state.CodeState{},
		}, nil
	})
}

// NewSchemaContext retrieves schema context for the query in a single shot
// and appends the returned fragments. Retrieval failures abort the run: the
// downstream generation steps are not meaningful without their context.
func NewSchemaContext(retriever capability.ContextRetriever) graph.Step {
	return graph.StepFunc(func(ctx context.Context, s state.State) (state.Patch, error) {
		fragments, err := retriever.Retrieve(ctx, capability.ContextRequest{
			Query:         s.Query,
			SchemaContext: s.SchemaContext,
			CallCount:     s.DataQuery.CallCount,
		})
		if err != nil {
			return state.Patch{}, fmt.Errorf("context retrieval failed: %w", err)
		}

		return state.Patch{SchemaContext: fragments}, nil
	})
}

// NewClassifyQuery assigns the query to a branch. A failed or invalid
// classification falls back to the code-generation branch and records the
// fallback in the message log.
func NewClassifyQuery(classifier capability.Classifier) graph.Step {
	return graph.StepFunc(func(ctx context.Context, s state.State) (state.Patch, error) {
		routed, err := classifier.Classify(ctx, s.Query)
		if err == nil && routed.Valid() {
			return state.Patch{Route: &routed}, nil
		}

		fallback := state.RouteCodeGenerate
		reason := fmt.Sprintf("invalid route %q", routed)
		if err != nil {
			reason = err.Error()
		}

		note := protocol.NewMessage(protocol.RoleAssistant,
			fmt.Sprintf("query classification failed (%s); defaulting to code generation", reason))

		return state.Patch{
			Route:    &fallback,
			Messages: []protocol.Message{note},
		}, nil
	})
}
