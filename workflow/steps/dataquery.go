package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/queryloom/queryloom/capability"
	"github.com/queryloom/queryloom/core/protocol"
	"github.com/queryloom/queryloom/tools"
	"github.com/queryloom/queryloom/workflow/graph"
	"github.com/queryloom/queryloom/workflow/state"
)

// NewDataQuery is the generation step of the data-query loop. It advertises
// the registry's tools and either answers directly or requests tool
// invocations. The call counter moves here, and only for tool-requesting
// responses: a direct answer leaves it untouched, so a query resolved on the
// first call finishes with a zero count.
func NewDataQuery(generator capability.Generator, registry *tools.Registry) graph.Step {
	return graph.StepFunc(func(ctx context.Context, s state.State) (state.Patch, error) {
		completion, err := generator.Generate(ctx, capability.GenerateRequest{
			Messages:      s.MessageLog,
			SchemaContext: s.SchemaContext,
			Tools:         registry.List(),
		})
		if err != nil {
			if errors.Is(err, capability.ErrInputTooLarge) {
				text := err.Error()
				return state.Patch{Error: &text}, nil
			}
			return generationFailure(err), nil
		}

		if !completion.HasToolCalls() {
			return state.Patch{
				Messages:   []protocol.Message{completion.Message()},
				Generation: &completion.Content,
			}, nil
		}

		dq := s.DataQuery
		dq.CallCount++

		return state.Patch{
			Messages:  []protocol.Message{completion.Message()},
			DataQuery: &dq,
		}, nil
	})
}

// NewDataQueryTools executes the tool calls pending from the latest
// generation turn. Tool failures become error-marked result messages and
// the loop continues; only the registry missing a tool outright aborts.
func NewDataQueryTools(registry *tools.Registry) graph.Step {
	return graph.StepFunc(func(ctx context.Context, s state.State) (state.Patch, error) {
		calls := s.PendingToolCalls()
		if len(calls) == 0 {
			return state.Patch{}, nil
		}

		results, queries, err := executeToolCalls(ctx, registry, calls)
		if err != nil {
			return state.Patch{}, err
		}

		dq := s.DataQuery
		dq.LastQuery = queries
		dq.LastResults = results

		return state.Patch{
			Messages:  results,
			DataQuery: &dq,
		}, nil
	})
}

// executeToolCalls dispatches each call through the registry and returns the
// tool-result messages plus the raw argument payloads, in call order. Handler
// errors are folded into error-marked results; an unregistered tool name is
// returned as an error because it means the generation and registry disagree
// on the advertised tool set.
func executeToolCalls(ctx context.Context, registry *tools.Registry, calls []protocol.ToolCall) ([]protocol.Message, []string, error) {
	results := make([]protocol.Message, 0, len(calls))
	queries := make([]string, 0, len(calls))

	for _, call := range calls {
		result, err := registry.Execute(ctx, call.Name, json.RawMessage(call.Arguments))
		if err != nil {
			if errors.Is(err, tools.ErrNotFound) {
				return nil, nil, fmt.Errorf("tool call dispatch failed: %w", err)
			}
			result = tools.Result{Content: err.Error(), IsError: true}
		}

		content := result.Content
		if result.IsError {
			content = fmt.Sprintf("tool error: %s", content)
		}

		results = append(results, protocol.NewToolResult(call, content))
		queries = append(queries, call.Arguments)
	}

	return results, queries, nil
}

// generationFailure records a failed generation call as a synthetic
// assistant turn. The failure text doubles as the step's output, and the
// absence of tool calls ends the branch at the next router.
func generationFailure(err error) state.Patch {
	text := fmt.Sprintf("generation failed: %v", err)
	return state.Patch{
		Messages:   []protocol.Message{protocol.NewMessage(protocol.RoleAssistant, text)},
		Generation: &text,
	}
}
