package steps

import (
	"context"
	"errors"
	"strings"

	"github.com/queryloom/queryloom/capability"
	"github.com/queryloom/queryloom/core/protocol"
	"github.com/queryloom/queryloom/tools"
	"github.com/queryloom/queryloom/workflow/graph"
	"github.com/queryloom/queryloom/workflow/state"
)

// NewGenerateCode produces the code artifact for the code branch. The
// reformat decision is cleared so a regenerated artifact is judged fresh on
// the next run cycle. The execute counter carries forward untouched.
func NewGenerateCode(generator capability.Generator) graph.Step {
	return graph.StepFunc(func(ctx context.Context, s state.State) (state.Patch, error) {
		completion, err := generator.Generate(ctx, capability.GenerateRequest{
			Messages:      s.MessageLog,
			SchemaContext: s.SchemaContext,
		})
		if err != nil {
			return generationFailure(err), nil
		}

		cs := s.Code
		cs.Code = completion.Content
		cs.Reformat = state.ReformatUnset

		return state.Patch{
			Messages: []protocol.Message{completion.Message()},
			Code:     &cs,
		}, nil
	})
}

// NewSummarizeCode explains the generated code without executing it and
// finishes the branch with the summary as the answer.
func NewSummarizeCode(summarizer capability.Summarizer) graph.Step {
	return graph.StepFunc(func(ctx context.Context, s state.State) (state.Patch, error) {
		summary, err := summarizer.Summarize(ctx, capability.SummarizeRequest{
			Query: s.Query,
			Code:  s.Code.Code,
		})
		if err != nil {
			return generationFailure(err), nil
		}

		return state.Patch{
			Messages:   []protocol.Message{protocol.NewMessage(protocol.RoleAssistant, summary)},
			Generation: &summary,
		}, nil
	})
}

// NewExecuteCode is the planning step of the code-execution loop. The
// generation call sees the script tools and either requests a run or closes
// the branch with a final answer.
func NewExecuteCode(generator capability.Generator, registry *tools.Registry) graph.Step {
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

		return state.Patch{
			Messages: []protocol.Message{completion.Message()},
		}, nil
	})
}

// NewRunScript executes the pending script tool calls, advances the execute
// counter, and asks the validation capability whether the code should be
// rewritten before the next attempt. A failed decision defaults to retrying
// the same code.
func NewRunScript(registry *tools.Registry, decider capability.ReformatDecider) graph.Step {
	return graph.StepFunc(func(ctx context.Context, s state.State) (state.Patch, error) {
		calls := s.PendingToolCalls()
		if len(calls) == 0 {
			return state.Patch{}, nil
		}

		results, _, err := executeToolCalls(ctx, registry, calls)
		if err != nil {
			return state.Patch{}, err
		}

		contents := make([]string, len(results))
		for i, result := range results {
			contents[i] = result.Content
		}

		cs := s.Code
		cs.ExecuteCount++
		cs.LastResponse = strings.Join(contents, "\n")

		decision, err := decider.Decide(ctx, capability.ReformatRequest{
			Query:        s.Query,
			Code:         cs.Code,
			LastResponse: cs.LastResponse,
			ExecuteCount: cs.ExecuteCount,
		})
		if err != nil || decision == state.ReformatUnset {
			decision = state.NoReformat
		}
		cs.Reformat = decision

		return state.Patch{
			Messages: results,
			Code:     &cs,
		}, nil
	})
}
