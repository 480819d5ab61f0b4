// Package route holds the pure routing functions for the query workflow.
// Routers only read the state snapshot; every capability call that feeds a
// decision happens in the preceding step and is recorded in state first.
package route

import (
	"github.com/queryloom/queryloom/workflow/graph"
	"github.com/queryloom/queryloom/workflow/state"
)

// Routing labels. Each router's label set is closed; the graph wiring must
// cover every label the router can return.
const (
	LabelDataQuery  graph.Label = "data_query"
	LabelCode       graph.Label = "code"
	LabelExecute    graph.Label = "execute"
	LabelSummarize  graph.Label = "summarize"
	LabelContinue   graph.Label = "continue"
	LabelEnd        graph.Label = "end"
	LabelReformat   graph.Label = "reformat"
	LabelNoReformat graph.Label = "no_reformat"
)

// SelectBranch routes after classification. Only an explicit data-query
// classification takes the tool loop; everything else, including a failed
// classification that left the route unset, falls through to the code
// branch.
func SelectBranch(s state.State) graph.Label {
	if s.Route == state.RouteDataQuery {
		return LabelDataQuery
	}
	return LabelCode
}

// ExecuteOrSummarize routes after code generation: execute when the
// classification asked for script execution, summarize otherwise.
func ExecuteOrSummarize(s state.State) graph.Label {
	if s.Route == state.RouteCodeExecute {
		return LabelExecute
	}
	return LabelSummarize
}

// DataQueryNext decides whether the data-query loop continues. The loop ends
// when the latest generation requested no tool calls, or when the call count
// has exceeded the limit. The comparison is strict: with a limit of 4 the
// fifth tool-requesting generation pushes the count to 5 and ends the loop
// without executing its tools.
func DataQueryNext(limit int) graph.Router {
	return func(s state.State) graph.Label {
		if len(s.PendingToolCalls()) == 0 {
			return LabelEnd
		}
		if s.DataQuery.CallCount > limit {
			return LabelEnd
		}
		return LabelContinue
	}
}

// CodeRunNext decides whether the code-execution loop continues after a
// script run. The loop ends once the execute count reaches the limit, or
// when the latest response requested no further tool calls.
func CodeRunNext(limit int) graph.Router {
	return func(s state.State) graph.Label {
		if s.Code.ExecuteCount >= limit {
			return LabelEnd
		}
		if len(s.PendingToolCalls()) == 0 {
			return LabelEnd
		}
		return LabelContinue
	}
}

// ReformatNext routes on the validation decision recorded by the preceding
// run step: back to generation for a rewrite, or back to execution for a
// retry of the same code.
func ReformatNext(s state.State) graph.Label {
	if s.Code.Reformat == state.Reformat {
		return LabelReformat
	}
	return LabelNoReformat
}
