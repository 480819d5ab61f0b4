// Package steps implements the computation steps of the query workflow
// graph. Each step reads only the state fields it needs, calls at most one
// capability, and returns a patch; routing between steps lives in the route
// package.
package steps

import "github.com/queryloom/queryloom/workflow/graph"

// Step identifiers of the fixed query graph.
const (
	SetQuery       graph.StepID = "set_query"
	SchemaContext  graph.StepID = "schema_context"
	ClassifyQuery  graph.StepID = "classify_query"
	DataQuery      graph.StepID = "data_query"
	DataQueryTools graph.StepID = "data_query_tools"
	GenerateCode   graph.StepID = "generate_code"
	SummarizeCode  graph.StepID = "summarize_code"
	ExecuteCode    graph.StepID = "execute_code"
	RunScript      graph.StepID = "run_script"
)
