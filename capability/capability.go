// Package capability defines the model-facing interfaces the workflow steps
// call. Steps depend on these small interfaces only; concrete providers
// (HTTP chat-completions backends, test stubs) implement them.
package capability

import (
	"context"

	"github.com/queryloom/queryloom/core/protocol"
	"github.com/queryloom/queryloom/workflow/state"
)

// Completion is the result of one generation call. ToolCalls is non-empty
// when the model requests tool invocations instead of answering directly.
type Completion struct {
	Content   string
	ToolCalls []protocol.ToolCall
}

// Message converts the completion into an assistant message for the log.
func (c Completion) Message() protocol.Message {
	return protocol.Message{
		Role:      protocol.RoleAssistant,
		Content:   c.Content,
		ToolCalls: c.ToolCalls,
	}
}

// HasToolCalls reports whether the completion requests tool invocations.
func (c Completion) HasToolCalls() bool {
	return len(c.ToolCalls) > 0
}

// Classifier assigns a query to one of the workflow branches.
type Classifier interface {
	Classify(ctx context.Context, query string) (state.Route, error)
}

// ContextRequest carries the inputs for a context retrieval call.
type ContextRequest struct {
	Query string

	// SchemaContext is the context accumulated so far; retrievers may use
	// it to avoid returning fragments the session already holds.
	SchemaContext []string

	// CallCount is the data-query branch's call counter at retrieval time.
	CallCount int
}

// ContextRetriever fetches schema or domain context fragments for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, req ContextRequest) ([]string, error)
}

// GenerateRequest carries the inputs for a generation call.
type GenerateRequest struct {
	Messages      []protocol.Message
	SchemaContext []string

	// Tools advertises the invocable tools for this call. Empty for plain
	// text generation.
	Tools []protocol.Tool
}

// Generator produces the next assistant turn. Both branch loops use this
// interface; the data-query and code branches are typically backed by
// separately prompted instances.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Completion, error)
}

// SummarizeRequest carries the inputs for a code summarization call.
type SummarizeRequest struct {
	Query string
	Code  string
}

// Summarizer produces the user-facing explanation of generated code.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
}

// ReformatRequest carries the inputs for a code validation call.
type ReformatRequest struct {
	Query        string
	Code         string
	LastResponse string
	ExecuteCount int
}

// ReformatDecider judges whether generated code should be rewritten before
// the next execution attempt.
type ReformatDecider interface {
	Decide(ctx context.Context, req ReformatRequest) (state.ReformatDecision, error)
}
