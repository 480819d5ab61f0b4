// Package state defines the typed workflow state for one query lifecycle and
// the merge policy through which steps update it.
//
// State is an explicit record with named fields rather than a dynamic map:
// the append/replace policy per field is encoded once in Merge, and routing
// labels are closed enums so conditional edges can be checked exhaustively.
// All operations are immutable - modifications return new State values, so a
// router may inspect a prior snapshot while a later step is still running.
package state

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/queryloom/queryloom/core/protocol"
)

// Route is the branch selector assigned by query classification.
type Route string

const (
	// RouteUnset is the zero value before classification has run.
	RouteUnset Route = ""

	// RouteDataQuery resolves the query through the document-store tool loop.
	RouteDataQuery Route = "data_query"

	// RouteCodeGenerate generates code and summarizes it without executing.
	RouteCodeGenerate Route = "code_generate"

	// RouteCodeExecute generates code and iteratively executes it.
	RouteCodeExecute Route = "code_execute"
)

// Valid reports whether r is one of the assigned route values.
func (r Route) Valid() bool {
	switch r {
	case RouteDataQuery, RouteCodeGenerate, RouteCodeExecute:
		return true
	}
	return false
}

// ReformatDecision is the outcome of the code-validation capability call:
// regenerate the code, or retry execution of the same code.
type ReformatDecision string

const (
	ReformatUnset ReformatDecision = ""
	Reformat      ReformatDecision = "reformat"
	NoReformat    ReformatDecision = "no_reformat"
)

// DataQueryState holds the data-query branch's loop state. LastQuery and
// LastResults are overwritten each cycle (only the latest matters);
// CallCount counts tool-invoking generation cycles and only grows.
type DataQueryState struct {
	LastQuery   []string           `json:"last_query,omitempty"`
	LastResults []protocol.Message `json:"last_results,omitempty"`
	CallCount   int                `json:"call_count"`
}

func (d DataQueryState) clone() DataQueryState {
	d.LastQuery = slices.Clone(d.LastQuery)
	d.LastResults = cloneMessages(d.LastResults)
	return d
}

// CodeState holds the code branch's loop state. Code and LastResponse are
// overwritten each cycle; ExecuteCount counts completed script runs and only
// grows. Reformat carries the latest validation decision for the reformat
// router.
type CodeState struct {
	Code         string           `json:"code,omitempty"`
	LastResponse string           `json:"last_response,omitempty"`
	ExecuteCount int              `json:"execute_count"`
	Reformat     ReformatDecision `json:"reformat,omitempty"`
}

// State is the workflow state for one query lifecycle. It is exclusively
// owned by the executing session; the graph executor produces each new
// version via Merge and nothing else writes to it.
type State struct {
	// Query is the original user text; set once by the entry step.
	Query string `json:"query"`

	// Route is the branch selector assigned by classification.
	Route Route `json:"route,omitempty"`

	// MessageLog is the ordered conversation history. Append-only.
	MessageLog []protocol.Message `json:"message_log"`

	// SchemaContext accumulates retrieved context fragments. Append-only;
	// never truncated or replaced for the lifetime of the session.
	SchemaContext []string `json:"schema_context,omitempty"`

	// DataQuery and Code are the per-branch loop states.
	DataQuery DataQueryState `json:"data_query"`
	Code      CodeState      `json:"code"`

	// Generation is the final user-facing answer; Error is the terminal
	// failure reason. At most one carries meaningful content.
	Generation string `json:"generation,omitempty"`
	Error      string `json:"error,omitempty"`

	// Execution provenance.
	SessionID string    `json:"session_id"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates the initial State for a query: counters zero, schema context
// empty, and the message log seeded with the user's message. Each run gets a
// fresh UUIDv7 run identifier.
func New(sessionID, query string) State {
	return State{
		MessageLog: []protocol.Message{protocol.NewMessage(protocol.RoleUser, query)},
		SessionID:  sessionID,
		RunID:      uuid.Must(uuid.NewV7()).String(),
		Timestamp:  time.Now(),
	}
}

// Clone creates an independent copy of the State. Slices are copied so a
// retained reference to an earlier snapshot never aliases a later one.
func (s State) Clone() State {
	s.MessageLog = cloneMessages(s.MessageLog)
	s.SchemaContext = slices.Clone(s.SchemaContext)
	s.DataQuery = s.DataQuery.clone()
	return s
}

// LastMessage returns the most recent entry of the message log.
func (s State) LastMessage() (protocol.Message, bool) {
	if len(s.MessageLog) == 0 {
		return protocol.Message{}, false
	}
	return s.MessageLog[len(s.MessageLog)-1], true
}

// PendingToolCalls returns the tool invocations requested by the most recent
// message, if any. Routers use this to decide between continuing a loop and
// ending the branch.
func (s State) PendingToolCalls() []protocol.ToolCall {
	last, ok := s.LastMessage()
	if !ok {
		return nil
	}
	return last.ToolCalls
}

func cloneMessages(msgs []protocol.Message) []protocol.Message {
	if msgs == nil {
		return nil
	}
	copied := make([]protocol.Message, len(msgs))
	for i, msg := range msgs {
		copied[i] = msg
		copied[i].ToolCalls = slices.Clone(msg.ToolCalls)
	}
	return copied
}
