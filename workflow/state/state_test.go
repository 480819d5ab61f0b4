package state_test

import (
	"testing"

	"github.com/queryloom/queryloom/core/protocol"
	"github.com/queryloom/queryloom/workflow/state"
)

func TestNewSeedsMessageLog(t *testing.T) {
	s := state.New("session-1", "list all players")

	if len(s.MessageLog) != 1 {
		t.Fatalf("expected 1 seeded message, got %d", len(s.MessageLog))
	}
	if s.MessageLog[0].Role != protocol.RoleUser {
		t.Errorf("expected user role, got %q", s.MessageLog[0].Role)
	}
	if s.MessageLog[0].Content != "list all players" {
		t.Errorf("expected query content, got %q", s.MessageLog[0].Content)
	}
	if s.RunID == "" {
		t.Error("expected non-empty run id")
	}
	if s.DataQuery.CallCount != 0 || s.Code.ExecuteCount != 0 {
		t.Error("expected zero counters on a fresh state")
	}
}

func TestNewAssignsUniqueRunIDs(t *testing.T) {
	a := state.New("s", "q")
	b := state.New("s", "q")
	if a.RunID == b.RunID {
		t.Errorf("expected distinct run ids, both were %q", a.RunID)
	}
}

func TestMergeAppendsMessagesAndContext(t *testing.T) {
	s := state.New("s", "q")

	next := s.Merge(state.Patch{
		Messages:      []protocol.Message{protocol.NewMessage(protocol.RoleAssistant, "first")},
		SchemaContext: []string{"players: name, score"},
	})
	next = next.Merge(state.Patch{
		Messages:      []protocol.Message{protocol.NewMessage(protocol.RoleAssistant, "second")},
		SchemaContext: []string{"matches: id, date"},
	})

	if len(next.MessageLog) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(next.MessageLog))
	}
	if next.MessageLog[1].Content != "first" || next.MessageLog[2].Content != "second" {
		t.Error("expected messages appended in order")
	}
	if len(next.SchemaContext) != 2 {
		t.Fatalf("expected 2 context fragments, got %d", len(next.SchemaContext))
	}
	if len(s.MessageLog) != 1 || len(s.SchemaContext) != 0 {
		t.Error("merge modified the input state")
	}
}

func TestMergeReplacesCountersVerbatim(t *testing.T) {
	s := state.New("s", "q")
	s = s.Merge(state.Patch{DataQuery: &state.DataQueryState{CallCount: 3}})
	s = s.Merge(state.Patch{DataQuery: &state.DataQueryState{CallCount: 2}})

	if s.DataQuery.CallCount != 2 {
		t.Errorf("expected replace semantics to yield 2, got %d", s.DataQuery.CallCount)
	}
}

func TestMergeReplacesScalars(t *testing.T) {
	route := state.RouteDataQuery
	gen := "answer"
	s := state.New("s", "q").Merge(state.Patch{Route: &route, Generation: &gen})

	if s.Route != state.RouteDataQuery {
		t.Errorf("expected route %q, got %q", state.RouteDataQuery, s.Route)
	}
	if s.Generation != "answer" {
		t.Errorf("expected generation replaced, got %q", s.Generation)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := state.New("s", "q")
	s = s.Merge(state.Patch{
		SchemaContext: []string{"original"},
		Messages: []protocol.Message{{
			Role:      protocol.RoleAssistant,
			ToolCalls: []protocol.ToolCall{{ID: "1", Name: "find_documents"}},
		}},
	})

	clone := s.Clone()
	clone.SchemaContext[0] = "mutated"
	clone.MessageLog[1].ToolCalls[0].Name = "mutated"

	if s.SchemaContext[0] != "original" {
		t.Error("clone aliases the schema context slice")
	}
	if s.MessageLog[1].ToolCalls[0].Name != "find_documents" {
		t.Error("clone aliases nested tool calls")
	}
}

func TestPendingToolCalls(t *testing.T) {
	s := state.New("s", "q")
	if calls := s.PendingToolCalls(); calls != nil {
		t.Errorf("expected no pending calls on user message, got %v", calls)
	}

	s = s.Merge(state.Patch{Messages: []protocol.Message{{
		Role:      protocol.RoleAssistant,
		ToolCalls: []protocol.ToolCall{{ID: "1", Name: "find_documents"}},
	}}})

	if calls := s.PendingToolCalls(); len(calls) != 1 {
		t.Fatalf("expected 1 pending call, got %d", len(calls))
	}
}

func TestRouteValid(t *testing.T) {
	tests := []struct {
		route state.Route
		valid bool
	}{
		{state.RouteDataQuery, true},
		{state.RouteCodeGenerate, true},
		{state.RouteCodeExecute, true},
		{state.RouteUnset, false},
		{state.Route("bogus"), false},
	}

	for _, tt := range tests {
		if got := tt.route.Valid(); got != tt.valid {
			t.Errorf("Route(%q).Valid() = %v, want %v", tt.route, got, tt.valid)
		}
	}
}

func TestPatchIsZero(t *testing.T) {
	if !(state.Patch{}).IsZero() {
		t.Error("empty patch should be zero")
	}
	errText := "failed"
	if (state.Patch{Error: &errText}).IsZero() {
		t.Error("patch with error should not be zero")
	}
}
