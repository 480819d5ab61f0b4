package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/queryloom/queryloom/core/protocol"
)

func TestToolCallUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected protocol.ToolCall
	}{
		{
			name:  "nested chat-API format",
			input: `{"id":"call_1","type":"function","function":{"name":"find_documents","arguments":"{\"filter\":{}}"}}`,
			expected: protocol.ToolCall{
				ID:        "call_1",
				Name:      "find_documents",
				Arguments: `{"filter":{}}`,
			},
		},
		{
			name:  "flat format",
			input: `{"id":"call_2","name":"run_script","arguments":"{}"}`,
			expected: protocol.ToolCall{
				ID:        "call_2",
				Name:      "run_script",
				Arguments: "{}",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tc protocol.ToolCall
			if err := json.Unmarshal([]byte(tt.input), &tc); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, tc)
			}
		})
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	original := protocol.ToolCall{
		ID:        "call_3",
		Name:      "aggregate_documents",
		Arguments: `{"pipeline":[]}`,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded protocol.ToolCall
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded != original {
		t.Errorf("expected %+v, got %+v", original, decoded)
	}
}

func TestNewToolResult(t *testing.T) {
	call := protocol.ToolCall{ID: "call_9", Name: "find_documents", Arguments: "{}"}
	msg := protocol.NewToolResult(call, `{"count":3}`)

	if msg.Role != protocol.RoleTool {
		t.Errorf("expected tool role, got %s", msg.Role)
	}
	if msg.ToolCallID != "call_9" {
		t.Errorf("expected tool_call_id call_9, got %s", msg.ToolCallID)
	}
	if msg.Name != "find_documents" {
		t.Errorf("expected name find_documents, got %s", msg.Name)
	}
	if msg.HasToolCalls() {
		t.Error("tool result should not carry tool calls")
	}
}
