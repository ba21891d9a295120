package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name       string
		old        *State
		new        *State
		wantNil    bool
		wantFields map[string]any
		wantAppend int
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &State{
				ThreadID: "t-1",
				Query:    "what is personal data",
				History:  []Message{UserMessage("what is personal data")},
			},
			wantAppend: 1,
		},
		{
			name:    "No Changes",
			old:     &State{ThreadID: "t-1", Route: RouteAnalysis, RetryCount: 1},
			new:     &State{ThreadID: "t-1", Route: RouteAnalysis, RetryCount: 1},
			wantNil: true,
		},
		{
			name:       "Route and Retry Changed",
			old:        &State{ThreadID: "t-1", Route: RouteAnalysis},
			new:        &State{ThreadID: "t-1", Route: RouteClear, RetryCount: 2},
			wantFields: map[string]any{"route": "clear", "retry_count": float64(2)},
		},
		{
			name:       "Errors Cleared",
			old:        &State{ThreadID: "t-1", ValidationErrors: []string{"x"}},
			new:        &State{ThreadID: "t-1"},
			wantFields: map[string]any{"validation_errors": nil},
		},
		{
			name: "History Append",
			old: &State{
				ThreadID: "t-1",
				History:  []Message{UserMessage("q")},
			},
			new: &State{
				ThreadID: "t-1",
				History:  []Message{UserMessage("q"), ToolMessage(ToolResult{ID: "c1", Name: "search_regulations", Content: "Article 33"})},
			},
			wantAppend: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantNil {
				if got != nil {
					t.Errorf("Diff() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Diff() = nil, want a diff")
			}
			if got.ThreadID != tt.new.ThreadID {
				t.Errorf("Diff().ThreadID = %v, want %v", got.ThreadID, tt.new.ThreadID)
			}
			if tt.wantFields != nil && !reflect.DeepEqual(got.Fields, tt.wantFields) {
				t.Errorf("Diff().Fields = %v, want %v", got.Fields, tt.wantFields)
			}
			if len(got.Appended) != tt.wantAppend {
				t.Errorf("Diff().Appended = %d messages, want %d", len(got.Appended), tt.wantAppend)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Deletions as Null", func(t *testing.T) {
		s1 := &State{ThreadID: "t", PendingToolCalls: []ToolCall{{ID: "1", Name: "search_regulations"}}}
		s2 := &State{ThreadID: "t"}
		diff := Diff(s1, s2)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if !strings.Contains(string(bytes), `"pending_tool_calls":null`) {
			t.Errorf("JSON should contain pending_tool_calls:null for deletion, got: %s", string(bytes))
		}
	})

	t.Run("History Not In Fields", func(t *testing.T) {
		s1 := &State{ThreadID: "t"}
		s2 := &State{ThreadID: "t", History: []Message{UserMessage("hi")}}
		diff := Diff(s1, s2)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}
		if _, ok := diff.Fields["conversation_history"]; ok {
			t.Errorf("history must be reported through Appended, got fields %v", diff.Fields)
		}
	})
}
