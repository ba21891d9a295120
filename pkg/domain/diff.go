package domain

import (
	"encoding/json"
	"reflect"
)

// StateDiff represents the changes between two states.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// ThreadID is always present to identify the target.
	ThreadID string `json:"thread_id"`

	// Fields contains only changed, added or cleared fields, keyed by wire name.
	// For cleared fields, the key is present with a nil value.
	Fields map[string]any `json:"fields,omitempty"`

	// Appended contains the messages added to the conversation history.
	Appended []Message `json:"appended,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		ThreadID: newState.ThreadID,
		Fields:   diffFields(oldState, newState),
		Appended: diffHistory(oldState, newState),
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// fieldsOf flattens a state into its wire representation, without history.
func fieldsOf(s *State) map[string]any {
	out := map[string]any{}
	if s == nil {
		return out
	}
	data, err := json.Marshal(s)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	delete(out, "conversation_history")
	delete(out, "thread_id")
	return out
}

func diffFields(old, new *State) map[string]any {
	before := fieldsOf(old)
	after := fieldsOf(new)
	delta := make(map[string]any)

	// Check for Added or Modified
	for k, newVal := range after {
		if oldVal, exists := before[k]; !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	// Check for Deletions
	for k := range before {
		if _, exists := after[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffHistory assumes append-only behavior for History.
func diffHistory(old, new *State) []Message {
	if len(new.History) == 0 {
		return nil
	}
	if old == nil {
		return cloneMessages(new.History)
	}
	if len(new.History) > len(old.History) {
		return cloneMessages(new.History[len(old.History):])
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Fields) == 0 && len(d.Appended) == 0
}
