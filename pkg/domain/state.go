package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State is the single mutable record threaded through every stage of a turn.
// It is persisted per thread by the checkpoint store.
type State struct {
	ThreadID string `json:"thread_id"`

	// History is append-only within a turn and concatenated across turns.
	History []Message `json:"conversation_history"`

	// Query is the original text of the turn. Immutable once the turn starts.
	Query  string `json:"input_query"`
	Domain Regime `json:"domain"`

	RetrievedContext string     `json:"retrieved_context,omitempty"`
	Candidate        *Analysis  `json:"candidate_analysis,omitempty"`
	ValidationErrors []string   `json:"validation_errors,omitempty"`
	RetryCount       int        `json:"retry_count"`
	Route            Route      `json:"route"`
	PendingToolCalls []ToolCall `json:"pending_tool_calls,omitempty"`

	// FinalResult is set exactly once per turn, by the stage that terminates it.
	FinalResult *FinalResult `json:"final_result,omitempty"`

	ClarificationOptions []ClarificationOption `json:"clarification_options,omitempty"`
	UserSelections       []string              `json:"user_selections,omitempty"`

	// Generations and ToolRounds bound the Generate <-> Tool Dispatch cycle.
	Generations int `json:"generations"`
	ToolRounds  int `json:"tool_rounds"`

	// Turn counts turns on this thread; TurnStart is len(History) when the turn began.
	Turn      int `json:"turn"`
	TurnStart int `json:"turn_start"`

	// LastStage is the last stage whose output was merged (recovery point).
	LastStage string `json:"last_stage,omitempty"`

	// Redacted marks a checkpoint whose free text was scrubbed of personal
	// data before it was stored. Its Query is not the caller's text.
	Redacted bool `json:"redacted,omitempty"`

	// Sealed carries the encrypted checkpoint when at-rest encryption is on.
	// A sealed envelope has no other content besides identity fields.
	Sealed string `json:"sealed,omitempty"`
}

// NewTurn creates the state for a new turn. When prior is non-nil its history
// is carried over so the thread keeps multi-turn memory.
func NewTurn(threadID, query string, regime Regime, selections []string, prior *State) *State {
	s := &State{
		ThreadID:       threadID,
		Query:          query,
		Domain:         regime,
		UserSelections: append([]string(nil), selections...),
		History:        []Message{},
	}
	if prior != nil {
		s.History = cloneMessages(prior.History)
		s.Turn = prior.Turn + 1
	}
	s.TurnStart = len(s.History)
	return s
}

// Done reports whether the turn has produced its final result.
func (s *State) Done() bool {
	return s.FinalResult != nil
}

// PriorHistory returns the messages recorded before the current turn started.
func (s *State) PriorHistory() []Message {
	if s.TurnStart > len(s.History) {
		return s.History
	}
	return s.History[:s.TurnStart]
}

// TurnHistory returns the messages appended during the current turn.
func (s *State) TurnHistory() []Message {
	if s.TurnStart > len(s.History) {
		return nil
	}
	return s.History[s.TurnStart:]
}

// Clone returns a deep copy safe for independent mutation.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	next := *s
	next.History = cloneMessages(s.History)
	next.Candidate = s.Candidate.Clone()
	next.ValidationErrors = append([]string(nil), s.ValidationErrors...)
	next.PendingToolCalls = cloneToolCalls(s.PendingToolCalls)
	next.FinalResult = s.FinalResult.Clone()
	next.ClarificationOptions = append([]ClarificationOption(nil), s.ClarificationOptions...)
	next.UserSelections = append([]string(nil), s.UserSelections...)
	return &next
}

// DecodeState parses a persisted state, rejecting unknown keys.
func DecodeState(data []byte) (*State, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var s State
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &s, nil
}

// Opt is an optional field of a Partial. The zero value means "not touched".
type Opt[T any] struct {
	Value T
	Set   bool
}

// Set marks a Partial field as changed to v.
func Set[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Set: true}
}

// Partial is the set of fields a stage changed.
// History is concatenated on merge; every other field is last-write-wins.
type Partial struct {
	History              []Message
	RetrievedContext     Opt[string]
	Candidate            Opt[*Analysis]
	ValidationErrors     Opt[[]string]
	RetryCount           Opt[int]
	Route                Opt[Route]
	PendingToolCalls     Opt[[]ToolCall]
	FinalResult          Opt[*FinalResult]
	ClarificationOptions Opt[[]ClarificationOption]
	Generations          Opt[int]
	ToolRounds           Opt[int]
}

// Keys lists the fields touched by the partial, using their wire names.
func (p Partial) Keys() []string {
	var keys []string
	add := func(set bool, name string) {
		if set {
			keys = append(keys, name)
		}
	}
	add(len(p.History) > 0, "conversation_history")
	add(p.RetrievedContext.Set, "retrieved_context")
	add(p.Candidate.Set, "candidate_analysis")
	add(p.ValidationErrors.Set, "validation_errors")
	add(p.RetryCount.Set, "retry_count")
	add(p.Route.Set, "route")
	add(p.PendingToolCalls.Set, "pending_tool_calls")
	add(p.FinalResult.Set, "final_result")
	add(p.ClarificationOptions.Set, "clarification_options")
	add(p.Generations.Set, "generations")
	add(p.ToolRounds.Set, "tool_rounds")
	return keys
}

// IsEmpty reports whether the partial changes nothing.
func (p Partial) IsEmpty() bool {
	return len(p.Keys()) == 0
}

// Merge applies p to s and returns the resulting state. s is not modified.
// It refuses to touch a finalized state and to lower monotonic counters.
func Merge(s *State, p Partial) (*State, error) {
	if s.Done() && !p.IsEmpty() {
		return nil, fmt.Errorf("%w: cannot apply %v", ErrFinalized, p.Keys())
	}
	if p.RetryCount.Set && p.RetryCount.Value < s.RetryCount {
		return nil, fmt.Errorf("%w: retry_count %d -> %d", ErrRetryRegression, s.RetryCount, p.RetryCount.Value)
	}
	if p.Generations.Set && p.Generations.Value < s.Generations {
		return nil, fmt.Errorf("%w: generations %d -> %d", ErrRetryRegression, s.Generations, p.Generations.Value)
	}
	if p.ToolRounds.Set && p.ToolRounds.Value < s.ToolRounds {
		return nil, fmt.Errorf("%w: tool_rounds %d -> %d", ErrRetryRegression, s.ToolRounds, p.ToolRounds.Value)
	}
	if p.Route.Set && !p.Route.Value.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRoute, uint8(p.Route.Value))
	}

	next := s.Clone()
	if len(p.History) > 0 {
		next.History = append(next.History, cloneMessages(p.History)...)
	}
	if p.RetrievedContext.Set {
		next.RetrievedContext = p.RetrievedContext.Value
	}
	if p.Candidate.Set {
		next.Candidate = p.Candidate.Value.Clone()
	}
	if p.ValidationErrors.Set {
		next.ValidationErrors = append([]string(nil), p.ValidationErrors.Value...)
	}
	if p.RetryCount.Set {
		next.RetryCount = p.RetryCount.Value
	}
	if p.Route.Set {
		next.Route = p.Route.Value
	}
	if p.PendingToolCalls.Set {
		next.PendingToolCalls = cloneToolCalls(p.PendingToolCalls.Value)
	}
	if p.FinalResult.Set {
		next.FinalResult = p.FinalResult.Value.Clone()
	}
	if p.ClarificationOptions.Set {
		next.ClarificationOptions = append([]ClarificationOption(nil), p.ClarificationOptions.Value...)
	}
	if p.Generations.Set {
		next.Generations = p.Generations.Value
	}
	if p.ToolRounds.Set {
		next.ToolRounds = p.ToolRounds.Value
	}
	return next, nil
}
