package domain

// ToolCall is a capability invocation requested by the generative stage.
// Compatible with OpenAI-style function calls.
type ToolCall struct {
	ID   string         `json:"id" mapstructure:"id"`
	Name string         `json:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" mapstructure:"args"`
}

// ToolResult is the text outcome of a dispatched ToolCall.
// Failures are reported in-band with IsError; dispatch never fails the turn.
type ToolResult struct {
	ID      string `json:"id"` // Must match the ToolCall.ID
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Tool describes a capability offered to the generative model.
type Tool struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}

func cloneToolCalls(in []ToolCall) []ToolCall {
	if in == nil {
		return nil
	}
	out := make([]ToolCall, len(in))
	for i, c := range in {
		out[i] = c
		if c.Args != nil {
			out[i].Args = make(map[string]any, len(c.Args))
			for k, v := range c.Args {
				out[i].Args[k] = v
			}
		}
	}
	return out
}
