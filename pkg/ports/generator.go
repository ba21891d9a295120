package ports

import (
	"context"

	"github.com/aretw0/arbiter/pkg/domain"
)

// Schema names the structured shape a generative call must return.
// The zero value asks for free text.
type Schema string

const (
	SchemaNone          Schema = ""
	SchemaAnalysis      Schema = "analysis"
	SchemaClarification Schema = "clarification"
)

// GenerateRequest is one generative call.
type GenerateRequest struct {
	Messages    []domain.Message
	Schema      Schema
	Tools       []domain.Tool
	Temperature float64
}

// GenerateResponse carries either text (possibly JSON, when a schema was requested)
// or the tool invocations the model asked for.
type GenerateResponse struct {
	Text      string
	ToolCalls []domain.ToolCall
	Model     string
}

// Generator performs the generative call.
// Implementations return an error wrapping domain.ErrSchemaMismatch for shape
// failures and domain.ErrProviderOutage once every provider is exhausted.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}
