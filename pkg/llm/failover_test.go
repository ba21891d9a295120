package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/llm"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	errs  map[string]error
	calls []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, model string, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	f.calls = append(f.calls, model)
	if err := f.errs[model]; err != nil {
		return nil, err
	}
	return &ports.GenerateResponse{Text: "from " + model}, nil
}

func TestFailover_DowngradesOnTransientErrors(t *testing.T) {
	p := &fakeProvider{name: "groq", errs: map[string]error{
		"big":    errors.New("timeout"),
		"medium": &llm.APIError{Status: 503, Message: "overloaded"},
	}}
	f := llm.NewFailover([]llm.Target{{Provider: p, Model: "big"}, {Provider: p, Model: "medium"}, {Provider: p, Model: "small"}})

	resp, err := f.Generate(context.Background(), ports.GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from small", resp.Text)
	assert.Equal(t, "small", resp.Model)
	assert.Equal(t, []string{"big", "medium", "small"}, p.calls)
}

func TestFailover_SchemaMismatchAborts(t *testing.T) {
	p := &fakeProvider{name: "groq", errs: map[string]error{
		"big": errors.New("1 validation error for ComplianceAnalysis"),
	}}
	f := llm.NewFailover([]llm.Target{{Provider: p, Model: "big"}, {Provider: p, Model: "small"}})

	_, err := f.Generate(context.Background(), ports.GenerateRequest{})
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
	assert.Equal(t, []string{"big"}, p.calls, "no further models are tried")
}

func TestFailover_Exhausted(t *testing.T) {
	boom := errors.New("down")
	p := &fakeProvider{name: "groq", errs: map[string]error{"a": boom, "b": boom}}
	f := llm.NewFailover([]llm.Target{{Provider: p, Model: "a"}, {Provider: p, Model: "b"}})

	_, err := f.Generate(context.Background(), ports.GenerateRequest{})
	assert.ErrorIs(t, err, domain.ErrProviderOutage)
	assert.Contains(t, err.Error(), "[OUTAGE] All 2 models exhausted")
}

func TestFailover_Cancelled(t *testing.T) {
	p := &fakeProvider{name: "groq"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := llm.NewFailover([]llm.Target{{Provider: p, Model: "a"}}).Generate(ctx, ports.GenerateRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.calls)
}
