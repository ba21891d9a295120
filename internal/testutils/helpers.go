// Package testutils provides scripted collaborators for pipeline and facade tests.
package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/stretchr/testify/require"
)

// Reply is one scripted generator answer.
type Reply struct {
	Text      string
	ToolCalls []domain.ToolCall
	Err       error
}

// Generator answers from per-schema queues and records every request.
// An empty queue answers with an outage error.
type Generator struct {
	mu       sync.Mutex
	queues   map[ports.Schema][]Reply
	requests []ports.GenerateRequest
}

var _ ports.Generator = (*Generator)(nil)

// NewGenerator creates an empty script.
func NewGenerator() *Generator {
	return &Generator{queues: make(map[ports.Schema][]Reply)}
}

// On appends replies for requests of the given schema.
func (g *Generator) On(schema ports.Schema, replies ...Reply) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queues[schema] = append(g.queues[schema], replies...)
	return g
}

// Generate pops the next reply for req.Schema.
func (g *Generator) Generate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)

	q := g.queues[req.Schema]
	if len(q) == 0 {
		return nil, fmt.Errorf("%w: no scripted reply for schema %q", domain.ErrProviderOutage, req.Schema)
	}
	r := q[0]
	g.queues[req.Schema] = q[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return &ports.GenerateResponse{Text: r.Text, ToolCalls: r.ToolCalls, Model: "scripted"}, nil
}

// Requests returns the recorded requests.
func (g *Generator) Requests() []ports.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ports.GenerateRequest(nil), g.requests...)
}

// Calls counts recorded requests of the given schema.
func (g *Generator) Calls(schema ports.Schema) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if r.Schema == schema {
			n++
		}
	}
	return n
}

// Retriever serves fixed passages and article texts.
type Retriever struct {
	Passages []ports.Passage
	Articles map[string]string
	Err      error

	mu       sync.Mutex
	searches []string
}

var _ ports.Retriever = (*Retriever)(nil)

func (r *Retriever) Search(ctx context.Context, query string, k int) ([]ports.Passage, error) {
	r.mu.Lock()
	r.searches = append(r.searches, query)
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if k > 0 && len(r.Passages) > k {
		return r.Passages[:k], nil
	}
	return r.Passages, nil
}

func (r *Retriever) Expand(ctx context.Context, id string) (string, error) {
	text, ok := r.Articles[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrPassageNotFound, id)
	}
	return text, nil
}

// Searches returns the queries seen so far.
func (r *Retriever) Searches() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.searches...)
}

// GDPRRetriever returns a retriever over a few GDPR articles.
func GDPRRetriever() *Retriever {
	return &Retriever{
		Passages: []ports.Passage{
			{ID: "17", Title: "Right to erasure", Score: 3},
			{ID: "6", Title: "Lawfulness of processing", Score: 2},
		},
		Articles: map[string]string{
			"6":  "Article 6: Lawfulness of processing",
			"17": "Article 17: Right to erasure ('right to be forgotten')",
			"33": "Article 33: Notification of a personal data breach to the supervisory authority",
			"83": "Article 83: General conditions for imposing administrative fines",
		},
	}
}

// AnalysisJSON encodes an analysis the way a model would return it.
func AnalysisJSON(t testing.TB, a domain.Analysis) string {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	return string(data)
}

// Clarification encodes a clarification sub-call answer.
func Clarification(t testing.TB, needs bool, options ...string) string {
	t.Helper()
	opts := make([]domain.ClarificationOption, len(options))
	for i, o := range options {
		opts[i] = domain.ClarificationOption{Text: o}
	}
	data, err := json.Marshal(domain.Clarification{NeedsClarification: needs, Summary: "It depends.", Options: opts})
	require.NoError(t, err)
	return string(data)
}

var _ ports.RuleChecker = (*RuleScript)(nil)

// RuleScript is a RuleChecker that fails the first n checks with the given violation.
type RuleScript struct {
	mu        sync.Mutex
	Failures  int
	Violation string
	checks    int
}

func (r *RuleScript) Check(a *domain.Analysis, query string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks++
	if r.checks <= r.Failures {
		return []string{strings.TrimSpace(r.Violation)}
	}
	return nil
}

// Checks counts invocations.
func (r *RuleScript) Checks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checks
}
