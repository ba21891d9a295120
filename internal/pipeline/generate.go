package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/google/uuid"
)

// generate produces the structured candidate, or tool calls the model wants answered first.
func (p *Pipeline) generate(ctx context.Context, s *domain.State) (domain.Partial, error) {
	logger := p.log(s)
	budget := p.limits.GenerationBudget()
	if s.Generations >= budget {
		logger.Warn("generation budget exhausted", "generations", s.Generations, "budget", budget)
		return finish(s, &domain.FinalResult{
			Kind:    domain.KindError,
			Code:    domain.CodeGenerationBudget,
			Message: fmt.Sprintf("Generation budget of %d attempts exhausted.", budget),
			Errors:  s.ValidationErrors,
		}), nil
	}

	req := ports.GenerateRequest{
		Messages: p.analysisPrompt(s),
		Schema:   ports.SchemaAnalysis,
	}
	if p.tools != nil && s.ToolRounds < p.limits.MaxToolRounds {
		req.Tools = p.tools.Tools()
	}

	generations := domain.Set(s.Generations + 1)
	resp, err := p.generator.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Partial{}, err
		}
		logger.Warn("analysis generation failed", "error", err)
		out := finish(s, generationFailure(err))
		out.Generations = generations
		return out, nil
	}

	if len(resp.ToolCalls) > 0 {
		calls := make([]domain.ToolCall, len(resp.ToolCalls))
		for i, c := range resp.ToolCalls {
			if c.ID == "" {
				c.ID = "call_" + uuid.NewString()
			}
			calls[i] = c
		}
		logger.Debug("model requested tools", "count", len(calls), "model", resp.Model)
		return domain.Partial{
			Generations:      generations,
			PendingToolCalls: domain.Set(calls),
			History:          []domain.Message{{Role: domain.RoleAssistant, Content: resp.Text, ToolCalls: calls}},
		}, nil
	}

	candidate, err := domain.DecodeAnalysis([]byte(resp.Text))
	if err != nil {
		logger.Warn("analysis output rejected", "error", err, "model", resp.Model)
		out := finish(s, &domain.FinalResult{
			Kind:    domain.KindError,
			Code:    domain.CodeSchemaMismatch,
			Message: fmt.Sprintf("Schema Validation Error: %v", err),
		})
		out.Generations = generations
		return out, nil
	}

	return domain.Partial{
		Generations:      generations,
		Candidate:        domain.Set(candidate),
		ValidationErrors: domain.Set[[]string](nil),
		PendingToolCalls: domain.Set[[]domain.ToolCall](nil),
	}, nil
}

// analysisPrompt assembles system prompt, earlier turns, context and query, the
// tool exchange of this turn, and on retries the correction instruction.
func (p *Pipeline) analysisPrompt(s *domain.State) []domain.Message {
	system := p.profile(s.Domain).SystemPrompt
	if isDefinitionQuery(s.Query) {
		system += definitionGuidance
	}

	messages := []domain.Message{domain.SystemMessage(system)}
	messages = append(messages, priorConversation(s)...)
	messages = append(messages, domain.UserMessage(
		fmt.Sprintf("CONTEXT (Source: %s Knowledge):\n%s\n\nQUERY: %s", s.Domain, s.RetrievedContext, s.Query),
	))

	for _, m := range s.TurnHistory() {
		if m.Role == domain.RoleTool || (m.Role == domain.RoleAssistant && len(m.ToolCalls) > 0) {
			messages = append(messages, m)
		}
	}

	if s.RetryCount > 0 && len(s.ValidationErrors) > 0 {
		if s.Candidate != nil {
			if prev, err := json.Marshal(s.Candidate); err == nil {
				messages = append(messages, domain.AssistantMessage(string(prev)))
			}
		}
		messages = append(messages, domain.UserMessage(
			"CRITICAL LOGIC ERROR: Your previous answer failed validation rules.\n"+
				"Errors:\n"+strings.Join(s.ValidationErrors, "\n")+"\n\n"+
				"FIX IMMEDIATELY. Cite the missing articles. Correct the scope.",
		))
	}
	return messages
}

// generationFailure classifies a generator error into a terminal result.
func generationFailure(err error) *domain.FinalResult {
	if errors.Is(err, domain.ErrSchemaMismatch) {
		return &domain.FinalResult{
			Kind:    domain.KindError,
			Code:    domain.CodeSchemaMismatch,
			Message: fmt.Sprintf("Schema Validation Error: %v", err),
		}
	}
	return &domain.FinalResult{
		Kind:    domain.KindError,
		Code:    domain.CodeProviderOutage,
		Message: fmt.Sprintf("API Error: %v", err),
	}
}
