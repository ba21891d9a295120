package pipeline

import (
	"context"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

const chatPersona = "You are the 'Agentic Compliance Analyst', an advanced AI specialized in global regulations. " +
	"You have deep knowledge of GDPR (EU), CCPA (California) and FDA (US) rules. " +
	"Introduce yourself formally and list your capabilities (searching laws, analyzing risk, drafting reports). " +
	"Do not answer specific compliance questions here; just introduce yourself."

// maxPriorMessages caps the earlier-turn messages replayed into a prompt.
const maxPriorMessages = 6

// chat answers small talk with one unstructured call.
func (p *Pipeline) chat(ctx context.Context, s *domain.State) (domain.Partial, error) {
	messages := []domain.Message{domain.SystemMessage(chatPersona)}
	messages = append(messages, priorConversation(s)...)
	messages = append(messages, domain.UserMessage(s.Query))

	resp, err := p.generator.Generate(ctx, ports.GenerateRequest{Messages: messages, Temperature: 0.7})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Partial{}, err
		}
		p.log(s).Warn("chat generation failed", "error", err)
		return finish(s, generationFailure(err)), nil
	}

	return finish(s, &domain.FinalResult{
		Kind:    domain.KindChat,
		Message: strings.TrimSpace(resp.Text),
	}), nil
}

// priorConversation returns the user and assistant turns recorded before this turn.
func priorConversation(s *domain.State) []domain.Message {
	var out []domain.Message
	for _, m := range s.PriorHistory() {
		if (m.Role == domain.RoleUser || m.Role == domain.RoleAssistant) && len(m.ToolCalls) == 0 && m.Content != "" {
			out = append(out, m)
		}
	}
	if len(out) > maxPriorMessages {
		out = out[len(out)-maxPriorMessages:]
	}
	return out
}
