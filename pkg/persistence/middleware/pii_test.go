package middleware_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/arbiter/pkg/adapters/memory"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	patterns := middleware.DefaultPatterns()
	tests := []struct {
		in   string
		want string
	}{
		{"mail jane@example.com now", "mail [REDACTED_EMAIL_0] now"},
		{"SSN 123-45-6789", "SSN [REDACTED_SSN_0]"},
		{"card 4111 1111 1111 1111", "card [REDACTED_CREDIT_CARD_0]"},
		{"from 10.0.0.12", "from [REDACTED_IP_ADDRESS_0]"},
		{"born 04/12/1987", "born [REDACTED_DOB_0]"},
		{"call 555-123-4567 or 555-987-6543", "call [REDACTED_PHONE_0] or [REDACTED_PHONE_1]"},
		{"Dr. Smith asked", "[REDACTED_NAME_WITH_TITLE_0] asked"},
		{"Can we keep tax records?", "Can we keep tax records?"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, middleware.Redact(tt.in, patterns))
		})
	}
}

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	store := middleware.NewPIIMiddleware()(underlying)
	ctx := context.Background()

	state := domain.NewTurn("t1", "jane@example.com wants erasure", domain.RegimeGDPR, []string{"contact 555-123-4567"}, nil)
	state.History = append(state.History, domain.UserMessage(state.Query))

	require.NoError(t, store.Save(ctx, "t1", state))

	assert.Equal(t, "jane@example.com wants erasure", state.Query, "in-memory state must not change")
	assert.Equal(t, "jane@example.com wants erasure", state.History[0].Content)

	stored, err := underlying.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED_EMAIL_0] wants erasure", stored.Query)
	assert.Equal(t, "[REDACTED_EMAIL_0] wants erasure", stored.History[0].Content)
	assert.Equal(t, []string{"contact [REDACTED_PHONE_0]"}, stored.UserSelections)
}

func TestPIIMiddleware_RedactsEveryTextField(t *testing.T) {
	underlying := memory.NewStore()
	store := middleware.NewPIIMiddleware()(underlying)
	ctx := context.Background()

	const email = "jane@example.com"
	analysis := &domain.Analysis{
		Summary:              "Notify " + email + " within 72 hours.",
		LegalBasis:           "GDPR Article 33",
		ScopeLimitation:      "Only records of " + email,
		RiskAnalysis:         "Exposure of " + email,
		RiskTier:             domain.RiskHigh,
		References:           []string{"Art 33 for " + email},
		MissingPreconditions: []string{"Did " + email + " consent?"},
		ReasoningMap: []domain.ReasoningEntry{
			{Fact: "Lost records of " + email, LegalMeaning: "breach", Subsection: "33(1)", Justification: email + " is identifiable"},
		},
	}
	state := domain.NewTurn("t1", "We lost records of "+email, domain.RegimeGDPR, []string{"Ask " + email}, nil)
	state.History = append(state.History,
		domain.UserMessage(state.Query),
		domain.Message{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
			{ID: "c1", Name: "lookup", Args: map[string]any{"who": email, "tags": []any{email, 3.0}}},
		}},
	)
	state.RetrievedContext = "USER CLARIFICATIONS:\n- Ask " + email
	state.Candidate = analysis
	state.ValidationErrors = []string{"Summary mentions " + email}
	state.PendingToolCalls = []domain.ToolCall{{ID: "c2", Name: "lookup", Args: map[string]any{"who": email}}}
	state.ClarificationOptions = []domain.ClarificationOption{{ID: "1", Text: "Is " + email + " an employee?"}}
	state.FinalResult = &domain.FinalResult{
		Kind:     domain.KindReviewRequired,
		Message:  "Hold for " + email,
		Summary:  "About " + email,
		Analysis: analysis.Clone(),
		Decision: &domain.Decision{Action: domain.ActionHold, Reason: "Critical for " + email},
		Options:  []domain.ClarificationOption{{ID: "1", Text: "Is " + email + " an employee?"}},
		Errors:   []string{"Error about " + email},
	}

	require.NoError(t, store.Save(ctx, "t1", state))

	stored, err := underlying.Load(ctx, "t1")
	require.NoError(t, err)
	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), email)
	assert.True(t, stored.Redacted)
	assert.Equal(t, 3.0, stored.History[1].ToolCalls[0].Args["tags"].([]any)[1])
	assert.Equal(t, "[REDACTED_EMAIL_0]", stored.PendingToolCalls[0].Args["who"])

	original, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(original), email, "in-memory state must not change")
	assert.False(t, state.Redacted)
}

func TestCompilePatterns(t *testing.T) {
	patterns, err := middleware.CompilePatterns(map[string]string{"employee_id": `EMP-\d{5}`})
	require.NoError(t, err)
	assert.Equal(t, "id [REDACTED_EMPLOYEE_ID_0]", middleware.Redact("id EMP-12345", patterns))

	_, err = middleware.CompilePatterns(map[string]string{"bad": `(`})
	assert.Error(t, err)
}

func TestChain_RedactsBeforeSealing(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: make([]byte, 32)})
	require.NoError(t, err)
	store := middleware.Chain(underlying, middleware.NewPIIMiddleware(), mw)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "t1", domain.NewTurn("t1", "SSN 123-45-6789", domain.RegimeGDPR, nil, nil)))
	loaded, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "SSN [REDACTED_SSN_0]", loaded.Query)
}
