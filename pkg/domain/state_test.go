package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_HistoryAccumulates(t *testing.T) {
	s := domain.NewTurn("t-1", "q", domain.RegimeGDPR, nil, nil)

	s, err := domain.Merge(s, domain.Partial{History: []domain.Message{domain.UserMessage("q")}})
	require.NoError(t, err)
	s, err = domain.Merge(s, domain.Partial{History: []domain.Message{domain.AssistantMessage("a")}})
	require.NoError(t, err)

	require.Len(t, s.History, 2)
	assert.Equal(t, domain.RoleUser, s.History[0].Role)
	assert.Equal(t, domain.RoleAssistant, s.History[1].Role)
}

func TestMerge_LastWriteWins(t *testing.T) {
	s := domain.NewTurn("t-1", "q", domain.RegimeGDPR, nil, nil)

	s, err := domain.Merge(s, domain.Partial{
		RetrievedContext: domain.Set("first"),
		Route:            domain.Set(domain.RouteAnalysis),
	})
	require.NoError(t, err)
	s, err = domain.Merge(s, domain.Partial{RetrievedContext: domain.Set("second")})
	require.NoError(t, err)

	assert.Equal(t, "second", s.RetrievedContext)
	assert.Equal(t, domain.RouteAnalysis, s.Route, "untouched fields survive")
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	s := domain.NewTurn("t-1", "q", domain.RegimeGDPR, nil, nil)
	_, err := domain.Merge(s, domain.Partial{
		ValidationErrors: domain.Set([]string{"boom"}),
		History:          []domain.Message{domain.UserMessage("q")},
	})
	require.NoError(t, err)

	assert.Empty(t, s.ValidationErrors)
	assert.Empty(t, s.History)
}

func TestMerge_RetryCountIsMonotonic(t *testing.T) {
	s := domain.NewTurn("t-1", "q", domain.RegimeGDPR, nil, nil)
	s, err := domain.Merge(s, domain.Partial{RetryCount: domain.Set(2)})
	require.NoError(t, err)

	_, err = domain.Merge(s, domain.Partial{RetryCount: domain.Set(0)})
	assert.ErrorIs(t, err, domain.ErrRetryRegression)
}

func TestMerge_FinalizedStateIsFrozen(t *testing.T) {
	s := domain.NewTurn("t-1", "q", domain.RegimeGDPR, nil, nil)
	s, err := domain.Merge(s, domain.Partial{FinalResult: domain.Set(domain.ErrorResult(domain.CodeNoResult, "x"))})
	require.NoError(t, err)
	require.True(t, s.Done())

	_, err = domain.Merge(s, domain.Partial{Route: domain.Set(domain.RouteClear)})
	assert.ErrorIs(t, err, domain.ErrFinalized)

	same, err := domain.Merge(s, domain.Partial{})
	require.NoError(t, err)
	assert.True(t, same.Done())
}

func TestNewTurn_RehydratesHistory(t *testing.T) {
	prior := domain.NewTurn("t-1", "first", domain.RegimeGDPR, nil, nil)
	prior.History = append(prior.History, domain.UserMessage("first"), domain.AssistantMessage("answer"))

	next := domain.NewTurn("t-1", "second", domain.RegimeCCPA, []string{"encrypted"}, prior)

	assert.Equal(t, 1, next.Turn)
	assert.Equal(t, 2, next.TurnStart)
	assert.Len(t, next.PriorHistory(), 2)
	assert.Empty(t, next.TurnHistory())
	assert.Equal(t, []string{"encrypted"}, next.UserSelections)
	assert.Nil(t, next.FinalResult)
	assert.Zero(t, next.RetryCount)
}

func TestDecodeState_RejectsUnknownKeys(t *testing.T) {
	_, err := domain.DecodeState([]byte(`{"thread_id":"t","input_query":"q","mystery":1}`))
	assert.Error(t, err)

	s := domain.NewTurn("t", "q", domain.RegimeFDA, nil, nil)
	s.Route = domain.RouteDepends
	data, err := json.Marshal(s)
	require.NoError(t, err)

	back, err := domain.DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteDepends, back.Route)
	assert.Equal(t, domain.RegimeFDA, back.Domain)
}

func TestRoute_TextRoundTripRejectsUnknown(t *testing.T) {
	var r domain.Route
	assert.NoError(t, r.UnmarshalText([]byte("blocked")))
	assert.Equal(t, domain.RouteBlocked, r)
	assert.ErrorIs(t, r.UnmarshalText([]byte("sideways")), domain.ErrInvalidRoute)
}
