package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	threadID := "contract-test-thread-" + time.Now().Format("20060102150405.000000")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewTurn(threadID, "can I refuse an erasure request?", domain.RegimeGDPR, []string{"tax records"}, nil)
		state.History = append(state.History, domain.UserMessage(state.Query))
		state.Route = domain.RouteClear
		state.RetryCount = 2
		state.Candidate = &domain.Analysis{Summary: "Partial refusal", RiskTier: domain.RiskMedium, Confidence: 0.9}

		err := store.Save(ctx, threadID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.Query, loaded.Query)
		assert.Equal(t, domain.RouteClear, loaded.Route)
		assert.Equal(t, 2, loaded.RetryCount)
		assert.Equal(t, []string{"tax records"}, loaded.UserSelections)
		require.Len(t, loaded.History, 1)
		require.NotNil(t, loaded.Candidate)
		assert.Equal(t, domain.RiskMedium, loaded.Candidate.RiskTier)
	})

	t.Run("Overwrite", func(t *testing.T) {
		state := domain.NewTurn(threadID, "first", domain.RegimeGDPR, nil, nil)
		require.NoError(t, store.Save(ctx, threadID, state))

		state.FinalResult = &domain.FinalResult{Kind: domain.KindChat, Message: "hi"}
		require.NoError(t, store.Save(ctx, threadID, state))

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		require.NotNil(t, loaded.FinalResult)
		assert.Equal(t, domain.KindChat, loaded.FinalResult.Kind)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, threadID, domain.NewTurn(threadID, "q", domain.RegimeGDPR, nil, nil))
		require.NoError(t, err)

		err = store.Delete(ctx, threadID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound, "Load after Delete should return ErrThreadNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := threadID + "-1"
		id2 := threadID + "-2"
		_ = store.Save(ctx, id1, domain.NewTurn(id1, "q", domain.RegimeGDPR, nil, nil))
		_ = store.Save(ctx, id2, domain.NewTurn(id2, "q", domain.RegimeCCPA, nil, nil))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)
	})
}
