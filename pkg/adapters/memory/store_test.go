package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbiter/pkg/adapters/memory"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunCheckpointStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	state := domain.NewTurn("t1", "q", domain.RegimeGDPR, []string{"a"}, nil)
	require.NoError(t, store.Save(ctx, "t1", state))

	state.UserSelections[0] = "mutated"
	loaded, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, loaded.UserSelections)

	loaded.Query = "changed"
	again, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "q", again.Query)
}
