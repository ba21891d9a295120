package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/arbiter/pkg/adapters/sqlite"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, open(t))
}

func TestSQLiteStore_ListMostRecentFirst(t *testing.T) {
	store := open(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "old", domain.NewTurn("old", "q", domain.RegimeGDPR, nil, nil)))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Save(ctx, "new", domain.NewTurn("new", "q", domain.RegimeGDPR, nil, nil)))

	threads, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, threads)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	ctx := context.Background()

	store, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "t1", domain.NewTurn("t1", "persisted", domain.RegimeFDA, nil, nil)))
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	state, err := reopened.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "persisted", state.Query)
	assert.Equal(t, domain.RegimeFDA, state.Domain)
}
