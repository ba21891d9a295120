package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/arbiter/pkg/adapters/file"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, file.NewStore(t.TempDir()))
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.NewStore(dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, "t1", domain.NewTurn("t1", "q", domain.RegimeGDPR, nil, nil)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t1.json", entries[0].Name())
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store := file.NewStore(t.TempDir())
	err := store.Save(context.Background(), "../escape", domain.NewTurn("x", "q", domain.RegimeGDPR, nil, nil))
	assert.ErrorIs(t, err, file.ErrInvalidThreadID)
}

func TestFileStore_CorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"unknown_key": 1}`), 0o644))

	_, err := file.NewStore(dir).Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestFileStore_ListMissingDir(t *testing.T) {
	threads, err := file.NewStore(filepath.Join(t.TempDir(), "absent")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, threads)
}
