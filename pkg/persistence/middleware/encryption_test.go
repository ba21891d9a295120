package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/arbiter/pkg/adapters/memory"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/persistence/middleware"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func sealed(t *testing.T, cfg middleware.EncryptionConfig, next ports.CheckpointStore) ports.CheckpointStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, sealed(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	store := sealed(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, underlying)
	ctx := context.Background()

	original := domain.NewTurn("t1", "my-secret-sauce", domain.RegimeGDPR, nil, nil)
	original.History = append(original.History, domain.UserMessage("my-secret-sauce"))
	require.NoError(t, store.Save(ctx, "t1", original))

	raw, err := underlying.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, raw.Query)
	assert.Empty(t, raw.History)
	assert.NotEmpty(t, raw.Sealed)
	assert.Equal(t, "t1", raw.ThreadID)

	loaded, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Query)
	assert.Empty(t, loaded.Sealed)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	require.NoError(t, sealed(t, middleware.EncryptionConfig{ActiveKey: oldKey}, underlying).
		Save(ctx, "t1", domain.NewTurn("t1", "encrypted-with-old-key", domain.RegimeGDPR, nil, nil)))

	rotated := sealed(t, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}}, underlying)
	loaded, err := rotated.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-with-old-key", loaded.Query)

	wrong := sealed(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, underlying)
	_, err = wrong.Load(ctx, "t1")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptionMiddleware_RejectsPlainCheckpoint(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "plain", domain.NewTurn("plain", "q", domain.RegimeGDPR, nil, nil)))

	_, err := sealed(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, underlying).Load(ctx, "plain")
	assert.ErrorIs(t, err, middleware.ErrNotSealed)
}

func TestNewEncryptionMiddleware_KeySize(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.Error(t, err)
}
