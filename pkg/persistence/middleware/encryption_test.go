package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/adapters/memory"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/persistence/middleware"
	"github.com/aretw0/choreo/pkg/ports/tests"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func openVisit(runID string, data map[string]any) *domain.RunState {
	return &domain.RunState{
		ID:        runID + "-visit",
		RunID:     runID,
		StateID:   "intake",
		SlotData:  data,
		EnteredAt: time.Now().UTC(),
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	tests.RepositoryContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	rs := openVisit("run-1", map[string]any{"address": "221B Baker Street"})
	require.NoError(t, secure.AppendRunState(ctx, rs))
	require.NoError(t, secure.PutSlot(ctx, rs.ID, "budget", map[string]any{"amount": 120.5}))

	raw, err := underlying.LoadRunState(ctx, rs.ID)
	require.NoError(t, err)
	for name, v := range raw.SlotData {
		s, ok := v.(string)
		require.True(t, ok, "slot %s stored in clear", name)
		assert.True(t, strings.HasPrefix(s, "enc:v1:"))
		assert.NotContains(t, s, "Baker")
	}
	assert.Equal(t, "221B Baker Street", rs.SlotData["address"], "caller's visit must not be mutated")

	loaded, err := secure.LoadRunState(ctx, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, "221B Baker Street", loaded.SlotData["address"])
	assert.Equal(t, map[string]any{"amount": 120.5}, loaded.SlotData["budget"])

	visits, err := secure.ListRunStates(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "221B Baker Street", visits[0].SlotData["address"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	rs := openVisit("run-2", map[string]any{"secret": "legacy"})
	require.NoError(t, oldStore.AppendRunState(ctx, rs))

	rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)
	loaded, err := rotated.LoadRunState(ctx, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, "legacy", loaded.SlotData["secret"])

	// Without the old key the value is unreadable.
	strict := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})(underlying)
	_, err = strict.LoadRunState(ctx, rs.ID)
	assert.Error(t, err)
}

func TestEncryptionMiddleware_RejectsPlaintext(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	rs := openVisit("run-3", map[string]any{"note": "written before encryption"})
	require.NoError(t, underlying.AppendRunState(ctx, rs))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.LoadRunState(ctx, rs.ID)
	assert.ErrorContains(t, err, "encrypted envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	})
}
