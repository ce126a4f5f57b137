package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/adapters/sqlite"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/ports/tests"
)

func openStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "choreo.db")
	store, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestSQLiteStore_Contract(t *testing.T) {
	store, _ := openStore(t)
	tests.RepositoryContract(t, store)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "choreo.db")
	ctx := context.Background()

	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	rs := &domain.RunState{ID: "s1", RunID: "r1", StateID: "intake", EnteredAt: time.Now()}
	require.NoError(t, store.AppendRunState(ctx, rs))
	require.NoError(t, store.PutSlot(ctx, "s1", "mood", map[string]any{"level": 3}))
	require.NoError(t, store.Close())

	// Migrations are idempotent on reopen.
	store, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.LoadRunState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"level": float64(3)}, loaded.SlotData["mood"])
	assert.True(t, loaded.Open())

	err = store.AppendRunState(ctx, &domain.RunState{ID: "s2", RunID: "r1", StateID: "review", EnteredAt: time.Now()})
	assert.ErrorIs(t, err, domain.ErrStaleRun)
}
