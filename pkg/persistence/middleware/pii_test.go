package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/adapters/memory"
	"github.com/aretw0/choreo/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	store := middleware.NewPIIMiddleware([]string{"(?i)phone", "(?i)^ssn$"})(underlying)

	original := map[string]any{
		"phone_number": "555-0100",
		"contact":      map[string]any{"ssn": "000-00-0000", "name": "Ada"},
		"rating":       5,
	}
	rs := openVisit("run-pii", original)
	require.NoError(t, store.AppendRunState(ctx, rs))
	require.NoError(t, store.PutSlot(ctx, rs.ID, "mobilePhone", "555-0199"))
	require.NoError(t, store.PutSlot(ctx, rs.ID, "owner", map[string]any{"ssn": "111-11-1111"}))

	loaded, err := underlying.LoadRunState(ctx, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.SlotData["phone_number"])
	assert.Equal(t, middleware.Mask, loaded.SlotData["mobilePhone"])
	assert.Equal(t, map[string]any{"ssn": middleware.Mask, "name": "Ada"}, loaded.SlotData["contact"])
	assert.Equal(t, map[string]any{"ssn": middleware.Mask}, loaded.SlotData["owner"])
	assert.Equal(t, 5, loaded.SlotData["rating"])

	// The caller's data is untouched.
	assert.Equal(t, "555-0100", original["phone_number"])
	assert.Equal(t, "000-00-0000", original["contact"].(map[string]any)["ssn"])
}

func TestChain_Order(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	// Masking runs before encryption so the mask is what gets sealed.
	repo := middleware.Chain(underlying,
		middleware.NewPIIMiddleware([]string{"email"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}),
	)
	rs := openVisit("run-chain", nil)
	require.NoError(t, repo.AppendRunState(ctx, rs))
	require.NoError(t, repo.PutSlot(ctx, rs.ID, "email", "ada@example.com"))

	loaded, err := repo.LoadRunState(ctx, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.SlotData["email"])

	raw, err := underlying.LoadRunState(ctx, rs.ID)
	require.NoError(t, err)
	assert.NotEqual(t, middleware.Mask, raw.SlotData["email"])
}
