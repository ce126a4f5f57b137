package machine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/adapters/memory"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/machine"
)

func TestSweeper_Sweep(t *testing.T) {
	m, c := newMachine(t, memory.NewStore())
	ctx := context.Background()

	waiting := toQuote(t, m)
	idle, err := m.Start(ctx, homeRepair(), people())
	require.NoError(t, err)
	done := toQuote(t, m)
	_, err = m.Fail(ctx, done.ID, "gone")
	require.NoError(t, err)

	sweeper := machine.NewSweeper(m)

	res, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, machine.SweepResult{Checked: 2}, res)

	c.Advance(time.Hour)
	res, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, machine.SweepResult{Checked: 2, Transitioned: 1}, res)

	got, err := m.Run(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, got.Status)

	got, err = m.Run(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, "intake", got.CurrentStateID, "intake has no timeout")
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	m, c := newMachine(t, memory.NewStore())
	run := toQuote(t, m)
	c.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- machine.NewSweeper(m, machine.WithInterval(10*time.Millisecond)).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		got, err := m.Run(context.Background(), run.ID)
		return err == nil && got.Status == domain.RunCompleted
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
