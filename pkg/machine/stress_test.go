package machine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/adapters/memory"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/dsl"
	"github.com/aretw0/choreo/pkg/machine"
)

// Ticks and approvals race for the same transition. Exactly one may win and
// the run must never hold two open visits.
func TestStress_SingleTransitionWins(t *testing.T) {
	for round := 0; round < 20; round++ {
		m, c := newMachine(t, memory.NewStore())
		ctx := context.Background()
		run := toQuote(t, m)
		c.Advance(2 * time.Hour)

		var (
			wg          sync.WaitGroup
			transitions int32
		)
		record := func(out *machine.Outcome, err error) {
			if err != nil {
				assert.True(t, errors.Is(err, domain.ErrStaleRun), "unexpected error: %v", err)
				return
			}
			if out.Transitioned {
				atomic.AddInt32(&transitions, 1)
			}
		}
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				record(m.Tick(ctx, run.ID, c.Now()))
			}()
			go func() {
				defer wg.Done()
				record(m.Submit(ctx, machine.Submission{
					RunID: run.ID, Role: "requester", Event: domain.ConditionApproved, ExpectState: "quote",
				}))
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, atomic.LoadInt32(&transitions), "round %d", round)

		visits, err := m.History(ctx, run.ID)
		require.NoError(t, err)
		open := 0
		for _, v := range visits {
			if v.Open() {
				open++
			}
		}
		assert.LessOrEqual(t, open, 1)
		assert.Len(t, visits, 3)
	}
}

// Participants write different slots of the same open visit at once.
func TestStress_ConcurrentSlotWrites(t *testing.T) {
	b := dsl.New("Potluck Dinner")
	b.Role("guest").Max(40)
	names := make([]string, 40)
	for i := range names {
		names[i] = fmt.Sprintf("dish%d", i)
		b.Slot(names[i], domain.SlotText)
	}
	b.State("collect", domain.KindCollect).Require(names...).Go("feast")
	b.State("feast", domain.KindSignoff)
	tmpl := b.MustBuild()

	participants := make([]domain.Participant, 40)
	for i := range participants {
		participants[i] = domain.Participant{Role: "guest"}
	}

	m, _ := newMachine(t, memory.NewStore())
	ctx := context.Background()
	run, err := m.Start(ctx, tmpl, participants)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var transitions int32
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			out, err := m.SubmitSlot(ctx, run.ID, name, "soup", "guest")
			if assert.NoError(t, err) && out.Transitioned {
				atomic.AddInt32(&transitions, 1)
			}
		}(name)
	}
	wg.Wait()

	assert.EqualValues(t, 1, transitions, "only the last write completes the state")
	got, err := m.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "feast", got.CurrentStateID)

	visits, err := m.History(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, visits[0].SlotData, 40)
}

// Different runs never wait on each other.
func TestStress_IndependentRuns(t *testing.T) {
	m, _ := newMachine(t, memory.NewStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := m.Start(ctx, homeRepair(), people())
			if !assert.NoError(t, err) {
				return
			}
			out, err := m.SubmitSlot(ctx, run.ID, "address", "1 Main St", "requester")
			if assert.NoError(t, err) {
				assert.Equal(t, "quote", out.To)
			}
		}()
	}
	wg.Wait()

	ids, err := m.Repository().ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 25)
}
