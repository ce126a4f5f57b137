// Package tests provides reusable contract suites for port implementations.
package tests

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/ports"
)

// Template returns a small valid template for contract runs.
func Template() *domain.Template {
	one, sixty := 1, 60
	s0, s1 := 0, 1
	return &domain.Template{
		ID:          "tmpl-" + uuid.NewString(),
		Name:        "Contract Template",
		Description: "Used by the repository contract suite",
		Version:     "1.0.0",
		IsActive:    true,
		Category:    domain.CategoryGeneral,
		Complexity:  domain.ComplexitySimple,
		Tags:        []string{"contract"},
		Pattern:     domain.Pattern{Express: domain.PhaseConfig{Enabled: true, Timeout: &sixty}},
		Roles: []domain.Role{
			{Name: "requester", MinParticipants: 1, MaxParticipants: &one, Capabilities: []domain.Capability{domain.CapApprove}},
			{Name: "provider", MinParticipants: 0},
		},
		Slots: []domain.Slot{
			{Name: "mood", Type: domain.SlotText, Required: true, Editable: []string{"requester"}},
			{Name: "secret", Type: domain.SlotText, Visibility: []string{"provider"}},
		},
		States: []domain.State{
			{Name: "intake", Kind: domain.KindCollect, Sequence: &s0, RequiredSlots: []string{"mood"}, AllowedRoles: []string{},
				Transitions: domain.Transitions{domain.ConditionAlways: {"review"}}},
			{Name: "review", Kind: domain.KindSignoff, Sequence: &s1, RequiredSlots: []string{}, AllowedRoles: []string{"provider"},
				Transitions: domain.Transitions{domain.ConditionApproved: {"intake", "review"}}},
		},
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// RepositoryContract verifies that a Repository implementation adheres to
// the interface contract.
func RepositoryContract(t *testing.T, repo ports.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("Template Save and Load", func(t *testing.T) {
		tmpl := Template()
		require.NoError(t, repo.SaveTemplate(ctx, tmpl))

		loaded, err := repo.LoadTemplate(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, tmpl.Name, loaded.Name)
		assert.Equal(t, tmpl.Version, loaded.Version)
		require.Len(t, loaded.States, 2)
		assert.Equal(t, domain.Targets{"review"}, loaded.States[0].Transitions[domain.ConditionAlways])
		assert.Equal(t, domain.Targets{"intake", "review"}, loaded.States[1].Transitions[domain.ConditionApproved])
		require.NotNil(t, loaded.Roles[0].MaxParticipants)
		assert.Equal(t, 1, *loaded.Roles[0].MaxParticipants)
		assert.Equal(t, []string{"provider"}, loaded.Slots[1].Visibility)
		require.NotNil(t, loaded.Pattern.Express.Timeout)
		assert.Equal(t, 60, *loaded.Pattern.Express.Timeout)
	})

	t.Run("Template Not Found", func(t *testing.T) {
		_, err := repo.LoadTemplate(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
	})

	t.Run("Run Save Load and List", func(t *testing.T) {
		run := &domain.Run{
			ID:             "run-" + uuid.NewString(),
			TemplateID:     "tmpl",
			CurrentStateID: "intake",
			Status:         domain.RunInProgress,
			Participants:   []domain.Participant{{ID: "p1", Role: "requester", Token: "tok"}},
			CreatedAt:      now(),
		}
		require.NoError(t, repo.SaveRun(ctx, run))

		loaded, err := repo.LoadRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.CurrentStateID, loaded.CurrentStateID)
		assert.Equal(t, run.Participants, loaded.Participants)
		assert.True(t, run.CreatedAt.Equal(loaded.CreatedAt))

		done := now()
		run.Status = domain.RunCompleted
		run.CompletedAt = &done
		require.NoError(t, repo.SaveRun(ctx, run))
		loaded, err = repo.LoadRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunCompleted, loaded.Status)
		require.NotNil(t, loaded.CompletedAt)
		assert.True(t, done.Equal(*loaded.CompletedAt))

		ids, err := repo.ListRuns(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, run.ID)

		_, err = repo.LoadRun(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Run State Lifecycle", func(t *testing.T) {
		runID := "run-" + uuid.NewString()
		first := &domain.RunState{ID: uuid.NewString(), RunID: runID, StateID: "intake", SlotData: map[string]any{}, EnteredAt: now()}
		require.NoError(t, repo.AppendRunState(ctx, first))

		second := &domain.RunState{ID: uuid.NewString(), RunID: runID, StateID: "review", EnteredAt: now().Add(time.Second)}
		err := repo.AppendRunState(ctx, second)
		assert.ErrorIs(t, err, domain.ErrStaleRun, "only one open visit per run")

		exited := now().Add(time.Second)
		require.NoError(t, repo.CloseRunState(ctx, first.ID, exited))
		assert.ErrorIs(t, repo.CloseRunState(ctx, first.ID, exited), domain.ErrStaleRun)

		require.NoError(t, repo.AppendRunState(ctx, second))

		loaded, err := repo.LoadRunState(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded.ExitedAt)
		assert.True(t, exited.Equal(*loaded.ExitedAt))
		assert.False(t, loaded.Open())

		visits, err := repo.ListRunStates(ctx, runID)
		require.NoError(t, err)
		require.Len(t, visits, 2)
		assert.Equal(t, first.ID, visits[0].ID)
		assert.Equal(t, second.ID, visits[1].ID)
		assert.True(t, visits[1].Open())

		_, err = repo.LoadRunState(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrRunStateNotFound)
		assert.ErrorIs(t, repo.CloseRunState(ctx, "missing-"+uuid.NewString(), exited), domain.ErrRunStateNotFound)
	})

	t.Run("PutSlot Field Level", func(t *testing.T) {
		rs := &domain.RunState{ID: uuid.NewString(), RunID: "run-" + uuid.NewString(), StateID: "intake", EnteredAt: now()}
		require.NoError(t, repo.AppendRunState(ctx, rs))

		const writers = 20
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, repo.PutSlot(ctx, rs.ID, fmt.Sprintf("slot%d", i), i))
			}(i)
		}
		wg.Wait()
		require.NoError(t, repo.PutSlot(ctx, rs.ID, "slot0", "overwritten"))

		loaded, err := repo.LoadRunState(ctx, rs.ID)
		require.NoError(t, err)
		assert.Len(t, loaded.SlotData, writers, "no write may be lost")
		assert.Equal(t, "overwritten", loaded.SlotData["slot0"])
		assert.EqualValues(t, 7, loaded.SlotData["slot7"])

		require.NoError(t, repo.CloseRunState(ctx, rs.ID, now()))
		assert.ErrorIs(t, repo.PutSlot(ctx, rs.ID, "late", true), domain.ErrStaleRun)
		assert.ErrorIs(t, repo.PutSlot(ctx, "missing-"+uuid.NewString(), "x", 1), domain.ErrRunStateNotFound)
	})
}
