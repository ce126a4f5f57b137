package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/normalizer"
	"github.com/aretw0/choreo/pkg/ports"
	"github.com/aretw0/choreo/pkg/validator"
)

func TestPrintRun(t *testing.T) {
	entered := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exited := entered.Add(time.Hour)
	run := &domain.Run{
		ID:             "run-1",
		TemplateID:     "tmpl-1",
		CurrentStateID: "quote",
		Status:         domain.RunInProgress,
		Participants:   []domain.Participant{{ID: "alice", Role: "requester", Name: "Alice", Token: "secret-token"}},
		CreatedAt:      entered,
	}
	visits := []*domain.RunState{
		{ID: "v1", RunID: "run-1", StateID: "intake", SlotData: map[string]any{"address": "Elm St", "budget": 40}, EnteredAt: entered, ExitedAt: &exited},
		{ID: "v2", RunID: "run-1", StateID: "quote", SlotData: map[string]any{}, EnteredAt: exited},
	}

	var out bytes.Buffer
	PrintRun(&out, run, visits)
	s := out.String()
	for _, want := range []string{"run-1", "tmpl-1", "in_progress", "alice", "requester", "intake", "open", "address=Elm St", "budget=40"} {
		assert.Contains(t, s, want)
	}
	assert.NotContains(t, s, "secret-token")
}

func TestPrintProblems(t *testing.T) {
	err := validator.Validate(&domain.Template{Name: "x"})
	require.Error(t, err)

	var out bytes.Buffer
	assert.True(t, PrintProblems(&out, err))
	assert.Contains(t, out.String(), "problem(s)")
	assert.Contains(t, out.String(), "name")

	out.Reset()
	assert.False(t, PrintProblems(&out, errors.New("disk full")))
	assert.Empty(t, out.String())
}

func TestPrintRecommendations(t *testing.T) {
	var out bytes.Buffer
	PrintRecommendations(&out, nil, nil)
	assert.Empty(t, out.String())

	PrintRecommendations(&out, []normalizer.Recommendation{{Field: "roles", Message: "added default roles"}}, []string{"orphan"})
	assert.Contains(t, out.String(), "added default roles")
	assert.Contains(t, out.String(), `"orphan" is unreachable`)
}

func TestTextComposer(t *testing.T) {
	msg, err := TextComposer{}.Compose(context.Background(), "run-1", ports.RoleContext{
		TemplateName: "Home Repair",
		Participant:  domain.Participant{ID: "bob", Role: "provider"},
		State:        "quote",
		Kind:         domain.KindNegotiate,
		Slots:        map[string]any{"address": "Elm St", "budget": 40},
		Missing:      []string{"quote"},
	})
	require.NoError(t, err)
	assert.Equal(t, `bob, "Home Repair" is now at quote (negotiate). Waiting for: quote. Known: address, budget.`, msg)
}
