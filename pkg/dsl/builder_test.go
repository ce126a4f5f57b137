package dsl_test

import (
	"errors"
	"testing"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/dsl"
	"github.com/aretw0/choreo/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SimpleFlow(t *testing.T) {
	b := dsl.New("Mood Check In").Describe("Weekly mood check").Tags("wellbeing")

	b.Role("requester").Max(1)
	b.Role("provider")

	b.Slot("mood", domain.SlotText).Required().EditableBy("requester")
	b.Slot("rating", domain.SlotNumber).Rule("min", 1).Rule("max", 5)

	b.State("express", domain.KindCollect).Require("mood").Go("explore")
	b.State("explore", domain.KindNegotiate).
		On(domain.ConditionApproved, "confirm").
		Timeout(30, "confirm")
	b.State("confirm", domain.KindSignoff).Require("rating")

	tmpl, err := b.Build()
	require.NoError(t, err)

	assert.True(t, tmpl.Sealed())
	assert.NotEmpty(t, tmpl.ID)
	assert.Equal(t, "1.0", tmpl.Version)
	assert.Equal(t, "Weekly mood check", tmpl.Description)

	first, ok := tmpl.First()
	require.True(t, ok)
	assert.Equal(t, "express", first.Name)

	explore, ok := tmpl.State("explore")
	require.True(t, ok)
	assert.Equal(t, 1, *explore.Sequence)
	assert.Equal(t, domain.Targets{"confirm"}, explore.Transitions[domain.ConditionTimeout])
	minutes, ok := tmpl.Timeout(explore)
	assert.True(t, ok)
	assert.Equal(t, 30, minutes)
}

func TestBuilder_RedeclareReturnsSameBuilder(t *testing.T) {
	b := dsl.New("Two Step")
	b.Role("requester")
	b.Role("requester").Max(2)
	b.State("a", domain.KindCollect)
	b.State("a", domain.KindCollect).Go("b")
	b.State("b", domain.KindSignoff)

	tmpl := b.MustBuild()
	require.Len(t, tmpl.Roles, 1)
	assert.Equal(t, 2, *tmpl.Roles[0].MaxParticipants)
	require.Len(t, tmpl.States, 2)
	assert.Equal(t, domain.Targets{"b"}, tmpl.States[0].Transitions[domain.ConditionAlways])
}

func TestBuilder_ReportsEveryProblem(t *testing.T) {
	b := dsl.New("Broken")
	b.Role("requester")
	b.State("a", domain.KindCollect).Allow("ghost").Require("missing").Go("nowhere")

	_, err := b.Build()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	var verr *validator.Error
	require.ErrorAs(t, err, &verr)
	msgs := verr.Messages()
	assert.Len(t, msgs, 4)
	assert.Contains(t, msgs, `name: name "Broken" must contain at least 2 words`)
	assert.Contains(t, msgs, `states[0] "a": allowedRoles references unknown role "ghost"`)
	assert.Contains(t, msgs, `states[0] "a": requiredSlots references unknown slot "missing"`)
	assert.Contains(t, msgs, `states[0] "a": always transition references unknown state "nowhere"`)
}

func TestBuilder_DraftIsNotSealed(t *testing.T) {
	b := dsl.New("Draft Only")
	b.Role("requester")
	b.State("a", domain.KindCollect)

	draft := b.Draft()
	assert.False(t, draft.Sealed())
	assert.Empty(t, draft.ID)
	assert.NoError(t, validator.Validate(draft))
	assert.False(t, draft.Sealed(), "Validate must not mutate")
}

func TestBuilder_MustBuildPanics(t *testing.T) {
	assert.Panics(t, func() {
		dsl.New("x").MustBuild()
	})
}
