package transition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/transition"
)

func state() *domain.State {
	return &domain.State{
		Name:          "review",
		Kind:          domain.KindNegotiate,
		RequiredSlots: []string{"quote"},
		Transitions: domain.Transitions{
			domain.ConditionApproved: {"commit"},
			domain.ConditionRejected: {"intake", "cancelled"},
			domain.ConditionTimeout:  {"escalate"},
			domain.ConditionAlways:   {"auto"},
		},
	}
}

func TestEvaluate_Precedence(t *testing.T) {
	filled := map[string]any{"quote": 10}

	tests := []struct {
		name string
		in   transition.Input
		want transition.Decision
		ok   bool
	}{
		{"event beats timeout and always",
			transition.Input{Event: domain.ConditionApproved, TimedOut: true, Slots: filled},
			transition.Decision{Condition: domain.ConditionApproved, Next: "commit"}, true},
		{"timeout beats always",
			transition.Input{TimedOut: true, Slots: filled},
			transition.Decision{Condition: domain.ConditionTimeout, Next: "escalate"}, true},
		{"always once slots are filled",
			transition.Input{Slots: filled},
			transition.Decision{Condition: domain.ConditionAlways, Next: "auto"}, true},
		{"always waits for required slots",
			transition.Input{Slots: map[string]any{}},
			transition.Decision{}, false},
		{"nil counts as missing",
			transition.Input{Slots: map[string]any{"quote": nil}},
			transition.Decision{}, false},
		{"undeclared event falls through",
			transition.Input{Event: domain.ConditionManual, TimedOut: true},
			transition.Decision{Condition: domain.ConditionTimeout, Next: "escalate"}, true},
		{"branch picks a target",
			transition.Input{Event: domain.ConditionRejected, Branch: "cancelled"},
			transition.Decision{Condition: domain.ConditionRejected, Next: "cancelled"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := transition.Evaluate(state(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_NoMatch(t *testing.T) {
	s := &domain.State{Name: "wait", Transitions: domain.Transitions{domain.ConditionApproved: {"next"}}}

	_, ok, err := transition.Evaluate(s, transition.Input{TimedOut: true, Slots: map[string]any{"x": 1}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_BranchRequired(t *testing.T) {
	_, ok, err := transition.Evaluate(state(), transition.Input{Event: domain.ConditionRejected})
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrBranchRequired)
	assert.Equal(t, domain.CodeInvalidInput, domain.Code(err))

	_, _, err = transition.Evaluate(state(), transition.Input{Event: domain.ConditionRejected, Branch: "nowhere"})
	assert.ErrorIs(t, err, domain.ErrBranchRequired)
}

func TestEvaluate_AmbiguousInternalConditionIsDefect(t *testing.T) {
	s := &domain.State{Name: "broken", Transitions: domain.Transitions{domain.ConditionTimeout: {"a", "b"}}}

	_, _, err := transition.Evaluate(s, transition.Input{TimedOut: true})
	var defect *domain.TimeoutResolutionError
	require.ErrorAs(t, err, &defect)
	assert.Equal(t, "broken", defect.State)
	assert.ErrorIs(t, err, domain.ErrTimeoutResolution)
}

func TestEvaluate_Sink(t *testing.T) {
	sink := &domain.State{Name: "done", Kind: domain.KindSignoff, RequiredSlots: []string{"rating"}}

	_, ok, err := transition.Evaluate(sink, transition.Input{Slots: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, ok)

	d, ok, err := transition.Evaluate(sink, transition.Input{Slots: map[string]any{"rating": 5}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, d.Complete)

	bare := &domain.State{Name: "close", Kind: domain.KindSignoff}
	_, ok, _ = transition.Evaluate(bare, transition.Input{TimedOut: true})
	assert.False(t, ok, "a sink without slots waits for a participant")

	d, ok, _ = transition.Evaluate(bare, transition.Input{Event: domain.ConditionApproved})
	assert.True(t, ok)
	assert.Equal(t, transition.Decision{Condition: domain.ConditionApproved, Complete: true}, d)
}

func TestMissing(t *testing.T) {
	s := &domain.State{RequiredSlots: []string{"a", "b", "c"}}
	assert.Equal(t, []string{"a", "c"}, transition.Missing(s, map[string]any{"b": true}))
	assert.True(t, transition.Filled(&domain.State{}, nil))
}
