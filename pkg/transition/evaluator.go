// Package transition resolves the next state of a run from the conditions
// declared on its current state.
//
// Precedence is fixed: a caller-raised event (approved, rejected, manual)
// beats timeout, which beats always.
package transition

import (
	"fmt"

	"github.com/aretw0/choreo/pkg/domain"
)

// Input is what the machine knows when it asks for a decision.
type Input struct {
	// Event is the condition raised by the caller, if any.
	Event domain.Condition
	// Branch selects one target of a multi-target transition.
	Branch string
	// TimedOut is set when the state's timeout has elapsed.
	TimedOut bool
	// Slots holds the values of the open visit.
	Slots map[string]any
}

// Decision is a resolved transition.
type Decision struct {
	Condition domain.Condition
	// Next is the target state. It is empty when Complete is set.
	Next string
	// Complete means the run finishes instead of entering another state.
	Complete bool
}

// Filled reports whether every required slot of s has a value in slots.
func Filled(s *domain.State, slots map[string]any) bool {
	return len(Missing(s, slots)) == 0
}

// Missing lists the required slots of s that have no value yet.
func Missing(s *domain.State, slots map[string]any) []string {
	var out []string
	for _, name := range s.RequiredSlots {
		if v, ok := slots[name]; !ok || v == nil {
			out = append(out, name)
		}
	}
	return out
}

// Evaluate returns the decision for state s, or ok=false when the run stays
// where it is.
func Evaluate(s *domain.State, in Input) (d Decision, ok bool, err error) {
	if s.IsSink() {
		return evaluateSink(s, in)
	}

	if in.Event.IsEvent() {
		if targets, found := s.Transitions[in.Event]; found {
			return resolve(s, in.Event, targets, in.Branch)
		}
	}
	if in.TimedOut {
		if targets, found := s.Transitions[domain.ConditionTimeout]; found {
			return resolve(s, domain.ConditionTimeout, targets, in.Branch)
		}
	}
	if targets, found := s.Transitions[domain.ConditionAlways]; found && Filled(s, in.Slots) {
		return resolve(s, domain.ConditionAlways, targets, in.Branch)
	}
	return Decision{}, false, nil
}

// evaluateSink completes the run from a state without transitions once its
// required slots are filled, or when a participant approves or closes it.
func evaluateSink(s *domain.State, in Input) (Decision, bool, error) {
	switch {
	case in.Event == domain.ConditionApproved || in.Event == domain.ConditionManual:
		return Decision{Condition: in.Event, Complete: true}, true, nil
	case len(s.RequiredSlots) > 0 && Filled(s, in.Slots):
		return Decision{Condition: domain.ConditionAlways, Complete: true}, true, nil
	}
	return Decision{}, false, nil
}

func resolve(s *domain.State, cond domain.Condition, targets domain.Targets, branch string) (Decision, bool, error) {
	switch len(targets) {
	case 0:
		return Decision{Condition: cond, Complete: true}, true, nil
	case 1:
		return Decision{Condition: cond, Next: targets[0]}, true, nil
	}
	for _, target := range targets {
		if target == branch {
			return Decision{Condition: cond, Next: target}, true, nil
		}
	}
	if cond.IsEvent() {
		if branch == "" {
			return Decision{}, false, fmt.Errorf("state %q: %s leads to %v: %w", s.Name, cond, []string(targets), domain.ErrBranchRequired)
		}
		return Decision{}, false, fmt.Errorf("state %q: %q is not a target of %s: %w", s.Name, branch, cond, domain.ErrBranchRequired)
	}
	// Validation rejects these, so reaching here is a template defect.
	return Decision{}, false, &domain.TimeoutResolutionError{State: s.Name, Condition: cond, Targets: targets}
}
