package domain

import (
	"encoding/json"
	"fmt"
)

// Condition is the trigger that resolves the next state.
type Condition string

const (
	// ConditionAlways fires once every required slot of the state has a value.
	ConditionAlways Condition = "always"
	// ConditionApproved is raised by a participant.
	ConditionApproved Condition = "approved"
	// ConditionRejected is raised by a participant.
	ConditionRejected Condition = "rejected"
	// ConditionTimeout is raised internally when the state timeout elapses.
	ConditionTimeout Condition = "timeout"
	// ConditionManual is raised by a participant or operator.
	ConditionManual Condition = "manual"
)

// Conditions lists every valid transition condition.
var Conditions = []Condition{ConditionAlways, ConditionApproved, ConditionRejected, ConditionTimeout, ConditionManual}

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	for _, known := range Conditions {
		if c == known {
			return true
		}
	}
	return false
}

// IsEvent reports whether the condition is raised explicitly by a caller.
func (c Condition) IsEvent() bool {
	return c == ConditionApproved || c == ConditionRejected || c == ConditionManual
}

// Targets is the list of state names a condition may lead to.
// It is serialized as a plain string when it holds exactly one entry.
type Targets []string

// MarshalJSON emits a string for single targets and an array otherwise.
func (t Targets) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// UnmarshalJSON accepts either a string or a list of strings.
func (t *Targets) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = Targets{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("transition targets must be a string or a list of strings: %w", err)
	}
	*t = many
	return nil
}

// Transitions maps a condition to its target states.
type Transitions map[Condition]Targets
