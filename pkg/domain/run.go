package domain

import "time"

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether no further mutation is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Participant is a role-bound identity taking part in a run.
type Participant struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	// Token is the private delivery token used to address the participant.
	Token string `json:"token"`
}

// Run is a live execution of a template.
type Run struct {
	ID             string `json:"id"`
	TemplateID     string `json:"templateId"`
	CurrentStateID string `json:"currentStateId"`
	// OpenRunStateID references the RunState row that is currently open.
	OpenRunStateID string        `json:"openRunStateId,omitempty"`
	Status         RunStatus     `json:"status"`
	Participants   []Participant `json:"participants"`
	FailureReason  string        `json:"failureReason,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

// Clone returns a copy that can be mutated without affecting r.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	next := *r
	next.Participants = append([]Participant(nil), r.Participants...)
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		next.CompletedAt = &at
	}
	return &next
}

// ParticipantsFor returns the participants bound to role.
func (r *Run) ParticipantsFor(role string) []Participant {
	var out []Participant
	for _, p := range r.Participants {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// RunState is one visit to a state within a run.
type RunState struct {
	ID      string `json:"id"`
	RunID   string `json:"runId"`
	StateID string `json:"stateId"`
	// SlotData grows monotonically while the row is open.
	SlotData  map[string]any `json:"slotData"`
	EnteredAt time.Time      `json:"enteredAt"`
	ExitedAt  *time.Time     `json:"exitedAt"`
}

// Open reports whether the visit is still in progress.
func (rs *RunState) Open() bool {
	return rs.ExitedAt == nil
}

// Clone returns a deep-enough copy for safe mutation of the slot map.
func (rs *RunState) Clone() *RunState {
	if rs == nil {
		return nil
	}
	next := *rs
	next.SlotData = make(map[string]any, len(rs.SlotData))
	for k, v := range rs.SlotData {
		next.SlotData[k] = v
	}
	if rs.ExitedAt != nil {
		at := *rs.ExitedAt
		next.ExitedAt = &at
	}
	return &next
}
