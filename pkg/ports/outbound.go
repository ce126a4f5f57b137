package ports

import (
	"context"

	"github.com/aretw0/choreo/pkg/domain"
)

// RoleContext is what a composer knows about the participant it writes for.
type RoleContext struct {
	TemplateName string
	Participant  domain.Participant
	State        string
	Kind         domain.PhaseKind
	Description  string
	// Slots holds the values visible to the participant's role.
	Slots map[string]any
	// Missing lists the required slots still empty in the state.
	Missing []string
}

// MessageComposer produces participant-facing text on state entry.
// Failures are logged by the caller and never block a transition.
type MessageComposer interface {
	Compose(ctx context.Context, runID string, rc RoleContext) (string, error)
}

// SendOptions carries delivery metadata.
type SendOptions struct {
	RunID   string
	StateID string
	// Token is the participant's private delivery token.
	Token string
}

// NotificationSender delivers a message and returns a delivery ID.
// It is fire-and-forget from the caller's perspective.
type NotificationSender interface {
	Send(ctx context.Context, participantID, message string, opts SendOptions) (string, error)
}
