package ports

import (
	"context"
	"time"

	"github.com/aretw0/choreo/pkg/domain"
)

// Repository persists templates, runs and run-state visits.
// Implementations must preserve write order per run.
type Repository interface {
	// LoadTemplate returns domain.ErrTemplateNotFound if the template does not exist.
	LoadTemplate(ctx context.Context, id string) (*domain.Template, error)
	SaveTemplate(ctx context.Context, t *domain.Template) error

	// LoadRun returns domain.ErrRunNotFound if the run does not exist.
	LoadRun(ctx context.Context, id string) (*domain.Run, error)
	SaveRun(ctx context.Context, run *domain.Run) error
	// ListRuns returns the IDs of every stored run.
	ListRuns(ctx context.Context) ([]string, error)

	// AppendRunState stores a new visit. It fails with domain.ErrStaleRun when
	// the run already has an open visit.
	AppendRunState(ctx context.Context, rs *domain.RunState) error
	// CloseRunState sets exitedAt on an open visit. Closing a closed visit
	// fails with domain.ErrStaleRun.
	CloseRunState(ctx context.Context, id string, exitedAt time.Time) error
	// LoadRunState returns domain.ErrRunStateNotFound if the visit does not exist.
	LoadRunState(ctx context.Context, id string) (*domain.RunState, error)
	// ListRunStates returns the visits of a run ordered by entry time.
	ListRunStates(ctx context.Context, runID string) ([]*domain.RunState, error)
	// PutSlot writes a single slot value of an open visit without touching
	// the other slots. It fails with domain.ErrStaleRun on a closed visit.
	PutSlot(ctx context.Context, runStateID, name string, value any) error
}
