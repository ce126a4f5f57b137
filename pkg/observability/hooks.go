package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/choreo/pkg/domain"
)

// LogHooks logs every lifecycle event at Info level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			logger.InfoContext(ctx, "run_start", "run_id", e.RunID, "template_id", e.TemplateID)
		},
		OnStateEnter: func(ctx context.Context, e *domain.StateEvent) {
			logger.InfoContext(ctx, "state_enter", "run_id", e.RunID, "state_id", e.StateID, "kind", e.Kind)
		},
		OnStateExit: func(ctx context.Context, e *domain.StateEvent) {
			logger.InfoContext(ctx, "state_exit", "run_id", e.RunID, "state_id", e.StateID, "condition", e.Condition)
		},
		OnSlotWrite: func(ctx context.Context, e *domain.SlotEvent) {
			// Slot values are never logged.
			logger.InfoContext(ctx, "slot_write", "run_id", e.RunID, "state_id", e.StateID, "slot", e.Slot, "role", e.Role)
		},
		OnRunFinish: func(ctx context.Context, e *domain.RunEvent) {
			attrs := []any{"run_id", e.RunID, "template_id", e.TemplateID, "status", e.Status}
			if e.Reason != "" {
				attrs = append(attrs, "reason", e.Reason)
			}
			logger.InfoContext(ctx, "run_finish", attrs...)
		},
	}
}

// Merge returns hooks that call each of the given hooks in order.
func Merge(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			for _, h := range all {
				if h.OnRunStart != nil {
					h.OnRunStart(ctx, e)
				}
			}
		},
		OnStateEnter: func(ctx context.Context, e *domain.StateEvent) {
			for _, h := range all {
				if h.OnStateEnter != nil {
					h.OnStateEnter(ctx, e)
				}
			}
		},
		OnStateExit: func(ctx context.Context, e *domain.StateEvent) {
			for _, h := range all {
				if h.OnStateExit != nil {
					h.OnStateExit(ctx, e)
				}
			}
		},
		OnSlotWrite: func(ctx context.Context, e *domain.SlotEvent) {
			for _, h := range all {
				if h.OnSlotWrite != nil {
					h.OnSlotWrite(ctx, e)
				}
			}
		},
		OnRunFinish: func(ctx context.Context, e *domain.RunEvent) {
			for _, h := range all {
				if h.OnRunFinish != nil {
					h.OnRunFinish(ctx, e)
				}
			}
		},
	}
}
