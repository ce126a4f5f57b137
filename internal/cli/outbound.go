package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/aretw0/choreo/pkg/ports"
)

// TextComposer writes a plain prompt naming the state and what is missing.
type TextComposer struct{}

func (TextComposer) Compose(_ context.Context, _ string, rc ports.RoleContext) (string, error) {
	var b strings.Builder
	name := rc.Participant.Name
	if name == "" {
		name = rc.Participant.ID
	}
	fmt.Fprintf(&b, "%s, %q is now at %s (%s).", name, rc.TemplateName, rc.State, rc.Kind)
	if rc.Description != "" {
		fmt.Fprintf(&b, " %s", rc.Description)
	}
	if len(rc.Missing) > 0 {
		fmt.Fprintf(&b, " Waiting for: %s.", strings.Join(rc.Missing, ", "))
	}
	if len(rc.Slots) > 0 {
		keys := make([]string, 0, len(rc.Slots))
		for k := range rc.Slots {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, " Known: %s.", strings.Join(keys, ", "))
	}
	return b.String(), nil
}

// LogNotifier delivers messages to the log. It stands in for a real
// transport when choreo runs from the command line.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, participantID, message string, opts ports.SendOptions) (string, error) {
	id := uuid.NewString()
	n.logger.InfoContext(ctx, "Notification", "delivery_id", id, "participant", participantID, "run_id", opts.RunID, "state", opts.StateID, "message", message)
	return id, nil
}
