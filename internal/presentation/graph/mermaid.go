package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/choreo/pkg/domain"
)

// RunOverlay marks the states a run has visited and the one it is in.
type RunOverlay struct {
	VisitedStates []string
	CurrentState  string
}

// OverlayFromHistory builds the overlay of a run from its visits.
func OverlayFromHistory(run *domain.Run, visits []*domain.RunState) *RunOverlay {
	o := &RunOverlay{}
	for _, rs := range visits {
		o.VisitedStates = append(o.VisitedStates, rs.StateID)
	}
	if !run.Status.Terminal() {
		o.CurrentState = run.CurrentStateID
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of a template's states.
// Shapes follow the phase kind:
// - Start state: ((Circle))
// - Collect: [/Parallelogram/]
// - Negotiate: {Rhombus}
// - Signoff sink: [[Subroutine]]
// - Default: [Rectangle]
// Edges are labelled with their condition; event edges are dotted and the
// timeout edge carries the effective timeout.
func GenerateMermaid(t *domain.Template, overlay *RunOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	first, _ := t.First()
	for _, s := range t.Ordered() {
		safeID := sanitizeMermaidID(s.Name)

		opener, closer := "[", "]"
		switch {
		case first != nil && s.Name == first.Name:
			opener, closer = "((", "))"
		case s.Kind == domain.KindCollect:
			opener, closer = "[/", "/]"
		case s.Kind == domain.KindNegotiate:
			opener, closer = "{", "}"
		case s.Kind == domain.KindSignoff && s.IsSink():
			opener, closer = "[[", "]]"
		}

		label := s.Name
		if len(s.RequiredSlots) > 0 {
			label += " <br/> needs: " + strings.Join(s.RequiredSlots, ", ")
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escape(label), closer)

		for _, cond := range domain.Conditions {
			for _, target := range s.Transitions[cond] {
				text := string(cond)
				if cond == domain.ConditionTimeout {
					if minutes, ok := t.Timeout(s); ok {
						text = fmt.Sprintf("timeout %dm", minutes)
					}
				}
				arrow := fmt.Sprintf("-- \"%s\" -->", text)
				if cond.IsEvent() || cond == domain.ConditionTimeout {
					arrow = fmt.Sprintf("-. \"%s\" .->", text)
				}
				fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, sanitizeMermaidID(target))
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedStates {
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentState != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentState))
		}
	}

	return sb.String()
}

func escape(label string) string {
	return strings.ReplaceAll(label, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
