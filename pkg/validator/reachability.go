package validator

import (
	"sort"

	"github.com/aretw0/choreo/pkg/domain"
)

// Unreachable returns the states that no chain of transitions leads to from
// the start state. It is a lint, not a validation failure: templates may keep
// states reserved for manual recovery.
func Unreachable(t *domain.Template) []string {
	start, ok := t.First()
	if !ok {
		return nil
	}

	visited := map[string]bool{}
	queue := []string{start.Name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		st, ok := t.State(current)
		if !ok {
			continue // dangling target, reported by Validate
		}
		for _, targets := range st.Transitions {
			for _, target := range targets {
				if !visited[target] {
					queue = append(queue, target)
				}
			}
		}
	}

	var out []string
	for _, st := range t.States {
		if !visited[st.Name] {
			out = append(out, st.Name)
		}
	}
	sort.Strings(out)
	return out
}
