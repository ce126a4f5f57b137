package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/ports"
)

// Mask replaces values whose key matches a PII pattern.
const Mask = "***"

// piiMiddleware masks slot values before they reach storage. Masked values
// still count as filled for transitions.
type piiMiddleware struct {
	ports.Repository
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of slots (and of
// nested object keys) matching the patterns.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.Repository) ports.Repository {
		return &piiMiddleware{Repository: next, patterns: patterns}
	}
}

func (m *piiMiddleware) AppendRunState(ctx context.Context, rs *domain.RunState) error {
	cloned := rs.Clone()
	cloned.SlotData = deepCopyMap(rs.SlotData)
	maskMap(cloned.SlotData, m.patterns)
	return m.Repository.AppendRunState(ctx, cloned)
}

func (m *piiMiddleware) PutSlot(ctx context.Context, runStateID, name string, value any) error {
	return m.Repository.PutSlot(ctx, runStateID, name, m.mask(name, value))
}

func (m *piiMiddleware) mask(key string, value any) any {
	if matches(key, m.patterns) {
		return Mask
	}
	if sub, ok := value.(map[string]any); ok {
		cloned := deepCopyMap(sub)
		maskMap(cloned, m.patterns)
		return cloned
	}
	return value
}

// Helpers

func matches(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if matches(k, patterns) {
			m[k] = Mask
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
