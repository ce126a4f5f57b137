package normalizer

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/choreo/internal/logging"
	"github.com/aretw0/choreo/pkg/domain"
)

// Recommendation records an ambiguity the normalizer resolved with a default.
// It is informational and never an error.
type Recommendation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (r Recommendation) String() string {
	return r.Field + ": " + r.Message
}

// Result is the outcome of a normalization pass.
type Result struct {
	Template        *domain.Template
	Recommendations []Recommendation
}

// Normalizer coerces loosely typed template documents into the canonical shape.
type Normalizer struct {
	logger *slog.Logger
}

// Option configures the Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger used to report recommendations at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize is a shortcut for New().Normalize(raw).
func Normalize(raw any) Result {
	return New().Normalize(raw)
}

// pass carries the state of one normalization.
type pass struct {
	recs   []Recommendation
	roles  *namer
	slots  *namer
	states *namer
}

func (p *pass) recommend(field, format string, args ...any) {
	p.recs = append(p.recs, Recommendation{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Normalize never fails: anything it cannot interpret is replaced by a
// conservative default and reported as a Recommendation.
func (n *Normalizer) Normalize(raw any) Result {
	p := &pass{roles: newNamer("role"), slots: newNamer("slot"), states: newNamer("state")}

	doc := asDocument(raw)
	if doc == nil {
		p.recommend("", "input is %T, not an object; using defaults", raw)
		doc = map[string]any{}
	}
	fields := byNormKey(doc)

	t := &domain.Template{
		ID:          strings.TrimSpace(str(fields["id"])),
		Name:        p.name(fields),
		Description: strings.TrimSpace(str(fields["description"])),
		Version:     p.version(fields["version"]),
		IsActive:    true,
		Category:    p.category(fields["category"]),
		Tags:        p.tags(fields["tags"]),
	}
	if t.Description == "" {
		t.Description = t.Name
		p.recommend("description", "missing; using the template name")
	}
	if v, ok := fields["isactive"].(bool); ok {
		t.IsActive = v
	}
	if h, ok := positiveInt(fields["estimateddurationhours"]); ok {
		t.EstimatedDurationHours = &h
	}
	if md, ok := fields["metadata"].(map[string]any); ok {
		t.Metadata = md
	}

	var patternRaw any
	for _, key := range []string{"pattern", "schemajson", "coordinationpattern"} {
		if v, ok := fields[key]; ok {
			patternRaw = v
			break
		}
	}
	t.Pattern = p.pattern(patternRaw)

	t.Roles = p.normalizeRoles(fields["roles"])
	t.Slots = p.normalizeSlots(fields["slots"])
	t.States = p.normalizeStates(fields["states"])

	t.Complexity = domain.Complexity(strings.ToLower(str(fields["complexity"])))
	if !contains(domain.Complexities, t.Complexity) {
		t.Complexity = deriveComplexity(len(t.States), len(t.Roles))
	}

	for _, r := range p.recs {
		n.logger.Debug("normalization recommendation", "field", r.Field, "message", r.Message)
	}
	return Result{Template: t, Recommendations: p.recs}
}

func asDocument(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return v
	case map[any]any:
		return asObject(v)
	}
	return nil
}

// byNormKey indexes the top-level keys by their folded spelling.
func byNormKey(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if _, dup := out[normKey(k)]; !dup {
			out[normKey(k)] = v
		}
	}
	return out
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return fmt.Sprint(v)
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (p *pass) name(fields map[string]any) string {
	name := strings.Join(strings.Fields(str(fields["name"])), " ")
	if name == "" {
		name = strings.Join(strings.Fields(str(fields["title"])), " ")
	}
	if name == "" {
		p.recommend("name", "missing; using a placeholder")
		return "Untitled Coordination"
	}
	return name
}

var (
	versionRe      = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)
	majorOnlyRe    = regexp.MustCompile(`^\d+$`)
	tagDisallowRe  = regexp.MustCompile(`[^a-z0-9-]+`)
	tagDashesRe    = regexp.MustCompile(`-{2,}`)
	defaultVersion = "1.0"
)

func (p *pass) version(raw any) string {
	var v string
	switch n := raw.(type) {
	case nil:
		return defaultVersion
	case float64:
		if n == math.Trunc(n) {
			v = strconv.FormatFloat(n, 'f', 0, 64)
		} else {
			v = strconv.FormatFloat(n, 'f', -1, 64)
		}
	case int:
		v = strconv.Itoa(n)
	default:
		v = str(raw)
	}
	v = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(v), "v"), "V")
	switch {
	case versionRe.MatchString(v):
		return v
	case majorOnlyRe.MatchString(v):
		return v + ".0"
	}
	p.recommend("version", "%q is not major.minor[.patch]; using %s", str(raw), defaultVersion)
	return defaultVersion
}

func (p *pass) category(raw any) domain.Category {
	if raw == nil {
		return domain.CategoryGeneral
	}
	c := domain.Category(Slugify(str(raw)))
	if contains(domain.Categories, c) {
		return c
	}
	p.recommend("category", "unknown category %q; using %s", str(raw), domain.CategoryGeneral)
	return domain.CategoryGeneral
}

const (
	maxTags   = 10
	minTagLen = 2
)

// tags lowercases, dashes and deduplicates tags, keeping [a-z0-9-] only.
// Tags shorter than two characters are dropped.
func (p *pass) tags(raw any) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, t := range stringList(raw) {
		t = strings.ToLower(strings.TrimSpace(t))
		t = strings.NewReplacer(" ", "-", "_", "-").Replace(t)
		t = tagDisallowRe.ReplaceAllString(t, "")
		t = strings.Trim(tagDashesRe.ReplaceAllString(t, "-"), "-")
		if t == "" || seen[t] {
			continue
		}
		if len(t) < minTagLen {
			p.recommend("tags", "tag %q is too short; dropped", t)
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > maxTags {
		p.recommend("tags", "%d tags given; keeping the first %d", len(out), maxTags)
		out = out[:maxTags]
	}
	return out
}

func deriveComplexity(states, roles int) domain.Complexity {
	switch {
	case states <= 3 && roles <= 2:
		return domain.ComplexitySimple
	case states <= 6 && roles <= 3:
		return domain.ComplexityModerate
	case states <= 12 && roles <= 6:
		return domain.ComplexityComplex
	}
	return domain.ComplexityEnterprise
}
