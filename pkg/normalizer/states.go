package normalizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/choreo/pkg/domain"
)

type stateInput struct {
	Name           string         `mapstructure:"name"`
	ID             string         `mapstructure:"id"`
	Label          string         `mapstructure:"label"`
	Title          string         `mapstructure:"title"`
	PhaseKind      string         `mapstructure:"phaseKind"`
	Type           string         `mapstructure:"type"`
	Phase          string         `mapstructure:"phase"`
	Description    string         `mapstructure:"description"`
	RequiredSlots  []string       `mapstructure:"requiredSlots"`
	AllowedRoles   []string       `mapstructure:"allowedRoles"`
	Participants   []string       `mapstructure:"participants"`
	Transitions    any            `mapstructure:"transitions"`
	TimeoutMinutes any            `mapstructure:"timeoutMinutes"`
	Timeout        any            `mapstructure:"timeout"`
	UIHints        map[string]any `mapstructure:"uiHints"`
}

var kindSynonyms = map[string]domain.PhaseKind{
	"gather":       domain.KindCollect,
	"collection":   domain.KindCollect,
	"intake":       domain.KindCollect,
	"input":        domain.KindCollect,
	"negotiation":  domain.KindNegotiate,
	"discuss":      domain.KindNegotiate,
	"discussion":   domain.KindNegotiate,
	"proposal":     domain.KindNegotiate,
	"agreement":    domain.KindCommit,
	"commitment":   domain.KindCommit,
	"payment":      domain.KindCommit,
	"proof":        domain.KindEvidence,
	"verify":       domain.KindEvidence,
	"verification": domain.KindEvidence,
	"approval":     domain.KindSignoff,
	"review":       domain.KindSignoff,
	"complete":     domain.KindSignoff,
	"completion":   domain.KindSignoff,
}

func phaseKind(raw string) (domain.PhaseKind, bool) {
	key := normKey(raw)
	if k := domain.PhaseKind(key); k.Valid() {
		return k, true
	}
	if contains(domain.Phases, domain.PhaseName(key)) {
		return domain.KindOf(domain.PhaseName(key)), true
	}
	k, ok := kindSynonyms[key]
	return k, ok
}

var conditionSynonyms = map[string]domain.Condition{
	"auto":      domain.ConditionAlways,
	"default":   domain.ConditionAlways,
	"next":      domain.ConditionAlways,
	"done":      domain.ConditionAlways,
	"complete":  domain.ConditionAlways,
	"completed": domain.ConditionAlways,
	"approve":   domain.ConditionApproved,
	"accept":    domain.ConditionApproved,
	"accepted":  domain.ConditionApproved,
	"reject":    domain.ConditionRejected,
	"decline":   domain.ConditionRejected,
	"declined":  domain.ConditionRejected,
	"expired":   domain.ConditionTimeout,
	"timedout":  domain.ConditionTimeout,
	"override":  domain.ConditionManual,
}

func condition(raw string) domain.Condition {
	key := normKey(raw)
	if c := domain.Condition(key); c.Valid() {
		return c
	}
	if c, ok := conditionSynonyms[key]; ok {
		return c
	}
	return domain.Condition(strings.ToLower(strings.TrimSpace(raw)))
}

// skeleton is used when the input declares no states: one state per phase,
// each moving on unconditionally to the next.
func skeleton() []domain.State {
	states := make([]domain.State, len(domain.Phases))
	for i, phase := range domain.Phases {
		seq := i
		states[i] = domain.State{
			Name:          string(phase),
			Kind:          domain.KindOf(phase),
			Sequence:      &seq,
			RequiredSlots: []string{},
			AllowedRoles:  []string{},
			Transitions:   domain.Transitions{},
		}
		if i+1 < len(domain.Phases) {
			states[i].Transitions[domain.ConditionAlways] = domain.Targets{string(domain.Phases[i+1])}
		}
	}
	return states
}

func (p *pass) normalizeStates(raw any) []domain.State {
	items := entries(raw)
	if len(items) == 0 {
		p.recommend("states", "no states declared; using the five phase skeleton")
		return skeleton()
	}

	// Names first so transitions may reference later states.
	inputs := make([]stateInput, len(items))
	states := make([]domain.State, len(items))
	for i, it := range items {
		if err := decode(it.value, &inputs[i]); err != nil {
			p.recommend(fmt.Sprintf("states[%d]", it.index), "partially understood: %v", err)
		}
		in := inputs[i]
		states[i].Name = p.states.name(i, nil, in.Name, in.ID, it.key, in.Label, in.Title)
	}

	for i := range items {
		in, st := inputs[i], &states[i]
		field := fmt.Sprintf("states[%d]", i)
		seq := i
		st.Sequence = &seq
		st.Description = strings.TrimSpace(in.Description)
		st.UIHints = in.UIHints

		declared := firstNonEmpty(in.PhaseKind, in.Type, in.Phase)
		if k, ok := phaseKind(declared); ok {
			st.Kind = k
		} else {
			st.Kind = domain.KindCollect
			if declared != "" {
				p.recommend(field+".phaseKind", "unknown phase kind %q; using collect", declared)
			}
		}

		allowed := in.AllowedRoles
		if len(allowed) == 0 {
			allowed = in.Participants
		}
		st.AllowedRoles = p.roleRefs(allowed)
		if st.AllowedRoles == nil {
			st.AllowedRoles = []string{}
		}
		st.RequiredSlots = p.slotRefs(in.RequiredSlots)

		timeout := in.TimeoutMinutes
		if timeout == nil {
			timeout = in.Timeout
		}
		if timeout != nil {
			if n, ok := positiveInt(timeout); ok {
				st.TimeoutMinutes = &n
			} else {
				p.recommend(field+".timeoutMinutes", "%v is not a positive number of minutes; dropped", timeout)
			}
		}

		st.Transitions = p.transitions(field, in.Transitions)
	}
	return states
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// transitions accepts {condition: target|[targets]}, a bare target (meaning
// always), or a list of {on|condition|when, to|target|next} objects.
func (p *pass) transitions(field string, raw any) domain.Transitions {
	out := domain.Transitions{}
	add := func(cond string, target any) {
		c := condition(cond)
		targets := p.stateRefs(stringList(target))
		if len(targets) == 0 {
			p.recommend(field+".transitions."+string(c), "no target state; dropped")
			return
		}
		for _, t := range targets {
			if !contains(out[c], t) {
				out[c] = append(out[c], t)
			}
		}
	}

	switch v := raw.(type) {
	case nil:
	case string:
		add(string(domain.ConditionAlways), v)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(k, v[k])
		}
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				add(string(domain.ConditionAlways), item)
				continue
			}
			f := byNormKey(obj)
			cond := firstNonEmpty(str(f["on"]), str(f["condition"]), str(f["when"]))
			if cond == "" {
				cond = string(domain.ConditionAlways)
			}
			target := f["to"]
			if target == nil {
				target = f["target"]
			}
			if target == nil {
				target = f["next"]
			}
			add(cond, target)
		}
	default:
		p.recommend(field+".transitions", "expected an object, got %T; dropped", raw)
	}
	return out
}

func (p *pass) stateRefs(refs []string) domain.Targets {
	var out domain.Targets
	for _, ref := range refs {
		if name, _ := p.states.resolve(ref); name != "" {
			out = append(out, name)
		}
	}
	return out
}
