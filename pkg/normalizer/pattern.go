package normalizer

import (
	"github.com/aretw0/choreo/pkg/domain"
)

type phaseInput struct {
	Enabled        *bool  `mapstructure:"enabled"`
	Description    string `mapstructure:"description"`
	Timeout        *int   `mapstructure:"timeout"`
	TimeoutMinutes *int   `mapstructure:"timeoutMinutes"`
	RequireDeposit *bool  `mapstructure:"requireDeposit"`
	RequireProof   *bool  `mapstructure:"requireProof"`
	AutoComplete   *bool  `mapstructure:"autoComplete"`
}

// pattern builds one PhaseConfig per fixed phase. A phase may be given as an
// object or as a bare boolean meaning enabled.
func (p *pass) pattern(raw any) domain.Pattern {
	phases := map[string]any{}
	if obj, ok := raw.(map[string]any); ok {
		phases = byNormKey(obj)
	} else if raw != nil {
		p.recommend("pattern", "expected an object keyed by phase; using defaults")
	}

	var out domain.Pattern
	for _, name := range domain.Phases {
		field := "pattern." + string(name)
		var in phaseInput
		switch v := phases[string(name)].(type) {
		case nil:
		case bool:
			in.Enabled = &v
		case map[string]any:
			if err := decode(v, &in); err != nil {
				p.recommend(field, "partially understood: %v", err)
			}
		default:
			p.recommend(field, "expected an object, got %T; using defaults", v)
		}

		cfg := out.Phase(name)
		cfg.Enabled = boolOr(in.Enabled, true)
		cfg.Description = in.Description
		cfg.Timeout = in.Timeout
		if cfg.Timeout == nil {
			cfg.Timeout = in.TimeoutMinutes
		}
		if cfg.Timeout != nil && *cfg.Timeout <= 0 {
			p.recommend(field+".timeout", "non-positive timeout dropped")
			cfg.Timeout = nil
		}
		switch name {
		case domain.PhaseCommit:
			cfg.RequireDeposit = boolOr(in.RequireDeposit, false)
		case domain.PhaseEvidence:
			cfg.RequireProof = boolOr(in.RequireProof, true)
		case domain.PhaseConfirm:
			cfg.AutoComplete = boolOr(in.AutoComplete, false)
		}
	}
	return out
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
