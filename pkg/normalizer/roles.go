package normalizer

import (
	"fmt"
	"strings"

	"github.com/aretw0/choreo/pkg/domain"
)

type roleInput struct {
	Name            string         `mapstructure:"name"`
	ID              string         `mapstructure:"id"`
	Label           string         `mapstructure:"label"`
	Title           string         `mapstructure:"title"`
	Description     string         `mapstructure:"description"`
	MinParticipants any            `mapstructure:"minParticipants"`
	MaxParticipants any            `mapstructure:"maxParticipants"`
	Capabilities    []string       `mapstructure:"capabilities"`
	Permissions     []string       `mapstructure:"permissions"`
	Constraints     map[string]any `mapstructure:"constraints"`
}

var capabilitySynonyms = map[string]domain.Capability{
	"add":      domain.CapCreate,
	"submit":   domain.CapCreate,
	"view":     domain.CapRead,
	"edit":     domain.CapUpdate,
	"write":    domain.CapUpdate,
	"remove":   domain.CapDelete,
	"accept":   domain.CapApprove,
	"decline":  domain.CapReject,
	"attach":   domain.CapUpload,
	"finish":   domain.CapComplete,
	"delegate": domain.CapAssign,
}

// defaultRoles is used when the input declares no roles at all.
func defaultRoles() []domain.Role {
	one := 1
	return []domain.Role{
		{
			Name:            "requester",
			Description:     "Starts the coordination and states what is needed",
			MinParticipants: 1,
			MaxParticipants: &one,
			Capabilities: []domain.Capability{
				domain.CapCreate, domain.CapRead, domain.CapUpdate, domain.CapComment,
				domain.CapApprove, domain.CapReject,
			},
		},
		{
			Name:            "provider",
			Description:     "Fulfils the request and supplies evidence",
			MinParticipants: 1,
			Capabilities: []domain.Capability{
				domain.CapRead, domain.CapUpdate, domain.CapComment, domain.CapUpload, domain.CapComplete,
			},
		},
	}
}

func (p *pass) normalizeRoles(raw any) []domain.Role {
	items := entries(raw)
	if len(items) == 0 {
		p.recommend("roles", "no roles declared; using requester and provider")
		roles := defaultRoles()
		for _, r := range roles {
			p.roles.name(0, nil, r.Name)
		}
		return roles
	}

	roles := make([]domain.Role, 0, len(items))
	for _, it := range items {
		field := fmt.Sprintf("roles[%d]", it.index)
		var in roleInput
		if err := decode(it.value, &in); err != nil {
			p.recommend(field, "partially understood: %v", err)
		}

		role := domain.Role{
			Name:            p.roles.name(it.index, nil, in.Name, in.ID, it.key, in.Label, in.Title),
			Description:     strings.TrimSpace(in.Description),
			MinParticipants: 1,
			Constraints:     in.Constraints,
		}

		if in.MinParticipants != nil {
			if n, ok := nonNegativeInt(in.MinParticipants); ok {
				role.MinParticipants = n
			} else {
				p.recommend(field+".minParticipants", "%v is not a count; using 1", in.MinParticipants)
			}
		}
		if in.MaxParticipants != nil {
			if n, ok := positiveInt(in.MaxParticipants); ok {
				role.MaxParticipants = &n
			} else {
				p.recommend(field+".maxParticipants", "%v is not a positive count; treating as unbounded", in.MaxParticipants)
			}
		}

		caps := in.Capabilities
		if len(caps) == 0 {
			caps = in.Permissions
		}
		seen := map[domain.Capability]bool{}
		for _, c := range caps {
			cp := domain.Capability(strings.ToLower(strings.TrimSpace(c)))
			if syn, ok := capabilitySynonyms[string(cp)]; ok {
				cp = syn
			}
			if cp == "" || seen[cp] {
				continue
			}
			seen[cp] = true
			role.Capabilities = append(role.Capabilities, cp)
		}
		roles = append(roles, role)
	}
	return roles
}

func nonNegativeInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, v >= 0
	case int64:
		return int(v), v >= 0
	case float64:
		return int(v), v >= 0
	}
	if n, ok := positiveInt(raw); ok {
		return n, true
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "0" {
		return 0, true
	}
	return 0, false
}

// roleRefs rewrites role references through the role lookup table.
func (p *pass) roleRefs(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	seen := map[string]bool{}
	for _, ref := range refs {
		name, _ := p.roles.resolve(ref)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
