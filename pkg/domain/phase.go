package domain

import "encoding/json"

// PhaseName identifies one of the five fixed coordination phases.
type PhaseName string

const (
	PhaseExpress  PhaseName = "express"
	PhaseExplore  PhaseName = "explore"
	PhaseCommit   PhaseName = "commit"
	PhaseEvidence PhaseName = "evidence"
	PhaseConfirm  PhaseName = "confirm"
)

// Phases lists the fixed phases in their canonical order.
var Phases = []PhaseName{PhaseExpress, PhaseExplore, PhaseCommit, PhaseEvidence, PhaseConfirm}

// PhaseKind classifies a State by the phase it belongs to.
type PhaseKind string

const (
	KindCollect   PhaseKind = "collect"
	KindNegotiate PhaseKind = "negotiate"
	KindCommit    PhaseKind = "commit"
	KindEvidence  PhaseKind = "evidence"
	KindSignoff   PhaseKind = "signoff"
)

// PhaseKinds lists the valid state kinds in phase order.
var PhaseKinds = []PhaseKind{KindCollect, KindNegotiate, KindCommit, KindEvidence, KindSignoff}

// Valid reports whether k is a known phase kind.
func (k PhaseKind) Valid() bool {
	for _, known := range PhaseKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Phase returns the phase a state kind belongs to.
func (k PhaseKind) Phase() PhaseName {
	switch k {
	case KindNegotiate:
		return PhaseExplore
	case KindCommit:
		return PhaseCommit
	case KindEvidence:
		return PhaseEvidence
	case KindSignoff:
		return PhaseConfirm
	default:
		return PhaseExpress
	}
}

// KindOf returns the state kind for a phase name.
func KindOf(p PhaseName) PhaseKind {
	switch p {
	case PhaseExplore:
		return KindNegotiate
	case PhaseCommit:
		return KindCommit
	case PhaseEvidence:
		return KindEvidence
	case PhaseConfirm:
		return KindSignoff
	default:
		return KindCollect
	}
}

// PhaseConfig configures a single phase of the coordination pattern.
// RequireDeposit, RequireProof and AutoComplete only apply to the commit,
// evidence and confirm phases respectively.
type PhaseConfig struct {
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
	// Timeout is expressed in minutes.
	Timeout *int `json:"timeout,omitempty"`

	RequireDeposit bool `json:"requireDeposit,omitempty"`
	RequireProof   bool `json:"requireProof,omitempty"`
	AutoComplete   bool `json:"autoComplete,omitempty"`
}

// Pattern holds one PhaseConfig per fixed phase.
type Pattern struct {
	Express  PhaseConfig `json:"express"`
	Explore  PhaseConfig `json:"explore"`
	Commit   PhaseConfig `json:"commit"`
	Evidence PhaseConfig `json:"evidence"`
	Confirm  PhaseConfig `json:"confirm"`
}

// Phase returns the configuration of the named phase.
func (p *Pattern) Phase(name PhaseName) *PhaseConfig {
	switch name {
	case PhaseExpress:
		return &p.Express
	case PhaseExplore:
		return &p.Explore
	case PhaseCommit:
		return &p.Commit
	case PhaseEvidence:
		return &p.Evidence
	case PhaseConfirm:
		return &p.Confirm
	}
	return nil
}

// MarshalJSON emits every phase with only the flags that apply to it, so
// that requireProof=false on evidence survives a round trip.
func (p Pattern) MarshalJSON() ([]byte, error) {
	out := make(map[PhaseName]map[string]any, len(Phases))
	for _, name := range Phases {
		cfg := p.Phase(name)
		m := map[string]any{"enabled": cfg.Enabled}
		if cfg.Description != "" {
			m["description"] = cfg.Description
		}
		if cfg.Timeout != nil {
			m["timeout"] = *cfg.Timeout
		}
		switch name {
		case PhaseCommit:
			m["requireDeposit"] = cfg.RequireDeposit
		case PhaseEvidence:
			m["requireProof"] = cfg.RequireProof
		case PhaseConfirm:
			m["autoComplete"] = cfg.AutoComplete
		}
		out[name] = m
	}
	return json.Marshal(out)
}
