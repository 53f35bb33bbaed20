package news

import "strings"

// Profile describes the organization whose exposure Raven evaluates. It is
// loaded once at startup and passed explicitly into every pipeline call.
type Profile struct {
	Name             string           `yaml:"name" json:"name"`
	Industry         string           `yaml:"industry" json:"industry"`
	Size             string           `yaml:"size" json:"size"`
	Region           string           `yaml:"region" json:"region"`
	TechStack        TechStack        `yaml:"tech_stack" json:"tech_stack"`
	SecurityConcerns SecurityConcerns `yaml:"security_concerns" json:"security_concerns"`
	Assets           Assets           `yaml:"assets" json:"assets"`
}

// TechStack lists the technologies the organization runs.
type TechStack struct {
	Cloud          []string `yaml:"cloud" json:"cloud"`
	Languages      []string `yaml:"languages" json:"languages"`
	Frameworks     []string `yaml:"frameworks" json:"frameworks"`
	Infrastructure []string `yaml:"infrastructure" json:"infrastructure"`
}

// SecurityConcerns groups the tiers of concern used for matching.
type SecurityConcerns struct {
	HighPriority        []string `yaml:"high_priority" json:"high_priority"`
	Compliance          []string `yaml:"compliance" json:"compliance"`
	ThirdPartyProviders []string `yaml:"3rd_party_providers" json:"third_party_providers"`
}

// Assets names the systems the organization cannot afford to lose.
type Assets struct {
	CriticalSystems []string `yaml:"critical_systems" json:"critical_systems"`
}

// TermKind classifies a profile term by the part of the profile it came from.
type TermKind string

const (
	KindCloud              TermKind = "cloud"
	KindLanguage           TermKind = "language"
	KindFramework          TermKind = "framework"
	KindInfrastructure     TermKind = "infrastructure"
	KindHighPriority       TermKind = "high_priority"
	KindCompliance         TermKind = "compliance"
	KindThirdPartyProvider TermKind = "third_party_provider"
	KindCriticalSystem     TermKind = "critical_system"
)

// Label is the human phrasing used in rationales, e.g. "third-party provider".
func (k TermKind) Label() string {
	switch k {
	case KindCloud:
		return "cloud platform"
	case KindLanguage:
		return "language"
	case KindFramework:
		return "framework"
	case KindInfrastructure:
		return "infrastructure component"
	case KindHighPriority:
		return "high-priority topic"
	case KindCompliance:
		return "compliance regime"
	case KindThirdPartyProvider:
		return "third-party provider"
	case KindCriticalSystem:
		return "critical system"
	default:
		return string(k)
	}
}

// Term is one matchable profile element.
type Term struct {
	Text string
	Kind TermKind
}

// Terms flattens the profile into matchable terms. Blank entries are skipped
// and a term listed twice under the same kind appears once.
func (p *Profile) Terms() []Term {
	if p == nil {
		return nil
	}

	groups := []struct {
		kind  TermKind
		items []string
	}{
		{KindThirdPartyProvider, p.SecurityConcerns.ThirdPartyProviders},
		{KindCriticalSystem, p.Assets.CriticalSystems},
		{KindCompliance, p.SecurityConcerns.Compliance},
		{KindHighPriority, p.SecurityConcerns.HighPriority},
		{KindCloud, p.TechStack.Cloud},
		{KindInfrastructure, p.TechStack.Infrastructure},
		{KindFramework, p.TechStack.Frameworks},
		{KindLanguage, p.TechStack.Languages},
	}

	var out []Term
	for _, g := range groups {
		seen := make(map[string]struct{}, len(g.items))
		for _, s := range g.items {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			key := strings.ToLower(s)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Term{Text: s, Kind: g.kind})
		}
	}
	return out
}
