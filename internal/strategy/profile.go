package strategy

// #region imports
import (
	"fmt"
	"sort"
)

// #endregion

// #region profile

// Profile is a named parameter set for one negotiating agent.
type Profile struct {
	Name             string  `toml:"name" json:"name" yaml:"name"`
	Aggression       float64 `toml:"aggression" json:"aggression" yaml:"aggression"`
	RiskAversion     float64 `toml:"risk_aversion" json:"risk_aversion" yaml:"risk_aversion"`
	Curve            Curve   `toml:"curve" json:"curve" yaml:"curve"`
	ConcessionRate   float64 `toml:"concession_rate" json:"concession_rate" yaml:"concession_rate"`
	BluffProbability float64 `toml:"bluff_probability" json:"bluff_probability" yaml:"bluff_probability"`
	MaxBluffStrength float64 `toml:"max_bluff_strength" json:"max_bluff_strength" yaml:"max_bluff_strength"`
}

// Policies holds the per-role policies a profile produces.
type Policies struct {
	Move       *DefaultMovePolicy
	Concession *DefaultConcessionPolicy
	Bluff      *DefaultBluffPolicy
}

// Policies builds the move, concession and bluff policies for the profile.
// A profile with zero bluff probability still gets a bluff policy that
// never fires.
func (p Profile) Policies() Policies {
	cp := NewConcessionPolicy(p.Curve, p.ConcessionRate)
	return Policies{
		Move:       NewMovePolicy(p.Aggression, p.RiskAversion, cp),
		Concession: cp,
		Bluff:      NewBluffPolicy(p.BluffProbability, p.MaxBluffStrength),
	}
}

func (p Profile) String() string {
	return fmt.Sprintf("%s(aggr=%.2f, %s@%.2f, bluff=%.2f/%.2f)",
		p.Name, p.Aggression, p.Curve, p.ConcessionRate, p.BluffProbability, p.MaxBluffStrength)
}

// #endregion profile

// #region builtins

// Profiles is the built-in profile set, keyed by name.
var Profiles = map[string]Profile{
	"cooperative": {Name: "cooperative", Aggression: 0.3, RiskAversion: 0.6, Curve: Linear, ConcessionRate: 0.15},
	"balanced":    {Name: "balanced", Aggression: 0.5, RiskAversion: 0.5, Curve: Linear, ConcessionRate: 0.1, BluffProbability: 0.2, MaxBluffStrength: 0.5},
	"hardball":    {Name: "hardball", Aggression: 0.8, RiskAversion: 0.2, Curve: Boulware, ConcessionRate: 0.1, BluffProbability: 0.4, MaxBluffStrength: 0.8},
	"conceder":    {Name: "conceder", Aggression: 0.4, RiskAversion: 0.7, Curve: Conceder, ConcessionRate: 0.2, BluffProbability: 0.1, MaxBluffStrength: 0.3},
	"mirror":      {Name: "mirror", Aggression: 0.5, RiskAversion: 0.5, Curve: TitForTat, ConcessionRate: 0.1, BluffProbability: 0.2, MaxBluffStrength: 0.5},
	"deadline":    {Name: "deadline", Aggression: 0.6, RiskAversion: 0.4, Curve: TimeDependent, ConcessionRate: 0.08, BluffProbability: 0.3, MaxBluffStrength: 0.6},
}

// DefaultProfile is used when no profile is named.
const DefaultProfile = "balanced"

// LookupProfile returns a built-in profile by name.
func LookupProfile(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (have %v)", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames lists built-in profile names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for n := range Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// #endregion builtins
