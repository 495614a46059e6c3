package strategy

// #region imports
import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #endregion

// #region turn

// Turn is everything a policy may read when deciding for Role. State is a
// read-only view; Rand is the engine's single random source.
type Turn struct {
	Deal  *deal.DealContext
	State deal.StateView
	Role  deal.Role
	Rand  *rand.Rand

	// Concession is the engine-registered concession policy for Role, used
	// by move policies that were built without one.
	Concession ConcessionPolicy

	// Beliefs is Role's model of its counterpart, if the caller keeps one.
	Beliefs Beliefs
}

// Beliefs exposes what one role has inferred about its counterpart.
type Beliefs interface {
	EstimatedReservation() (float64, bool)
}

// TimePressure is currentRound / timeLimit for this turn.
func (t Turn) TimePressure() float64 {
	return t.Deal.TimePressure(t.State.CurrentRound())
}

// Float64 draws from the turn's random source, falling back to the
// package-level generator when none is set.
func (t Turn) Float64() float64 {
	if t.Rand == nil {
		return rand.Float64()
	}
	return t.Rand.Float64()
}

// #endregion turn

// #region policies

// MovePolicy decides proposals, acceptance and walk-away for one role.
// DecideNextOffer returns ok=false when no legal move exists.
type MovePolicy interface {
	DecideNextOffer(t Turn) (deal.Offer, bool)
	ShouldAccept(t Turn) bool
	ShouldWalkAway(t Turn) bool
}

// ConcessionPolicy sizes a role's next concession. Results are never negative.
type ConcessionPolicy interface {
	Concession(t Turn, current, target, reservation float64) float64
	ReactiveConcession(opponentConcession, timePressure float64) float64
	Curve() Curve
}

// BluffPolicy decides when and how hard a role misstates its position.
type BluffPolicy interface {
	ShouldBluff(t Turn) bool
	BluffStrength(t Turn) float64
	BluffedPrice(truePrice, strength float64, role deal.Role) float64
}

// TruthfulnessPolicy detects bluffs and governs trust. In
// DetectBluffProbability and IsLieAllowed, t.Role is the detector or the
// would-be liar respectively.
type TruthfulnessPolicy interface {
	DetectBluffProbability(offer deal.Offer, t Turn) float64
	UpdateTrustOnBluff(l deal.TrustLedger, bluffer deal.Role, confidence float64)
	TrustDecay(current float64, round int) float64
	IsLieAllowed(t Turn, strength float64) bool
}

// #endregion policies

// #region curve

// Curve is the shape of a concession schedule over the episode.
type Curve int

const (
	Linear Curve = iota
	Boulware
	Conceder
	TitForTat
	TimeDependent
)

var curveNames = map[Curve]string{
	Linear:        "linear",
	Boulware:      "boulware",
	Conceder:      "conceder",
	TitForTat:     "tit_for_tat",
	TimeDependent: "time_dependent",
}

func (c Curve) String() string {
	if s, ok := curveNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Curve(%d)", int(c))
}

// ParseCurve accepts a curve name in any case; "-" and "_" are interchangeable.
func ParseCurve(s string) (Curve, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for c, name := range curveNames {
		if name == norm {
			return c, nil
		}
	}
	return Linear, fmt.Errorf("unknown concession curve %q", s)
}

func (c Curve) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Curve) UnmarshalText(b []byte) error {
	parsed, err := ParseCurve(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// #endregion curve

// #region helpers

func clamp(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion
