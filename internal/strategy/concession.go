package strategy

import (
	"fmt"
	"math"
)

// #region concession-policy

// DefaultConcessionPolicy concedes a fraction of the remaining gap to the
// role's reservation, shaped by a Curve. Rate is kept in [0.01, 0.5].
type DefaultConcessionPolicy struct {
	curve Curve
	rate  float64
}

// NewConcessionPolicy builds a policy with the given curve and base rate.
func NewConcessionPolicy(curve Curve, rate float64) *DefaultConcessionPolicy {
	return &DefaultConcessionPolicy{curve: curve, rate: clamp(rate, 0.01, 0.5)}
}

func (p *DefaultConcessionPolicy) Curve() Curve  { return p.curve }
func (p *DefaultConcessionPolicy) Rate() float64 { return p.rate }

// Concession returns how far the role should move from current this turn.
func (p *DefaultConcessionPolicy) Concession(t Turn, current, target, reservation float64) float64 {
	gap := math.Abs(reservation - current)
	if gap < 0.01 {
		return 0
	}
	base := gap * p.rate
	progress := t.TimePressure()

	switch p.curve {
	case Boulware:
		return base * progress * progress
	case Conceder:
		return base * (1 - progress) * (1 - progress)
	case TitForTat:
		opp := t.State.OffersFrom(t.Role.Opposite())
		if len(opp) >= 2 {
			last, prev := opp[len(opp)-1], opp[len(opp)-2]
			return math.Min(base, last.ConcessionAmount(prev))
		}
		return base * 0.5
	case TimeDependent:
		return base * (1 + math.Pow(progress, 1.5))
	default:
		return base
	}
}

// ReactiveConcession matches 50% to 100% of the opponent's last move,
// rising with time pressure.
func (p *DefaultConcessionPolicy) ReactiveConcession(opponentConcession, timePressure float64) float64 {
	return opponentConcession * (0.5 + 0.5*timePressure)
}

func (p *DefaultConcessionPolicy) String() string {
	return fmt.Sprintf("DefaultConcessionPolicy(%s, %.2f)", p.curve, p.rate)
}

// #endregion
