package strategy

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #region truthfulness-policy

const (
	// BluffPenaltyFactor scales detection confidence into lost trust.
	BluffPenaltyFactor = 0.15
	// TrustDecayFloor is the level natural decay never pushes trust below.
	TrustDecayFloor = 0.5
)

// DefaultTruthfulnessPolicy scores bluffs from concession irregularities,
// distance from the expected reservation and the detector's own suspicion.
type DefaultTruthfulnessPolicy struct {
	sensitivity float64
	decayRate   float64

	// UseBeliefs makes detection compare against the detector's modeled
	// estimate of the offerer's reservation instead of the true bound.
	UseBeliefs bool
}

// NewTruthfulnessPolicy clamps sensitivity to [0,1] and decay rate to [0,0.1].
func NewTruthfulnessPolicy(sensitivity, decayRate float64) *DefaultTruthfulnessPolicy {
	return &DefaultTruthfulnessPolicy{
		sensitivity: clamp(sensitivity, 0, 1),
		decayRate:   clamp(decayRate, 0, 0.1),
	}
}

func (p *DefaultTruthfulnessPolicy) Sensitivity() float64 { return p.sensitivity }
func (p *DefaultTruthfulnessPolicy) DecayRate() float64   { return p.decayRate }

// #endregion truthfulness-policy

// #region detect

// DetectBluffProbability returns the chance that t.Role sees through offer.
// The offer is expected to already be in t.State.
func (p *DefaultTruthfulnessPolicy) DetectBluffProbability(offer deal.Offer, t Turn) float64 {
	if offer.Role == t.Role {
		return 0
	}
	prob := 0.0

	offers := t.State.OffersFrom(offer.Role)
	if len(offers) > 2 {
		avg := averagePositiveConcession(offers)
		current := offer.ConcessionAmount(offers[len(offers)-2])
		if current > avg*2.0 {
			prob += 0.3
		}
		if current < avg*0.3 && t.State.CurrentRound() > 5 {
			prob += 0.2
		}
	}

	expected := p.expectedReservation(offer.Role, t)
	if zone := t.Deal.ZOPASize(); zone > 0 && math.Abs(offer.Price-expected) > zone*0.5 {
		prob += 0.25
	}

	if t.State.Trust(t.Role) < 0.5 {
		prob += 0.2
	}

	return math.Min(1.0, prob*p.sensitivity)
}

func (p *DefaultTruthfulnessPolicy) expectedReservation(of deal.Role, t Turn) float64 {
	if p.UseBeliefs && t.Beliefs != nil {
		if est, ok := t.Beliefs.EstimatedReservation(); ok {
			return est
		}
	}
	return t.Deal.Reservation(of)
}

func averagePositiveConcession(offers []deal.Offer) float64 {
	total, n := 0.0, 0
	for i := 1; i < len(offers); i++ {
		if c := offers[i].ConcessionAmount(offers[i-1]); c > 0 {
			total += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// #endregion detect

// #region trust

// UpdateTrustOnBluff charges the victim exactly 0.15*confidence of trust
// and counts one detection against the bluffer.
func (p *DefaultTruthfulnessPolicy) UpdateTrustOnBluff(l deal.TrustLedger, bluffer deal.Role, confidence float64) {
	l.ApplyBluffPenalty(bluffer, BluffPenaltyFactor*clamp(confidence, 0, 1))
}

// TrustDecay lowers trust by rate*round but not below 0.5. Trust already
// under the floor is left where bluff penalties put it.
func (p *DefaultTruthfulnessPolicy) TrustDecay(current float64, round int) float64 {
	if current < TrustDecayFloor {
		return current
	}
	return math.Max(TrustDecayFloor, current-p.decayRate*float64(round))
}

// IsLieAllowed gates a bluff of the given strength for t.Role.
func (p *DefaultTruthfulnessPolicy) IsLieAllowed(t Turn, strength float64) bool {
	if !t.Deal.AllowBluffing() {
		return false
	}
	if !t.Deal.AllowPuffing() && strength > 0.3 {
		return false
	}
	if strength*0.8 > 0.7 {
		return false
	}
	if t.State.Trust(t.Role.Opposite()) < 0.3 && strength > 0.5 {
		return false
	}
	return true
}

func (p *DefaultTruthfulnessPolicy) String() string {
	return fmt.Sprintf("DefaultTruthfulnessPolicy(sensitivity=%.2f, decay=%.3f)", p.sensitivity, p.decayRate)
}

// #endregion trust
