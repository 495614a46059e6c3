package strategy

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// DefaultBluffPolicy bluffs with a base probability scaled by how much the
// counterpart still trusts the bluffer.
type DefaultBluffPolicy struct {
	probability float64
	maxStrength float64
}

// NewBluffPolicy builds a bluff policy; both inputs are clamped to [0,1].
func NewBluffPolicy(probability, maxStrength float64) *DefaultBluffPolicy {
	return &DefaultBluffPolicy{
		probability: clamp(probability, 0, 1),
		maxStrength: clamp(maxStrength, 0, 1),
	}
}

func (p *DefaultBluffPolicy) Probability() float64 { return p.probability }
func (p *DefaultBluffPolicy) MaxStrength() float64 { return p.maxStrength }

// ShouldBluff never fires when bluffing is forbidden or before round 2.
func (p *DefaultBluffPolicy) ShouldBluff(t Turn) bool {
	if !t.Deal.AllowBluffing() || t.State.CurrentRound() < 2 {
		return false
	}
	prob := p.probability * t.State.Trust(t.Role.Opposite())
	if t.State.BluffSuccessRate(t.Role) < 0.5 {
		prob *= 0.5
	}
	if t.TimePressure() > 0.6 {
		prob *= 1.5
	}
	return t.Float64() < prob
}

// BluffStrength is max * opponent trust * own success rate * U[0.7,1.0],
// kept within [0.1, max].
func (p *DefaultBluffPolicy) BluffStrength(t Turn) float64 {
	s := p.maxStrength
	s *= t.State.Trust(t.Role.Opposite())
	s *= t.State.BluffSuccessRate(t.Role)
	s *= 0.7 + t.Float64()*0.3
	return math.Max(0.1, math.Min(p.maxStrength, s))
}

// BluffedPrice shifts the true price by up to 30%: buyers claim less,
// sellers claim more.
func (p *DefaultBluffPolicy) BluffedPrice(truePrice, strength float64, role deal.Role) float64 {
	amount := truePrice * strength * 0.3
	if role == deal.Buyer {
		return truePrice - amount
	}
	return truePrice + amount
}

func (p *DefaultBluffPolicy) String() string {
	return fmt.Sprintf("DefaultBluffPolicy(p=%.2f, max=%.2f)", p.probability, p.maxStrength)
}
