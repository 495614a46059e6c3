package strategy

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #region move-policy

// DefaultMovePolicy anchors on the first move and then concedes toward the
// role's reservation. Aggression and RiskAversion are kept in [0,1].
type DefaultMovePolicy struct {
	aggression   float64
	riskAversion float64
	concession   ConcessionPolicy
}

// NewMovePolicy builds a move policy. A nil concession policy defers to the
// one registered on the engine for the turn's role.
func NewMovePolicy(aggression, riskAversion float64, concession ConcessionPolicy) *DefaultMovePolicy {
	return &DefaultMovePolicy{
		aggression:   clamp(aggression, 0, 1),
		riskAversion: clamp(riskAversion, 0, 1),
		concession:   concession,
	}
}

func (p *DefaultMovePolicy) Aggression() float64   { return p.aggression }
func (p *DefaultMovePolicy) RiskAversion() float64 { return p.riskAversion }

// #endregion move-policy

// #region decide

// DecideNextOffer proposes a COUNTER. The opening move anchors; later moves
// concede, at least matching a share of any fresh opponent concession, and
// never cross the role's reservation.
func (p *DefaultMovePolicy) DecideNextOffer(t Turn) (deal.Offer, bool) {
	reservation := t.Deal.Reservation(t.Role)
	target := t.Deal.Target(t.Role)

	lastOwn, hasOwn := t.State.LastOfferFrom(t.Role)
	if !hasOwn {
		price := anchor(target, reservation, p.aggression, t.Role)
		return deal.NewOffer(t.Role, price, offerText(price, t), deal.IntentCounter), true
	}

	cp := p.concession
	if cp == nil {
		cp = t.Concession
	}
	if cp == nil {
		return deal.Offer{}, false
	}

	current := lastOwn.Price
	concession := cp.Concession(t, current, target, reservation)

	if lastOpp, ok := t.State.LastOfferFrom(t.Role.Opposite()); ok && lastOpp.RoundNumber > lastOwn.RoundNumber {
		if prevOpp, ok := previousOffer(t.State, lastOpp); ok {
			reactive := cp.ReactiveConcession(lastOpp.ConcessionAmount(prevOpp), t.TimePressure())
			concession = math.Max(concession, reactive)
		}
	}

	var price float64
	if t.Role == deal.Buyer {
		price = math.Min(current+concession, reservation)
	} else {
		price = math.Max(current-concession, reservation)
	}
	return deal.NewOffer(t.Role, price, offerText(price, t), deal.IntentCounter), true
}

// anchor opens from the counterpart's bound, shifted by aggression times
// the distance between the two bounds.
func anchor(target, reservation, aggression float64, role deal.Role) float64 {
	shift := math.Abs(reservation-target) * aggression
	if role == deal.Buyer {
		return target + shift
	}
	return target - shift
}

// previousOffer finds the offer by the same role made in an earlier round.
func previousOffer(v deal.StateView, current deal.Offer) (deal.Offer, bool) {
	offers := v.OffersFrom(current.Role)
	for i := len(offers) - 1; i >= 0; i-- {
		if offers[i].RoundNumber < current.RoundNumber {
			return offers[i], true
		}
	}
	return deal.Offer{}, false
}

func offerText(price float64, t Turn) string {
	if t.State.Len() == 0 {
		verb := "sell"
		if t.Role == deal.Buyer {
			verb = "pay"
		}
		return fmt.Sprintf("I can %s for $%.2f", verb, price)
	}
	return fmt.Sprintf("How about $%.2f?", price)
}

// #endregion decide

// #region accept-walk

// ShouldAccept is true when the opponent's last price is within the role's
// reservation, or close to it (under 5% of MSRP) once time pressure exceeds 0.8.
func (p *DefaultMovePolicy) ShouldAccept(t Turn) bool {
	opp, ok := t.State.LastOfferFrom(t.Role.Opposite())
	if !ok {
		return false
	}
	reservation := t.Deal.Reservation(t.Role)
	if t.Role == deal.Buyer && opp.Price <= reservation {
		return true
	}
	if t.Role == deal.Seller && opp.Price >= reservation {
		return true
	}
	if t.TimePressure() > 0.8 {
		return math.Abs(opp.Price-reservation) < math.Abs(t.Deal.MSRP()*0.05)
	}
	return false
}

// ShouldWalkAway is certain at the time limit. Otherwise an aggressive role
// facing a distant offer walks with probability 0.2, and a role whose trust
// has collapsed late in the episode walks with probability 0.15.
func (p *DefaultMovePolicy) ShouldWalkAway(t Turn) bool {
	round := t.State.CurrentRound()
	if round >= t.Deal.TimeLimit() {
		return true
	}
	if opp, ok := t.State.LastOfferFrom(t.Role.Opposite()); ok {
		gap := math.Abs(opp.Price - t.Deal.Reservation(t.Role))
		if p.aggression > 0.7 && gap > t.Deal.MSRP()*0.3 {
			return t.Float64() < 0.2
		}
	}
	if t.State.Trust(t.Role) < 0.3 && round > 5 {
		return t.Float64() < 0.15
	}
	return false
}

func (p *DefaultMovePolicy) String() string {
	return fmt.Sprintf("DefaultMovePolicy(aggression=%.2f, risk=%.2f)", p.aggression, p.riskAversion)
}

// #endregion accept-walk
