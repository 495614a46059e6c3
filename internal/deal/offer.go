package deal

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// #region intent

// Intent classifies what a move is trying to do.
type Intent string

const (
	IntentOffer     Intent = "OFFER"
	IntentCounter   Intent = "COUNTER"
	IntentJustify   Intent = "JUSTIFY"
	IntentThreaten  Intent = "THREATEN"
	IntentBluffPuff Intent = "BLUFF_PUFF"
	IntentWalkAway  Intent = "WALK_AWAY"
	IntentAccept    Intent = "ACCEPT"
	IntentReject    Intent = "REJECT"
	IntentInquire   Intent = "INQUIRE"
)

// Intents lists every intent in declaration order.
var Intents = []Intent{
	IntentOffer, IntentCounter, IntentJustify, IntentThreaten, IntentBluffPuff,
	IntentWalkAway, IntentAccept, IntentReject, IntentInquire,
}

// ParseIntent accepts an intent name in any case.
func ParseIntent(s string) (Intent, error) {
	up := Intent(strings.ToUpper(strings.TrimSpace(s)))
	for _, in := range Intents {
		if in == up {
			return in, nil
		}
	}
	return "", fmt.Errorf("unknown intent %q", s)
}

// #endregion intent

// #region offer

// Offer is a single negotiation move. RoundNumber is assigned when the
// offer is appended to a DialogueState; the value is never changed after.
type Offer struct {
	Role          Role      `json:"role" yaml:"role"`
	Price         float64   `json:"price" yaml:"price"`
	Utterance     string    `json:"utterance" yaml:"utterance"`
	Intent        Intent    `json:"intent" yaml:"intent"`
	IsBluff       bool      `json:"is_bluff" yaml:"is_bluff"`
	BluffStrength float64   `json:"bluff_strength" yaml:"bluff_strength"`
	TrustAfter    float64   `json:"trust_after" yaml:"trust_after"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
	RoundNumber   int       `json:"round" yaml:"round"`
}

// NewOffer builds a truthful move.
func NewOffer(role Role, price float64, utterance string, intent Intent) Offer {
	return Offer{
		Role:       role,
		Price:      price,
		Utterance:  utterance,
		Intent:     intent,
		TrustAfter: 1.0,
	}
}

// NewBluff builds a bluffing move with BLUFF_PUFF intent.
func NewBluff(role Role, price float64, utterance string, strength float64) Offer {
	o := NewOffer(role, price, utterance, IntentBluffPuff)
	o.IsBluff = true
	o.BluffStrength = clamp01(strength)
	return o
}

// IsConcessionFrom reports whether o moves toward agreement relative to
// prev: same role, buyer strictly up, seller strictly down.
func (o Offer) IsConcessionFrom(prev Offer) bool {
	if prev.Role != o.Role {
		return false
	}
	if o.Role == Buyer {
		return o.Price > prev.Price
	}
	return o.Price < prev.Price
}

// ConcessionAmount is |o.Price - prev.Price| when o is a concession from prev, else 0.
func (o Offer) ConcessionAmount(prev Offer) float64 {
	if !o.IsConcessionFrom(prev) {
		return 0
	}
	return math.Abs(o.Price - prev.Price)
}

func (o Offer) String() string {
	return fmt.Sprintf("Offer{%s, $%.2f, intent=%s, bluff=%v}", o.Role, o.Price, o.Intent, o.IsBluff)
}

// #endregion offer
