package deal

import (
	"fmt"
	"math"
)

// #region state-view

// StateView is the read-only face of a DialogueState. Policies and
// listeners receive a StateView; only the engine holds the mutable state.
type StateView interface {
	History() []Offer
	Len() int
	LastOfferFrom(r Role) (Offer, bool)
	OffersFrom(r Role) []Offer
	Trust(r Role) float64
	Terminal() bool
	DealPrice() (float64, bool)
	HasAgreement() bool
	CurrentRound() int
	BluffsAttempted(r Role) int
	BluffsDetected(r Role) int
	BluffSuccessRate(r Role) float64
}

// TrustLedger is the narrow write surface a truthfulness policy needs to
// record a detected bluff.
type TrustLedger interface {
	ApplyBluffPenalty(bluffer Role, penalty float64)
}

// #endregion state-view

// #region dialogue-state

// DialogueState is the mutable per-episode history. Trust(X) is X's trust
// in its counterpart; both trust levels start at 1.0 and stay in [0,1].
type DialogueState struct {
	history      []Offer
	trust        [2]float64
	terminal     bool
	dealPrice    *float64
	currentRound int
	attempted    [2]int
	detected     [2]int
}

// NewDialogueState returns an empty state with full mutual trust.
func NewDialogueState() *DialogueState {
	return &DialogueState{trust: [2]float64{1.0, 1.0}}
}

var (
	_ StateView   = (*DialogueState)(nil)
	_ TrustLedger = (*DialogueState)(nil)
)

// #endregion dialogue-state

// #region history

// Append stamps the offer with the current round and the counterpart's
// trust, records it, and returns the stored copy.
func (s *DialogueState) Append(o Offer) Offer {
	o.RoundNumber = s.currentRound
	o.TrustAfter = s.trust[o.Role.Opposite()]
	s.history = append(s.history, o)
	if o.IsBluff {
		s.attempted[o.Role]++
	}
	return o
}

// History returns a copy of every offer in order.
func (s *DialogueState) History() []Offer {
	out := make([]Offer, len(s.history))
	copy(out, s.history)
	return out
}

// Len is the number of recorded offers.
func (s *DialogueState) Len() int {
	return len(s.history)
}

// LastOfferFrom returns the most recent offer made by r.
func (s *DialogueState) LastOfferFrom(r Role) (Offer, bool) {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == r {
			return s.history[i], true
		}
	}
	return Offer{}, false
}

// OffersFrom returns r's offers in order.
func (s *DialogueState) OffersFrom(r Role) []Offer {
	var out []Offer
	for _, o := range s.history {
		if o.Role == r {
			out = append(out, o)
		}
	}
	return out
}

// #endregion history

// #region trust

// Trust returns r's trust in its counterpart.
func (s *DialogueState) Trust(r Role) float64 {
	return s.trust[r]
}

// SetTrust overwrites r's trust, clamped to [0,1].
func (s *DialogueState) SetTrust(r Role, v float64) {
	s.trust[r] = clamp01(v)
}

// DecayTrust stores the result of natural per-round decay for r.
// The decay floor belongs to the truthfulness policy; this only clamps.
func (s *DialogueState) DecayTrust(r Role, decayed float64) {
	s.trust[r] = clamp01(decayed)
}

// ApplyBluffPenalty lowers the victim's (bluffer.Opposite()) trust by
// penalty, clamped at 0, and counts one detection against the bluffer.
// Unlike decay, this path may take trust below 0.5.
func (s *DialogueState) ApplyBluffPenalty(bluffer Role, penalty float64) {
	victim := bluffer.Opposite()
	s.trust[victim] = clamp01(s.trust[victim] - penalty)
	s.detected[bluffer]++
}

// #endregion trust

// #region outcome

// Terminal reports whether the episode has ended.
func (s *DialogueState) Terminal() bool {
	return s.terminal
}

// SetTerminal ends the episode without a deal price.
func (s *DialogueState) SetTerminal() {
	s.terminal = true
}

// DealPrice returns the agreed price if one was set.
func (s *DialogueState) DealPrice() (float64, bool) {
	if s.dealPrice == nil {
		return 0, false
	}
	return *s.dealPrice, true
}

// SetDealPrice records agreement and ends the episode.
func (s *DialogueState) SetDealPrice(p float64) {
	s.dealPrice = &p
	s.terminal = true
}

// HasAgreement is terminal with a deal price.
func (s *DialogueState) HasAgreement() bool {
	return s.terminal && s.dealPrice != nil
}

// CurrentRound is the number of completed rounds.
func (s *DialogueState) CurrentRound() int {
	return s.currentRound
}

// NextRound advances the round counter.
func (s *DialogueState) NextRound() {
	s.currentRound++
}

// #endregion outcome

// #region bluff-counters

func (s *DialogueState) BluffsAttempted(r Role) int { return s.attempted[r] }
func (s *DialogueState) BluffsDetected(r Role) int  { return s.detected[r] }

// BluffSuccessRate is 1 - detected/attempted, or 1.0 with no attempts.
func (s *DialogueState) BluffSuccessRate(r Role) float64 {
	if s.attempted[r] == 0 {
		return 1.0
	}
	return 1.0 - float64(s.detected[r])/float64(s.attempted[r])
}

// #endregion bluff-counters

// #region snapshot

// Snapshot is a plain serializable copy of a state.
type Snapshot struct {
	Round          int      `json:"rounds" yaml:"rounds"`
	Terminal       bool     `json:"terminal" yaml:"terminal"`
	Agreed         bool     `json:"agreed" yaml:"agreed"`
	DealPrice      *float64 `json:"final_price" yaml:"final_price"`
	BuyerTrust     float64  `json:"buyer_trust" yaml:"buyer_trust"`
	SellerTrust    float64  `json:"seller_trust" yaml:"seller_trust"`
	BuyerBluffs    int      `json:"buyer_bluffs" yaml:"buyer_bluffs"`
	SellerBluffs   int      `json:"seller_bluffs" yaml:"seller_bluffs"`
	BuyerDetected  int      `json:"buyer_bluffs_detected" yaml:"buyer_bluffs_detected"`
	SellerDetected int      `json:"seller_bluffs_detected" yaml:"seller_bluffs_detected"`
	Offers         []Offer  `json:"offers" yaml:"offers"`
}

// TakeSnapshot copies any StateView into a Snapshot.
func TakeSnapshot(v StateView) Snapshot {
	snap := Snapshot{
		Round:          v.CurrentRound(),
		Terminal:       v.Terminal(),
		Agreed:         v.HasAgreement(),
		BuyerTrust:     v.Trust(Buyer),
		SellerTrust:    v.Trust(Seller),
		BuyerBluffs:    v.BluffsAttempted(Buyer),
		SellerBluffs:   v.BluffsAttempted(Seller),
		BuyerDetected:  v.BluffsDetected(Buyer),
		SellerDetected: v.BluffsDetected(Seller),
		Offers:         v.History(),
	}
	if p, ok := v.DealPrice(); ok {
		snap.DealPrice = &p
	}
	return snap
}

func (s *DialogueState) String() string {
	price, _ := s.DealPrice()
	return fmt.Sprintf("DialogueState{round=%d, history=%d offers, terminal=%v, deal=$%.2f, trust=B:%.2f/S:%.2f}",
		s.currentRound, len(s.history), s.terminal, price, s.trust[Buyer], s.trust[Seller])
}

// #endregion snapshot

// #region helpers

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// #endregion helpers
