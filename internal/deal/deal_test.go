package deal

import (
	"math"
	"math/rand/v2"
	"testing"
)

// #region role-tests

func TestRoleOpposite(t *testing.T) {
	for _, r := range Roles {
		if r.Opposite() == r {
			t.Errorf("%s: opposite equals self", r)
		}
		if r.Opposite().Opposite() != r {
			t.Errorf("%s: opposite is not involutive", r)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"buyer", Buyer, false},
		{"SELLER", Seller, false},
		{" Seller ", Seller, false},
		{"broker", Buyer, true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseRole(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseRole(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// #endregion role-tests

// #region context-tests

func TestZOPAAndBATNA(t *testing.T) {
	tests := []struct {
		name       string
		buyerValue float64
		sellerCost float64
		wantZOPA   float64
		wantBATNA  bool
	}{
		{"positive-zone", 150, 100, 50, true},
		{"touching", 100, 100, 0, true},
		{"no-zone", 90, 100, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDealContext(200, tt.buyerValue, tt.sellerCost, 10)
			if got := c.ZOPASize(); got != tt.wantZOPA {
				t.Errorf("ZOPASize = %v, want %v", got, tt.wantZOPA)
			}
			if got := c.HasBATNA(); got != tt.wantBATNA {
				t.Errorf("HasBATNA = %v, want %v", got, tt.wantBATNA)
			}
		})
	}
}

func TestZOPAProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		bv := rng.Float64() * 2000
		sc := rng.Float64() * 2000
		c := NewDealContext(1000, bv, sc, 10)
		if c.ZOPASize() != math.Max(0, bv-sc) {
			t.Fatalf("ZOPASize(%v,%v) = %v", bv, sc, c.ZOPASize())
		}
		if c.HasBATNA() != (bv >= sc) {
			t.Fatalf("HasBATNA(%v,%v) = %v", bv, sc, c.HasBATNA())
		}
	}
}

func TestReservationAndTarget(t *testing.T) {
	c := NewDealContext(1000, 900, 700, 10)
	if c.Reservation(Buyer) != 900 || c.Reservation(Seller) != 700 {
		t.Fatalf("reservations: buyer=%v seller=%v", c.Reservation(Buyer), c.Reservation(Seller))
	}
	if c.Target(Buyer) != 700 || c.Target(Seller) != 900 {
		t.Fatalf("targets: buyer=%v seller=%v", c.Target(Buyer), c.Target(Seller))
	}
}

func TestTimeLimitFloor(t *testing.T) {
	c := NewDealContext(100, 90, 80, 0)
	if c.TimeLimit() != 1 {
		t.Fatalf("expected time limit 1, got %d", c.TimeLimit())
	}
}

func TestContextOptions(t *testing.T) {
	c := NewDealContext(100, 90, 80, 5, WithBluffing(false), WithPuffing(false), WithItem(Item{Title: "bike"}))
	if c.AllowBluffing() || c.AllowPuffing() {
		t.Fatal("expected bluffing and puffing disabled")
	}
	if c.Item().Title != "bike" {
		t.Fatalf("expected item bike, got %q", c.Item().Title)
	}
}

// #endregion context-tests

// #region offer-tests

func concessions(t *testing.T, role Role, prices []float64) ([]bool, []float64) {
	t.Helper()
	var flags []bool
	var amounts []float64
	for i := 1; i < len(prices); i++ {
		prev := NewOffer(role, prices[i-1], "", IntentCounter)
		cur := NewOffer(role, prices[i], "", IntentCounter)
		flags = append(flags, cur.IsConcessionFrom(prev))
		amounts = append(amounts, cur.ConcessionAmount(prev))
	}
	return flags, amounts
}

func TestIsConcessionFrom(t *testing.T) {
	tests := []struct {
		name        string
		role        Role
		prices      []float64
		wantFlags   []bool
		wantAmounts []float64
	}{
		{"buyer-rising", Buyer, []float64{80, 90, 95}, []bool{true, true}, []float64{10, 5}},
		{"seller-falling", Seller, []float64{200, 180, 170}, []bool{true, true}, []float64{20, 10}},
		{"buyer-falling", Buyer, []float64{90, 80}, []bool{false}, []float64{0}},
		{"seller-rising", Seller, []float64{170, 180}, []bool{false}, []float64{0}},
		{"flat", Buyer, []float64{100, 100}, []bool{false}, []float64{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, amounts := concessions(t, tt.role, tt.prices)
			for i := range flags {
				if flags[i] != tt.wantFlags[i] {
					t.Errorf("step %d: concession=%v, want %v", i, flags[i], tt.wantFlags[i])
				}
				if amounts[i] != tt.wantAmounts[i] {
					t.Errorf("step %d: amount=%v, want %v", i, amounts[i], tt.wantAmounts[i])
				}
			}
		})
	}
}

func TestConcessionRequiresSameRole(t *testing.T) {
	prev := NewOffer(Seller, 100, "", IntentCounter)
	cur := NewOffer(Buyer, 120, "", IntentCounter)
	if cur.IsConcessionFrom(prev) {
		t.Fatal("cross-role move must not count as a concession")
	}
}

func TestNewBluffClampsStrength(t *testing.T) {
	b := NewBluff(Seller, 100, "final offer", 1.7)
	if !b.IsBluff || b.Intent != IntentBluffPuff {
		t.Fatalf("expected bluff with BLUFF_PUFF intent, got %+v", b)
	}
	if b.BluffStrength != 1.0 {
		t.Fatalf("expected strength clamped to 1, got %v", b.BluffStrength)
	}
}

func TestParseIntent(t *testing.T) {
	in, err := ParseIntent("walk_away")
	if err != nil || in != IntentWalkAway {
		t.Fatalf("ParseIntent(walk_away) = %q, %v", in, err)
	}
	if _, err := ParseIntent("haggle"); err == nil {
		t.Fatal("expected error for unknown intent")
	}
}

// #endregion offer-tests

// #region state-tests

func TestAppendAssignsRoundAndCountsBluffs(t *testing.T) {
	s := NewDialogueState()
	first := s.Append(NewOffer(Buyer, 100, "", IntentOffer))
	s.NextRound()
	second := s.Append(NewBluff(Seller, 200, "", 0.5))

	if first.RoundNumber != 0 || second.RoundNumber != 1 {
		t.Fatalf("rounds: %d, %d", first.RoundNumber, second.RoundNumber)
	}
	if s.BluffsAttempted(Seller) != 1 || s.BluffsAttempted(Buyer) != 0 {
		t.Fatalf("bluff counts: seller=%d buyer=%d", s.BluffsAttempted(Seller), s.BluffsAttempted(Buyer))
	}
	last, ok := s.LastOfferFrom(Buyer)
	if !ok || last.Price != 100 {
		t.Fatalf("LastOfferFrom(Buyer) = %+v, %v", last, ok)
	}
	if _, ok := NewDialogueState().LastOfferFrom(Seller); ok {
		t.Fatal("expected no offer in empty state")
	}
}

func TestHistoryIsACopy(t *testing.T) {
	s := NewDialogueState()
	s.Append(NewOffer(Buyer, 100, "", IntentOffer))
	h := s.History()
	h[0].Price = 1
	if got, _ := s.LastOfferFrom(Buyer); got.Price != 100 {
		t.Fatalf("mutating History() leaked into state: %v", got.Price)
	}
}

func TestSetDealPriceSetsTerminal(t *testing.T) {
	s := NewDialogueState()
	if s.HasAgreement() {
		t.Fatal("fresh state must not have agreement")
	}
	s.SetDealPrice(800)
	if !s.Terminal() || !s.HasAgreement() {
		t.Fatal("SetDealPrice must set terminal and agreement")
	}
	if p, ok := s.DealPrice(); !ok || p != 800 {
		t.Fatalf("DealPrice = %v, %v", p, ok)
	}

	walk := NewDialogueState()
	walk.SetTerminal()
	if walk.HasAgreement() {
		t.Fatal("terminal without price is not an agreement")
	}
}

func TestBluffSuccessRate(t *testing.T) {
	s := NewDialogueState()
	if s.BluffSuccessRate(Buyer) != 1.0 {
		t.Fatal("expected 1.0 with no attempts")
	}
	s.Append(NewBluff(Buyer, 50, "", 0.5))
	s.Append(NewBluff(Buyer, 55, "", 0.5))
	s.ApplyBluffPenalty(Buyer, 0.1)
	if got := s.BluffSuccessRate(Buyer); got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

func TestApplyBluffPenaltyHitsVictim(t *testing.T) {
	s := NewDialogueState()
	s.ApplyBluffPenalty(Seller, 0.15)
	if got := s.Trust(Buyer); math.Abs(got-0.85) > 1e-12 {
		t.Fatalf("victim trust = %v, want 0.85", got)
	}
	if s.Trust(Seller) != 1.0 {
		t.Fatalf("bluffer trust changed: %v", s.Trust(Seller))
	}
	if s.BluffsDetected(Seller) != 1 {
		t.Fatalf("detected = %d", s.BluffsDetected(Seller))
	}
}

func TestTrustStaysInUnitIntervalUnderFuzz(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	s := NewDialogueState()
	for i := 0; i < 10000; i++ {
		r := Roles[rng.IntN(2)]
		switch rng.IntN(3) {
		case 0:
			s.DecayTrust(r, s.Trust(r)-rng.Float64()*0.2+0.05)
		case 1:
			s.ApplyBluffPenalty(r, rng.Float64()*0.3)
		case 2:
			s.SetTrust(r, rng.NormFloat64()*2)
		}
		for _, role := range Roles {
			if v := s.Trust(role); v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("op %d: trust(%s) = %v out of range", i, role, v)
			}
		}
	}
}

func TestTakeSnapshot(t *testing.T) {
	s := NewDialogueState()
	s.Append(NewOffer(Buyer, 100, "hi", IntentOffer))
	s.NextRound()
	s.SetDealPrice(100)
	snap := TakeSnapshot(s)
	if !snap.Agreed || snap.DealPrice == nil || *snap.DealPrice != 100 {
		t.Fatalf("snapshot outcome wrong: %+v", snap)
	}
	if snap.Round != 1 || len(snap.Offers) != 1 {
		t.Fatalf("snapshot history wrong: %+v", snap)
	}
}

// #endregion state-tests
