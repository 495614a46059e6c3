package engine

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/strategy"
)

// #region stubs

// fixedMove always proposes the same price and never settles.
type fixedMove struct{ price float64 }

func (m fixedMove) DecideNextOffer(t strategy.Turn) (deal.Offer, bool) {
	return deal.NewOffer(t.Role, m.price, "fixed", deal.IntentCounter), true
}
func (m fixedMove) ShouldAccept(strategy.Turn) bool   { return false }
func (m fixedMove) ShouldWalkAway(strategy.Turn) bool { return false }

// alwaysBluff bluffs every turn at a fixed strength.
type alwaysBluff struct{ strength float64 }

func (b alwaysBluff) ShouldBluff(strategy.Turn) bool                 { return true }
func (b alwaysBluff) BluffStrength(strategy.Turn) float64            { return b.strength }
func (b alwaysBluff) BluffedPrice(p, s float64, _ deal.Role) float64 { return p * (1 + s*0.3) }

// fixedDetector reports a constant detection probability.
type fixedDetector struct {
	*strategy.DefaultTruthfulnessPolicy
	prob float64
}

func (d fixedDetector) DetectBluffProbability(deal.Offer, strategy.Turn) float64 { return d.prob }

// beliefCapture records the beliefs handed to the detector.
type beliefCapture struct {
	*strategy.DefaultTruthfulnessPolicy
	seen *strategy.Beliefs
}

func (d beliefCapture) DetectBluffProbability(o deal.Offer, t strategy.Turn) float64 {
	*d.seen = t.Beliefs
	return 0
}

// scriptedLM parses "accept", "walk" or a bare number.
type scriptedLM struct{}

func (scriptedLM) GenerateUtterance(intent deal.Intent, price float64, _ *deal.DealContext, _ deal.StateView, role deal.Role) string {
	return string(intent) + " from " + role.String()
}
func (scriptedLM) GenerateBluffText(deal.Intent, float64, *deal.DealContext, deal.Role) string {
	return "bluff"
}
func (scriptedLM) ParseHumanInput(text string, role deal.Role) (deal.Offer, bool) {
	switch text {
	case "accept":
		return deal.NewOffer(role, 0, text, deal.IntentAccept), true
	case "walk":
		return deal.NewOffer(role, 0, text, deal.IntentWalkAway), true
	case "":
		return deal.Offer{}, false
	}
	var p float64
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return deal.Offer{}, false
	}
	return deal.NewOffer(role, p, text, deal.IntentCounter), true
}

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedClock() time.Time { return epoch }

func newTestEngine(t *testing.T, ctx *deal.DealContext, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithSeed(7), WithClock(fixedClock)}, opts...)
	return New(ctx, nil, opts...)
}

// #endregion stubs

// #region terminal

func TestTimeoutTerminal(t *testing.T) {
	ctx := deal.NewDealContext(1000, 900, 700, 5)
	e := newTestEngine(t, ctx)
	e.SetMovePolicy(deal.Buyer, fixedMove{price: 100})
	e.SetMovePolicy(deal.Seller, fixedMove{price: 2000})

	role := deal.Buyer
	for i := 0; i < 4; i++ {
		if _, ok := e.Step(role); !ok {
			t.Fatalf("step %d failed", i)
		}
		role = role.Opposite()
	}
	if e.State().Terminal() {
		t.Fatal("terminal before the time limit")
	}
	e.Step(role)
	if !e.State().Terminal() {
		t.Fatal("expected terminal after 5 rounds")
	}
	if e.State().Trust(deal.Buyer) != 1 || e.State().Trust(deal.Seller) != 1 {
		t.Fatal("trust should be untouched without a truthfulness policy")
	}
	if e.Outcome() != OutcomeNoDeal {
		t.Fatalf("outcome = %s", e.Outcome())
	}

	n := e.State().Len()
	if _, ok := e.Step(deal.Buyer); ok {
		t.Fatal("step after terminal must be a no-op")
	}
	if e.State().Len() != n {
		t.Fatal("history changed after terminal")
	}
}

func TestMissingMovePolicyIsNoOp(t *testing.T) {
	e := newTestEngine(t, deal.NewDealContext(1000, 900, 700, 10))
	if _, ok := e.Step(deal.Seller); ok {
		t.Fatal("expected no offer without a move policy")
	}
	if e.State().Terminal() {
		t.Fatal("missing policy must not end the episode")
	}
	if e.Outcome() != OutcomeActive {
		t.Fatalf("outcome = %s", e.Outcome())
	}
}

func TestNoLegalMoveEndsEpisode(t *testing.T) {
	e := newTestEngine(t, deal.NewDealContext(1000, 900, 700, 10))
	e.SetMovePolicy(deal.Buyer, strategy.NewMovePolicy(0.5, 0.5, nil))
	if _, ok := e.Step(deal.Buyer); !ok {
		t.Fatal("opening anchor needs no concession policy")
	}
	if _, ok := e.Step(deal.Buyer); ok {
		t.Fatal("expected no legal move")
	}
	if !e.State().Terminal() || e.Outcome() != OutcomeNoDeal {
		t.Fatalf("expected NO_DEAL, got %s", e.Outcome())
	}
}

func TestLowTrustEndsEpisode(t *testing.T) {
	ctx := deal.NewDealContext(1000, 900, 700, 50)
	e := newTestEngine(t, ctx)
	e.SetMovePolicy(deal.Seller, fixedMove{price: 2000})
	e.SetBluffPolicy(deal.Seller, alwaysBluff{strength: 0.5})
	e.SetTruthfulnessPolicy(fixedDetector{strategy.NewTruthfulnessPolicy(1, 0), 1})

	want := 0
	for v := 1.0; v >= 0.1; v = math.Max(0, v-0.15) {
		want++
	}
	steps := 0
	for !e.State().Terminal() && steps < 20 {
		e.Step(deal.Seller)
		steps++
	}
	if steps != want {
		t.Fatalf("expected %d steps, got %d", want, steps)
	}
	if e.State().Trust(deal.Buyer) >= 0.1 {
		t.Fatalf("buyer trust = %v", e.State().Trust(deal.Buyer))
	}
}

// #endregion terminal

// #region accept

func TestAcceptSettlesAtOpponentPrice(t *testing.T) {
	ctx := deal.NewDealContext(1000, 900, 700, 10)
	e := newTestEngine(t, ctx)
	e.SetMovePolicy(deal.Seller, fixedMove{price: 650})
	e.SetMovePolicy(deal.Buyer, strategy.NewMovePolicy(0.5, 0.5, strategy.NewConcessionPolicy(strategy.Linear, 0.1)))

	e.Step(deal.Seller)
	round := e.State().CurrentRound()
	o, ok := e.Step(deal.Buyer)
	if !ok || o.Intent != deal.IntentAccept || o.Price != 650 {
		t.Fatalf("expected ACCEPT at 650, got %+v", o)
	}
	if p, ok := e.State().DealPrice(); !ok || p != 650 {
		t.Fatalf("deal price = %v, %v", p, ok)
	}
	if e.Outcome() != OutcomeAgreement {
		t.Fatalf("outcome = %s", e.Outcome())
	}
	if e.State().CurrentRound() != round {
		t.Fatal("accept must not advance the round")
	}
}

// #endregion accept

// #region bluffs

// zeroSource makes every Float64 draw 0, so any positive detection
// probability succeeds.
type zeroSource struct{}

func (zeroSource) Uint64() uint64 { return 0 }

func bluffEngine(t *testing.T, prob float64, opts ...Option) (*Engine, *[]float64) {
	t.Helper()
	e := newTestEngine(t, deal.NewDealContext(1000, 900, 700, 10), opts...)
	e.SetMovePolicy(deal.Seller, fixedMove{price: 880})
	e.SetBluffPolicy(deal.Seller, alwaysBluff{strength: 0.5})
	e.SetTruthfulnessPolicy(fixedDetector{strategy.NewTruthfulnessPolicy(0.7, 0), prob})
	var seen []float64
	e.AddListener(ListenerFuncs{BluffDetected: func(_ deal.Offer, c float64, _ deal.StateView) {
		seen = append(seen, c)
	}})
	return e, &seen
}

func TestDetectedBluffPenalty(t *testing.T) {
	for _, conf := range []float64{1.0, 0.4, 0.05} {
		e, seen := bluffEngine(t, conf, WithRand(rand.New(zeroSource{})))
		o, ok := e.Step(deal.Seller)
		if !ok || !o.IsBluff {
			t.Fatalf("expected a bluff, got %+v", o)
		}
		if len(*seen) != 1 || (*seen)[0] != conf {
			t.Fatalf("conf %v: expected one detection at that confidence, got %v", conf, *seen)
		}
		want := 1 - 0.15*conf
		if got := e.State().Trust(deal.Buyer); math.Abs(got-want) > 1e-12 {
			t.Fatalf("conf %v: buyer trust = %v, want %v", conf, got, want)
		}
		if e.State().BluffsDetected(deal.Seller) != 1 {
			t.Fatalf("detected = %d", e.State().BluffsDetected(deal.Seller))
		}
		if e.OpponentModel(deal.Buyer).EstimatedTruthfulness() >= 0.8 {
			t.Fatal("detector's model should lower truthfulness")
		}
	}
}

func TestUndetectedBluffChangesNothing(t *testing.T) {
	e, seen := bluffEngine(t, 0)
	e.Step(deal.Seller)
	if len(*seen) != 0 {
		t.Fatal("no detection expected")
	}
	if e.State().Trust(deal.Buyer) != 1 || e.State().BluffsDetected(deal.Seller) != 0 {
		t.Fatalf("state changed: trust=%v detected=%d", e.State().Trust(deal.Buyer), e.State().BluffsDetected(deal.Seller))
	}
	if e.State().BluffsAttempted(deal.Seller) != 1 {
		t.Fatalf("attempted = %d", e.State().BluffsAttempted(deal.Seller))
	}
}

func TestBluffReplacesProposal(t *testing.T) {
	e, _ := bluffEngine(t, 0)
	o, _ := e.Step(deal.Seller)
	if o.Intent != deal.IntentBluffPuff || math.Abs(o.Price-880*1.15) > 1e-9 {
		t.Fatalf("bluff override = %+v", o)
	}
	if o.Utterance == "fixed" {
		t.Fatal("bluff should carry bluff text")
	}
}

// #endregion bluffs

// #region properties

func fullEngine(t *testing.T, seed uint64, bluffing bool) *Engine {
	t.Helper()
	aggression := float64(seed%11) / 10
	ctx := deal.NewDealContext(1000, 900, 700, 10, deal.WithBluffing(bluffing), deal.WithStartTime(epoch))
	e := New(ctx, nil, WithSeed(seed), WithClock(fixedClock))
	for _, r := range deal.Roles {
		cp := strategy.NewConcessionPolicy(strategy.Linear, 0.1)
		e.SetMovePolicy(r, strategy.NewMovePolicy(aggression, 0.5, cp))
		e.SetConcessionPolicy(r, cp)
		if bluffing {
			e.SetBluffPolicy(r, strategy.NewBluffPolicy(0.4, 0.7))
		}
	}
	e.SetTruthfulnessPolicy(strategy.NewTruthfulnessPolicy(0.7, 0.02))
	return e
}

func TestReproducibleHistories(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		a, b := fullEngine(t, seed, true), fullEngine(t, seed, true)
		a.Run(deal.Buyer, 0)
		b.Run(deal.Buyer, 0)
		ja, _ := json.Marshal(a.State().History())
		jb, _ := json.Marshal(b.State().History())
		if !bytes.Equal(ja, jb) {
			t.Fatalf("seed %d: histories differ", seed)
		}
	}
}

func TestEndToEndAgreementWithinZone(t *testing.T) {
	agreed := 0
	for seed := uint64(1); seed <= 200; seed++ {
		e := fullEngine(t, seed, false)
		e.Run(deal.Buyer, 0)
		if !e.State().Terminal() {
			t.Fatalf("seed %d: run ended while active", seed)
		}
		p, ok := e.State().DealPrice()
		if !ok {
			continue
		}
		agreed++
		if p < 700 || p > 900 {
			t.Fatalf("seed %d: deal price %v outside [700,900]", seed, p)
		}
		buyer, seller := 900-p, p-700
		if math.Abs(buyer+seller-e.Context().ZOPASize()) > 1e-9 {
			t.Fatalf("seed %d: surplus %v + %v != zopa", seed, buyer, seller)
		}
	}
	if agreed == 0 {
		t.Fatal("expected at least one agreement")
	}
}

func TestOpponentModelsFollowOffers(t *testing.T) {
	e := fullEngine(t, 3, false)
	e.Step(deal.Seller)
	if got := e.OpponentModel(deal.Buyer).TotalMoves(); got != 1 {
		t.Fatalf("buyer's model of seller saw %d moves", got)
	}
	if got := e.OpponentModel(deal.Seller).TotalMoves(); got != 0 {
		t.Fatalf("seller's model of buyer saw %d moves", got)
	}
}

// #endregion properties

// #region listeners-human

func TestListenerRegistry(t *testing.T) {
	e := newTestEngine(t, deal.NewDealContext(1000, 900, 700, 10))
	e.SetMovePolicy(deal.Buyer, fixedMove{price: 100})
	var a, b int
	idA := e.AddListener(ListenerFuncs{OfferMade: func(deal.Offer, deal.StateView) { a++ }})
	e.AddListener(ListenerFuncs{OfferMade: func(deal.Offer, deal.StateView) { b++ }})

	e.Step(deal.Buyer)
	e.RemoveListener(idA)
	e.RemoveListener(ListenerID(999))
	e.Step(deal.Buyer)

	if a != 1 || b != 2 {
		t.Fatalf("listener calls: a=%d b=%d", a, b)
	}
}

func TestListenerRemovesItselfDuringCallback(t *testing.T) {
	e := newTestEngine(t, deal.NewDealContext(1000, 900, 700, 10))
	e.SetMovePolicy(deal.Buyer, fixedMove{price: 100})
	var a, b, c int
	var idA ListenerID
	idA = e.AddListener(ListenerFuncs{OfferMade: func(deal.Offer, deal.StateView) {
		a++
		e.RemoveListener(idA)
	}})
	e.AddListener(ListenerFuncs{OfferMade: func(deal.Offer, deal.StateView) { b++ }})
	e.AddListener(ListenerFuncs{OfferMade: func(deal.Offer, deal.StateView) { c++ }})

	e.Step(deal.Buyer)
	if a != 1 || b != 1 || c != 1 {
		t.Fatalf("first step: a=%d b=%d c=%d, want 1 1 1", a, b, c)
	}
	e.Step(deal.Buyer)
	if a != 1 || b != 2 || c != 2 {
		t.Fatalf("second step: a=%d b=%d c=%d, want 1 2 2", a, b, c)
	}
}

func TestDetectorSeesOwnOpponentModel(t *testing.T) {
	e, _ := bluffEngine(t, 0)
	var got strategy.Beliefs
	e.SetTruthfulnessPolicy(beliefCapture{strategy.NewTruthfulnessPolicy(0.7, 0), &got})
	e.Step(deal.Seller)
	if got != strategy.Beliefs(e.OpponentModel(deal.Buyer)) {
		t.Fatalf("detector beliefs = %v, want the buyer's model of the seller", got)
	}
}

func TestProcessHumanInput(t *testing.T) {
	ctx := deal.NewDealContext(1000, 900, 700, 10)

	t.Run("counter", func(t *testing.T) {
		e := New(ctx, scriptedLM{}, WithSeed(1))
		o, ok := e.ProcessHumanInput("750", deal.Buyer)
		if !ok || o.Price != 750 || o.Role != deal.Buyer {
			t.Fatalf("counter = %+v, %v", o, ok)
		}
		if e.State().CurrentRound() != 1 {
			t.Fatalf("round = %d", e.State().CurrentRound())
		}
		if e.OpponentModel(deal.Seller).TotalMoves() != 1 {
			t.Fatal("seller's model should observe the human move")
		}
	})

	t.Run("accept", func(t *testing.T) {
		e := New(ctx, scriptedLM{}, WithSeed(1))
		e.SetMovePolicy(deal.Seller, fixedMove{price: 820})
		e.Step(deal.Seller)
		o, ok := e.ProcessHumanInput("accept", deal.Buyer)
		if !ok || o.Price != 820 || e.Outcome() != OutcomeAgreement {
			t.Fatalf("accept = %+v, outcome %s", o, e.Outcome())
		}
		if _, ok := e.ProcessHumanInput("700", deal.Buyer); ok {
			t.Fatal("input after terminal must be ignored")
		}
	})

	t.Run("walk", func(t *testing.T) {
		e := New(ctx, scriptedLM{}, WithSeed(1))
		if _, ok := e.ProcessHumanInput("walk", deal.Seller); !ok {
			t.Fatal("walk should be recorded")
		}
		if e.Outcome() != OutcomeNoDeal {
			t.Fatalf("outcome = %s", e.Outcome())
		}
	})

	t.Run("unparseable", func(t *testing.T) {
		e := New(ctx, scriptedLM{}, WithSeed(1))
		if _, ok := e.ProcessHumanInput("", deal.Buyer); ok {
			t.Fatal("expected no offer")
		}
		if e.State().Len() != 0 {
			t.Fatal("nothing should be recorded")
		}
		if _, ok := New(ctx, nil).ProcessHumanInput("750", deal.Buyer); ok {
			t.Fatal("no language model, no parse")
		}
	})
}

// #endregion listeners-human
