package engine

// #region imports
import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/opponent"
	"github.com/danielpatrickdp/dealdialect/internal/strategy"
)

// #endregion

// #region engine-struct

// Engine runs one negotiation episode. It is the sole owner and mutator of
// the episode's DialogueState and is not safe for concurrent use.
type Engine struct {
	ctx   *deal.DealContext
	state *deal.DialogueState
	lm    LanguageModel

	move         [2]strategy.MovePolicy
	bluff        [2]strategy.BluffPolicy
	concession   [2]strategy.ConcessionPolicy
	truthfulness strategy.TruthfulnessPolicy

	// models[r] is r's model of its counterpart.
	models [2]*opponent.Model

	listeners []registered
	nextID    ListenerID

	rng *rand.Rand
	now func() time.Time
	log zerolog.Logger
}

type registered struct {
	id ListenerID
	l  Listener
}

// New builds an engine for ctx. lm may be nil, in which case policy text and
// fixed phrases are used and human input cannot be parsed.
func New(ctx *deal.DealContext, lm LanguageModel, opts ...Option) *Engine {
	e := &Engine{
		ctx:   ctx,
		state: deal.NewDialogueState(),
		lm:    lm,
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	e.models[deal.Buyer] = opponent.NewModel(deal.Seller)
	e.models[deal.Seller] = opponent.NewModel(deal.Buyer)
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return e
}

// #endregion engine-struct

// #region step

// Step advances one turn for role. It returns the recorded offer, or false
// when the episode is over, role has no move policy, or role has no legal
// move (which ends the episode).
func (e *Engine) Step(role deal.Role) (deal.Offer, bool) {
	if e.state.Terminal() {
		return deal.Offer{}, false
	}
	mp := e.move[role]
	if mp == nil {
		e.log.Debug().Str("role", role.String()).Msg("no move policy, skipping")
		return deal.Offer{}, false
	}
	t := e.turn(role)

	if mp.ShouldWalkAway(t) {
		e.state.SetTerminal()
		o := e.record(deal.NewOffer(role, 0, "I'm walking away.", deal.IntentWalkAway))
		e.logTerminal(role)
		e.notifyOfferMade(o)
		return o, true
	}

	if mp.ShouldAccept(t) {
		if opp, ok := e.state.LastOfferFrom(role.Opposite()); ok {
			e.state.SetDealPrice(opp.Price)
			text := e.utterance(deal.IntentAccept, opp.Price, role, fmt.Sprintf("Deal at $%.2f.", opp.Price))
			o := e.record(deal.NewOffer(role, opp.Price, text, deal.IntentAccept))
			e.logTerminal(role)
			e.notifyOfferMade(o)
			return o, true
		}
	}

	cand, ok := mp.DecideNextOffer(t)
	if !ok {
		e.state.SetTerminal()
		e.logTerminal(role)
		return deal.Offer{}, false
	}

	if bp := e.bluff[role]; bp != nil && bp.ShouldBluff(t) {
		strength := bp.BluffStrength(t)
		price := bp.BluffedPrice(cand.Price, strength, role)
		cand = deal.NewBluff(role, price, e.bluffText(strength, role), strength)
	} else {
		cand.Utterance = e.utterance(cand.Intent, cand.Price, role, cand.Utterance)
	}

	stored := e.record(cand)
	e.state.NextRound()
	e.models[role.Opposite()].Update(stored, e.state)
	e.detectBluff(stored)
	e.decayTrust()
	e.DetectTerminal()
	if e.state.Terminal() {
		e.logTerminal(role)
	}
	e.notifyOfferMade(stored)
	return stored, true
}

// Run alternates steps starting with first until the episode ends, a step
// is skipped, or maxSteps is reached. maxSteps <= 0 means twice the time
// limit plus two.
func (e *Engine) Run(first deal.Role, maxSteps int) Outcome {
	if maxSteps <= 0 {
		maxSteps = 2*e.ctx.TimeLimit() + 2
	}
	role := first
	for i := 0; i < maxSteps; i++ {
		if _, ok := e.Step(role); !ok || e.state.Terminal() {
			break
		}
		role = role.Opposite()
	}
	return e.Outcome()
}

// #endregion step

// #region human-input

// ProcessHumanInput records a move parsed from text for role. No bluff
// generation or detection runs on it. ACCEPT settles at the opponent's last
// price; WALK_AWAY ends the episode. It returns false when the episode is
// over or the text cannot be parsed.
func (e *Engine) ProcessHumanInput(text string, role deal.Role) (deal.Offer, bool) {
	if e.state.Terminal() || e.lm == nil {
		return deal.Offer{}, false
	}
	o, ok := e.lm.ParseHumanInput(text, role)
	if !ok {
		return deal.Offer{}, false
	}
	o.Role = role

	switch o.Intent {
	case deal.IntentAccept:
		if opp, ok := e.state.LastOfferFrom(role.Opposite()); ok {
			e.state.SetDealPrice(opp.Price)
			o.Price = opp.Price
		}
	case deal.IntentWalkAway:
		e.state.SetTerminal()
	}

	stored := e.record(o)
	e.state.NextRound()
	e.models[role.Opposite()].Update(stored, e.state)
	if e.state.Terminal() {
		e.logTerminal(role)
	}
	e.notifyOfferMade(stored)
	return stored, true
}

// #endregion human-input

// #region bluff-trust

// detectBluff gives the counterpart one chance to catch a bluffing offer.
func (e *Engine) detectBluff(o deal.Offer) bool {
	if !o.IsBluff || e.truthfulness == nil {
		return false
	}
	detector := o.Role.Opposite()
	prob := e.truthfulness.DetectBluffProbability(o, e.turn(detector))
	if e.rng.Float64() >= prob {
		return false
	}
	e.truthfulness.UpdateTrustOnBluff(e.state, o.Role, prob)
	e.models[detector].RecordBluffDetection()
	e.log.Debug().
		Str("bluffer", o.Role.String()).
		Float64("confidence", prob).
		Float64("victim_trust", e.state.Trust(detector)).
		Msg("bluff detected")
	e.notifyBluffDetected(o, prob)
	return true
}

func (e *Engine) decayTrust() {
	if e.truthfulness == nil {
		return
	}
	round := e.state.CurrentRound()
	for _, r := range deal.Roles {
		e.state.DecayTrust(r, e.truthfulness.TrustDecay(e.state.Trust(r), round))
	}
}

// DetectTerminal ends the episode at the time limit or when either side's
// trust falls below 0.1.
func (e *Engine) DetectTerminal() {
	if e.state.CurrentRound() >= e.ctx.TimeLimit() {
		e.state.SetTerminal()
	}
	if e.state.Trust(deal.Buyer) < 0.1 || e.state.Trust(deal.Seller) < 0.1 {
		e.state.SetTerminal()
	}
}

// #endregion bluff-trust

// #region internals

func (e *Engine) turn(role deal.Role) strategy.Turn {
	return strategy.Turn{
		Deal:       e.ctx,
		State:      e.state,
		Role:       role,
		Rand:       e.rng,
		Concession: e.concession[role],
		Beliefs:    e.models[role],
	}
}

func (e *Engine) record(o deal.Offer) deal.Offer {
	o.Timestamp = e.now()
	stored := e.state.Append(o)
	e.log.Debug().
		Str("role", stored.Role.String()).
		Str("intent", string(stored.Intent)).
		Float64("price", stored.Price).
		Int("round", stored.RoundNumber).
		Bool("bluff", stored.IsBluff).
		Msg("offer recorded")
	return stored
}

func (e *Engine) utterance(intent deal.Intent, price float64, role deal.Role, fallback string) string {
	if e.lm == nil {
		return fallback
	}
	if s := e.lm.GenerateUtterance(intent, price, e.ctx, e.state, role); s != "" {
		return s
	}
	return fallback
}

func (e *Engine) bluffText(strength float64, role deal.Role) string {
	if e.lm != nil {
		if s := e.lm.GenerateBluffText(deal.IntentBluffPuff, strength, e.ctx, role); s != "" {
			return s
		}
	}
	return "That's really the best I can do."
}

func (e *Engine) logTerminal(role deal.Role) {
	ev := e.log.Info().
		Str("outcome", string(e.Outcome())).
		Str("last_role", role.String()).
		Int("round", e.state.CurrentRound())
	if p, ok := e.state.DealPrice(); ok {
		ev = ev.Float64("deal_price", p)
	}
	ev.Msg("negotiation ended")
}

// #endregion internals

// #region listeners

// AddListener registers l and returns an id for RemoveListener.
func (e *Engine) AddListener(l Listener) ListenerID {
	e.nextID++
	e.listeners = append(e.listeners, registered{id: e.nextID, l: l})
	return e.nextID
}

// RemoveListener unregisters a listener. Unknown ids are ignored. It is
// safe to call from inside a callback; the removal applies from the next
// notification on.
func (e *Engine) RemoveListener(id ListenerID) {
	for i, r := range e.listeners {
		if r.id == id {
			e.listeners = slices.Delete(slices.Clone(e.listeners), i, i+1)
			return
		}
	}
}

func (e *Engine) notifyOfferMade(o deal.Offer) {
	for _, r := range slices.Clone(e.listeners) {
		r.l.OnOfferMade(o, e.state)
	}
}

func (e *Engine) notifyBluffDetected(o deal.Offer, confidence float64) {
	for _, r := range slices.Clone(e.listeners) {
		r.l.OnBluffDetected(o, confidence, e.state)
	}
}

// #endregion listeners

// #region accessors

func (e *Engine) SetMovePolicy(r deal.Role, p strategy.MovePolicy)             { e.move[r] = p }
func (e *Engine) SetBluffPolicy(r deal.Role, p strategy.BluffPolicy)           { e.bluff[r] = p }
func (e *Engine) SetConcessionPolicy(r deal.Role, p strategy.ConcessionPolicy) { e.concession[r] = p }
func (e *Engine) SetTruthfulnessPolicy(p strategy.TruthfulnessPolicy)          { e.truthfulness = p }

// UseProfile installs the move, concession and bluff policies built from p.
func (e *Engine) UseProfile(r deal.Role, p strategy.Profile) {
	pol := p.Policies()
	e.SetMovePolicy(r, pol.Move)
	e.SetConcessionPolicy(r, pol.Concession)
	e.SetBluffPolicy(r, pol.Bluff)
}

func (e *Engine) Context() *deal.DealContext { return e.ctx }

// State returns a read-only view of the episode state.
func (e *Engine) State() deal.StateView { return e.state }

// OpponentModel returns the model holder keeps about its counterpart.
func (e *Engine) OpponentModel(holder deal.Role) *opponent.Model { return e.models[holder] }

// Outcome reports ACTIVE, AGREEMENT or NO_DEAL.
func (e *Engine) Outcome() Outcome { return OutcomeOf(e.state) }

// #endregion accessors
