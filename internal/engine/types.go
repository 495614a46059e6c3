package engine

// #region imports
import (
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #endregion

// #region collaborators

// LanguageModel turns moves into text and text into moves. Implementations
// may be shared read-only across engines running concurrently.
type LanguageModel interface {
	GenerateUtterance(intent deal.Intent, price float64, ctx *deal.DealContext, v deal.StateView, role deal.Role) string
	GenerateBluffText(intent deal.Intent, strength float64, ctx *deal.DealContext, role deal.Role) string
	ParseHumanInput(text string, role deal.Role) (deal.Offer, bool)
}

// Listener observes engine events. Callbacks run synchronously inside Step
// and receive a read-only view of the state.
type Listener interface {
	OnOfferMade(o deal.Offer, v deal.StateView)
	OnBluffDetected(o deal.Offer, confidence float64, v deal.StateView)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OfferMade     func(o deal.Offer, v deal.StateView)
	BluffDetected func(o deal.Offer, confidence float64, v deal.StateView)
}

func (f ListenerFuncs) OnOfferMade(o deal.Offer, v deal.StateView) {
	if f.OfferMade != nil {
		f.OfferMade(o, v)
	}
}

func (f ListenerFuncs) OnBluffDetected(o deal.Offer, confidence float64, v deal.StateView) {
	if f.BluffDetected != nil {
		f.BluffDetected(o, confidence, v)
	}
}

// ListenerID identifies a registered listener for removal.
type ListenerID int

// #endregion collaborators

// #region outcome

// Outcome is the episode status.
type Outcome string

const (
	OutcomeActive    Outcome = "ACTIVE"
	OutcomeAgreement Outcome = "AGREEMENT"
	OutcomeNoDeal    Outcome = "NO_DEAL"
)

// OutcomeOf classifies any state view.
func OutcomeOf(v deal.StateView) Outcome {
	switch {
	case !v.Terminal():
		return OutcomeActive
	case v.HasAgreement():
		return OutcomeAgreement
	default:
		return OutcomeNoDeal
	}
}

// #endregion outcome

// #region options

// Option configures an Engine at construction.
type Option func(*Engine)

// WithRand sets the engine's random source. Every probabilistic decision
// in the episode draws from it.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithSeed seeds a PCG source for reproducible episodes.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.rng = NewRand(seed) }
}

// WithClock overrides the timestamp source for recorded offers.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger attaches a structured logger. The default discards.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewRand builds the PCG source used for a seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x5deece66d))
}

// #endregion options
