// Package sim runs batches of AI-vs-AI negotiations across every
// buyer/seller profile pairing and aggregates the outcomes.
package sim

// #region imports
import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/engine"
	"github.com/danielpatrickdp/dealdialect/internal/language"
	"github.com/danielpatrickdp/dealdialect/internal/metrics"
	"github.com/danielpatrickdp/dealdialect/internal/store"
	"github.com/danielpatrickdp/dealdialect/internal/strategy"
)

// #endregion

// #region config

// Config controls a batch run.
type Config struct {
	Iterations  int     `mapstructure:"iterations"`
	Concurrency int     `mapstructure:"concurrency"`
	TimeLimit   int     `mapstructure:"time_limit"`
	MSRPMin     float64 `mapstructure:"msrp_min"`
	MSRPMax     float64 `mapstructure:"msrp_max"`
	Seed        uint64  `mapstructure:"seed"`

	// Detector used in every episode.
	DetectionSensitivity float64 `mapstructure:"detection_sensitivity"`
	TrustDecayRate       float64 `mapstructure:"trust_decay_rate"`
	UseBeliefs           bool    `mapstructure:"use_beliefs"`
}

// DefaultConfig is 100 iterations per matchup on random deals with a
// 20-round limit.
func DefaultConfig() Config {
	return Config{
		Iterations:           100,
		Concurrency:          runtime.NumCPU(),
		TimeLimit:            20,
		MSRPMin:              500,
		MSRPMax:              2000,
		Seed:                 1,
		DetectionSensitivity: 0.7,
		TrustDecayRate:       0.02,
	}
}

// #endregion config

// #region results

// Episode is the outcome of one simulated negotiation.
type Episode struct {
	Seed          uint64
	Agreed        bool
	BuyerSurplus  float64
	SellerSurplus float64
	Efficiency    float64
	Rounds        int

	record *store.EpisodeRecord
}

// MatchupResult aggregates one buyer profile against one seller profile.
// Surplus and efficiency averages are over agreements only; rounds are
// averaged over every iteration.
type MatchupResult struct {
	BuyerStrategy    string  `json:"buyer_strategy"`
	SellerStrategy   string  `json:"seller_strategy"`
	Iterations       int     `json:"iterations"`
	Agreements       int     `json:"agreements"`
	AgreementRate    float64 `json:"agreement_rate"`
	AvgBuyerSurplus  float64 `json:"avg_buyer_surplus"`
	AvgSellerSurplus float64 `json:"avg_seller_surplus"`
	AvgRounds        float64 `json:"avg_rounds"`
	MeanEfficiency   float64 `json:"mean_efficiency"`
}

// #endregion results

// #region runner

// Runner plays matchups on a bounded worker pool. Each episode gets its
// own engine seeded from the batch seed, so results do not depend on
// scheduling or concurrency.
type Runner struct {
	cfg   Config
	lm    engine.LanguageModel
	log   zerolog.Logger
	store *store.Store
}

// Option configures a Runner.
type Option func(*Runner)

// WithLanguageModel overrides the template phrasing.
func WithLanguageModel(lm engine.LanguageModel) Option {
	return func(r *Runner) { r.lm = lm }
}

// WithLogger attaches a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithStore persists every episode after each matchup completes.
func WithStore(s *store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// NewRunner fills zero config fields from DefaultConfig.
func NewRunner(cfg Config, opts ...Option) *Runner {
	def := DefaultConfig()
	if cfg.Iterations <= 0 {
		cfg.Iterations = def.Iterations
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = def.TimeLimit
	}
	if cfg.MSRPMax <= 0 {
		cfg.MSRPMin, cfg.MSRPMax = def.MSRPMin, def.MSRPMax
	}
	if cfg.DetectionSensitivity == 0 && cfg.TrustDecayRate == 0 {
		cfg.DetectionSensitivity, cfg.TrustDecayRate = def.DetectionSensitivity, def.TrustDecayRate
	}
	r := &Runner{cfg: cfg, lm: language.NewTemplateModel(), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() Config { return r.cfg }

// Run plays every buyer×seller pairing of profiles, in order.
func (r *Runner) Run(ctx context.Context, profiles []strategy.Profile) ([]MatchupResult, error) {
	r.log.Info().Int("profiles", len(profiles)).Int("iterations", r.cfg.Iterations).Msg("starting simulation")
	results := make([]MatchupResult, 0, len(profiles)*len(profiles))
	idx := 0
	for _, buyer := range profiles {
		for _, seller := range profiles {
			res, err := r.RunMatchup(ctx, idx, buyer, seller)
			if err != nil {
				return results, err
			}
			results = append(results, res)
			idx++
		}
	}
	r.log.Info().Int("matchups", len(results)).Msg("simulation complete")
	return results, nil
}

// RunMatchup plays the configured number of episodes for one pairing.
// index distinguishes the pairing's episode seeds from other pairings.
func (r *Runner) RunMatchup(ctx context.Context, index int, buyer, seller strategy.Profile) (MatchupResult, error) {
	episodes := make([]Episode, r.cfg.Iterations)
	p := pool.New().WithContext(ctx).WithMaxGoroutines(r.cfg.Concurrency)
	for i := range episodes {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ep, err := r.playEpisode(EpisodeSeed(r.cfg.Seed, index, i), buyer, seller)
			if err != nil {
				return err
			}
			episodes[i] = ep
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return MatchupResult{}, fmt.Errorf("matchup %s vs %s: %w", buyer.Name, seller.Name, err)
	}

	if r.store != nil {
		for _, ep := range episodes {
			if _, err := r.store.SaveEpisode(*ep.record); err != nil {
				return MatchupResult{}, fmt.Errorf("save episode: %w", err)
			}
		}
	}

	res := Aggregate(buyer.Name, seller.Name, episodes)
	r.log.Info().
		Str("buyer", buyer.Name).
		Str("seller", seller.Name).
		Float64("agreement_rate", res.AgreementRate).
		Float64("avg_rounds", res.AvgRounds).
		Msg("matchup done")
	return res, nil
}

func (r *Runner) playEpisode(seed uint64, buyer, seller strategy.Profile) (Episode, error) {
	// The deal draws from its own stream so a stored episode replays from
	// its seed alone.
	dc := RandomDeal(engine.NewRand(^seed), r.cfg)

	e := engine.New(dc, r.lm, engine.WithSeed(seed))
	e.UseProfile(deal.Buyer, buyer)
	e.UseProfile(deal.Seller, seller)
	e.SetTruthfulnessPolicy(r.detector())
	e.Run(deal.Buyer, 0)

	v := e.State()
	ep := Episode{Seed: seed, Rounds: v.CurrentRound()}
	if price, ok := v.DealPrice(); ok && v.HasAgreement() {
		s := metrics.Surplus(dc, price)
		ep.Agreed = true
		ep.BuyerSurplus = s.Buyer
		ep.SellerSurplus = s.Seller
		ep.Efficiency = metrics.ParetoEfficiency(dc, price)
	}
	if r.store != nil {
		rec, err := store.NewEpisodeRecord(dc, v, buyer.Name, seller.Name, seed)
		if err != nil {
			return Episode{}, err
		}
		ep.record = &rec
	}
	return ep, nil
}

// #endregion runner

// #region helpers

// detector builds the truthfulness policy every episode runs with.
func (r *Runner) detector() *strategy.DefaultTruthfulnessPolicy {
	p := strategy.NewTruthfulnessPolicy(r.cfg.DetectionSensitivity, r.cfg.TrustDecayRate)
	p.UseBeliefs = r.cfg.UseBeliefs
	return p
}

// RandomDeal draws an "electronics" deal: MSRP uniform in [min,max), buyer
// value 80-110% of MSRP and seller cost 60-90% of MSRP.
func RandomDeal(rng *rand.Rand, cfg Config) *deal.DealContext {
	msrp := cfg.MSRPMin + rng.Float64()*(cfg.MSRPMax-cfg.MSRPMin)
	buyerValue := msrp * (0.8 + rng.Float64()*0.3)
	sellerCost := msrp * (0.6 + rng.Float64()*0.3)
	item := deal.Item{Title: "Product", Category: "electronics", Description: "Description", ListingPrice: msrp}
	return deal.NewDealContext(msrp, buyerValue, sellerCost, cfg.TimeLimit, deal.WithItem(item))
}

// EpisodeSeed derives a well-mixed seed for one episode of one matchup.
func EpisodeSeed(base uint64, matchup, iteration int) uint64 {
	z := base ^ uint64(matchup)<<32 ^ uint64(iteration)
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Aggregate folds episodes into a matchup result.
func Aggregate(buyer, seller string, episodes []Episode) MatchupResult {
	res := MatchupResult{BuyerStrategy: buyer, SellerStrategy: seller, Iterations: len(episodes)}
	if len(episodes) == 0 {
		return res
	}
	var buyerS, sellerS, eff []float64
	rounds := make([]float64, len(episodes))
	for i, ep := range episodes {
		rounds[i] = float64(ep.Rounds)
		if ep.Agreed {
			buyerS = append(buyerS, ep.BuyerSurplus)
			sellerS = append(sellerS, ep.SellerSurplus)
			eff = append(eff, ep.Efficiency)
		}
	}
	res.Agreements = len(buyerS)
	res.AgreementRate = float64(res.Agreements) / float64(len(episodes))
	res.AvgRounds = stat.Mean(rounds, nil)
	if res.Agreements > 0 {
		res.AvgBuyerSurplus = stat.Mean(buyerS, nil)
		res.AvgSellerSurplus = stat.Mean(sellerS, nil)
		res.MeanEfficiency = stat.Mean(eff, nil)
	}
	return res
}

// #endregion helpers
