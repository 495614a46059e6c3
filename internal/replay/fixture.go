package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/store"
	"github.com/danielpatrickdp/dealdialect/internal/strategy"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: everything
// needed to re-run a seeded episode, plus what it is expected to produce.
type Fixture struct {
	Description  string              `json:"description"`
	Deal         FixtureDeal         `json:"deal"`
	Buyer        FixtureSide         `json:"buyer"`
	Seller       FixtureSide         `json:"seller"`
	Truthfulness FixtureTruthfulness `json:"truthfulness"`
	Seed         uint64              `json:"seed"`
	First        deal.Role           `json:"first"`
	MaxSteps     int                 `json:"max_steps,omitempty"`
	Expected     FixtureExpected     `json:"expected"`
}

// FixtureDeal mirrors deal.DealContext with JSON tags.
type FixtureDeal struct {
	Item          deal.Item `json:"item"`
	MSRP          float64   `json:"msrp"`
	BuyerValue    float64   `json:"buyer_value"`
	SellerCost    float64   `json:"seller_cost"`
	TimeLimit     int       `json:"time_limit"`
	AllowBluffing *bool     `json:"allow_bluffing,omitempty"`
	AllowPuffing  *bool     `json:"allow_puffing,omitempty"`
}

// FixtureSide names a built-in profile or carries a custom one.
type FixtureSide struct {
	Profile string            `json:"profile,omitempty"`
	Custom  *strategy.Profile `json:"custom,omitempty"`
}

// FixtureTruthfulness mirrors the truthfulness policy parameters.
type FixtureTruthfulness struct {
	Sensitivity float64 `json:"sensitivity"`
	DecayRate   float64 `json:"decay_rate"`
	UseBeliefs  bool    `json:"use_beliefs,omitempty"`
}

// FixtureExpected captures what the replay must reproduce. Unset fields
// are not checked.
type FixtureExpected struct {
	Outcome       string   `json:"outcome,omitempty"`
	Rounds        *int     `json:"rounds,omitempty"`
	Offers        *int     `json:"offers,omitempty"`
	DealPrice     *float64 `json:"deal_price,omitempty"`
	HistoryDigest string   `json:"history_digest,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToDealContext converts a FixtureDeal to a domain DealContext.
func (d *FixtureDeal) ToDealContext() *deal.DealContext {
	opts := []deal.ContextOption{deal.WithItem(d.Item), deal.WithStartTime(replayEpoch)}
	if d.AllowBluffing != nil {
		opts = append(opts, deal.WithBluffing(*d.AllowBluffing))
	}
	if d.AllowPuffing != nil {
		opts = append(opts, deal.WithPuffing(*d.AllowPuffing))
	}
	return deal.NewDealContext(d.MSRP, d.BuyerValue, d.SellerCost, d.TimeLimit, opts...)
}

// ToProfile resolves the side to a profile.
func (s *FixtureSide) ToProfile() (strategy.Profile, error) {
	if s.Custom != nil {
		return *s.Custom, nil
	}
	name := s.Profile
	if name == "" {
		name = strategy.DefaultProfile
	}
	return strategy.LookupProfile(name)
}

// ToPolicy converts the parameters to a truthfulness policy. A zero value
// means the defaults used by simulations.
func (t FixtureTruthfulness) ToPolicy() *strategy.DefaultTruthfulnessPolicy {
	if t.Sensitivity == 0 && t.DecayRate == 0 {
		t.Sensitivity, t.DecayRate = DefaultTruthfulness.Sensitivity, DefaultTruthfulness.DecayRate
	}
	p := strategy.NewTruthfulnessPolicy(t.Sensitivity, t.DecayRate)
	p.UseBeliefs = t.UseBeliefs
	return p
}

// DefaultTruthfulness is the detector used when a fixture leaves it unset.
var DefaultTruthfulness = FixtureTruthfulness{Sensitivity: 0.7, DecayRate: 0.02}

// FromEpisode builds a fixture that re-runs a stored episode. Only seeded
// episodes between named profiles can be reproduced.
func FromEpisode(rec store.EpisodeRecord) (*Fixture, error) {
	if rec.BuyerProfile == "" || rec.SellerProfile == "" {
		return nil, fmt.Errorf("episode %s: both profiles are required to replay", rec.ID)
	}
	f := &Fixture{
		Description: fmt.Sprintf("episode %s", rec.ID),
		Deal: FixtureDeal{
			Item:       rec.Item,
			MSRP:       rec.MSRP,
			BuyerValue: rec.BuyerValue,
			SellerCost: rec.SellerCost,
			TimeLimit:  rec.TimeLimit,
		},
		Buyer:        FixtureSide{Profile: rec.BuyerProfile},
		Seller:       FixtureSide{Profile: rec.SellerProfile},
		Truthfulness: DefaultTruthfulness,
		Seed:         rec.Seed,
		First:        deal.Buyer,
		Expected: FixtureExpected{
			Outcome:   rec.Outcome,
			Rounds:    &rec.Rounds,
			DealPrice: rec.DealPrice,
		},
	}
	if rec.Offers != nil {
		n := len(rec.Offers)
		f.Expected.Offers = &n
	}
	return f, nil
}

// #endregion fixture-loader
