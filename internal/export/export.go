// Package export writes finished negotiations as JSON, YAML or a Markdown
// transcript.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/engine"
	"github.com/danielpatrickdp/dealdialect/internal/metrics"
	"github.com/danielpatrickdp/dealdialect/internal/opponent"
	"github.com/danielpatrickdp/dealdialect/internal/store"
)

// #region types

// Context is the deal as exported.
type Context struct {
	Item       string  `json:"item" yaml:"item"`
	Category   string  `json:"category,omitempty" yaml:"category,omitempty"`
	MSRP       float64 `json:"msrp" yaml:"msrp"`
	BuyerValue float64 `json:"buyer_value" yaml:"buyer_value"`
	SellerCost float64 `json:"seller_cost" yaml:"seller_cost"`
	TimeLimit  int     `json:"time_limit" yaml:"time_limit"`
	ZOPASize   float64 `json:"zopa_size" yaml:"zopa_size"`
}

// Outcome is the terminal state of the episode.
type Outcome struct {
	Status      engine.Outcome `json:"status" yaml:"status"`
	Agreed      bool           `json:"agreed" yaml:"agreed"`
	FinalPrice  *float64       `json:"final_price" yaml:"final_price"`
	Rounds      int            `json:"rounds" yaml:"rounds"`
	BuyerTrust  float64        `json:"buyer_trust" yaml:"buyer_trust"`
	SellerTrust float64        `json:"seller_trust" yaml:"seller_trust"`
}

// Opponents holds what each side believed about the other at the end.
type Opponents struct {
	BuyerView  opponent.Snapshot `json:"buyer_view" yaml:"buyer_view"`
	SellerView opponent.Snapshot `json:"seller_view" yaml:"seller_view"`
}

// Transcript is the full export document.
type Transcript struct {
	EpisodeID     string         `json:"episode_id,omitempty" yaml:"episode_id,omitempty"`
	BuyerProfile  string         `json:"buyer_profile,omitempty" yaml:"buyer_profile,omitempty"`
	SellerProfile string         `json:"seller_profile,omitempty" yaml:"seller_profile,omitempty"`
	Context       Context        `json:"context" yaml:"context"`
	Offers        []deal.Offer   `json:"offers" yaml:"offers"`
	Outcome       Outcome        `json:"outcome" yaml:"outcome"`
	Metrics       map[string]any `json:"metrics" yaml:"metrics"`
	Opponents     *Opponents     `json:"opponents,omitempty" yaml:"opponents,omitempty"`

	report metrics.Report
}

// #endregion types

// #region build

func contextOf(dc *deal.DealContext) Context {
	item := dc.Item()
	title := item.Title
	if title == "" {
		title = "N/A"
	}
	return Context{
		Item:       title,
		Category:   item.Category,
		MSRP:       dc.MSRP(),
		BuyerValue: dc.BuyerValue(),
		SellerCost: dc.SellerCost(),
		TimeLimit:  dc.TimeLimit(),
		ZOPASize:   dc.ZOPASize(),
	}
}

// FromEngine captures an engine's context, history, metrics and both
// opponent models.
func FromEngine(e *engine.Engine) Transcript {
	v := e.State()
	report := metrics.Compute(e.Context(), v)
	t := Transcript{
		Context: contextOf(e.Context()),
		Offers:  v.History(),
		Outcome: Outcome{
			Status:      engine.OutcomeOf(v),
			Agreed:      v.HasAgreement(),
			Rounds:      v.CurrentRound(),
			BuyerTrust:  v.Trust(deal.Buyer),
			SellerTrust: v.Trust(deal.Seller),
		},
		Metrics: report.Map(),
		report:  report,
		Opponents: &Opponents{
			BuyerView:  e.OpponentModel(deal.Buyer).Snapshot(),
			SellerView: e.OpponentModel(deal.Seller).Snapshot(),
		},
	}
	if p, ok := v.DealPrice(); ok && v.HasAgreement() {
		t.Outcome.FinalPrice = &p
	}
	return t
}

// FromRecord rebuilds a transcript from a stored episode. Opponent models
// are not persisted, so Opponents is nil.
func FromRecord(rec store.EpisodeRecord) (Transcript, error) {
	var report metrics.Report
	if rec.MetricsJSON != "" {
		if err := json.Unmarshal([]byte(rec.MetricsJSON), &report); err != nil {
			return Transcript{}, fmt.Errorf("decode metrics for %s: %w", rec.ID, err)
		}
	}
	return Transcript{
		EpisodeID:     rec.ID,
		BuyerProfile:  rec.BuyerProfile,
		SellerProfile: rec.SellerProfile,
		Context:       contextOf(rec.Context()),
		Offers:        rec.Offers,
		Outcome: Outcome{
			Status:      engine.Outcome(rec.Outcome),
			Agreed:      rec.DealPrice != nil,
			FinalPrice:  rec.DealPrice,
			Rounds:      rec.Rounds,
			BuyerTrust:  rec.BuyerTrust,
			SellerTrust: rec.SellerTrust,
		},
		Metrics: report.Map(),
		report:  report,
	}, nil
}

// #endregion build

// #region write

// WriteJSON writes t as indented JSON.
func WriteJSON(w io.Writer, t Transcript) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode json transcript: %w", err)
	}
	return nil
}

// WriteYAML writes t as a YAML document.
func WriteYAML(w io.Writer, t Transcript) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode yaml transcript: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close yaml encoder: %w", err)
	}
	return nil
}

// ReadYAML parses a transcript written by WriteYAML.
func ReadYAML(r io.Reader) (Transcript, error) {
	var t Transcript
	if err := yaml.NewDecoder(r).Decode(&t); err != nil {
		return Transcript{}, fmt.Errorf("decode yaml transcript: %w", err)
	}
	return t, nil
}

// #endregion write
