package replay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/engine"
	"github.com/danielpatrickdp/dealdialect/internal/metrics"
)

// #region types

// replayEpoch anchors every replayed timestamp so histories hash the same.
var replayEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// priceTolerance is the allowed drift on a replayed deal price.
const priceTolerance = 0.005

// Result captures the outcome of re-running one fixture.
type Result struct {
	Outcome       engine.Outcome
	Rounds        int
	DealPrice     *float64
	Offers        []deal.Offer
	HistoryDigest string
	Report        metrics.Report
}

// Mismatch is one expected value the replay did not reproduce.
type Mismatch struct {
	Field    string
	Expected string
	Actual   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", m.Field, m.Expected, m.Actual)
}

// Summary provides aggregate stats from a batch of fixture runs.
type Summary struct {
	Total      int
	Passed     int
	Failed     int
	Agreements int
}

// #endregion types

// #region replay

// Replay re-runs a fixture in memory. lm may be nil; with a deterministic
// language model the history digest is stable across runs.
func Replay(f *Fixture, lm engine.LanguageModel, log zerolog.Logger) (Result, error) {
	buyer, err := f.Buyer.ToProfile()
	if err != nil {
		return Result{}, fmt.Errorf("buyer profile: %w", err)
	}
	seller, err := f.Seller.ToProfile()
	if err != nil {
		return Result{}, fmt.Errorf("seller profile: %w", err)
	}

	e := engine.New(f.Deal.ToDealContext(), lm,
		engine.WithSeed(f.Seed),
		engine.WithClock(stepClock(replayEpoch)),
		engine.WithLogger(log),
	)
	e.UseProfile(deal.Buyer, buyer)
	e.UseProfile(deal.Seller, seller)
	e.SetTruthfulnessPolicy(f.Truthfulness.ToPolicy())

	outcome := e.Run(f.First, f.MaxSteps)
	v := e.State()
	history := v.History()
	digest, err := Digest(history)
	if err != nil {
		return Result{}, err
	}

	r := Result{
		Outcome:       outcome,
		Rounds:        v.CurrentRound(),
		Offers:        history,
		HistoryDigest: digest,
		Report:        metrics.Compute(e.Context(), v),
	}
	if p, ok := v.DealPrice(); ok && v.HasAgreement() {
		r.DealPrice = &p
	}
	return r, nil
}

// Digest hashes the JSON encoding of an offer history.
func Digest(history []deal.Offer) (string, error) {
	data, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// stepClock returns a clock that advances one second per reading.
func stepClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

// #endregion replay

// #region verify

// Verify compares a result against the fixture's expectations.
func Verify(f *Fixture, r Result) []Mismatch {
	var out []Mismatch
	exp := f.Expected
	if exp.Outcome != "" && exp.Outcome != string(r.Outcome) {
		out = append(out, Mismatch{"outcome", exp.Outcome, string(r.Outcome)})
	}
	if exp.Rounds != nil && *exp.Rounds != r.Rounds {
		out = append(out, Mismatch{"rounds", fmt.Sprint(*exp.Rounds), fmt.Sprint(r.Rounds)})
	}
	if exp.Offers != nil && *exp.Offers != len(r.Offers) {
		out = append(out, Mismatch{"offers", fmt.Sprint(*exp.Offers), fmt.Sprint(len(r.Offers))})
	}
	if exp.DealPrice != nil {
		switch {
		case r.DealPrice == nil:
			out = append(out, Mismatch{"deal_price", fmt.Sprintf("%.2f", *exp.DealPrice), "none"})
		case math.Abs(*exp.DealPrice-*r.DealPrice) > priceTolerance:
			out = append(out, Mismatch{"deal_price", fmt.Sprintf("%.2f", *exp.DealPrice), fmt.Sprintf("%.2f", *r.DealPrice)})
		}
	}
	if exp.HistoryDigest != "" && exp.HistoryDigest != r.HistoryDigest {
		out = append(out, Mismatch{"history_digest", exp.HistoryDigest, r.HistoryDigest})
	}
	return out
}

// Record overwrites the fixture's expectations with what r produced.
func Record(f *Fixture, r Result) {
	rounds, offers := r.Rounds, len(r.Offers)
	f.Expected = FixtureExpected{
		Outcome:       string(r.Outcome),
		Rounds:        &rounds,
		Offers:        &offers,
		HistoryDigest: r.HistoryDigest,
	}
	if r.DealPrice != nil {
		p := *r.DealPrice
		f.Expected.DealPrice = &p
	}
}

// Summarize tallies a batch of results and their mismatches.
func Summarize(results []Result, mismatches [][]Mismatch) Summary {
	s := Summary{Total: len(results)}
	for i, r := range results {
		if i < len(mismatches) && len(mismatches[i]) > 0 {
			s.Failed++
		} else {
			s.Passed++
		}
		if r.Outcome == engine.OutcomeAgreement {
			s.Agreements++
		}
	}
	return s
}

// #endregion verify
