package metrics

// #region imports
import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #endregion

// #region report

// SurplusSplit is how a deal price divides the available surplus.
type SurplusSplit struct {
	Buyer          float64 `json:"buyer_surplus" yaml:"buyer_surplus"`
	Seller         float64 `json:"seller_surplus" yaml:"seller_surplus"`
	Total          float64 `json:"total_surplus" yaml:"total_surplus"`
	BuyerShare     float64 `json:"buyer_surplus_share" yaml:"buyer_surplus_share"`
	SellerShare    float64 `json:"seller_surplus_share" yaml:"seller_surplus_share"`
	Fairness       float64 `json:"fairness" yaml:"fairness"`
	HasShares      bool    `json:"-" yaml:"-"`
	DeadweightLoss float64 `json:"deadweight_loss" yaml:"deadweight_loss"`
}

// Concessions summarizes one role's positive moves toward the counterpart.
type Concessions struct {
	Total       float64 `json:"total" yaml:"total"`
	Average     float64 `json:"average" yaml:"average"`
	Efficiency  float64 `json:"efficiency" yaml:"efficiency"`
	Variance    float64 `json:"variance" yaml:"variance"`
	HasVariance bool    `json:"-" yaml:"-"`
}

// Bluffs summarizes one role's bluffing record.
type Bluffs struct {
	Count       int     `json:"count" yaml:"count"`
	Detected    int     `json:"detected" yaml:"detected"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
}

// Report is every outcome measure for a finished (or running) episode.
// Surplus, efficiency and concession fields are only set on agreement.
type Report struct {
	Agreed    bool     `json:"agreed" yaml:"agreed"`
	Rounds    int      `json:"rounds" yaml:"rounds"`
	DealPrice *float64 `json:"deal_price" yaml:"deal_price"`

	Surplus          *SurplusSplit `json:"surplus,omitempty" yaml:"surplus,omitempty"`
	ParetoEfficiency float64       `json:"pareto_efficiency" yaml:"pareto_efficiency"`
	Exploitability   float64       `json:"exploitability" yaml:"exploitability"`

	// Concession stats are keyed by role and present only for roles with
	// at least two offers in an agreed episode.
	BuyerConcessions  *Concessions `json:"buyer_concessions,omitempty" yaml:"buyer_concessions,omitempty"`
	SellerConcessions *Concessions `json:"seller_concessions,omitempty" yaml:"seller_concessions,omitempty"`

	BuyerFinalTrust  float64 `json:"buyer_final_trust" yaml:"buyer_final_trust"`
	SellerFinalTrust float64 `json:"seller_final_trust" yaml:"seller_final_trust"`
	AvgTrust         float64 `json:"avg_trust" yaml:"avg_trust"`

	BuyerBluffs  Bluffs `json:"buyer_bluffs" yaml:"buyer_bluffs"`
	SellerBluffs Bluffs `json:"seller_bluffs" yaml:"seller_bluffs"`

	BuyerOffers      int      `json:"buyer_offer_count" yaml:"buyer_offer_count"`
	SellerOffers     int      `json:"seller_offer_count" yaml:"seller_offer_count"`
	PriceConvergence *float64 `json:"price_convergence,omitempty" yaml:"price_convergence,omitempty"`
	ConvergenceRate  *float64 `json:"convergence_rate,omitempty" yaml:"convergence_rate,omitempty"`
	TimePressure     float64  `json:"time_pressure" yaml:"time_pressure"`
}

// BuyerTrustDegradation is how far buyer trust fell from its start of 1.0.
func (r Report) BuyerTrustDegradation() float64 { return 1.0 - r.BuyerFinalTrust }

// SellerTrustDegradation is how far seller trust fell from its start of 1.0.
func (r Report) SellerTrustDegradation() float64 { return 1.0 - r.SellerFinalTrust }

// #endregion report

// #region compute

// Compute measures an episode from its context and state.
func Compute(ctx *deal.DealContext, v deal.StateView) Report {
	r := Report{
		Agreed:           v.HasAgreement(),
		Rounds:           v.CurrentRound(),
		BuyerFinalTrust:  v.Trust(deal.Buyer),
		SellerFinalTrust: v.Trust(deal.Seller),
		AvgTrust:         (v.Trust(deal.Buyer) + v.Trust(deal.Seller)) / 2,
		BuyerBluffs:      bluffs(v, deal.Buyer),
		SellerBluffs:     bluffs(v, deal.Seller),
		TimePressure:     ctx.TimePressure(v.CurrentRound()),
	}

	if price, ok := v.DealPrice(); ok && r.Agreed {
		r.DealPrice = &price
		split := Surplus(ctx, price)
		r.Surplus = &split
		r.ParetoEfficiency = ParetoEfficiency(ctx, price)
		r.Exploitability = math.Abs(split.Buyer-split.Seller) / math.Max(split.Buyer+split.Seller, 1.0)
		r.BuyerConcessions = concessions(v, deal.Buyer)
		r.SellerConcessions = concessions(v, deal.Seller)
	}

	buyerOffers, sellerOffers := v.OffersFrom(deal.Buyer), v.OffersFrom(deal.Seller)
	r.BuyerOffers, r.SellerOffers = len(buyerOffers), len(sellerOffers)
	if len(buyerOffers) > 0 && len(sellerOffers) > 0 {
		conv := math.Abs(buyerOffers[len(buyerOffers)-1].Price - sellerOffers[len(sellerOffers)-1].Price)
		r.PriceConvergence = &conv
		if r.Rounds > 0 {
			rate := conv / float64(r.Rounds)
			r.ConvergenceRate = &rate
		}
	}
	return r
}

// Surplus splits the gains from trade at price.
func Surplus(ctx *deal.DealContext, price float64) SurplusSplit {
	s := SurplusSplit{
		Buyer:  ctx.BuyerValue() - price,
		Seller: price - ctx.SellerCost(),
	}
	s.Total = s.Buyer + s.Seller
	s.DeadweightLoss = math.Max(0, ctx.ZOPASize()-s.Total)
	if s.Total > 0 {
		s.HasShares = true
		s.BuyerShare = s.Buyer / s.Total
		s.SellerShare = s.Seller / s.Total
		s.Fairness = 1.0 - math.Abs(s.BuyerShare-0.5)*2
	}
	return s
}

// ParetoEfficiency is realized surplus over the ZOPA, or 1 with no ZOPA.
func ParetoEfficiency(ctx *deal.DealContext, price float64) float64 {
	zone := ctx.ZOPASize()
	if zone <= 0 {
		return 1.0
	}
	return Surplus(ctx, price).Total / zone
}

func concessions(v deal.StateView, role deal.Role) *Concessions {
	offers := v.OffersFrom(role)
	if len(offers) < 2 {
		return nil
	}
	var moves []float64
	for i := 1; i < len(offers); i++ {
		if c := offers[i].ConcessionAmount(offers[i-1]); c > 0 {
			moves = append(moves, c)
		}
	}
	c := &Concessions{}
	if len(moves) == 0 {
		return c
	}
	c.Total = floats.Sum(moves)
	c.Average = c.Total / float64(len(moves))
	if v.CurrentRound() > 0 {
		c.Efficiency = c.Average / float64(v.CurrentRound())
	}
	if len(moves) > 1 {
		_, c.Variance = stat.PopMeanVariance(moves, nil)
		c.HasVariance = true
	}
	return c
}

func bluffs(v deal.StateView, role deal.Role) Bluffs {
	return Bluffs{
		Count:       v.BluffsAttempted(role),
		Detected:    v.BluffsDetected(role),
		SuccessRate: v.BluffSuccessRate(role),
	}
}

// #endregion compute
