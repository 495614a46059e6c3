package metrics

import (
	"fmt"
	"strings"
)

// Map flattens the report into snake_case keys. Keys that only exist on
// agreement, or with enough data, are omitted otherwise.
func (r Report) Map() map[string]any {
	m := map[string]any{
		"agreed":                   r.Agreed,
		"rounds":                   r.Rounds,
		"negotiation_duration":     r.Rounds,
		"buyer_final_trust":        r.BuyerFinalTrust,
		"seller_final_trust":       r.SellerFinalTrust,
		"avg_trust":                r.AvgTrust,
		"buyer_trust_degradation":  r.BuyerTrustDegradation(),
		"seller_trust_degradation": r.SellerTrustDegradation(),
		"buyer_offer_count":        r.BuyerOffers,
		"seller_offer_count":       r.SellerOffers,
		"time_pressure":            r.TimePressure,
	}
	if r.DealPrice != nil {
		m["deal_price"] = *r.DealPrice
	} else {
		m["deal_price"] = nil
	}

	if s := r.Surplus; s != nil {
		m["buyer_surplus"] = s.Buyer
		m["seller_surplus"] = s.Seller
		m["total_surplus"] = s.Total
		m["welfare"] = s.Total
		m["deadweight_loss"] = s.DeadweightLoss
		m["pareto_efficiency"] = r.ParetoEfficiency
		m["exploitability"] = r.Exploitability
		if s.HasShares {
			m["buyer_surplus_share"] = s.BuyerShare
			m["seller_surplus_share"] = s.SellerShare
			m["fairness"] = s.Fairness
		}
	}

	for prefix, c := range map[string]*Concessions{"buyer": r.BuyerConcessions, "seller": r.SellerConcessions} {
		if c == nil {
			continue
		}
		m[prefix+"_total_concession"] = c.Total
		m[prefix+"_avg_concession"] = c.Average
		m[prefix+"_concession_efficiency"] = c.Efficiency
		if c.HasVariance {
			m[prefix+"_concession_variance"] = c.Variance
		}
	}

	for prefix, b := range map[string]Bluffs{"buyer": r.BuyerBluffs, "seller": r.SellerBluffs} {
		m[prefix+"_bluff_count"] = b.Count
		m[prefix+"_bluff_detected"] = b.Detected
		m[prefix+"_bluff_success_rate"] = b.SuccessRate
	}

	if r.PriceConvergence != nil {
		m["price_convergence"] = *r.PriceConvergence
	}
	if r.ConvergenceRate != nil {
		m["convergence_rate"] = *r.ConvergenceRate
	}
	return m
}

// Summary renders the report as a short plain-text block.
func Summary(r Report) string {
	var sb strings.Builder
	sb.WriteString("=== NEGOTIATION METRICS ===\n\n")
	if r.Agreed && r.DealPrice != nil && r.Surplus != nil {
		sb.WriteString("Outcome: AGREEMENT\n")
		fmt.Fprintf(&sb, "Deal Price: $%.2f\n", *r.DealPrice)
		fmt.Fprintf(&sb, "Buyer Surplus: $%.2f\n", r.Surplus.Buyer)
		fmt.Fprintf(&sb, "Seller Surplus: $%.2f\n", r.Surplus.Seller)
		fmt.Fprintf(&sb, "Total Welfare: $%.2f\n", r.Surplus.Total)
		fmt.Fprintf(&sb, "Pareto Efficiency: %.2f%%\n", r.ParetoEfficiency*100)
		fmt.Fprintf(&sb, "Fairness: %.2f\n", r.Surplus.Fairness)
	} else {
		sb.WriteString("Outcome: NO DEAL\n")
	}
	fmt.Fprintf(&sb, "\nRounds: %d\n", r.Rounds)
	fmt.Fprintf(&sb, "Buyer Trust: %.2f\n", r.BuyerFinalTrust)
	fmt.Fprintf(&sb, "Seller Trust: %.2f\n", r.SellerFinalTrust)
	fmt.Fprintf(&sb, "\nBuyer Bluffs: %d (%.0f%% success)\n", r.BuyerBluffs.Count, r.BuyerBluffs.SuccessRate*100)
	fmt.Fprintf(&sb, "Seller Bluffs: %d (%.0f%% success)\n", r.SellerBluffs.Count, r.SellerBluffs.SuccessRate*100)
	return sb.String()
}
