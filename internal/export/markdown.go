package export

import (
	"fmt"
	"io"
	"strings"
)

// WriteMarkdown renders a human-readable transcript: deal context, one
// section per move, the outcome and the headline metrics.
func WriteMarkdown(w io.Writer, t Transcript) error {
	var sb strings.Builder
	c := t.Context

	sb.WriteString("# Negotiation Transcript\n\n")
	if t.BuyerProfile != "" || t.SellerProfile != "" {
		fmt.Fprintf(&sb, "_%s (buyer) vs %s (seller)_\n\n", orNA(t.BuyerProfile), orNA(t.SellerProfile))
	}

	sb.WriteString("## Deal Context\n\n")
	fmt.Fprintf(&sb, "- **Item**: %s\n", c.Item)
	fmt.Fprintf(&sb, "- **MSRP**: $%.2f\n", c.MSRP)
	fmt.Fprintf(&sb, "- **Buyer Maximum**: $%.2f\n", c.BuyerValue)
	fmt.Fprintf(&sb, "- **Seller Minimum**: $%.2f\n", c.SellerCost)
	fmt.Fprintf(&sb, "- **ZOPA Size**: $%.2f\n", c.ZOPASize)
	fmt.Fprintf(&sb, "- **Time Limit**: %d rounds\n\n", c.TimeLimit)

	sb.WriteString("## Negotiation Dialogue\n\n")
	for _, o := range t.Offers {
		fmt.Fprintf(&sb, "### Round %d - %s\n\n", o.RoundNumber, o.Role)
		fmt.Fprintf(&sb, "**%s**: %s\n\n", o.Role, o.Utterance)
		fmt.Fprintf(&sb, "- Price: $%.2f\n", o.Price)
		fmt.Fprintf(&sb, "- Intent: %s\n", o.Intent)
		if o.IsBluff {
			fmt.Fprintf(&sb, "- **Bluff** (strength: %.2f)\n", o.BluffStrength)
		}
		sb.WriteString("\n")
	}

	out := t.Outcome
	sb.WriteString("## Outcome\n\n")
	if out.Agreed {
		sb.WriteString("- **Status**: AGREEMENT REACHED\n")
		if out.FinalPrice != nil {
			fmt.Fprintf(&sb, "- **Final Price**: $%.2f\n", *out.FinalPrice)
		}
	} else {
		sb.WriteString("- **Status**: NO DEAL\n")
	}
	fmt.Fprintf(&sb, "- **Total Rounds**: %d\n", out.Rounds)
	fmt.Fprintf(&sb, "- **Buyer Final Trust**: %.2f\n", out.BuyerTrust)
	fmt.Fprintf(&sb, "- **Seller Final Trust**: %.2f\n\n", out.SellerTrust)

	r := t.report
	sb.WriteString("## Metrics\n\n")
	if s := r.Surplus; out.Agreed && s != nil {
		sb.WriteString("### Economic Metrics\n\n")
		fmt.Fprintf(&sb, "- **Buyer Surplus**: $%.2f\n", s.Buyer)
		fmt.Fprintf(&sb, "- **Seller Surplus**: $%.2f\n", s.Seller)
		fmt.Fprintf(&sb, "- **Total Welfare**: $%.2f\n", s.Total)
		fmt.Fprintf(&sb, "- **Pareto Efficiency**: %.2f%%\n", r.ParetoEfficiency*100)
		if s.HasShares {
			fmt.Fprintf(&sb, "- **Fairness**: %.2f\n", s.Fairness)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("### Behavioral Metrics\n\n")
	fmt.Fprintf(&sb, "- **Buyer Bluffs**: %d (%.0f%% success)\n", r.BuyerBluffs.Count, r.BuyerBluffs.SuccessRate*100)
	fmt.Fprintf(&sb, "- **Seller Bluffs**: %d (%.0f%% success)\n", r.SellerBluffs.Count, r.SellerBluffs.SuccessRate*100)

	if op := t.Opponents; op != nil {
		sb.WriteString("\n### Opponent Models\n\n")
		sb.WriteString("| Holder | Est. Reservation | Est. Aggression | Est. Truthfulness | Detected Bluffs |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		fmt.Fprintf(&sb, "| BUYER | $%.2f | %.2f | %.2f | %d |\n",
			op.BuyerView.Reservation, op.BuyerView.Aggression, op.BuyerView.Truthfulness, op.BuyerView.DetectedBluffs)
		fmt.Fprintf(&sb, "| SELLER | $%.2f | %.2f | %.2f | %d |\n",
			op.SellerView.Reservation, op.SellerView.Aggression, op.SellerView.Truthfulness, op.SellerView.DetectedBluffs)
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("write markdown transcript: %w", err)
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
