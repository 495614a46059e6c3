package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/logging"
	"github.com/danielpatrickdp/dealdialect/internal/metrics"
	"github.com/danielpatrickdp/dealdialect/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to dealdialect.db")
	last := flag.Int("last", 20, "show N most recent episodes")
	episode := flag.String("episode", "", "show single episode detail")
	events := flag.Bool("events", false, "include the audit events in detail mode")
	best := flag.Bool("best", false, "show the best remembered profile per role")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/dealdialect.db [--last N] [--episode id [--events]] [--best] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch {
	case *best:
		err = runBestMode(st, *jsonOut)
	case *episode != "":
		err = runDetailMode(st, *episode, *events, *jsonOut)
	default:
		err = runListMode(st, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	ID            string   `json:"id"`
	CreatedAt     string   `json:"created_at"`
	Buyer         string   `json:"buyer_profile"`
	Seller        string   `json:"seller_profile"`
	Outcome       string   `json:"outcome"`
	DealPrice     *float64 `json:"deal_price,omitempty"`
	Rounds        int      `json:"rounds"`
	ZOPA          float64  `json:"zopa"`
	BuyerTrust    float64  `json:"buyer_trust"`
	SellerTrust   float64  `json:"seller_trust"`
	BuyerSurplus  *float64 `json:"buyer_surplus,omitempty"`
	SellerSurplus *float64 `json:"seller_surplus,omitempty"`
}

func runListMode(st *store.Store, last int, jsonOut bool) error {
	eps, err := st.ListEpisodes(last)
	if err != nil {
		return err
	}
	if len(eps) == 0 {
		fmt.Fprintln(os.Stderr, "no episodes found")
		return nil
	}

	// store returns newest first, reverse for chronological
	rows := make([]listRow, len(eps))
	for i, ep := range eps {
		r := listRow{
			ID:          ep.ID,
			CreatedAt:   ep.CreatedAt.Format("2006-01-02T15:04:05Z"),
			Buyer:       ep.BuyerProfile,
			Seller:      ep.SellerProfile,
			Outcome:     ep.Outcome,
			DealPrice:   ep.DealPrice,
			Rounds:      ep.Rounds,
			ZOPA:        ep.Context().ZOPASize(),
			BuyerTrust:  ep.BuyerTrust,
			SellerTrust: ep.SellerTrust,
		}
		if ep.DealPrice != nil {
			s := metrics.Surplus(ep.Context(), *ep.DealPrice)
			r.BuyerSurplus, r.SellerSurplus = &s.Buyer, &s.Seller
		}
		rows[len(eps)-1-i] = r
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-12s  %-12s  %-9s  %9s  %6s  %8s  %6s  %6s  %s\n",
		"Episode", "Buyer", "Seller", "Outcome", "Price", "Rounds", "ZOPA", "B.Tr", "S.Tr", "Time")
	fmt.Printf("%-10s+-%-12s+-%-12s+-%-9s+-%9s+-%6s+-%8s+-%6s+-%6s+-%s\n",
		"----------", "------------", "------------", "---------", "---------", "------", "--------", "------", "------", "--------------------")
	agreed := 0
	for _, r := range rows {
		price := "—"
		if r.DealPrice != nil {
			price = fmt.Sprintf("%.2f", *r.DealPrice)
			agreed++
		}
		fmt.Printf("%-10s  %-12s  %-12s  %-9s  %9s  %6d  %8.2f  %6.2f  %6.2f  %s\n",
			shortID(r.ID), r.Buyer, r.Seller, r.Outcome, price, r.Rounds, r.ZOPA, r.BuyerTrust, r.SellerTrust, r.CreatedAt)
	}
	fmt.Printf("\n%d episodes, %d agreements\n", len(rows), agreed)
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	store.EpisodeRecord
	Metrics map[string]any       `json:"metrics,omitempty"`
	Events  []logging.EventEntry `json:"events,omitempty"`
}

func runDetailMode(st *store.Store, id string, withEvents, jsonOut bool) error {
	ep, err := st.GetEpisode(id)
	if err != nil {
		return err
	}
	out := detailOutput{EpisodeRecord: ep}
	var report metrics.Report
	if ep.MetricsJSON != "" {
		if err := json.Unmarshal([]byte(ep.MetricsJSON), &report); err != nil {
			return fmt.Errorf("decode metrics: %w", err)
		}
		out.Metrics = report.Map()
	}
	if withEvents {
		if out.Events, err = logging.ListEvents(st.DB(), ep.ID); err != nil {
			return err
		}
	}

	if jsonOut {
		out.MetricsJSON = ""
		return printJSON(out)
	}

	ctx := ep.Context()
	fmt.Printf("Episode:  %s\n", ep.ID)
	fmt.Printf("Created:  %s\n", ep.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Profiles: %s (buyer) vs %s (seller), seed %d\n", ep.BuyerProfile, ep.SellerProfile, ep.Seed)
	fmt.Printf("Deal:     %s, MSRP %.2f, buyer value %.2f, seller cost %.2f, ZOPA %.2f, %d rounds\n",
		ep.Item.Title, ep.MSRP, ep.BuyerValue, ep.SellerCost, ctx.ZOPASize(), ep.TimeLimit)
	fmt.Printf("Outcome:  %s after %d rounds\n", ep.Outcome, ep.Rounds)

	fmt.Printf("\nOffers:\n")
	for _, o := range ep.Offers {
		bluff := ""
		if o.IsBluff {
			bluff = fmt.Sprintf(" [bluff %.2f]", o.BluffStrength)
		}
		fmt.Printf("  %3d  %-6s  %-10s  %9.2f  trust %.2f  %q%s\n",
			o.RoundNumber, o.Role, o.Intent, o.Price, o.TrustAfter, o.Utterance, bluff)
	}

	if ep.MetricsJSON != "" {
		fmt.Printf("\n%s", metrics.Summary(report))
	}

	if withEvents {
		fmt.Printf("\nEvents:\n")
		for _, e := range out.Events {
			fmt.Printf("  %-15s  %-6s  round %-3d  %9.2f  %-10s  conf %.2f\n",
				e.Kind, e.Role, e.Round, e.Price, e.Intent, e.Confidence)
		}
	}
	return nil
}

// #endregion detail-mode

// #region best-mode

func runBestMode(st *store.Store, jsonOut bool) error {
	type bestRow struct {
		Role    string  `json:"role"`
		Profile string  `json:"profile"`
		Score   float64 `json:"score"`
	}
	var rows []bestRow
	for _, r := range []deal.Role{deal.Buyer, deal.Seller} {
		name, score, err := st.BestProfile(r)
		if err != nil {
			return err
		}
		rows = append(rows, bestRow{r.String(), name, score})
	}
	if jsonOut {
		return printJSON(rows)
	}
	for _, r := range rows {
		if r.Profile == "" {
			fmt.Printf("%-6s  (not enough history, need %d samples)\n", r.Role, store.MinProfileSamples)
			continue
		}
		fmt.Printf("%-6s  %-12s  %.4f\n", r.Role, r.Profile, r.Score)
	}
	return nil
}

// #endregion best-mode

// #region output

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
