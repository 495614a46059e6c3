package sim

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/danielpatrickdp/dealdialect/internal/strategy"
)

// #region csv

var csvHeader = []string{"Buyer Strategy", "Seller Strategy", "Agreement Rate", "Avg Buyer Surplus", "Avg Seller Surplus", "Avg Rounds"}

// WriteCSV writes one row per matchup.
func WriteCSV(w io.Writer, results []MatchupResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.BuyerStrategy,
			r.SellerStrategy,
			fmt.Sprintf("%.4f", r.AgreementRate),
			fmt.Sprintf("%.2f", r.AvgBuyerSurplus),
			fmt.Sprintf("%.2f", r.AvgSellerSurplus),
			fmt.Sprintf("%.2f", r.AvgRounds),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// #endregion csv

// #region win-rates

// WinRates scores each strategy by the share of its matchups where its
// side took the larger average surplus. Ties score for neither side.
func WinRates(results []MatchupResult) map[string]float64 {
	wins := map[string]int{}
	games := map[string]int{}
	for _, r := range results {
		games[r.BuyerStrategy]++
		games[r.SellerStrategy]++
		switch {
		case r.AvgBuyerSurplus > r.AvgSellerSurplus:
			wins[r.BuyerStrategy]++
		case r.AvgSellerSurplus > r.AvgBuyerSurplus:
			wins[r.SellerStrategy]++
		}
	}
	rates := make(map[string]float64, len(games))
	for name, n := range games {
		rates[name] = float64(wins[name]) / float64(n)
	}
	return rates
}

// #endregion win-rates

// #region profiles

// profileFile is the TOML layout for a matchup roster:
//
//	use = ["cooperative", "hardball"]
//
//	[[profile]]
//	name = "nibbler"
//	aggression = 0.7
//	curve = "boulware"
type profileFile struct {
	Use     []string           `toml:"use"`
	Profile []strategy.Profile `toml:"profile"`
}

// LoadProfiles reads a roster of built-in and custom profiles. Names must
// be unique.
func LoadProfiles(path string) ([]strategy.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var pf profileFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	var out []strategy.Profile
	seen := map[string]bool{}
	add := func(p strategy.Profile) error {
		if p.Name == "" {
			return fmt.Errorf("profile without a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate profile %q", p.Name)
		}
		seen[p.Name] = true
		out = append(out, p)
		return nil
	}
	for _, name := range pf.Use {
		p, err := strategy.LookupProfile(name)
		if err != nil {
			return nil, err
		}
		if err := add(p); err != nil {
			return nil, err
		}
	}
	for _, p := range pf.Profile {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no profiles in %s", path)
	}
	return out, nil
}

// BuiltinProfiles returns every built-in profile in name order.
func BuiltinProfiles() []strategy.Profile {
	names := strategy.ProfileNames()
	out := make([]strategy.Profile, len(names))
	for i, n := range names {
		out[i] = strategy.Profiles[n]
	}
	return out
}

// #endregion profiles
