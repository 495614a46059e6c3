package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/danielpatrickdp/dealdialect/internal/config"
	"github.com/danielpatrickdp/dealdialect/internal/language"
	"github.com/danielpatrickdp/dealdialect/internal/logging"
	"github.com/danielpatrickdp/dealdialect/internal/sim"
	"github.com/danielpatrickdp/dealdialect/internal/store"
	"github.com/danielpatrickdp/dealdialect/internal/strategy"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to dealdialect.yaml or .toml")
	profilesPath := flag.String("profiles", "", "TOML roster of profiles (default: all built-ins)")
	iterations := flag.Int("n", 0, "episodes per matchup (overrides sim.iterations)")
	seed := flag.Uint64("seed", 0, "base seed (overrides sim.seed)")
	csvPath := flag.String("csv", "", "write matchup results as CSV")
	jsonOut := flag.Bool("json", false, "print results as JSON instead of a table")
	persist := flag.Bool("store", false, "save every episode to the configured store")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, *profilesPath, *iterations, *seed, *csvPath, *jsonOut, *persist); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, profilesPath string, iterations int, seed uint64, csvPath string, jsonOut, persist bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return err
	}

	simCfg := cfg.Sim
	if iterations > 0 {
		simCfg.Iterations = iterations
	}
	if seed != 0 {
		simCfg.Seed = seed
	}

	profiles := sim.BuiltinProfiles()
	if profilesPath != "" {
		if profiles, err = sim.LoadProfiles(profilesPath); err != nil {
			return err
		}
	}

	lm, err := language.Open(ctx, cfg.LanguageOptions(), log)
	if err != nil {
		return err
	}
	defer lm.Close()

	opts := []sim.Option{sim.WithLanguageModel(lm), sim.WithLogger(log)}
	if persist {
		st, err := store.NewStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, sim.WithStore(st))
	}

	results, err := sim.NewRunner(simCfg, opts...).Run(ctx, profiles)
	if err != nil {
		return err
	}

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		if err := sim.WriteCSV(f, results); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close csv: %w", err)
		}
	}

	if jsonOut {
		return printJSON(struct {
			Matchups []sim.MatchupResult `json:"matchups"`
			WinRates map[string]float64  `json:"win_rates"`
		}{results, sim.WinRates(results)})
	}
	printTable(results, profiles)
	return nil
}

// #endregion main

// #region output

func printTable(results []sim.MatchupResult, profiles []strategy.Profile) {
	fmt.Printf("%-14s  %-14s  %9s  %12s  %12s  %7s  %6s\n",
		"Buyer", "Seller", "Agree %", "Buyer Surp.", "Seller Surp.", "Rounds", "Eff.")
	fmt.Printf("%-14s+-%-14s+-%9s+-%12s+-%12s+-%7s+-%6s\n",
		"--------------", "--------------", "---------", "------------", "------------", "-------", "------")
	for _, r := range results {
		fmt.Printf("%-14s  %-14s  %8.1f%%  %12.2f  %12.2f  %7.2f  %6.3f\n",
			r.BuyerStrategy, r.SellerStrategy, r.AgreementRate*100,
			r.AvgBuyerSurplus, r.AvgSellerSurplus, r.AvgRounds, r.MeanEfficiency)
	}

	rates := sim.WinRates(results)
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	sort.SliceStable(names, func(i, j int) bool { return rates[names[i]] > rates[names[j]] })
	fmt.Printf("\nWin rates:\n")
	for _, n := range names {
		fmt.Printf("  %-14s %.3f\n", n, rates[n])
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion output
