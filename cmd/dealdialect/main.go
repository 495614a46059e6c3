package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/dealdialect/internal/config"
	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/engine"
	"github.com/danielpatrickdp/dealdialect/internal/export"
	"github.com/danielpatrickdp/dealdialect/internal/language"
	"github.com/danielpatrickdp/dealdialect/internal/logging"
	"github.com/danielpatrickdp/dealdialect/internal/metrics"
	"github.com/danielpatrickdp/dealdialect/internal/store"
	"github.com/danielpatrickdp/dealdialect/internal/strategy"
)

// #region styles

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	buyerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4FC08D"))
	sellerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E8A838"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	alertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#444444")).
	Padding(0, 1)

func roleLabel(r deal.Role) string {
	if r == deal.Buyer {
		return buyerStyle.Render("BUYER ")
	}
	return sellerStyle.Render("SELLER")
}

// #endregion styles

// #region main

func main() {
	configPath := flag.String("config", "", "path to dealdialect.yaml or .toml")
	side := flag.String("role", "buyer", "role you play: buyer or seller")
	noStore := flag.Bool("no-store", false, "do not persist the episode")
	adaptive := flag.Bool("adaptive", false, "AI picks its best-scoring profile from past episodes")
	exportPath := flag.String("export", "", "write the transcript to this .json, .yaml or .md file")
	flag.Parse()

	if err := run(*configPath, *side, *noStore, *adaptive, *exportPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, side string, noStore, adaptive bool, exportPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return err
	}
	human, err := deal.ParseRole(side)
	if err != nil {
		return err
	}
	ai := human.Opposite()

	ctx := context.Background()
	lm, err := language.Open(ctx, cfg.LanguageOptions(), log)
	if err != nil {
		return err
	}
	defer lm.Close()

	var st *store.Store
	if !noStore {
		st, err = store.NewStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	profile, err := cfg.Agent(ai)
	if err != nil {
		return err
	}
	if adaptive && st != nil {
		profile = pickProfile(st, ai, profile, log)
	}

	seed := cfg.Engine.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	dc := cfg.DealContext()
	e := engine.New(dc, lm, engine.WithSeed(seed), engine.WithLogger(log))
	e.UseProfile(ai, profile)
	e.SetTruthfulnessPolicy(cfg.TruthfulnessPolicy())

	episodeID := uuid.New().String()
	var rec *logging.EventRecorder
	if st != nil {
		rec = logging.NewEventRecorder(st.DB(), episodeID, log)
		e.AddListener(rec)
	}
	e.AddListener(engine.ListenerFuncs{
		BluffDetected: func(o deal.Offer, confidence float64, _ deal.StateView) {
			fmt.Println(alertStyle.Render(fmt.Sprintf("  ! %s bluff detected (confidence %.2f)", o.Role, confidence)))
		},
	})

	printIntro(dc, human, profile)
	play(e, human, ai, cfg.FirstMover())

	v := e.State()
	fmt.Println()
	fmt.Println(boxStyle.Render(strings.TrimRight(metrics.Summary(metrics.Compute(dc, v)), "\n")))

	if st != nil {
		rec.RecordOutcome(v)
		buyerProfile, sellerProfile := store.HumanProfile, profile.Name
		if ai == deal.Buyer {
			buyerProfile, sellerProfile = profile.Name, store.HumanProfile
		}
		er, err := store.NewEpisodeRecord(dc, v, buyerProfile, sellerProfile, seed)
		if err != nil {
			return err
		}
		er.ID = episodeID
		if _, err := st.SaveEpisode(er); err != nil {
			return err
		}
		if err := rec.Err(); err != nil {
			log.Warn().Err(err).Msg("some events were not recorded")
		}
		fmt.Println(dimStyle.Render("saved episode " + episodeID))
	}

	if exportPath != "" {
		if err := writeExport(exportPath, export.FromEngine(e)); err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("wrote " + exportPath))
	}
	return nil
}

// #endregion main

// #region play

func printIntro(dc *deal.DealContext, human deal.Role, p strategy.Profile) {
	title := dc.Item().Title
	fmt.Println(titleStyle.Render("DealDialect: " + title))
	limit := dc.Reservation(human)
	kind := "most you will pay"
	if human == deal.Seller {
		kind = "least you will take"
	}
	fmt.Printf("You are the %s. MSRP $%.2f, %s $%.2f, %d rounds.\n", human, dc.MSRP(), kind, limit, dc.TimeLimit())
	fmt.Println(dimStyle.Render(fmt.Sprintf("Opponent profile: %s. Type an offer like \"how about $850\", \"deal\", or \"quit\".", p)))
	fmt.Println()
}

func play(e *engine.Engine, human, ai deal.Role, first deal.Role) {
	if first == ai {
		aiMove(e, ai)
	}
	scanner := bufio.NewScanner(os.Stdin)
	for !e.State().Terminal() {
		fmt.Print(roleLabel(human) + " > ")
		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			text = "I'm walking away."
		}
		if _, ok := e.ProcessHumanInput(text, human); !ok {
			fmt.Println(dimStyle.Render("  (no price or intent recognized, try again)"))
			continue
		}
		if e.State().Terminal() {
			return
		}
		aiMove(e, ai)
	}
}

func aiMove(e *engine.Engine, ai deal.Role) {
	o, ok := e.Step(ai)
	if !ok {
		return
	}
	line := fmt.Sprintf("%s: %s", roleLabel(ai), o.Utterance)
	if o.Intent != deal.IntentWalkAway && o.Intent != deal.IntentAccept {
		line += dimStyle.Render(fmt.Sprintf("  [$%.2f, round %d]", o.Price, o.RoundNumber))
	}
	fmt.Println(line)
}

// pickProfile swaps in the best-remembered profile for role when the store
// has enough history, otherwise keeps fallback.
func pickProfile(st *store.Store, role deal.Role, fallback strategy.Profile, log zerolog.Logger) strategy.Profile {
	name, score, err := st.BestProfile(role)
	if err != nil {
		log.Warn().Err(err).Msg("profile memory unavailable")
		return fallback
	}
	p, err := strategy.LookupProfile(name)
	if name == "" || err != nil {
		return fallback
	}
	log.Info().Str("profile", name).Float64("score", score).Msg("using remembered profile")
	return p
}

// #endregion play

// #region export

func writeExport(path string, t export.Transcript) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = export.WriteJSON(f, t)
	case ".yaml", ".yml":
		err = export.WriteYAML(f, t)
	case ".md":
		err = export.WriteMarkdown(f, t)
	default:
		err = fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
	return errors.Join(err, f.Close())
}

// #endregion export
