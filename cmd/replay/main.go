package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/dealdialect/internal/language"
	"github.com/danielpatrickdp/dealdialect/internal/logging"
	"github.com/danielpatrickdp/dealdialect/internal/replay"
	"github.com/danielpatrickdp/dealdialect/internal/store"
)

// #region main

func main() {
	record := flag.Bool("record", false, "overwrite each fixture's expectations with the replayed result")
	dbPath := flag.String("db", "", "replay stored episodes from this database instead of fixtures")
	last := flag.Int("last", 20, "number of most recent episodes to replay (DB mode)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, err := logging.New(logging.Options{Level: level, Pretty: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}

	paths := flag.Args()
	if (*dbPath == "" && len(paths) == 0) || (*dbPath != "" && len(paths) > 0) {
		fmt.Fprintln(os.Stderr, "usage: replay [--record] fixture.json...")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/dealdialect.db [--last N]")
		os.Exit(2)
	}

	var exitCode int
	if *dbPath != "" {
		exitCode = runDBMode(*dbPath, *last, log)
	} else {
		exitCode = runFixtureMode(paths, *record, log)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region modes

type named struct {
	name    string
	fixture *replay.Fixture
}

func runFixtureMode(paths []string, record bool, log zerolog.Logger) int {
	var fixtures []named
	for _, p := range paths {
		f, err := replay.LoadFixture(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
			return 2
		}
		fixtures = append(fixtures, named{p, f})
	}

	if record {
		for _, n := range fixtures {
			r, err := replay.Replay(n.fixture, language.NewTemplateModel(), log)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", n.name, err)
				return 2
			}
			replay.Record(n.fixture, r)
			if err := replay.WriteFixture(n.name, n.fixture); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				return 2
			}
			fmt.Printf("recorded %s: %s in %d rounds\n", n.name, r.Outcome, r.Rounds)
		}
		return 0
	}
	return compare(fixtures, log)
}

func runDBMode(dbPath string, last int, log zerolog.Logger) int {
	st, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	eps, err := st.ListEpisodes(last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list episodes: %v\n", err)
		return 2
	}
	var fixtures []named
	for _, ep := range eps {
		full, err := st.GetEpisode(ep.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get episode: %v\n", err)
			return 2
		}
		f, err := replay.FromEpisode(full)
		if err != nil {
			// human-played episodes have no profile on one side
			log.Debug().Err(err).Msg("skipping episode")
			continue
		}
		fixtures = append(fixtures, named{shortID(ep.ID), f})
	}
	if len(fixtures) == 0 {
		fmt.Fprintln(os.Stderr, "no replayable episodes found")
		return 0
	}
	return compare(fixtures, log)
}

// #endregion modes

// #region output

// compare replays every fixture, prints one row per checked field and
// returns the exit code.
func compare(fixtures []named, log zerolog.Logger) int {
	fmt.Printf("%-28s| %-15s| %-15s| %-15s| %s\n", "Fixture", "Field", "Expected", "Replayed", "Match")
	fmt.Printf("%-28s+%-16s+%-16s+%-16s+%s\n",
		"----------------------------", "----------------", "----------------", "----------------", "------")

	results := make([]replay.Result, 0, len(fixtures))
	mismatches := make([][]replay.Mismatch, 0, len(fixtures))
	for _, n := range fixtures {
		r, err := replay.Replay(n.fixture, language.NewTemplateModel(), log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", n.name, err)
			return 2
		}
		ms := replay.Verify(n.fixture, r)
		results = append(results, r)
		mismatches = append(mismatches, ms)

		if len(ms) == 0 {
			fmt.Printf("%-28s| %-15s| %-15s| %-15s| %s\n", trim(n.name, 28), "outcome", n.fixture.Expected.Outcome, r.Outcome, "OK")
			continue
		}
		for _, m := range ms {
			fmt.Printf("%-28s| %-15s| %-15s| %-15s| %s\n", trim(n.name, 28), m.Field, trim(m.Expected, 15), trim(m.Actual, 15), "DIFF")
		}
	}

	s := replay.Summarize(results, mismatches)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge, %d agreements\n", s.Total, s.Passed, s.Failed, s.Agreements)
	if s.Failed > 0 {
		return 1
	}
	return 0
}

func trim(s string, n int) string {
	if len(s) > n {
		return s[:n-1] + "~"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
