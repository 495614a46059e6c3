package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/dealdialect/internal/export"
	"github.com/danielpatrickdp/dealdialect/internal/language"
	"github.com/danielpatrickdp/dealdialect/internal/replay"
	"github.com/danielpatrickdp/dealdialect/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to dealdialect.db")
	episode := flag.String("episode", "", "export one episode by ID")
	last := flag.Int("last", 4, "number of most recent episodes to export")
	outDir := flag.String("out", "", "output directory")
	format := flag.String("format", "fixture", "fixture, json, yaml or md")
	flag.Parse()

	if *dbPath == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out dir [--episode id | --last N] [--format fixture|json|yaml|md]")
		os.Exit(2)
	}

	if err := run(*dbPath, *episode, *last, *outDir, *format); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, episodeID string, last int, outDir, format string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	var ids []string
	if episodeID != "" {
		ids = []string{episodeID}
	} else {
		eps, err := st.ListEpisodes(last)
		if err != nil {
			return err
		}
		for _, ep := range eps {
			ids = append(ids, ep.ID)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no episodes in %s", dbPath)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	for _, id := range ids {
		rec, err := st.GetEpisode(id)
		if err != nil {
			return err
		}
		path, err := write(rec, outDir, format)
		if err != nil {
			return fmt.Errorf("episode %s: %w", id, err)
		}
		fmt.Printf("wrote %s (%s, %d rounds)\n", path, rec.Outcome, rec.Rounds)
	}
	return nil
}

// #endregion extract

// #region write

func write(rec store.EpisodeRecord, outDir, format string) (string, error) {
	if format == "fixture" {
		f, err := replay.FromEpisode(rec)
		if err != nil {
			return "", err
		}
		// pin the digest so later engine changes show up as drift
		r, err := replay.Replay(f, language.NewTemplateModel(), zerolog.Nop())
		if err != nil {
			return "", err
		}
		if ms := replay.Verify(f, r); len(ms) > 0 {
			return "", fmt.Errorf("episode does not reproduce: %v", ms)
		}
		replay.Record(f, r)
		path := filepath.Join(outDir, rec.ID+".json")
		return path, replay.WriteFixture(path, f)
	}

	t, err := export.FromRecord(rec)
	if err != nil {
		return "", err
	}
	var ext string
	var enc func(*os.File) error
	switch format {
	case "json":
		ext, enc = ".json", func(f *os.File) error { return export.WriteJSON(f, t) }
	case "yaml":
		ext, enc = ".yaml", func(f *os.File) error { return export.WriteYAML(f, t) }
	case "md":
		ext, enc = ".md", func(f *os.File) error { return export.WriteMarkdown(f, t) }
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
	path := filepath.Join(outDir, rec.ID+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	return path, errors.Join(enc(f), f.Close())
}

// #endregion write
