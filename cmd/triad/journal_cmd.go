package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Mindburn-Labs/triad/pkg/gate"
	"github.com/Mindburn-Labs/triad/pkg/journal"
)

func runJournalCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("journal", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		limit      int
		jsonOutput bool
	)
	cmd.IntVar(&limit, "limit", 20, "Number of recent decisions to show")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, ok := loadConfig(stderr)
	if !ok {
		return 2
	}

	db, dialect, err := journal.Open(cfg.DatabaseURL, cfg.JournalPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v (set DATABASE_URL or TRIAD_JOURNAL_PATH)\n", err)
		return 2
	}
	defer db.Close()

	ctx := context.Background()
	store, err := journal.NewStore(ctx, db, dialect)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	entries, err := store.Recent(ctx, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	counts, err := store.CountByOutcome(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		type row struct {
			At          time.Time    `json:"at"`
			Outcome     gate.Outcome `json:"outcome"`
			Check       gate.Check   `json:"check"`
			Fingerprint string       `json:"fingerprint"`
			Path        string       `json:"path"`
			DurationUs  int64        `json:"duration_us"`
		}
		rows := make([]row, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, row{e.At.UTC(), e.Outcome, e.Check, e.Fingerprint, e.Path, e.Duration.Microseconds()})
		}
		totals := map[string]int64{}
		for o, n := range counts {
			totals[o.String()] = n
		}
		out := map[string]any{"totals": totals, "recent": rows}
		if err := json.NewEncoder(stdout).Encode(out); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "%sTOTALS:%s PRIME=%d MIRROR=%d SHADOW=%d\n", ColorBold, ColorReset,
		counts[gate.Prime], counts[gate.Mirror], counts[gate.Shadow])
	for _, e := range entries {
		_, _ = fmt.Fprintf(stdout, "%s  %-6s  %-9s  %s  %s\n",
			e.At.UTC().Format(time.RFC3339Nano), e.Outcome, e.Check, e.Fingerprint, e.Path)
	}
	return 0
}
