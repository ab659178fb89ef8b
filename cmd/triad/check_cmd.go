package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Mindburn-Labs/triad/pkg/config"
	"github.com/Mindburn-Labs/triad/pkg/gate"
	"github.com/Mindburn-Labs/triad/pkg/journal"
	"github.com/Mindburn-Labs/triad/pkg/ledger"
	"github.com/Mindburn-Labs/triad/pkg/observability"
)

// gateRuntime is a gate plus the backends wired to it.
type gateRuntime struct {
	gate    *gate.Gate
	journal *journal.Journal
	closers []func(context.Context) error
}

func (r *gateRuntime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildRuntime wires the ledgers, journal and telemetry that cfg enables.
func buildRuntime(ctx context.Context, cfg *config.Config) (*gateRuntime, error) {
	rt := &gateRuntime{}
	fail := func(err error) (*gateRuntime, error) {
		_ = rt.Close(ctx)
		return nil, err
	}

	gc, err := cfg.GateConfig()
	if err != nil {
		return nil, err
	}

	var (
		nonces   ledger.NonceLedger
		failures ledger.FailureLedger
	)
	if cfg.RedisAddr != "" {
		client := ledger.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis %s: %w", cfg.RedisAddr, err))
		}
		nonces = ledger.NewRedisNonceLedger(client, cfg.NonceRetention)
		failures = ledger.NewRedisFailureLedger(client, cfg.FailureWindow)
		log.Printf("[triad] ledgers: redis at %s", cfg.RedisAddr)
	}

	g, err := gate.New(gc, nonces, failures)
	if err != nil {
		return fail(err)
	}
	g.WithLogger(slog.Default())
	rt.gate = g
	rt.closers = append(rt.closers, func(context.Context) error { return g.Close() })

	if cfg.DatabaseURL != "" || cfg.JournalPath != "" {
		db, dialect, err := journal.Open(cfg.DatabaseURL, cfg.JournalPath)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return db.Close() })
		store, err := journal.NewStore(ctx, db, dialect)
		if err != nil {
			return fail(err)
		}
		rt.journal = journal.NewJournal(store, 0)
		rt.closers = append(rt.closers, rt.journal.Close)
		g.WithObserver(rt.journal)
		log.Printf("[triad] journal: %s", dialect)
	}

	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.Enabled = true
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.Insecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
		provider, err := observability.New(ctx, obsCfg)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, provider.Shutdown)
		metrics, err := observability.NewGateMetrics(provider.Meter())
		if err != nil {
			return fail(err)
		}
		g.WithObserver(metrics).WithTracer(provider.Tracer())
		log.Printf("[triad] telemetry: otlp at %s", cfg.OTLPEndpoint)
	}

	return rt, nil
}

type checkResult struct {
	Outcome gate.Outcome `json:"outcome"`
	Payload gate.Payload `json:"payload"`
}

func runCheckCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("check", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		data        string
		fingerprint string
		requestPath string
		repeat      int
		showStats   bool
	)
	cmd.StringVar(&data, "data", "", "Real data served on Prime and sanitized on Mirror")
	cmd.StringVar(&fingerprint, "fingerprint", "cli", "Caller fingerprint")
	cmd.StringVar(&requestPath, "request", "-", "Request JSON file, - for stdin")
	cmd.IntVar(&repeat, "repeat", 1, "Submit the request this many times")
	cmd.BoolVar(&showStats, "stats", false, "Print gate statistics afterwards")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if repeat < 1 {
		_, _ = fmt.Fprintln(stderr, "Error: --repeat must be at least 1")
		return 2
	}

	cfg, ok := loadConfig(stderr)
	if !ok {
		return 2
	}
	setupLogger(stderr, cfg.SlogLevel())

	raw, err := readRequest(requestPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	req, err := gate.DecodeRequest(raw)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	for i := 0; i < repeat; i++ {
		payload, outcome := rt.gate.Process(ctx, req, data, fingerprint)
		if err := enc.Encode(checkResult{Outcome: outcome, Payload: payload}); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			_ = rt.Close(ctx)
			return 1
		}
	}

	if showStats {
		stats, err := rt.gate.Stats(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		} else {
			_ = enc.Encode(map[string]gate.Stats{"stats": stats})
		}
	}

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: shutdown: %v\n", err)
		return 1
	}
	return 0
}

func readRequest(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
