// Package gate classifies tagged requests into one of three realities.
//
// Every request runs the same ordered pipeline and the first failing check
// settles the outcome:
//
//	mask invalid            -> Shadow
//	timestamp stale/future  -> Mirror
//	seal mismatch           -> Mirror, or Shadow once the caller's failure
//	                           budget is spent
//	nonce seen before       -> Shadow
//	otherwise               -> Prime, and the nonce is recorded
//
// Prime returns the real data, Mirror a sanitized copy and Shadow a
// deterministic decoy. The caller only ever learns the Outcome.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/triad/pkg/ledger"
	"github.com/Mindburn-Labs/triad/pkg/sanitize"
	"github.com/Mindburn-Labs/triad/pkg/shadow"
)

// Payload is what the caller hands back to the requester. Exactly one of
// Text (Prime, Mirror) and Decoy (Shadow) is set.
type Payload struct {
	Text  string
	Decoy *shadow.Decoy
}

// String renders the payload; a decoy is rendered as canonical JSON.
func (p Payload) String() string {
	if p.Decoy == nil {
		return p.Text
	}
	s, err := p.Decoy.Canonical()
	if err != nil {
		return ""
	}
	return s
}

// MarshalJSON emits a JSON string for text payloads and an object for decoys.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Decoy != nil {
		return json.Marshal(p.Decoy)
	}
	return json.Marshal(p.Text)
}

// Decision is reported to observers after every request.
type Decision struct {
	At          time.Time
	Outcome     Outcome
	Check       Check
	Fingerprint string // hashed, see FingerprintHash
	Path        string
	Duration    time.Duration
}

// Observer receives decisions. Observe runs on the request path and must not
// block.
type Observer interface {
	Observe(ctx context.Context, d Decision)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, d Decision)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, d Decision) { f(ctx, d) }

// Stats is a point-in-time view of gate activity.
type Stats struct {
	Prime        uint64 `json:"prime"`
	Mirror       uint64 `json:"mirror"`
	Shadow       uint64 `json:"shadow"`
	Nonces       int    `json:"nonces"`
	Fingerprints int    `json:"fingerprints"`
}

// Total returns the number of processed requests.
func (s Stats) Total() uint64 { return s.Prime + s.Mirror + s.Shadow }

// Gate is the decision orchestrator. It is safe for concurrent use once
// configured; the With* setters are for construction time only.
type Gate struct {
	cfg          Config
	maxAgeMs     int64
	requiredMask int64

	sealer      *Sealer
	sanitizer   *sanitize.Sanitizer
	synth       *shadow.Synthesizer
	nonces      ledger.NonceLedger
	failures    ledger.FailureLedger
	ownNonces   *ledger.MemoryNonceLedger
	ownFailures *ledger.MemoryFailureLedger

	observers []Observer
	clock     func() time.Time
	logger    *slog.Logger
	warnings  *rate.Limiter
	tracer    trace.Tracer

	counts [Shadow + 1]atomic.Uint64
}

// New validates cfg and builds a gate. Nil ledgers are replaced by in-memory
// ones sized from cfg.
func New(cfg Config, nonces ledger.NonceLedger, failures ledger.FailureLedger) (*Gate, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	var required int64
	if len(cfg.RequiredPermissions) > 0 {
		required, err = BuildMask(cfg.RequiredPermissions...)
		if err != nil {
			return nil, fmt.Errorf("gate: required permissions: %w", err)
		}
	}

	sealer, err := NewSealer(cfg.Secret)
	if err != nil {
		return nil, err
	}

	profile := shadow.DefaultProfile()
	if cfg.ShadowProfile != nil {
		profile = *cfg.ShadowProfile
	}
	synth, err := shadow.NewSynthesizer(cfg.Secret, profile)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}

	san := sanitize.Default()
	if len(cfg.SanitizerKeys) > 0 {
		san = sanitize.NewSanitizer(cfg.SanitizerKeys)
	}

	g := &Gate{
		cfg:          cfg,
		maxAgeMs:     cfg.MaxAge.Milliseconds(),
		requiredMask: required,
		sealer:       sealer,
		sanitizer:    san,
		synth:        synth,
		nonces:       nonces,
		failures:     failures,
		clock:        time.Now,
		logger:       slog.Default().With("component", "gate"),
		warnings:     rate.NewLimiter(rate.Every(time.Second), 10),
		tracer:       noop.NewTracerProvider().Tracer(""),
	}
	if g.nonces == nil {
		g.ownNonces = ledger.NewMemoryNonceLedger(cfg.NonceRetention)
		g.nonces = g.ownNonces
	}
	if g.failures == nil {
		g.ownFailures = ledger.NewMemoryFailureLedger(cfg.FailureWindow)
		g.failures = g.ownFailures
	}
	return g, nil
}

// WithClock overrides clock for testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	g.synth.WithClock(clock)
	return g
}

// WithLogger replaces the component logger.
func (g *Gate) WithLogger(l *slog.Logger) *Gate {
	g.logger = l.With("component", "gate")
	return g
}

// WithSanitizer replaces the Mirror sanitizer.
func (g *Gate) WithSanitizer(s *sanitize.Sanitizer) *Gate {
	g.sanitizer = s
	return g
}

// WithObserver appends an observer.
func (g *Gate) WithObserver(o Observer) *Gate {
	g.observers = append(g.observers, o)
	return g
}

// WithWarningRate sets how many rejection warnings per second are logged.
func (g *Gate) WithWarningRate(perSecond float64, burst int) *Gate {
	g.warnings = rate.NewLimiter(rate.Limit(perSecond), burst)
	return g
}

// WithTracer makes Process run inside a "triad.gate.process" span. Observers
// receive the span's context.
func (g *Gate) WithTracer(t trace.Tracer) *Gate {
	g.tracer = t
	return g
}

// Config returns a copy of the effective configuration.
func (g *Gate) Config() Config {
	c := g.cfg
	c.Secret = nil
	return c
}

// Sealer exposes the gate's seal computer, e.g. for signing test traffic.
func (g *Gate) Sealer() *Sealer { return g.sealer }

// Process classifies req and returns the payload to serve with its outcome.
// It never fails: ledger errors are logged and answered with Shadow.
func (g *Gate) Process(ctx context.Context, req SecureRequest, realData, fingerprint string) (Payload, Outcome) {
	ctx, span := g.tracer.Start(ctx, "triad.gate.process", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	began := time.Now()
	now := g.clock()

	outcome, check := g.decide(ctx, req, fingerprint, now.UnixMilli())
	span.SetAttributes(
		attribute.String("triad.outcome", outcome.String()),
		attribute.String("triad.check", string(check)),
		attribute.String("triad.path", req.Path),
	)
	if check == CheckLedger {
		span.SetStatus(codes.Error, "ledger unavailable")
	}

	var payload Payload
	switch outcome {
	case Prime:
		payload.Text = realData
	case Mirror:
		payload.Text = g.sanitizer.Sanitize(realData)
	default:
		payload.Decoy = g.synth.Generate(req.Context, req.Path, req.Nonce)
	}

	g.counts[outcome].Add(1)
	d := Decision{
		At:          now,
		Outcome:     outcome,
		Check:       check,
		Fingerprint: FingerprintHash(fingerprint),
		Path:        req.Path,
		Duration:    time.Since(began),
	}
	if outcome != Prime && check != CheckLedger && g.warnings.Allow() {
		g.logger.WarnContext(ctx, "request diverted",
			"outcome", outcome.String(),
			"check", string(check),
			"fingerprint", d.Fingerprint,
			"path", req.Path,
		)
	}
	for _, o := range g.observers {
		o.Observe(ctx, d)
	}
	return payload, outcome
}

func (g *Gate) decide(ctx context.Context, req SecureRequest, fingerprint string, nowMs int64) (Outcome, Check) {
	if !IsValidMask(req.Mask) || req.Mask&g.requiredMask != g.requiredMask {
		return Shadow, CheckMask
	}
	if !IsFresh(req.Timestamp, nowMs, g.maxAgeMs) {
		return Mirror, CheckFreshness
	}
	if !g.sealer.Verify(req) {
		count, err := g.failures.RecordFailure(ctx, fingerprint, nowMs)
		if err != nil {
			g.logger.ErrorContext(ctx, "failure ledger unavailable", "error", err)
			return Shadow, CheckLedger
		}
		if count > g.cfg.MaxFailures {
			return Shadow, CheckSeal
		}
		return Mirror, CheckSeal
	}
	first, err := g.nonces.CheckAndRecord(ctx, req.Nonce, nowMs)
	if err != nil {
		g.logger.ErrorContext(ctx, "nonce ledger unavailable", "error", err)
		return Shadow, CheckLedger
	}
	if !first {
		return Shadow, CheckNonce
	}
	return Prime, CheckPassed
}

// Stats reports outcome counters and ledger sizes.
func (g *Gate) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		Prime:  g.counts[Prime].Load(),
		Mirror: g.counts[Mirror].Load(),
		Shadow: g.counts[Shadow].Load(),
	}
	var err error
	if s.Nonces, err = g.nonces.Len(ctx); err != nil {
		return s, fmt.Errorf("nonce ledger size: %w", err)
	}
	if s.Fingerprints, err = g.failures.Len(ctx); err != nil {
		return s, fmt.Errorf("failure ledger size: %w", err)
	}
	return s, nil
}

// StartPruning runs periodic expiry on the in-memory ledgers the gate owns:
// nonces older than the retention (when one is set) and failure records whose
// window has elapsed. Supplied ledgers are left alone.
func (g *Gate) StartPruning(interval time.Duration) {
	if g.ownNonces != nil && g.ownNonces.Retention() > 0 {
		g.ownNonces.Start(interval, g.clock)
	}
	if g.ownFailures != nil {
		g.ownFailures.Start(interval, g.clock)
	}
}

// Close releases ledgers the gate created itself.
func (g *Gate) Close() error {
	var errs []error
	if g.ownNonces != nil {
		errs = append(errs, g.ownNonces.Close())
	}
	if g.ownFailures != nil {
		errs = append(errs, g.ownFailures.Close())
	}
	return errors.Join(errs...)
}

var _ io.Closer = (*Gate)(nil)

// FingerprintHash returns a short stable digest of a caller fingerprint so
// raw addresses stay out of logs and journals.
func FingerprintHash(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:8])
}
