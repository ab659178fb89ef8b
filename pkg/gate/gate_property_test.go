//go:build property
// +build property

package gate

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func adjacentBitsNaive(mask int64) bool {
	u := uint64(mask)
	for i := 0; i < 63; i++ {
		if u&(1<<i) != 0 && u&(1<<(i+1)) != 0 {
			return true
		}
	}
	return false
}

// TestGateProperties covers the structural, seal and replay invariants.
func TestGateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("mask validity iff non-negative without adjacent bits", prop.ForAll(
		func(mask int64) bool {
			return IsValidMask(mask) == (mask >= 0 && !adjacentBitsNaive(mask))
		},
		gen.Int64(),
	))

	properties.Property("built masks are always valid", prop.ForAll(
		func(bits []int) bool {
			perms := make([]Permission, 0, len(bits))
			for _, b := range bits {
				perms = append(perms, AllPermissions[b])
			}
			mask, err := BuildMask(perms...)
			return err != nil || IsValidMask(mask)
		},
		gen.SliceOf(gen.IntRange(0, len(AllPermissions)-1)),
	))

	properties.Property("freshness never accepts future or over-age timestamps", prop.ForAll(
		func(ts, now int64) bool {
			const maxAge = 300_000
			if !IsFresh(ts, now, maxAge) {
				return true
			}
			return ts <= now && now-ts <= maxAge
		},
		gen.Int64(), gen.Int64(),
	))

	sealer, _ := NewSealer([]byte("property-secret"))
	properties.Property("signed requests verify", prop.ForAll(
		func(mask, ts int64, c, p, n string) bool {
			req := SecureRequest{Mask: mask, Context: c, Timestamp: ts, Path: p, Nonce: n}
			req.Seal = sealer.Compute(mask, c, ts, p, n)
			return sealer.Verify(req)
		},
		gen.Int64(), gen.Int64(), gen.AnyString(), gen.AnyString(), gen.AnyString(),
	))

	now := time.UnixMilli(1_700_000_000_000)
	properties.Property("a nonce is served Prime at most once", prop.ForAll(
		func(nonce string, repeats int) bool {
			g, err := New(Config{Secret: []byte("property-secret")}, nil, nil)
			if err != nil {
				return false
			}
			g.WithClock(func() time.Time { return now }).WithLogger(quietLogger())
			req := SecureRequest{Mask: 20, Context: "GET", Timestamp: now.UnixMilli(), Path: "/", Nonce: nonce}
			req.Seal = g.Sealer().Compute(req.Mask, req.Context, req.Timestamp, req.Path, req.Nonce)

			primes := 0
			for i := 0; i < repeats; i++ {
				if _, o := g.Process(context.Background(), req, "data", "fp"); o == Prime {
					primes++
				}
			}
			return primes == 1
		},
		gen.AnyString(), gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
