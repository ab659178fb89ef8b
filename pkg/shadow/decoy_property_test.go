//go:build property
// +build property

package shadow

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDecoyProperties checks reproducibility and profile bounds.
// Property: Generate(c, p, n).Data is stable and always within the profile.
func TestDecoyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	synth, err := NewSynthesizer([]byte("property-secret"), DefaultProfile())
	if err != nil {
		t.Fatal(err)
	}
	synth.WithClock(func() time.Time { return time.UnixMilli(0) })
	profile := DefaultProfile()

	properties.Property("business fields are reproducible", prop.ForAll(
		func(ctx, path, nonce string) bool {
			a := synth.Generate(ctx, path, nonce)
			b := synth.Generate(ctx, path, nonce)
			if a.Data.AccountType != b.Data.AccountType || a.Data.Balance != b.Data.Balance {
				return false
			}
			if len(a.Data.Flags) != len(b.Data.Flags) {
				return false
			}
			return a.Meta == b.Meta
		},
		gen.AnyString(), gen.AnyString(), gen.AnyString(),
	))

	properties.Property("decoys stay within the profile", prop.ForAll(
		func(ctx, path, nonce string) bool {
			d := synth.Generate(ctx, path, nonce)
			return d.Data.Balance >= profile.MinBalance &&
				d.Data.Balance <= profile.MaxBalance &&
				d.Meta.ProcessingTimeMs >= profile.MinProcessingMs &&
				d.Meta.ProcessingTimeMs <= profile.MaxProcessingMs &&
				len(d.Data.Flags) > 0
		},
		gen.AnyString(), gen.AnyString(), gen.AnyString(),
	))

	properties.Property("canonical output validates", prop.ForAll(
		func(ctx, path, nonce string) bool {
			out, err := synth.Generate(ctx, path, nonce).Canonical()
			return err == nil && ValidateShape([]byte(out)) == nil
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
