package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/triad/pkg/shadow"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultMaxAge        = 5 * time.Minute
	DefaultMaxFailures   = 5
	DefaultFailureWindow = time.Hour
)

// NoFailureBudget as Config.MaxFailures answers every seal failure with
// Shadow.
const NoFailureBudget = -1

var (
	ErrEmptySecret           = errors.New("gate: secret must not be empty")
	ErrInvalidMaxAge         = errors.New("gate: max age must be positive")
	ErrInvalidMaxFailures    = errors.New("gate: max failures must not be negative unless NoFailureBudget")
	ErrInvalidFailureWindow  = errors.New("gate: failure window must be positive")
	ErrInvalidNonceRetention = errors.New("gate: nonce retention must be zero or at least the max age")
)

// Config is the immutable gate configuration.
type Config struct {
	Secret []byte

	// MaxAge bounds request age. Zero selects DefaultMaxAge.
	MaxAge time.Duration
	// MaxFailures is the number of seal failures per fingerprint answered
	// with Mirror; the next one and every later one get Shadow. Zero selects
	// DefaultMaxFailures and NoFailureBudget allows none.
	MaxFailures int
	// FailureWindow restarts a fingerprint's failure count once it has
	// elapsed since the first counted failure. Zero selects
	// DefaultFailureWindow. Ignored when a failure ledger is supplied.
	FailureWindow time.Duration
	// NonceRetention is how long an accepted nonce is remembered by the
	// default in-memory ledger. Zero keeps nonces for the gate's lifetime.
	NonceRetention time.Duration

	// RequiredPermissions must all be present in a request mask. A mask
	// lacking any of them is treated as structurally invalid.
	RequiredPermissions []Permission

	// SanitizerKeys overrides the key names whose values Mirror redacts.
	SanitizerKeys []string
	// ShadowProfile overrides the decoy value ranges.
	ShadowProfile *shadow.Profile
}

// withDefaults fills zero fields and validates the result.
func (c Config) withDefaults() (Config, error) {
	if len(c.Secret) == 0 {
		return c, ErrEmptySecret
	}
	switch {
	case c.MaxAge == 0:
		c.MaxAge = DefaultMaxAge
	case c.MaxAge < 0:
		return c, fmt.Errorf("%w: %v", ErrInvalidMaxAge, c.MaxAge)
	}
	switch {
	case c.MaxFailures == 0:
		c.MaxFailures = DefaultMaxFailures
	case c.MaxFailures < NoFailureBudget:
		return c, fmt.Errorf("%w: %d", ErrInvalidMaxFailures, c.MaxFailures)
	}
	switch {
	case c.FailureWindow == 0:
		c.FailureWindow = DefaultFailureWindow
	case c.FailureWindow < 0:
		return c, fmt.Errorf("%w: %v", ErrInvalidFailureWindow, c.FailureWindow)
	}
	// A pruned nonce may only come back once its timestamp is stale.
	if c.NonceRetention != 0 && c.NonceRetention < c.MaxAge {
		return c, fmt.Errorf("%w: %v < %v", ErrInvalidNonceRetention, c.NonceRetention, c.MaxAge)
	}
	secret := make([]byte, len(c.Secret))
	copy(secret, c.Secret)
	c.Secret = secret
	c.RequiredPermissions = append([]Permission(nil), c.RequiredPermissions...)
	c.SanitizerKeys = append([]string(nil), c.SanitizerKeys...)
	return c, nil
}
