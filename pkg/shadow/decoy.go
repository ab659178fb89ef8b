// Package shadow synthesizes the fabricated payloads served on the Shadow path.
//
// A decoy's business fields are a pure function of the gate secret and the
// request coordinates (path, context, nonce): probing the same coordinates
// again yields a self-consistent record. Only the transaction identifier and
// the timestamp are fresh on every call.
package shadow

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// Decoy mirrors the layout of a genuine account record.
type Decoy struct {
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     int64     `json:"timestamp"`
	Data          DecoyData `json:"data"`
	Meta          DecoyMeta `json:"meta"`
}

// DecoyData is the business-shaped part of a decoy.
type DecoyData struct {
	AccountType string   `json:"account_type"`
	Balance     float64  `json:"balance"`
	Currency    string   `json:"currency"`
	Flags       []string `json:"flags"`
}

// DecoyMeta carries plausible processing metadata.
type DecoyMeta struct {
	ProcessingTimeMs int    `json:"processing_time_ms"`
	Region           string `json:"region"`
}

// Canonical renders the decoy as RFC 8785 canonical JSON, for integrations
// that expect a raw string payload.
func (d *Decoy) Canonical() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal decoy: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize decoy: %w", err)
	}
	return string(canon), nil
}

// Profile bounds the values a synthesizer may produce. It should describe the
// genuine data the gate protects so that decoys blend in.
type Profile struct {
	AccountTypes    []string `yaml:"account_types" json:"account_types"`
	Currency        string   `yaml:"currency" json:"currency"`
	Region          string   `yaml:"region" json:"region"`
	Flags           []string `yaml:"flags" json:"flags"`
	MinBalance      float64  `yaml:"min_balance" json:"min_balance"`
	MaxBalance      float64  `yaml:"max_balance" json:"max_balance"`
	MinProcessingMs int      `yaml:"min_processing_ms" json:"min_processing_ms"`
	MaxProcessingMs int      `yaml:"max_processing_ms" json:"max_processing_ms"`
}

// DefaultProfile returns the built-in banking profile.
func DefaultProfile() Profile {
	return Profile{
		AccountTypes:    []string{"checking", "savings", "investment", "business"},
		Currency:        "BRL",
		Region:          "sa-east-1",
		Flags:           []string{"verified", "secure", "premium", "overdraft_protected"},
		MinBalance:      1000,
		MaxBalance:      500000,
		MinProcessingMs: 10,
		MaxProcessingMs: 149,
	}
}

// Validate reports whether the profile can drive a synthesizer.
func (p Profile) Validate() error {
	switch {
	case len(p.AccountTypes) == 0:
		return errors.New("shadow profile: account_types must not be empty")
	case len(p.Flags) == 0:
		return errors.New("shadow profile: flags must not be empty")
	case p.Currency == "" || p.Region == "":
		return errors.New("shadow profile: currency and region are required")
	case p.MinBalance < 0 || p.MaxBalance < p.MinBalance || math.IsInf(p.MaxBalance, 0) || math.IsNaN(p.MaxBalance):
		return fmt.Errorf("shadow profile: invalid balance range [%v, %v]", p.MinBalance, p.MaxBalance)
	case p.MinProcessingMs < 0 || p.MaxProcessingMs < p.MinProcessingMs:
		return fmt.Errorf("shadow profile: invalid processing range [%d, %d]", p.MinProcessingMs, p.MaxProcessingMs)
	}
	return nil
}

// Synthesizer produces decoys. It is safe for concurrent use.
type Synthesizer struct {
	key     []byte
	profile Profile
	clock   func() time.Time
	newID   func() string
}

// NewSynthesizer derives the seeding key from secret and validates profile.
func NewSynthesizer(secret []byte, profile Profile) (*Synthesizer, error) {
	if len(secret) == 0 {
		return nil, errors.New("shadow: secret must not be empty")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	key, err := deriveSeedKey(secret)
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		key:     key,
		profile: profile,
		clock:   time.Now,
		newID:   uuid.NewString,
	}, nil
}

// WithClock overrides clock for testing.
func (s *Synthesizer) WithClock(clock func() time.Time) *Synthesizer {
	s.clock = clock
	return s
}

// Seed returns the deterministic seed for the given coordinates.
func (s *Synthesizer) Seed(context, path, nonce string) uint64 {
	return seedFrom(s.key, path, context, nonce)
}

// Generate builds the decoy for the given coordinates.
func (s *Synthesizer) Generate(context, path, nonce string) *Decoy {
	g := newLCG(s.Seed(context, path, nonce))
	p := s.profile

	accountType := p.AccountTypes[g.intn(len(p.AccountTypes))]
	balance := p.MinBalance + g.float64()*(p.MaxBalance-p.MinBalance)
	balance = math.Round(balance*100) / 100

	flags := make([]string, 0, len(p.Flags))
	for _, f := range p.Flags {
		if g.intn(2) == 1 {
			flags = append(flags, f)
		}
	}
	if len(flags) == 0 {
		flags = append(flags, p.Flags[0])
	}

	processing := p.MinProcessingMs + g.intn(p.MaxProcessingMs-p.MinProcessingMs+1)

	return &Decoy{
		Status:        "success",
		TransactionID: s.newID(),
		Timestamp:     s.clock().UnixMilli(),
		Data: DecoyData{
			AccountType: accountType,
			Balance:     balance,
			Currency:    p.Currency,
			Flags:       flags,
		},
		Meta: DecoyMeta{
			ProcessingTimeMs: processing,
			Region:           p.Region,
		},
	}
}
