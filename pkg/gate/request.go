package gate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SecureRequest is a fully formed tagged request. Every field takes part in
// the signed payload.
type SecureRequest struct {
	Mask      int64  `json:"mask"`
	Seal      string `json:"seal"`
	Context   string `json:"context"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
	Path      string `json:"path"`
	Nonce     string `json:"nonce"`
}

// Outcome is the classification returned for a request. It never carries the
// reason for the classification.
type Outcome int

const (
	// Prime requests receive the real data.
	Prime Outcome = iota
	// Mirror requests receive a sanitized copy of the real data.
	Mirror
	// Shadow requests receive a fabricated decoy.
	Shadow
)

var outcomeNames = [...]string{
	Prime:  "PRIME",
	Mirror: "MIRROR",
	Shadow: "SHADOW",
}

func (o Outcome) String() string {
	if o < Prime || o > Shadow {
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	if o < Prime || o > Shadow {
		return nil, fmt.Errorf("gate: unknown outcome %d", int(o))
	}
	return []byte(outcomeNames[o]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	for i, name := range outcomeNames {
		if string(b) == name {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("gate: unknown outcome %q", string(b))
}

// Check names the pipeline stage that settled a decision. It is reported to
// observers only and never reaches the caller.
type Check string

const (
	CheckMask      Check = "mask"
	CheckFreshness Check = "freshness"
	CheckSeal      Check = "seal"
	CheckNonce     Check = "nonce"
	CheckLedger    Check = "ledger"
	CheckPassed    Check = "passed"
)

// DecodeRequest parses a JSON-encoded SecureRequest. Unknown fields are
// rejected.
func DecodeRequest(raw []byte) (SecureRequest, error) {
	var req SecureRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return SecureRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}
