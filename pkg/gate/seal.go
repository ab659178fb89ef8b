package gate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
)

// Sealer computes and verifies request seals: HMAC-SHA256 over
// "mask|context|timestamp|path|nonce", standard padded base64.
// It is safe for concurrent use.
type Sealer struct {
	key []byte
}

// NewSealer copies secret into a new Sealer.
func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Sealer{key: key}, nil
}

func (s *Sealer) digest(mask int64, context string, timestamp int64, path, nonce string) []byte {
	buf := make([]byte, 0, 48+len(context)+len(path)+len(nonce))
	buf = strconv.AppendInt(buf, mask, 10)
	buf = append(buf, '|')
	buf = append(buf, context...)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, timestamp, 10)
	buf = append(buf, '|')
	buf = append(buf, path...)
	buf = append(buf, '|')
	buf = append(buf, nonce...)

	mac := hmac.New(sha256.New, s.key)
	mac.Write(buf)
	return mac.Sum(nil)
}

// Compute returns the seal for the given fields.
func (s *Sealer) Compute(mask int64, context string, timestamp int64, path, nonce string) string {
	return base64.StdEncoding.EncodeToString(s.digest(mask, context, timestamp, path, nonce))
}

// Verify reports whether req.Seal matches the request fields. The comparison
// is constant time over the decoded digest; a seal that does not decode is a
// mismatch.
func (s *Sealer) Verify(req SecureRequest) bool {
	got, err := base64.StdEncoding.Strict().DecodeString(req.Seal)
	if err != nil {
		return false
	}
	want := s.digest(req.Mask, req.Context, req.Timestamp, req.Path, req.Nonce)
	return hmac.Equal(got, want)
}

// SignRequest returns req with its Seal computed under secret. It is the
// client-side counterpart of Sealer.Verify.
func SignRequest(secret []byte, req SecureRequest) (SecureRequest, error) {
	s, err := NewSealer(secret)
	if err != nil {
		return SecureRequest{}, err
	}
	req.Seal = s.Compute(req.Mask, req.Context, req.Timestamp, req.Path, req.Nonce)
	return req, nil
}
