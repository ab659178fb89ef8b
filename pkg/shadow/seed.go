package shadow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// seedKeyInfo separates the decoy seeding key from the seal key.
const seedKeyInfo = "triad/shadow/v1"

func deriveSeedKey(secret []byte) ([]byte, error) {
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(seedKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive shadow seed key: %w", err)
	}
	return key, nil
}

// seedFrom hashes the request coordinates into a 64-bit seed. Each field is
// length-prefixed so that moving bytes between fields changes the seed.
func seedFrom(key []byte, path, context, nonce string) uint64 {
	mac := hmac.New(sha256.New, key)
	var lenBuf [8]byte
	for _, field := range []string{path, context, nonce} {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(field)))
		mac.Write(lenBuf[:])
		mac.Write([]byte(field))
	}
	return binary.BigEndian.Uint64(mac.Sum(nil)[:8])
}

// lcg is a 64-bit linear congruential generator (Knuth MMIX constants). It is
// fast and fully reproducible from its seed, which is all decoys need.
type lcg struct {
	state uint64
}

func newLCG(seed uint64) *lcg {
	return &lcg{state: seed}
}

func (g *lcg) next() uint64 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return g.state
}

// float64 returns a value in [0, 1) built from the high 53 bits.
func (g *lcg) float64() float64 {
	return float64(g.next()>>11) / (1 << 53)
}

// intn returns a value in [0, n). n must be positive.
func (g *lcg) intn(n int) int {
	return int((g.next() >> 33) % uint64(n))
}
