// Package rand is a lock-guarded PCG source seeded from crypto/rand. It
// backs request ids and retry jitter.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var source = newSource()

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource() *lockedSource {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("unreachable")
	}
	return &lockedSource{
		//nolint:gosec // no security required
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

// NewRequestID returns a base62 string of length n, used to tag queries
// so a request can be matched with the service's logs.
func NewRequestID(n int) string {
	buf := make([]byte, n)
	source.mu.Lock()
	for i := range buf {
		buf[i] = charset[source.rng.IntN(len(charset))]
	}
	source.mu.Unlock()
	return string(buf)
}

// Float64 returns a number in [0, 1).
func Float64() float64 {
	source.mu.Lock()
	defer source.mu.Unlock()
	return source.rng.Float64()
}
