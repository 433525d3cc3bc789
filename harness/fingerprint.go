package harness

import (
	"math/rand"

	"github.com/cespare/xxhash/v2"
)

var xxHashBytes = func(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// fill writes pseudo random bytes into payload and returns their digest.
func fill(rng *rand.Rand, payload []byte) uint64 {
	_, _ = rng.Read(payload)
	return xxHashBytes(payload)
}
