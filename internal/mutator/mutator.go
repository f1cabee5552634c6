// Package mutator implements the four fixed mutation operators of §4.5:
// bit flip, byte replace, delete span, and clone/insert span.
package mutator

import (
	"math/rand"
	"time"

	"github.com/fEst1ck/coverage-playground/pkg/types"
)

// maxSpan (L_max) bounds the length of delete and clone/insert spans.
const maxSpan = 32

// Mutator selects one of the four operators per call according to the
// fixed categorical distribution (30/20/25/25) and applies it to a copy of
// the seed bytes. It carries a single *rand.Rand, per §4.5: "All randomness
// is drawn from a single pseudo-random generator whose seed MAY be fixed
// for reproducibility but is not required to be."
type Mutator struct {
	rnd *rand.Rand
}

// New creates a Mutator. A seed of 0 draws a time-based seed; any other
// value makes the mutation sequence reproducible.
func New(seed int64) *Mutator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Mutator{rnd: rand.New(rand.NewSource(seed))}
}

// Mutate applies one randomly chosen operator to a copy of input, returning
// the mutant and which operator produced it.
func (m *Mutator) Mutate(input []byte) ([]byte, types.MutationOp) {
	if len(input) == 0 {
		return []byte{m.randomByte()}, types.ByteReplace
	}

	switch m.pickOp() {
	case types.BitFlip:
		return m.bitFlip(input), types.BitFlip
	case types.ByteReplace:
		return m.byteReplace(input), types.ByteReplace
	case types.DeleteSpan:
		if out, ok := m.deleteSpan(input); ok {
			return out, types.DeleteSpan
		}
		return m.byteReplace(input), types.ByteReplace
	default:
		return m.cloneInsert(input), types.CloneInsert
	}
}

// pickOp draws an operator from the fixed 30/20/25/25 distribution.
func (m *Mutator) pickOp() types.MutationOp {
	r := m.rnd.Intn(100)
	switch {
	case r < 30:
		return types.BitFlip
	case r < 50:
		return types.ByteReplace
	case r < 75:
		return types.DeleteSpan
	default:
		return types.CloneInsert
	}
}

func (m *Mutator) randomByte() byte {
	return byte(m.rnd.Intn(256))
}

func copyOf(input []byte) []byte {
	out := make([]byte, len(input))
	copy(out, input)
	return out
}

// bitFlip XORs a single uniformly random bit of a uniformly random byte.
func (m *Mutator) bitFlip(input []byte) []byte {
	out := copyOf(input)
	idx := m.rnd.Intn(len(out))
	bit := m.rnd.Intn(8)
	out[idx] ^= 1 << uint(bit)
	return out
}

// byteReplace overwrites a uniformly random byte with a uniformly random
// value.
func (m *Mutator) byteReplace(input []byte) []byte {
	out := copyOf(input)
	idx := m.rnd.Intn(len(out))
	out[idx] = m.randomByte()
	return out
}

// deleteSpan removes a contiguous span of length <= min(remaining, L_max),
// keeping the result non-empty. Reports false when no deletion can keep the
// result non-empty (only possible when len(input) == 1), leaving the
// degenerate byte-replace fallback to the caller.
func (m *Mutator) deleteSpan(input []byte) ([]byte, bool) {
	n := len(input)
	start := m.rnd.Intn(n)
	remaining := n - start
	maxLen := min(remaining, maxSpan)
	maxLen = min(maxLen, n-1) // keep result length >= 1
	if maxLen < 1 {
		return nil, false
	}
	length := 1 + m.rnd.Intn(maxLen)

	out := make([]byte, 0, n-length)
	out = append(out, input[:start]...)
	out = append(out, input[start+length:]...)
	return out, true
}

// cloneInsert copies a uniformly random span of length <= min(n, L_max)
// from the seed and inserts it at a uniformly random destination index.
func (m *Mutator) cloneInsert(input []byte) []byte {
	n := len(input)
	srcLen := 1 + m.rnd.Intn(min(n, maxSpan))
	srcStart := m.rnd.Intn(n - srcLen + 1)
	span := input[srcStart : srcStart+srcLen]

	dest := m.rnd.Intn(n + 1)
	out := make([]byte, 0, n+srcLen)
	out = append(out, input[:dest]...)
	out = append(out, span...)
	out = append(out, input[dest:]...)
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
