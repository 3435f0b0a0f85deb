package markov

import (
	"fmt"
	"math/rand/v2"
)

// Rand is the source of randomness used for sampling. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Uint64N(n uint64) uint64
}

// globalRand draws from the goroutine-safe top-level math/rand/v2 source.
type globalRand struct{}

func (globalRand) IntN(n int) int          { return rand.IntN(n) }
func (globalRand) Uint64N(n uint64) uint64 { return rand.Uint64N(n) }

// WeightedSampler draws indices in [0, Len()) with fixed relative weights.
type WeightedSampler interface {
	Next(r Rand) int
	Len() int
}

var (
	_ WeightedSampler = (*AliasTable)(nil)
	_ WeightedSampler = (*CumulativeTable)(nil)
)

// CumulativeTable samples by walking the weights and subtracting each one from
// a uniform draw over their sum. Building is free and drawing is O(n), which
// suits tables that are drawn from only a handful of times.
type CumulativeTable struct {
	weights []uint32
	total   uint64
}

// NewCumulativeTable returns a linear sampler over weights. The same weights
// are rejected as by NewAliasTable, except that overflow cannot occur.
func NewCumulativeTable(weights []uint32) (*CumulativeTable, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrInvalidWeights)
	}
	var total uint64
	for _, w := range weights {
		total += uint64(w)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: all weights are zero", ErrInvalidWeights)
	}
	return &CumulativeTable{
		weights: append([]uint32(nil), weights...),
		total:   total,
	}, nil
}

// Next draws an index.
func (t *CumulativeTable) Next(r Rand) int {
	choice := r.Uint64N(t.total)
	for i, w := range t.weights {
		if choice < uint64(w) {
			return i
		}
		choice -= uint64(w)
	}
	// Unreachable while total equals the sum of weights.
	return len(t.weights) - 1
}

// Len returns the number of weights.
func (t *CumulativeTable) Len() int {
	return len(t.weights)
}
