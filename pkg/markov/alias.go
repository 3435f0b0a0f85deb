package markov

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrInvalidWeights is returned when a sampling table cannot be built from the
// supplied weights: the slice is empty, every weight is zero, or the rescaled
// weights do not fit in 64 bits.
var ErrInvalidWeights = fmt.Errorf("%w: invalid weights", ErrInvalidQuery)

var errWeightOverflow = errors.New("rescaled weights overflow uint64")

// AliasTable is an integer Walker/Vose alias table. Drawing an index costs two
// random numbers and one comparison, independent of the number of weights.
//
// For a uniform column i in [0, Len()) and a uniform r in [0, Mean), Next
// returns Aliases[i] when r < Thresholds[i] and i otherwise.
type AliasTable struct {
	Aliases    []int    `json:"aliases"`
	Thresholds []uint64 `json:"thresholds"`
	Mean       uint64   `json:"mean"`
}

type aliasItem struct {
	index  int
	weight uint64
}

// NewAliasTable compiles weights into an alias table. Index k is drawn with
// probability weights[k] / sum(weights).
func NewAliasTable(weights []uint32) (*AliasTable, error) {
	n := len(weights)
	if n == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrInvalidWeights)
	}

	var sum uint64
	for _, w := range weights {
		sum += uint64(w)
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: all weights are zero", ErrInvalidWeights)
	}

	// Every weight is scaled by sum*n so the mean of the scaled weights is an
	// exact integer.
	hi, scale := bits.Mul64(sum, uint64(n))
	if hi != 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWeights, errWeightOverflow)
	}

	scaled := make([]uint64, n)
	var total uint64
	for i, w := range weights {
		hi, lo := bits.Mul64(uint64(w), scale)
		if hi != 0 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidWeights, errWeightOverflow)
		}
		var carry uint64
		total, carry = bits.Add64(total, lo, 0)
		if carry != 0 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidWeights, errWeightOverflow)
		}
		scaled[i] = lo
	}
	mean := total / uint64(n)

	below := make([]aliasItem, 0, n)
	above := make([]aliasItem, 0, n)
	for i, w := range scaled {
		if w <= mean {
			below = append(below, aliasItem{index: i, weight: w})
		} else {
			above = append(above, aliasItem{index: i, weight: w})
		}
	}

	table := &AliasTable{
		Aliases:    make([]int, n),
		Thresholds: make([]uint64, n),
		Mean:       mean,
	}

	for len(below) > 0 {
		b := below[len(below)-1]
		below = below[:len(below)-1]

		if len(above) == 0 {
			table.Aliases[b.index] = b.index
			table.Thresholds[b.index] = b.weight
			continue
		}

		a := above[len(above)-1]
		above = above[:len(above)-1]

		table.Aliases[b.index] = a.index
		table.Thresholds[b.index] = mean - b.weight
		a.weight -= table.Thresholds[b.index]
		if a.weight <= mean {
			below = append(below, a)
		} else {
			above = append(above, a)
		}
	}

	return table, nil
}

// Next draws an index. It panics if the table is empty.
func (t *AliasTable) Next(r Rand) int {
	i := r.IntN(len(t.Aliases))
	if r.Uint64N(t.Mean) < t.Thresholds[i] {
		return t.Aliases[i]
	}
	return i
}

// Len returns the number of indices the table draws from.
func (t *AliasTable) Len() int {
	return len(t.Aliases)
}
