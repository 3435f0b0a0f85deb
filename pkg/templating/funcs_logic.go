package templating

import (
	"math/rand/v2"
	"reflect"
)

// repeat returns a slice of integers from 0 to count-1, for ranging a fixed
// number of stanzas.
func repeat(count int) []int {
	if count < 0 {
		return []int{}
	}
	s := make([]int, count)
	for i := range s {
		s[i] = i
	}
	return s
}

// list returns its arguments as a slice, e.g. the line lengths of a form.
func list(args ...any) []any {
	return args
}

// randomChoice selects and returns a single random element from a slice.
// Anything that is not a non-empty slice yields nil.
func randomChoice(slice any) any {
	val := reflect.ValueOf(slice)
	if val.Kind() != reflect.Slice || val.Len() == 0 {
		return nil
	}
	return val.Index(rand.IntN(val.Len())).Interface()
}

// randomInt returns a random integer within the range [lo, hi).
func randomInt(lo, hi int) int {
	if lo >= hi {
		return lo
	}
	return rand.IntN(hi-lo) + lo
}

func add(a, b int) int { return a + b }

func sub(a, b int) int { return a - b }

// isSet returns true if a value is not its zero value.
func isSet(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	return !v.IsZero()
}
