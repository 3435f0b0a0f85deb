package markov

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// KeyMode decides which tokens share a state.
type KeyMode int

const (
	// KeyWord keys states by surface text alone. Homographs with different
	// readings ("今日" as キョウ and コンニチ) collapse into one state; the
	// first token seen for the word is the one the state carries.
	KeyWord KeyMode = iota
	// KeyWordReading keys states by surface text and mora reading.
	KeyWordReading
)

// String returns the name used for the key mode in snapshots and the store.
func (k KeyMode) String() string {
	switch k {
	case KeyWord:
		return "word"
	case KeyWordReading:
		return "word_reading"
	default:
		return fmt.Sprintf("KeyMode(%d)", int(k))
	}
}

// ParseKeyMode converts a key mode name into a KeyMode.
func ParseKeyMode(s string) (KeyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "word":
		return KeyWord, nil
	case "word_reading":
		return KeyWordReading, nil
	default:
		return 0, fmt.Errorf("unknown key mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k KeyMode) MarshalText() ([]byte, error) {
	if k != KeyWord && k != KeyWordReading {
		return nil, fmt.Errorf("invalid key mode %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *KeyMode) UnmarshalText(text []byte) error {
	parsed, err := ParseKeyMode(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// key returns the state key of t. The sentinel always has the empty key.
func (k KeyMode) key(t Token) string {
	if t.IsSentinel() {
		return ""
	}
	if k == KeyWordReading {
		return t.Word + "\x00" + t.Mora
	}
	return t.Word
}

// Successor is one observed follower of a state.
type Successor struct {
	Token       Token
	Count       int
	Probability float64
}

// State is a node of the chain: a token and the distribution of the tokens
// observed right after it. A state always has at least one successor.
type State struct {
	Token      Token
	Successors []Successor
	table      WeightedSampler
}

// Next draws a successor token.
func (s *State) Next(r Rand) Token {
	return s.Successors[s.table.Next(r)].Token
}

// IsTerminal reports whether the only successor of the state is the sentinel.
func (s *State) IsTerminal() bool {
	return len(s.Successors) == 1 && s.Successors[0].Token.IsSentinel()
}

// Model is a first-order Markov chain over tokens. It is immutable once built
// and safe for concurrent use.
type Model struct {
	keyMode   KeyMode
	states    []*State
	index     map[string]int
	wordIndex map[string]int
	sentinel  *State
	// minLength holds, per metric, the shortest positive token length in the
	// model, or 0 when no token has a positive length.
	minLength [2]int
}

// newSentinelState returns the absorbing end state. Its only successor is
// itself.
func newSentinelState() *State {
	table, _ := NewAliasTable([]uint32{1})
	return &State{
		Token:      SentinelToken,
		Successors: []Successor{{Token: SentinelToken, Count: 1, Probability: 1}},
		table:      table,
	}
}

// newStateSampler compiles an alias table for weights. A state whose rescaled
// weights do not fit in 64 bits is sampled linearly instead.
func newStateSampler(weights []uint32) (WeightedSampler, error) {
	table, err := NewAliasTable(weights)
	if errors.Is(err, errWeightOverflow) {
		return NewCumulativeTable(weights)
	}
	if err != nil {
		return nil, err
	}
	return table, nil
}

// newModel validates states, fills in probabilities and compiles the alias
// tables. States are kept in the given order. A state without successors
// receives the sentinel.
func newModel(keyMode KeyMode, states []*State) (*Model, error) {
	if keyMode != KeyWord && keyMode != KeyWordReading {
		return nil, fmt.Errorf("invalid key mode %d", int(keyMode))
	}

	m := &Model{
		keyMode:   keyMode,
		states:    states,
		index:     make(map[string]int, len(states)),
		wordIndex: make(map[string]int, len(states)),
		sentinel:  newSentinelState(),
	}

	for i, s := range states {
		if s.Token.IsSentinel() {
			return nil, fmt.Errorf("state %d has an empty word", i)
		}
		k := keyMode.key(s.Token)
		if _, ok := m.index[k]; ok {
			return nil, fmt.Errorf("duplicate state for word %q", s.Token.Word)
		}
		m.index[k] = i
		if _, ok := m.wordIndex[s.Token.Word]; !ok {
			m.wordIndex[s.Token.Word] = i
		}
	}

	for _, s := range states {
		if len(s.Successors) == 0 {
			s.Successors = []Successor{{Token: SentinelToken, Count: 1}}
		}

		weights := make([]uint32, len(s.Successors))
		total := 0
		for j, succ := range s.Successors {
			if succ.Count <= 0 || uint64(succ.Count) > math.MaxUint32 {
				return nil, fmt.Errorf("state %q: successor %q has count %d", s.Token.Word, succ.Token.Word, succ.Count)
			}
			if !succ.Token.IsSentinel() {
				if _, ok := m.index[keyMode.key(succ.Token)]; !ok {
					return nil, fmt.Errorf("state %q: successor %q has no state", s.Token.Word, succ.Token.Word)
				}
			}
			weights[j] = uint32(succ.Count)
			total += succ.Count
		}
		for j := range s.Successors {
			s.Successors[j].Probability = float64(s.Successors[j].Count) / float64(total)
		}

		table, err := newStateSampler(weights)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", s.Token.Word, err)
		}
		s.table = table

		for _, metric := range []Metric{MetricMora, MetricSyllable} {
			if l := s.Token.Length(metric); l > 0 && (m.minLength[metric] == 0 || l < m.minLength[metric]) {
				m.minLength[metric] = l
			}
		}
	}

	return m, nil
}

// KeyMode returns the key mode the model was built with.
func (m *Model) KeyMode() KeyMode {
	return m.keyMode
}

// States returns the states in first-appearance order. The returned slice
// must not be modified.
func (m *Model) States() []*State {
	return m.states
}

// Len returns the number of states, not counting the sentinel.
func (m *Model) Len() int {
	return len(m.states)
}

// Lookup returns the state keyed by t. The sentinel token maps to the
// absorbing sentinel state.
func (m *Model) Lookup(t Token) (*State, bool) {
	if t.IsSentinel() {
		return m.sentinel, true
	}
	i, ok := m.index[m.keyMode.key(t)]
	if !ok {
		return nil, false
	}
	return m.states[i], true
}

// LookupWord returns the first state whose token has the given surface text.
func (m *Model) LookupWord(word string) (*State, bool) {
	i, ok := m.wordIndex[word]
	if !ok {
		return nil, false
	}
	return m.states[i], true
}

// RandomState returns a uniformly chosen state whose token has exactly the
// given length. It reports false when no token has that length.
func (m *Model) RandomState(r Rand, length int, metric Metric) (*State, bool) {
	var candidates []*State
	for _, s := range m.states {
		if s.Token.Length(metric) == length {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	if r == nil {
		r = globalRand{}
	}
	return candidates[r.IntN(len(candidates))], true
}

// MinLength returns the shortest positive token length under metric, or 0 if
// every token has length 0.
func (m *Model) MinLength(metric Metric) int {
	if !metric.Valid() {
		return 0
	}
	return m.minLength[metric]
}
