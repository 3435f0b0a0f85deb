package markov

import (
	"math"
	"testing"
)

func TestModelStatesInFirstAppearanceOrder(t *testing.T) {
	m := setupSumomoModel(t)

	want := []string{"すもも", "も", "もも", "の", "うち"}
	if m.Len() != len(want) {
		t.Fatalf("expected %d states, got %d", len(want), m.Len())
	}
	for i, s := range m.States() {
		if s.Token.Word != want[i] {
			t.Errorf("state %d: expected %q, got %q", i, want[i], s.Token.Word)
		}
	}
}

func TestModelEveryTokenHasState(t *testing.T) {
	m := setupSumomoModel(t)
	for _, tok := range sumomoTokens {
		if _, ok := m.Lookup(tok); !ok {
			t.Errorf("token %q has no state", tok.Word)
		}
	}
}

func TestModelProbabilitiesSumToOne(t *testing.T) {
	m := setupSumomoModel(t)
	for _, s := range m.States() {
		if len(s.Successors) == 0 {
			t.Fatalf("state %q has no successors", s.Token.Word)
		}
		var sum float64
		for _, succ := range s.Successors {
			sum += succ.Probability
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("state %q: probabilities sum to %v", s.Token.Word, sum)
		}
	}
}

func TestModelLookup(t *testing.T) {
	m := setupSumomoModel(t)

	s, ok := m.Lookup(SentinelToken)
	if !ok || !s.Token.IsSentinel() || !s.IsTerminal() {
		t.Errorf("expected the sentinel to map to the terminal sentinel state, got %+v", s)
	}
	if got := s.Next(newTestRand()); !got.IsSentinel() {
		t.Errorf("expected the sentinel state to loop on itself, got %q", got.Word)
	}

	if _, ok := m.Lookup(NewToken("さくら", "サクラ", "サクラ")); ok {
		t.Error("expected unknown token lookup to fail")
	}

	s, ok = m.LookupWord("もも")
	if !ok || s.Token.Mora != "モモ" {
		t.Errorf("LookupWord(もも) = %+v, %v", s, ok)
	}
}

func TestModelMinLength(t *testing.T) {
	m, err := Train([]Token{
		NewToken("、", "、", "、"),
		NewToken("学校", "ガッコウ", "ガッコー"),
		NewToken("ABC", UnknownReading, UnknownReading),
		NewToken("本", "ホン", "ホン"),
	})
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	if got := m.MinLength(MetricMora); got != 2 {
		t.Errorf("expected minimum mora length 2, got %d", got)
	}
	if got := m.MinLength(MetricSyllable); got != 1 {
		t.Errorf("expected minimum syllable length 1, got %d", got)
	}
	if got := m.MinLength(Metric(4)); got != 0 {
		t.Errorf("expected 0 for an unknown metric, got %d", got)
	}
}

func TestModelRandomState(t *testing.T) {
	m := setupSumomoModel(t)
	r := newTestRand()

	for i := 0; i < 50; i++ {
		s, ok := m.RandomState(r, 2, MetricMora)
		if !ok {
			t.Fatal("expected a state of length 2")
		}
		if s.Token.Word != "もも" && s.Token.Word != "うち" {
			t.Fatalf("unexpected state %q", s.Token.Word)
		}
	}

	if _, ok := m.RandomState(r, 9, MetricMora); ok {
		t.Error("expected no state of length 9")
	}
}

func TestModelStats(t *testing.T) {
	m := setupSumomoModel(t)
	stats := m.Stats()

	// すもも->も, も->もも (x2), もも->も, もも->の, の->うち, うち->sentinel
	if stats.States != 5 {
		t.Errorf("expected 5 states, got %d", stats.States)
	}
	if stats.Transitions != 5 {
		t.Errorf("expected 5 transitions, got %d", stats.Transitions)
	}
	if stats.TotalFrequency != 7 {
		t.Errorf("expected total frequency 7, got %d", stats.TotalFrequency)
	}
	if stats.TerminalStates != 1 {
		t.Errorf("expected 1 terminal state, got %d", stats.TerminalStates)
	}
}

func TestNewModelRejects(t *testing.T) {
	tests := []struct {
		name   string
		states []*State
	}{
		{
			name:   "empty word",
			states: []*State{{Token: SentinelToken}},
		},
		{
			name: "duplicate key",
			states: []*State{
				{Token: NewToken("空", "ソラ", "ソラ")},
				{Token: NewToken("空", "クウ", "クー")},
			},
		},
		{
			name: "successor without state",
			states: []*State{
				{Token: NewToken("空", "ソラ", "ソラ"), Successors: []Successor{{Token: NewToken("海", "ウミ", "ウミ"), Count: 1}}},
			},
		},
		{
			name: "zero count",
			states: []*State{
				{Token: NewToken("空", "ソラ", "ソラ"), Successors: []Successor{{Token: SentinelToken, Count: 0}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newModel(KeyWord, tt.states); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}

func TestModelHeavyStateFallsBackToLinearSampling(t *testing.T) {
	sky := NewToken("空", "ソラ", "ソラ")
	m, err := newModel(KeyWord, []*State{{
		Token: sky,
		Successors: []Successor{
			{Token: sky, Count: math.MaxUint32},
			{Token: SentinelToken, Count: math.MaxUint32},
		},
	}})
	if err != nil {
		t.Fatalf("newModel failed on heavy weights: %v", err)
	}

	s, _ := m.Lookup(sky)
	if _, ok := s.table.(*CumulativeTable); !ok {
		t.Fatalf("expected a cumulative table for overflowing weights, got %T", s.table)
	}
	seen := map[bool]int{}
	r := newTestRand()
	for i := 0; i < 1000; i++ {
		seen[s.Next(r).IsSentinel()]++
	}
	if seen[true] == 0 || seen[false] == 0 {
		t.Errorf("expected both successors to be drawn, got %v", seen)
	}

	light := setupSumomoModel(t)
	for _, st := range light.States() {
		if _, ok := st.table.(*AliasTable); !ok {
			t.Errorf("state %q: expected an alias table, got %T", st.Token.Word, st.table)
		}
	}
}

func TestParseKeyMode(t *testing.T) {
	for _, mode := range []KeyMode{KeyWord, KeyWordReading} {
		got, err := ParseKeyMode(mode.String())
		if err != nil || got != mode {
			t.Errorf("ParseKeyMode(%q) = %v, %v", mode.String(), got, err)
		}
	}
	if _, err := ParseKeyMode("surface"); err == nil {
		t.Error("expected an error for an unknown key mode")
	}
}
