package markov

import (
	"context"
	"fmt"
	"strings"
)

// Metric selects the phonetic unit used to measure a token.
type Metric int

const (
	// MetricMora counts morae: every kana of the reading is a unit, small kana,
	// the long-vowel mark, the geminate and the moraic nasal included.
	MetricMora Metric = iota
	// MetricSyllable counts syllables: small kana, the long-vowel mark, the
	// geminate and the moraic nasal attach to the preceding sound.
	MetricSyllable
)

// String returns the canonical name of the metric.
func (m Metric) String() string {
	switch m {
	case MetricMora:
		return "mora"
	case MetricSyllable:
		return "syllable"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// Valid reports whether m is one of the defined metrics.
func (m Metric) Valid() bool {
	return m == MetricMora || m == MetricSyllable
}

// ParseMetric converts a metric name into a Metric. "fine" and "coarse" are
// accepted as aliases for mora and syllable.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mora", "fine":
		return MetricMora, nil
	case "syllable", "coarse":
		return MetricSyllable, nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", ErrInvalidQuery, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid metric %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Token represents a single lexical unit and its two phonetic readings.
// Mora holds the katakana reading used for mora counting and Syllable holds
// the pronunciation used for syllable counting, e.g. "大きな" is read
// "オオキナ" but pronounced "オーキナ".
type Token struct {
	Word     string `json:"word"`
	Mora     string `json:"mora"`
	Syllable string `json:"syllable"`
}

// SentinelToken marks the end of a sequence. It is the only successor of a
// state that was never followed by anything in the training data.
var SentinelToken = Token{}

// NewToken returns a token with the given text and readings.
func NewToken(word, mora, syllable string) Token {
	return Token{Word: word, Mora: mora, Syllable: syllable}
}

// IsSentinel reports whether t is the end-of-sequence sentinel.
func (t Token) IsSentinel() bool {
	return t.Word == ""
}

// Length returns the length of the token in the given metric. A reading equal
// to UnknownReading has length 0.
func (t Token) Length(metric Metric) int {
	switch metric {
	case MetricMora:
		if t.Mora == UnknownReading {
			return 0
		}
		return countUnits(t.Mora, isSymbolChar)
	case MetricSyllable:
		if t.Syllable == UnknownReading {
			return 0
		}
		n := countUnits(t.Syllable, isSymbolChar, isSyllableChar, isLowerCaseChar)
		return n - voicelessAdjustment(t.Syllable) - smoothingAdjustment(t.Syllable)
	default:
		return 0
	}
}

// IsSymbol reports whether the token's text consists only of punctuation or
// symbol characters.
func (t Token) IsSymbol() bool {
	if t.Word == "" {
		return false
	}
	for _, r := range t.Word {
		if !isSymbolChar(r) {
			return false
		}
	}
	return true
}

// Tokenizer splits raw text into tokens carrying their readings. This allows
// the model code to stay independent of the morphological analyser in use.
type Tokenizer interface {
	// Tokenize returns the tokens of text in order.
	Tokenize(ctx context.Context, text string) ([]Token, error)
}
