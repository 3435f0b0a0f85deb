package markov

import "strings"

// Lyric is a generated line: an ordered sequence of tokens.
type Lyric struct {
	tokens []Token
}

// NewLyric returns a lyric holding a copy of tokens.
func NewLyric(tokens []Token) *Lyric {
	return &Lyric{tokens: append([]Token(nil), tokens...)}
}

// Tokens returns a copy of the lyric's tokens.
func (l *Lyric) Tokens() []Token {
	return append([]Token(nil), l.tokens...)
}

// Length returns the sum of the token lengths under metric.
func (l *Lyric) Length(metric Metric) int {
	n := 0
	for _, t := range l.tokens {
		n += t.Length(metric)
	}
	return n
}

// Join concatenates the words of the lyric, leaving out punctuation and
// symbol tokens. Japanese text has no word separator.
func (l *Lyric) Join() string {
	var sb strings.Builder
	for _, t := range l.tokens {
		if t.IsSymbol() {
			continue
		}
		sb.WriteString(t.Word)
	}
	return sb.String()
}

// Reading concatenates the mora readings of the lyric's non-symbol tokens.
func (l *Lyric) Reading() string {
	var sb strings.Builder
	for _, t := range l.tokens {
		if t.IsSymbol() {
			continue
		}
		sb.WriteString(t.Mora)
	}
	return sb.String()
}

// String concatenates every word of the lyric, symbols included.
func (l *Lyric) String() string {
	var sb strings.Builder
	for _, t := range l.tokens {
		sb.WriteString(t.Word)
	}
	return sb.String()
}
