package markov

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"golang.org/x/text/unicode/norm"
)

// DefaultTokenizer is the default implementation of the Tokenizer interface.
// It runs the kagome morphological analyser with the IPA dictionary and reads
// the mora reading and the syllable pronunciation off each morpheme.
// Its behavior can be customized with functional options.
type DefaultTokenizer struct {
	analyzer  *tokenizer.Tokenizer
	mode      tokenizer.TokenizeMode
	normalize bool
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithMode sets the kagome segmentation mode.
// Default: tokenizer.Normal
func WithMode(mode tokenizer.TokenizeMode) Option {
	return func(t *DefaultTokenizer) {
		t.mode = mode
	}
}

// WithNormalization enables or disables NFKC normalization of the input, which
// folds full-width latin letters and half-width katakana before analysis.
// Default: true
func WithNormalization(enabled bool) Option {
	return func(t *DefaultTokenizer) {
		t.normalize = enabled
	}
}

// NewDefaultTokenizer creates a new DefaultTokenizer. Loading the dictionary
// is expensive; a tokenizer should be created once and reused. It is safe for
// concurrent use.
func NewDefaultTokenizer(opts ...Option) (*DefaultTokenizer, error) {
	analyzer, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("could not load dictionary: %w", err)
	}

	t := &DefaultTokenizer{
		analyzer:  analyzer,
		mode:      tokenizer.Normal,
		normalize: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Tokenize splits text into tokens. Whitespace is dropped. A morpheme without
// a dictionary reading takes its own text as the reading when it is written
// in kana, and UnknownReading otherwise.
func (t *DefaultTokenizer) Tokenize(ctx context.Context, text string) ([]Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.normalize {
		text = norm.NFKC.String(text)
	}

	morphemes := t.analyzer.Analyze(text, t.mode)
	tokens := make([]Token, 0, len(morphemes))
	for _, m := range morphemes {
		if m.Class == tokenizer.DUMMY || strings.TrimSpace(m.Surface) == "" {
			continue
		}

		reading, ok := m.Reading()
		if !ok || reading == "" || reading == UnknownReading {
			reading = kanaReading(m.Surface)
		}
		pronunciation, ok := m.Pronunciation()
		if !ok || pronunciation == "" || pronunciation == UnknownReading {
			pronunciation = reading
		}

		tokens = append(tokens, NewToken(m.Surface, reading, pronunciation))
	}
	return tokens, nil
}

// kanaReading returns surface in katakana if it is written entirely in kana
// or symbols, and UnknownReading otherwise.
func kanaReading(surface string) string {
	var sb strings.Builder
	for _, r := range surface {
		switch {
		case r >= 'ぁ' && r <= 'ゖ':
			sb.WriteRune(r + ('ァ' - 'ぁ'))
		case unicode.Is(unicode.Katakana, r), isSymbolChar(r), r == 'ー':
			sb.WriteRune(r)
		default:
			return UnknownReading
		}
	}
	return sb.String()
}
