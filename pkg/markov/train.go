package markov

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// TrainOption configures how a model is built.
type TrainOption func(*trainOptions)

type trainOptions struct {
	keyMode KeyMode
}

// WithKeyMode selects how tokens are grouped into states. The default is
// KeyWord.
func WithKeyMode(mode KeyMode) TrainOption {
	return func(o *trainOptions) { o.keyMode = mode }
}

func newTrainOptions(opts []TrainOption) *trainOptions {
	options := &trainOptions{keyMode: KeyWord}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Train builds a model from a single token sequence. Every distinct token gets
// a state at its first appearance and every adjacent pair (a, b) records b as
// a successor of a. The last token's state gets the sentinel unless the token
// also appears earlier with a follower. Tokens with an empty word are skipped.
//
// Training the same tokens always yields the same model.
func Train(tokens []Token, opts ...TrainOption) (*Model, error) {
	b := newChainBuilder(newTrainOptions(opts).keyMode)
	b.walk(tokens)
	return b.build()
}

// TrainSentences builds a model from independent sentences. Transitions never
// cross sentence boundaries and the last token of each sentence is followed
// by the sentinel. Empty sentences are skipped.
func TrainSentences(sentences [][]Token, opts ...TrainOption) (*Model, error) {
	b := newChainBuilder(newTrainOptions(opts).keyMode)
	for _, sentence := range sentences {
		if last, ok := b.walk(sentence); ok {
			b.link(last, SentinelToken)
		}
	}
	return b.build()
}

// TrainReader tokenizes r line by line and trains a model with each non-blank
// line as one sentence. The first tokenizer failure aborts training.
func TrainReader(ctx context.Context, tokenizer Tokenizer, r io.Reader, opts ...TrainOption) (*Model, error) {
	// maxLineLength bounds the memory held for a single line of input.
	const maxLineLength = 1 << 20

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var sentences [][]Token
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tokens, err := tokenizer.Tokenize(ctx, line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrTokenization, lineNo, err)
		}
		sentences = append(sentences, tokens)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read training data: %w", err)
	}

	return TrainSentences(sentences, opts...)
}

// chainBuilder accumulates transition counts in first-appearance order.
type chainBuilder struct {
	keyMode KeyMode
	order   []string
	drafts  map[string]*stateDraft
}

type stateDraft struct {
	token     Token
	succOrder []string
	succ      map[string]*Successor
}

func newChainBuilder(keyMode KeyMode) *chainBuilder {
	return &chainBuilder{
		keyMode: keyMode,
		drafts:  make(map[string]*stateDraft),
	}
}

// observe returns the draft for t's key, creating it on first sight.
func (b *chainBuilder) observe(t Token) *stateDraft {
	k := b.keyMode.key(t)
	d, ok := b.drafts[k]
	if !ok {
		d = &stateDraft{token: t, succ: make(map[string]*Successor)}
		b.drafts[k] = d
		b.order = append(b.order, k)
	}
	return d
}

// link records to as a successor of from. Successors are stored with the
// representative token of their own state so lengths agree during generation.
func (b *chainBuilder) link(from, to Token) {
	d := b.observe(from)
	if !to.IsSentinel() {
		to = b.observe(to).token
	}
	k := b.keyMode.key(to)
	s, ok := d.succ[k]
	if !ok {
		s = &Successor{Token: to}
		d.succ[k] = s
		d.succOrder = append(d.succOrder, k)
	}
	s.Count++
}

// walk links consecutive tokens and returns the last token walked.
func (b *chainBuilder) walk(tokens []Token) (Token, bool) {
	var prev Token
	havePrev := false
	for _, t := range tokens {
		if t.IsSentinel() {
			continue
		}
		if havePrev {
			b.link(prev, t)
		} else {
			b.observe(t)
		}
		prev = b.observe(t).token
		havePrev = true
	}
	return prev, havePrev
}

func (b *chainBuilder) build() (*Model, error) {
	states := make([]*State, 0, len(b.order))
	for _, k := range b.order {
		d := b.drafts[k]
		successors := make([]Successor, 0, len(d.succOrder))
		for _, sk := range d.succOrder {
			successors = append(successors, *d.succ[sk])
		}
		states = append(states, &State{Token: d.token, Successors: successors})
	}
	return newModel(b.keyMode, states)
}
