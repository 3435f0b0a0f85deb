package markov

import (
	"context"
	"fmt"
	"log/slog"
)

// generateOptions holds the settings of a single generation call.
type generateOptions struct {
	maxAttempts int
	maxSteps    int
	seed        string
	hasSeed     bool
	rng         Rand
}

// GenerateOption configures a generation call. Options can be given to
// NewGenerator as defaults and to Generate per call.
type GenerateOption func(*generateOptions)

// WithMaxAttempts sets how many fresh walks are made before Generate gives up.
func WithMaxAttempts(n int) GenerateOption {
	return func(o *generateOptions) { o.maxAttempts = n }
}

// WithMaxSteps sets how many tokens a single walk may draw.
func WithMaxSteps(n int) GenerateOption {
	return func(o *generateOptions) { o.maxSteps = n }
}

// WithSeed starts every walk from the state of the given word instead of a
// random state. The seed word itself is not part of the output.
func WithSeed(word string) GenerateOption {
	return func(o *generateOptions) {
		o.seed = word
		o.hasSeed = word != ""
	}
}

// WithRand sets the random source. The source is used by one call at a time
// and must not be shared with other goroutines unless it is safe for
// concurrent use.
func WithRand(r Rand) GenerateOption {
	return func(o *generateOptions) { o.rng = r }
}

func (g *Generator) options(opts []GenerateOption) *generateOptions {
	options := &generateOptions{
		maxAttempts: DefaultMaxAttempts,
		maxSteps:    DefaultMaxSteps,
		rng:         globalRand{},
	}
	for _, opt := range g.defaults {
		opt(options)
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.rng == nil {
		options.rng = globalRand{}
	}
	return options
}

// validateQuery rejects queries that can never succeed.
func validateQuery(model *Model, length int, metric Metric, options *generateOptions) (*State, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: unknown metric %d", ErrInvalidQuery, int(metric))
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: length must be positive, got %d", ErrInvalidQuery, length)
	}
	if model == nil || model.Len() == 0 {
		return nil, fmt.Errorf("%w: model is empty", ErrInvalidQuery)
	}
	minLength := model.MinLength(metric)
	if minLength == 0 {
		return nil, fmt.Errorf("%w: no token in the model has a known %s length", ErrInvalidQuery, metric)
	}
	if length < minLength {
		return nil, fmt.Errorf("%w: length %d is shorter than the shortest token (%d)", ErrInvalidQuery, length, minLength)
	}
	if options.maxAttempts <= 0 {
		return nil, fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidQuery, options.maxAttempts)
	}
	if options.maxSteps <= 0 {
		return nil, fmt.Errorf("%w: max steps must be positive, got %d", ErrInvalidQuery, options.maxSteps)
	}
	if options.hasSeed {
		seed, ok := model.LookupWord(options.seed)
		if !ok {
			return nil, fmt.Errorf("%w: seed %q not found in model", ErrInvalidQuery, options.seed)
		}
		return seed, nil
	}
	return nil, nil
}

// Generate walks the model until the drawn tokens add up to exactly length
// units of metric. A walk that overshoots, reaches the sentinel or runs out of
// steps is discarded and a new walk starts from a fresh state. If every
// attempt fails, ErrGenerationExhausted is returned. The model is never
// modified.
func (g *Generator) Generate(ctx context.Context, model *Model, length int, metric Metric, opts ...GenerateOption) (*Lyric, error) {
	options := g.options(opts)
	seed, err := validateQuery(model, length, metric, options)
	if err != nil {
		return nil, err
	}
	rng := options.rng

	tokens := make([]Token, 0, min(length, options.maxSteps))
	for attempt := 1; attempt <= options.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tokens = tokens[:0]
		total := 0
		cursor := seed
		if cursor == nil {
			cursor = model.states[rng.IntN(len(model.states))]
		}

		reason := "steps exhausted"
	walk:
		for step := 0; step < options.maxSteps; step++ {
			next := cursor.Next(rng)
			if next.IsSentinel() {
				reason = "end of chain"
				break
			}

			tokens = append(tokens, next)
			total += next.Length(metric)
			switch {
			case total > length:
				reason = "overshoot"
				break walk
			case total == length:
				g.logger.DebugContext(ctx, "Generation succeeded",
					slog.Int("length", length),
					slog.String("metric", metric.String()),
					slog.Int("attempt", attempt),
					slog.Int("tokens", len(tokens)),
				)
				return NewLyric(tokens), nil
			}

			var ok bool
			if cursor, ok = model.Lookup(next); !ok || cursor.Token.IsSentinel() {
				reason = "no state for token"
				break
			}
		}

		g.logger.DebugContext(ctx, "Generation attempt restarted",
			slog.Int("attempt", attempt),
			slog.String("reason", reason),
			slog.Int("reached", total),
			slog.Int("length", length),
		)
	}

	return nil, fmt.Errorf("%w: %d %s after %d attempts", ErrGenerationExhausted, length, metric, options.maxAttempts)
}

// GenerateLines generates count independent lyrics of the same length. It
// stops at the first failure.
func (g *Generator) GenerateLines(ctx context.Context, model *Model, length, count int, metric Metric, opts ...GenerateOption) ([]*Lyric, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: line count must be positive, got %d", ErrInvalidQuery, count)
	}
	var lines []*Lyric
	for i := 0; i < count; i++ {
		lyric, err := g.Generate(ctx, model, length, metric, opts...)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines = append(lines, lyric)
	}
	return lines, nil
}
