package markov

import (
	"context"
	"io"
	"log/slog"
)

const (
	// DefaultMaxAttempts is the number of fresh walks Generate makes before
	// giving up.
	DefaultMaxAttempts = 64
	// DefaultMaxSteps is the number of tokens a single walk may draw.
	DefaultMaxSteps = 64
)

// Generator is the main entry point for training and generation. It holds the
// tokenizer used to read training text, the default generation options and a
// logger. A Generator holds no model state and is safe for concurrent use as
// long as SetLogger and SetTokenizer are not called concurrently with other
// methods.
type Generator struct {
	tokenizer Tokenizer
	defaults  []GenerateOption
	logger    *slog.Logger
}

// NewGenerator creates a Generator using tokenizer for Train. The options are
// applied to every generation call before the per-call options.
func NewGenerator(tokenizer Tokenizer, opts ...GenerateOption) *Generator {
	return &Generator{
		tokenizer: tokenizer,
		defaults:  opts,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// SetTokenizer replaces the tokenizer used by Train.
func (g *Generator) SetTokenizer(tokenizer Tokenizer) {
	g.tokenizer = tokenizer
}

// Train reads r with the Generator's tokenizer and builds a model, treating
// each non-blank line as a sentence.
func (g *Generator) Train(ctx context.Context, r io.Reader, opts ...TrainOption) (*Model, error) {
	model, err := TrainReader(ctx, g.tokenizer, r, opts...)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "Training completed",
		slog.Int("states", model.Len()),
		slog.String("key_mode", model.KeyMode().String()),
	)
	return model, nil
}
