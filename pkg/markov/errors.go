package markov

import "errors"

var (
	// ErrTokenization wraps any failure reported by a Tokenizer. Training stops
	// at the first tokenizer error; nothing is retried.
	ErrTokenization = errors.New("tokenization failed")

	// ErrModelDecode is returned when a persisted model snapshot is malformed,
	// missing required fields, or was written with an unsupported schema version.
	ErrModelDecode = errors.New("model decode failed")

	// ErrInvalidQuery is returned before any sampling work when a generation
	// request can never succeed: a non-positive length, a length below the
	// shortest token in the model, an empty model, an unknown seed or a
	// non-positive retry budget.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrGenerationExhausted is returned when every attempt overshot or ran out
	// of steps without hitting the requested length exactly. Callers may retry,
	// possibly with a different length.
	ErrGenerationExhausted = errors.New("could not generate a sequence of the requested length")

	// ErrModelNotFound is returned by Store lookups of an unknown model name.
	ErrModelNotFound = errors.New("model not found")
)
