package domain

import "context"

// Feedback is the per-token signal a TokenCallback returns to the
// generation engine.
type Feedback int

const (
	// Continue requests the next token.
	Continue Feedback = iota
	// Stop requests early termination of generation.
	Stop
)

// TokenCallback is invoked once per produced token, in generation
// order, before the engine continues.
type TokenCallback func(token string) Feedback

// Generator is the inference engine contract: it streams tokens
// through the callback and returns the aggregated completion.
type Generator interface {
	Generate(ctx context.Context, prompt string, onToken TokenCallback) (string, error)
}
