// Package generator produces divination content. The production
// implementation calls a model provider over HTTP; a deterministic
// implementation backs local development and tests.
package generator

import "context"

// Request carries the domain inputs for one generation. Kind matches the
// artifact type being produced; Inputs are free-form key/value pairs
// (zodiac sign, drawn cards, dream text) supplied by the caller.
type Request struct {
	Kind   string
	Inputs map[string]string
}

// Result is the generated content. It is ephemeral; persistence is the
// caller's concern.
type Result struct {
	Text  string
	Model string
}

// Generator produces content for a request. Implementations own their
// timeout behavior; callers treat any error as a generation failure.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}
