// Package llm provides the language-model clients used for query
// generation, one per supported provider behind a common interface.
package llm

import "context"

// Client is the provider-neutral completion interface the query
// generator depends on.
type Client interface {
	// GenerateResponse sends one prompt with a system message and
	// returns the raw completion text.
	GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}
