// Package adapter wraps the outbound collaborators a handler can call: LLM
// provider APIs and webhook sinks.
package adapter

import "context"

// Adapter defines the interface for LLM providers and webhook sinks.
type Adapter interface {
	// Generate sends a prompt to the model and returns the response.
	Generate(ctx context.Context, model string, prompt string) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}
