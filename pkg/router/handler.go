package router

import (
	"context"
	"fmt"
	"time"

	"github.com/helix-collective/helix/pkg/adapter"
	"github.com/helix-collective/helix/pkg/artifact"
	"github.com/helix-collective/helix/pkg/config"
)

// Task is a unit of work submitted to the router.
type Task struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Payload  string            `json:"payload"`
	Category string            `json:"category,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Handler processes a task. Implementations should honour ctx; the router
// abandons a handler once its timeout elapses either way.
type Handler interface {
	Invoke(ctx context.Context, task Task) (*artifact.Artifact, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task Task) (*artifact.Artifact, error)

// Invoke calls f(ctx, task).
func (f HandlerFunc) Invoke(ctx context.Context, task Task) (*artifact.Artifact, error) {
	return f(ctx, task)
}

// Candidate is one entry of a fallback chain.
type Candidate struct {
	Name string
	// Capabilities lists the task types the handler can serve. Empty means any.
	Capabilities []string
	// Priority orders the chain; lower runs first.
	Priority int
	// Timeout bounds a single invocation. Zero uses the router default.
	Timeout time.Duration
	Handler Handler
}

func (c Candidate) serves(taskType string) bool {
	if len(c.Capabilities) == 0 {
		return true
	}
	for _, capability := range c.Capabilities {
		if capability == taskType {
			return true
		}
	}
	return false
}

// AdapterHandler sends the task payload to an LLM or webhook adapter.
type AdapterHandler struct {
	Adapter adapter.Adapter
	Model   string
	// Pricing, when it has an entry for the adapter, adds a cost_usd estimate.
	Pricing config.PricingConfig
}

// Invoke implements Handler.
func (h AdapterHandler) Invoke(ctx context.Context, task Task) (*artifact.Artifact, error) {
	if h.Adapter == nil {
		return nil, fmt.Errorf("adapter handler: no adapter configured")
	}
	resp, err := h.Adapter.Generate(ctx, h.Model, task.Payload)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Artifact == nil {
		return nil, fmt.Errorf("%s returned empty response", h.Adapter.Name())
	}

	art := resp.Artifact.WithMetadata("task_id", task.ID)
	if task.Category != "" {
		art = art.WithMetadata("category", task.Category)
	}
	if resp.Usage != nil {
		art = art.WithMetadata("total_tokens", fmt.Sprint(resp.Usage.TotalTokens))
		if price, ok := h.Pricing.Lookup(h.Adapter.Name(), resp.Artifact.Model); ok {
			cost := price.Estimate(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			art = art.WithMetadata("cost_usd", fmt.Sprintf("%.6f", cost))
		}
	}
	return art, nil
}
