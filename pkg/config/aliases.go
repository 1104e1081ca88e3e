package config

import (
	"fmt"
	"sort"
)

// ModelAliases maps short model names to canonical provider model IDs.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// Resolve returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil || a.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// ValidateModel checks if a model exists in the provider's list.
// Adapters without a provider list (webhooks, mock) accept any model.
func (a *ModelAliases) ValidateModel(adapter, model string) error {
	if a == nil || a.Providers == nil {
		return nil
	}

	models, ok := a.Providers[adapter]
	if !ok {
		return nil
	}

	for _, m := range models {
		if m == model {
			return nil
		}
	}

	return fmt.Errorf("model %q not in %s provider list", model, adapter)
}

// ListProviders returns a sorted list of provider names.
func (a *ModelAliases) ListProviders() []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	providers := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// DefaultAliases returns the default model aliases configuration.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			// OpenAI
			"fast":      "gpt-4o-mini",
			"fast-code": "gpt-4.1",
			"thinking":  "o3-mini",
			// Anthropic
			"quality":      "claude-sonnet-4-20250514",
			"quality-code": "claude-sonnet-4-20250514",
			"deep":         "claude-opus-4-20250514",
			// Google
			"research": "gemini-2.0-flash",
			// xAI
			"creative": "grok-3",
			// Perplexity
			"search": "sonar-pro",
		},
		Providers: map[string][]string{
			"anthropic":  {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"openai":     {"gpt-4o-mini", "gpt-4.1", "o3-mini"},
			"google":     {"gemini-2.0-flash"},
			"xai":        {"grok-3"},
			"perplexity": {"sonar", "sonar-pro"},
		},
	}
}
