package config

// ModelPricing is the USD price per 1K tokens for one model.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k"`
	CompletionPer1K float64 `yaml:"completion_per_1k"`
}

// Estimate returns the USD cost of a call with the given token counts.
func (p ModelPricing) Estimate(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.PromptPer1K +
		float64(completionTokens)/1000*p.CompletionPer1K
}

// PricingConfig maps adapter name to model name to price. The model key
// "default" applies to any model of that adapter without its own entry.
type PricingConfig map[string]map[string]ModelPricing

// Lookup returns the price for adapter and model.
func (p PricingConfig) Lookup(adapter, model string) (ModelPricing, bool) {
	models, ok := p[adapter]
	if !ok {
		return ModelPricing{}, false
	}
	if entry, ok := models[model]; ok {
		return entry, true
	}
	entry, ok := models["default"]
	return entry, ok
}
