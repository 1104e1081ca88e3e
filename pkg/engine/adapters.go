package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/helix-collective/helix/pkg/adapter"
	"github.com/helix-collective/helix/pkg/config"
	"github.com/helix-collective/helix/pkg/consensus"
	"github.com/helix-collective/helix/pkg/router"
)

// BuildAdapters creates every adapter whose credentials are configured, plus
// the webhook sinks and the mock adapter. Adapters that fail to initialise
// are logged and left out.
func BuildAdapters(ctx context.Context, cfg *config.Config, logger *zap.Logger) map[string]adapter.Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	adapters := map[string]adapter.Adapter{
		"mock": adapter.NewMockAdapter(),
	}

	add := func(name string, a adapter.Adapter, err error) {
		if err != nil {
			logger.Warn("adapter unavailable", zap.String("adapter", name), zap.Error(err))
			return
		}
		adapters[name] = a
	}

	if cfg.HasAdapter("anthropic") {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		add("anthropic", a, err)
	}
	if cfg.HasAdapter("openai") {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		add("openai", a, err)
	}
	if cfg.HasAdapter("xai") {
		a, err := adapter.NewXAIAdapter(cfg.XAIAPIKey)
		add("xai", a, err)
	}
	if cfg.HasAdapter("perplexity") {
		a, err := adapter.NewPerplexityAdapter(cfg.PerplexityAPIKey)
		add("perplexity", a, err)
	}
	if cfg.HasAdapter("google") {
		a, err := adapter.NewGoogleAdapter(ctx, cfg.GoogleAPIKey)
		add("google", a, err)
	}

	names := make([]string, 0, len(cfg.Webhooks))
	for name := range cfg.Webhooks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !cfg.HasAdapter(name) {
			continue
		}
		wh := cfg.Webhooks[name]
		a, err := adapter.NewWebhookAdapter(name, wh.URL, wh.Format, wh.Headers)
		add(name, a, err)
	}
	return adapters
}

// RegisterRoutes builds one chain per configured task type. Candidates whose
// adapter is missing are skipped; a task type left with no candidates is not
// registered and routes to it fail with router.ErrNoCandidates.
func RegisterRoutes(r *router.Router, cfg *config.Config, adapters map[string]adapter.Adapter, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	taskTypes := make([]string, 0, len(cfg.Routing.TaskTypes))
	for name := range cfg.Routing.TaskTypes {
		taskTypes = append(taskTypes, name)
	}
	sort.Strings(taskTypes)

	for _, taskType := range taskTypes {
		var chain []router.Candidate
		for _, cc := range cfg.Routing.TaskTypes[taskType].Candidates {
			a, ok := adapters[cc.Adapter]
			if !ok {
				logger.Warn("candidate skipped: adapter not configured",
					zap.String("task_type", taskType),
					zap.String("candidate", cc.Name),
					zap.String("adapter", cc.Adapter))
				continue
			}
			chain = append(chain, router.Candidate{
				Name:     cc.Name,
				Priority: cc.Priority,
				Timeout:  cc.Timeout,
				Handler: router.AdapterHandler{
					Adapter: a,
					Model:   resolveModel(cfg, cc.Model),
					Pricing: cfg.Routing.Pricing,
				},
			})
		}
		if len(chain) == 0 {
			logger.Warn("task type has no available candidates", zap.String("task_type", taskType))
			continue
		}
		if err := r.Register(taskType, chain...); err != nil {
			return fmt.Errorf("register %s: %w", taskType, err)
		}
	}
	return nil
}

// BuildVoters creates the consensus panel from configuration, skipping voters
// whose adapter is missing.
func BuildVoters(cfg *config.Config, adapters map[string]adapter.Adapter, logger *zap.Logger) []consensus.Voter {
	if logger == nil {
		logger = zap.NewNop()
	}
	var voters []consensus.Voter
	for _, vc := range cfg.Consensus.Voters {
		a, ok := adapters[vc.Adapter]
		if !ok {
			logger.Warn("voter skipped: adapter not configured",
				zap.String("voter", vc.Name),
				zap.String("adapter", vc.Adapter))
			continue
		}
		voters = append(voters, consensus.AdapterVoter{ID: vc.Name, Adapter: a, Model: resolveModel(cfg, vc.Model)})
	}
	return voters
}

func resolveModel(cfg *config.Config, model string) string {
	if cfg.Models == nil {
		return model
	}
	return cfg.Models.Resolve(model)
}
