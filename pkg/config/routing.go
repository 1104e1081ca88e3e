package config

import "time"

// RoutingConfig holds the task types and their fallback chains.
type RoutingConfig struct {
	DefaultTimeout  time.Duration       `yaml:"default_timeout,omitempty"`
	DefaultTaskType string              `yaml:"default_task_type,omitempty"`
	TaskTypes       map[string]TaskType `yaml:"task_types"`
	// CategoryPreference moves the named candidate to the front of a chain
	// when the task's category matches and no explicit preference is given.
	CategoryPreference map[string]string `yaml:"category_preference,omitempty"`
	// Pricing annotates routed results with an estimated cost.
	Pricing PricingConfig `yaml:"pricing,omitempty"`
}

// TaskType defines a category of tasks, its triggers and its candidate chain.
type TaskType struct {
	Triggers   []string          `yaml:"triggers,omitempty"`
	Candidates []CandidateConfig `yaml:"candidates"`
}

// CandidateConfig binds a candidate handler to an adapter and model.
type CandidateConfig struct {
	Name     string        `yaml:"name"`
	Adapter  string        `yaml:"adapter"`
	Model    string        `yaml:"model,omitempty"` // May be alias
	Priority int           `yaml:"priority,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// Default returns the built-in configuration: the six UCF dimensions reduced
// to a 0-10 level, four category bands and the provider chains per task type.
func Default() *Config {
	return &Config{
		Scoring: ScoringConfig{
			LevelMax: 10,
			Dimensions: []Dimension{
				{
					Name: "harmony", Min: 0, Max: 1, Weight: 3,
					Triggers: []Trigger{
						{Phrase: "calm", Delta: 0.1},
						{Phrase: "together", Delta: 0.1},
						{Phrase: "balance", Delta: 0.15},
						{Phrase: "peace", Delta: 0.15},
						{Phrase: "conflict", Delta: -0.15},
						{Phrase: "chaos", Delta: -0.2},
					},
				},
				{
					Name: "resilience", Min: 0, Max: 1, Weight: 2,
					Triggers: []Trigger{
						{Phrase: "recover", Delta: 0.15},
						{Phrase: "stable", Delta: 0.1},
						{Phrase: "fixed", Delta: 0.1},
						{Phrase: "broken", Delta: -0.15},
						{Phrase: "outage", Delta: -0.25},
					},
				},
				{
					Name: "prana", Min: 0, Max: 1, Weight: 2,
					Triggers: []Trigger{
						{Phrase: "energy", Delta: 0.1},
						{Phrase: "excited", Delta: 0.15},
						{Phrase: "tired", Delta: -0.15},
						{Phrase: "exhausted", Delta: -0.25},
					},
				},
				{
					Name: "drishti", Min: 0, Max: 1, Weight: 2,
					Triggers: []Trigger{
						{Phrase: "focus", Delta: 0.15},
						{Phrase: "clear", Delta: 0.1},
						{Phrase: "confused", Delta: -0.15},
						{Phrase: "lost", Delta: -0.1},
					},
				},
				{
					Name: "klesha", Min: 0, Max: 1, Baseline: Float(0.2), Weight: -2,
					Triggers: []Trigger{
						{Phrase: "error", Delta: 0.1},
						{Phrase: "fail", Delta: 0.1},
						{Phrase: "failing", Delta: 0.15},
						{Phrase: "crisis", Delta: 0.3},
						{Phrase: "urgent", Delta: 0.2},
						{Phrase: "help", Delta: 0.05},
					},
				},
				{
					Name: "zoom", Min: 0, Max: 1, Weight: 1,
					Triggers: []Trigger{
						{Phrase: "overview", Delta: 0.1},
						{Phrase: "big picture", Delta: 0.2},
						{Phrase: "detail", Delta: -0.1},
					},
				},
			},
		},
		Categories: []Band{
			{Name: "crisis", Lo: 0, Hi: 3},
			{Name: "operational", Lo: 3, Hi: 6},
			{Name: "elevated", Lo: 6, Hi: 8.5},
			{Name: "transcendent", Lo: 8.5, Hi: 10},
		},
		Routing: RoutingConfig{
			DefaultTimeout:  30 * time.Second,
			DefaultTaskType: "chat",
			TaskTypes: map[string]TaskType{
				"chat": {
					Candidates: []CandidateConfig{
						{Name: "claude", Adapter: "anthropic", Model: "quality"},
						{Name: "gpt", Adapter: "openai", Model: "fast", Priority: 1},
						{Name: "gemini", Adapter: "google", Model: "research", Priority: 2},
					},
				},
				"code": {
					Triggers: []string{"code", "implement", "debug", "refactor", "write a function", "stack trace"},
					Candidates: []CandidateConfig{
						{Name: "gpt", Adapter: "openai", Model: "fast-code"},
						{Name: "claude", Adapter: "anthropic", Model: "quality-code", Priority: 1},
					},
				},
				"research": {
					Triggers: []string{"research", "look up", "what is", "compare", "search", "sources"},
					Candidates: []CandidateConfig{
						{Name: "perplexity", Adapter: "perplexity", Model: "search"},
						{Name: "gemini", Adapter: "google", Model: "research", Priority: 1},
						{Name: "claude", Adapter: "anthropic", Model: "quality", Priority: 2},
					},
				},
				"creative": {
					Triggers: []string{"story", "poem", "imagine", "meme", "creative", "brainstorm"},
					Candidates: []CandidateConfig{
						{Name: "grok", Adapter: "xai", Model: "creative"},
						{Name: "gpt", Adapter: "openai", Model: "fast", Priority: 1},
					},
				},
				"analysis": {
					Triggers: []string{"analyze", "analyse", "ethics", "evaluate", "review", "risk"},
					Candidates: []CandidateConfig{
						{Name: "claude", Adapter: "anthropic", Model: "deep"},
						{Name: "gpt", Adapter: "openai", Model: "thinking", Priority: 1},
					},
				},
				"notify": {
					Triggers: []string{"notify", "announce", "log this", "record this"},
					Candidates: []CandidateConfig{
						{Name: "zapier", Adapter: "zapier", Timeout: 10 * time.Second},
						{Name: "discord", Adapter: "discord", Timeout: 10 * time.Second, Priority: 1},
					},
				},
			},
			CategoryPreference: map[string]string{
				"crisis": "claude",
			},
		},
		Consensus: ConsensusConfig{
			Deadline:          20 * time.Second,
			ApprovalThreshold: 0.67,
			MinQuorum:         1,
			Voters: []VoterConfig{
				{Name: "claude", Adapter: "anthropic", Model: "quality"},
				{Name: "gpt", Adapter: "openai", Model: "fast"},
				{Name: "gemini", Adapter: "google", Model: "research"},
				{Name: "grok", Adapter: "xai", Model: "creative"},
			},
		},
		History: HistoryConfig{
			Driver:         "sqlite",
			TrendEpsilon:   0.05,
			VarianceHigh:   0.25,
			VarianceMedium: 1.0,
		},
		Models: DefaultAliases(),
	}
}
