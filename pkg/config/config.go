package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey  string `yaml:"-"`
	OpenAIAPIKey     string `yaml:"-"`
	GoogleAPIKey     string `yaml:"-"`
	XAIAPIKey        string `yaml:"-"`
	PerplexityAPIKey string `yaml:"-"`
	ConfigDir        string `yaml:"-"`

	Scoring    ScoringConfig            `yaml:"scoring"`
	Categories []Band                   `yaml:"categories"`
	Routing    RoutingConfig            `yaml:"routing"`
	Consensus  ConsensusConfig          `yaml:"consensus"`
	History    HistoryConfig            `yaml:"history"`
	Webhooks   map[string]WebhookConfig `yaml:"webhooks,omitempty"`
	Models     *ModelAliases            `yaml:"models,omitempty"`
}

// ConsensusConfig defines the voter panel and the decision rule.
type ConsensusConfig struct {
	Deadline          time.Duration `yaml:"deadline,omitempty"`
	ApprovalThreshold float64       `yaml:"approval_threshold,omitempty"`
	MinQuorum         int           `yaml:"min_quorum,omitempty"`
	MaxParallel       int           `yaml:"max_parallel,omitempty"`
	Voters            []VoterConfig `yaml:"voters,omitempty"`
}

// VoterConfig binds a voter name to an adapter and model.
type VoterConfig struct {
	Name    string `yaml:"name"`
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
}

// HistoryConfig selects the history backend and trend parameters.
type HistoryConfig struct {
	Driver         string  `yaml:"driver,omitempty"` // sqlite or memory
	Path           string  `yaml:"path,omitempty"`
	TrendEpsilon   float64 `yaml:"trend_epsilon,omitempty"`
	VarianceHigh   float64 `yaml:"variance_high,omitempty"`
	VarianceMedium float64 `yaml:"variance_medium,omitempty"`
}

// WebhookConfig describes an outbound webhook sink (Zapier, Notion, Discord).
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Format  string            `yaml:"format,omitempty"` // json or discord
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Load reads configuration from path, or from ~/.helix/helix.yaml when path is
// empty, falling back to Default. API keys only come from the environment.
// The result is validated; a *ConfigError means the routing layer must not start.
func Load(path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	if path == "" {
		candidate := filepath.Join(configDir, "helix.yaml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	var cfg *Config
	if path != "" {
		cfg, err = loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else {
		cfg = Default()
	}

	cfg.ConfigDir = configDir
	applyDefaults(cfg)
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HasAdapter returns true if the credentials for the given adapter are configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "xai":
		return c.XAIAPIKey != ""
	case "perplexity":
		return c.PerplexityAPIKey != ""
	case "mock":
		return true
	default:
		wh, ok := c.Webhooks[name]
		return ok && wh.URL != ""
	}
}

// DatabasePath returns the history database location.
func (c *Config) DatabasePath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.ConfigDir, "history.db")
}

func applyEnv(cfg *Config) {
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.XAIAPIKey = os.Getenv("XAI_API_KEY")
	cfg.PerplexityAPIKey = os.Getenv("PERPLEXITY_API_KEY")

	// Webhook URLs usually embed secrets, so allow ${VAR} references.
	for name, wh := range cfg.Webhooks {
		wh.URL = os.ExpandEnv(wh.URL)
		cfg.Webhooks[name] = wh
	}
}

// applyDefaults fills every section the file left empty.
func applyDefaults(cfg *Config) {
	def := Default()

	if len(cfg.Scoring.Dimensions) == 0 {
		cfg.Scoring.Dimensions = def.Scoring.Dimensions
	}
	if cfg.Scoring.LevelMax == 0 {
		cfg.Scoring.LevelMax = def.Scoring.LevelMax
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = def.Categories
	}

	if cfg.Routing.DefaultTimeout == 0 {
		cfg.Routing.DefaultTimeout = def.Routing.DefaultTimeout
	}
	if cfg.Routing.DefaultTaskType == "" {
		cfg.Routing.DefaultTaskType = def.Routing.DefaultTaskType
	}
	if cfg.Routing.TaskTypes == nil {
		cfg.Routing.TaskTypes = def.Routing.TaskTypes
		if cfg.Routing.CategoryPreference == nil {
			cfg.Routing.CategoryPreference = def.Routing.CategoryPreference
		}
	}

	if cfg.Consensus.Deadline == 0 {
		cfg.Consensus.Deadline = def.Consensus.Deadline
	}
	if cfg.Consensus.ApprovalThreshold == 0 {
		cfg.Consensus.ApprovalThreshold = def.Consensus.ApprovalThreshold
	}
	if cfg.Consensus.MinQuorum == 0 {
		cfg.Consensus.MinQuorum = def.Consensus.MinQuorum
	}
	if cfg.Consensus.Voters == nil {
		cfg.Consensus.Voters = def.Consensus.Voters
	}

	if cfg.History.Driver == "" {
		cfg.History.Driver = def.History.Driver
	}
	if cfg.History.TrendEpsilon == 0 {
		cfg.History.TrendEpsilon = def.History.TrendEpsilon
	}
	if cfg.History.VarianceHigh == 0 {
		cfg.History.VarianceHigh = def.History.VarianceHigh
	}
	if cfg.History.VarianceMedium == 0 {
		cfg.History.VarianceMedium = def.History.VarianceMedium
	}

	if cfg.Models == nil {
		cfg.Models = DefaultAliases()
	}
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".helix")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
