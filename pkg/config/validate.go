package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrInvalidConfig is matched by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError lists the problems found while validating configuration.
// It is raised at load time only; the routing layer must not start with it.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrInvalidConfig.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(e.Problems, "; "))
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func newConfigError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ConfigError{Problems: problems}
}

// Validate checks every section and returns a *ConfigError describing all
// problems, or nil.
func (c *Config) Validate() error {
	var problems []string
	problems = append(problems, c.Scoring.problems()...)
	problems = append(problems, bandProblems(c.Categories, c.Scoring.LevelMax)...)
	problems = append(problems, c.routingProblems()...)
	problems = append(problems, c.Consensus.problems()...)
	problems = append(problems, c.History.problems()...)
	for name, wh := range c.Webhooks {
		if wh.Format != "" && wh.Format != "json" && wh.Format != "discord" {
			problems = append(problems, fmt.Sprintf("webhooks: %q has unknown format %q", name, wh.Format))
		}
	}
	return newConfigError(problems)
}

// Validate checks the dimension declarations and the level range.
func (s ScoringConfig) Validate() error {
	return newConfigError(s.problems())
}

func (s ScoringConfig) problems() []string {
	var problems []string
	if !(s.LevelMax > 0) || math.IsInf(s.LevelMax, 0) {
		problems = append(problems, fmt.Sprintf("scoring: level_max must be positive, got %v", s.LevelMax))
	}
	if len(s.Dimensions) == 0 {
		problems = append(problems, "scoring: no dimensions declared")
	}

	seen := make(map[string]bool)
	for i, d := range s.Dimensions {
		if d.Name == "" {
			problems = append(problems, fmt.Sprintf("scoring: dimension %d has no name", i))
			continue
		}
		if seen[d.Name] {
			problems = append(problems, fmt.Sprintf("scoring: duplicate dimension %q", d.Name))
		}
		seen[d.Name] = true

		if !finite(d.Min) || !finite(d.Max) || d.Min >= d.Max {
			problems = append(problems, fmt.Sprintf("scoring: dimension %q has invalid range [%v, %v]", d.Name, d.Min, d.Max))
		}
		if !finite(d.Weight) {
			problems = append(problems, fmt.Sprintf("scoring: dimension %q has non-finite weight", d.Name))
		}
		if d.Baseline != nil {
			b := *d.Baseline
			if !finite(b) || b < d.Min || b > d.Max {
				problems = append(problems, fmt.Sprintf("scoring: dimension %q baseline %v outside [%v, %v]", d.Name, b, d.Min, d.Max))
			}
		}
		for _, t := range d.Triggers {
			if strings.TrimSpace(t.Phrase) == "" {
				problems = append(problems, fmt.Sprintf("scoring: dimension %q has an empty trigger", d.Name))
			}
			if !finite(t.Delta) {
				problems = append(problems, fmt.Sprintf("scoring: trigger %q has non-finite delta", t.Phrase))
			}
		}
	}
	return problems
}

// ValidateBands checks that bands are contiguous, non-overlapping and cover
// exactly [0, levelMax].
func ValidateBands(bands []Band, levelMax float64) error {
	return newConfigError(bandProblems(bands, levelMax))
}

func bandProblems(bands []Band, levelMax float64) []string {
	if len(bands) == 0 {
		return []string{"categories: no bands declared"}
	}

	var problems []string
	seen := make(map[string]bool)
	for _, b := range bands {
		if b.Name == "" {
			problems = append(problems, "categories: band without name")
		} else if seen[b.Name] {
			problems = append(problems, fmt.Sprintf("categories: duplicate band %q", b.Name))
		}
		seen[b.Name] = true
		if !finite(b.Lo) || !finite(b.Hi) || b.Lo >= b.Hi {
			problems = append(problems, fmt.Sprintf("categories: band %q has invalid interval [%v, %v)", b.Name, b.Lo, b.Hi))
		}
	}

	ordered := make([]Band, len(bands))
	copy(ordered, bands)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Lo < ordered[j].Lo })

	if ordered[0].Lo != 0 {
		problems = append(problems, fmt.Sprintf("categories: lowest band %q starts at %v, want 0", ordered[0].Name, ordered[0].Lo))
	}
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		switch {
		case cur.Lo < prev.Hi:
			problems = append(problems, fmt.Sprintf("categories: bands %q and %q overlap", prev.Name, cur.Name))
		case cur.Lo > prev.Hi:
			problems = append(problems, fmt.Sprintf("categories: gap between %q and %q", prev.Name, cur.Name))
		}
	}
	if top := ordered[len(ordered)-1]; top.Hi != levelMax {
		problems = append(problems, fmt.Sprintf("categories: top band %q ends at %v, want level_max %v", top.Name, top.Hi, levelMax))
	}
	return problems
}

func (c *Config) routingProblems() []string {
	var problems []string
	r := c.Routing
	if r.DefaultTimeout < 0 {
		problems = append(problems, "routing: default_timeout must not be negative")
	}
	if len(r.TaskTypes) == 0 {
		problems = append(problems, "routing: no task types declared")
	}
	if r.DefaultTaskType != "" && len(r.TaskTypes) > 0 {
		if _, ok := r.TaskTypes[r.DefaultTaskType]; !ok {
			problems = append(problems, fmt.Sprintf("routing: default_task_type %q not declared", r.DefaultTaskType))
		}
	}

	candidateNames := make(map[string]bool)
	for _, name := range sortedKeys(r.TaskTypes) {
		task := r.TaskTypes[name]
		if len(task.Candidates) == 0 {
			problems = append(problems, fmt.Sprintf("routing: task type %q has no candidates", name))
		}
		seen := make(map[string]bool)
		for _, cand := range task.Candidates {
			if cand.Name == "" || cand.Adapter == "" {
				problems = append(problems, fmt.Sprintf("routing: task type %q has a candidate without name or adapter", name))
				continue
			}
			if seen[cand.Name] {
				problems = append(problems, fmt.Sprintf("routing: task type %q lists %q twice", name, cand.Name))
			}
			seen[cand.Name] = true
			candidateNames[cand.Name] = true
			if cand.Timeout < 0 {
				problems = append(problems, fmt.Sprintf("routing: candidate %q has negative timeout", cand.Name))
			}
			if cand.Model != "" {
				if err := c.Models.ValidateModel(cand.Adapter, c.Models.Resolve(cand.Model)); err != nil {
					problems = append(problems, fmt.Sprintf("routing: candidate %q: %v", cand.Name, err))
				}
			}
		}
	}

	for _, adapterName := range sortedKeys(r.Pricing) {
		for _, model := range sortedKeys(r.Pricing[adapterName]) {
			price := r.Pricing[adapterName][model]
			if price.PromptPer1K < 0 || price.CompletionPer1K < 0 || !finite(price.PromptPer1K) || !finite(price.CompletionPer1K) {
				problems = append(problems, fmt.Sprintf("routing: pricing for %s/%s must be finite and not negative", adapterName, model))
			}
		}
	}

	categories := make(map[string]bool)
	for _, b := range c.Categories {
		categories[b.Name] = true
	}
	for category, cand := range r.CategoryPreference {
		if !categories[category] {
			problems = append(problems, fmt.Sprintf("routing: category_preference names unknown category %q", category))
		}
		if !candidateNames[cand] {
			problems = append(problems, fmt.Sprintf("routing: category_preference names unknown candidate %q", cand))
		}
	}
	return problems
}

func (c ConsensusConfig) problems() []string {
	var problems []string
	if c.Deadline <= 0 {
		problems = append(problems, "consensus: deadline must be positive")
	}
	if !(c.ApprovalThreshold > 0 && c.ApprovalThreshold <= 1) {
		problems = append(problems, fmt.Sprintf("consensus: approval_threshold %v outside (0, 1]", c.ApprovalThreshold))
	}
	if c.MinQuorum < 1 {
		problems = append(problems, "consensus: min_quorum must be at least 1")
	}
	if c.MaxParallel < 0 {
		problems = append(problems, "consensus: max_parallel must not be negative")
	}
	seen := make(map[string]bool)
	for _, v := range c.Voters {
		if v.Name == "" || v.Adapter == "" {
			problems = append(problems, "consensus: voter without name or adapter")
			continue
		}
		if seen[v.Name] {
			problems = append(problems, fmt.Sprintf("consensus: duplicate voter %q", v.Name))
		}
		seen[v.Name] = true
	}
	return problems
}

func (h HistoryConfig) problems() []string {
	var problems []string
	if h.Driver != "sqlite" && h.Driver != "memory" {
		problems = append(problems, fmt.Sprintf("history: unknown driver %q", h.Driver))
	}
	if h.TrendEpsilon < 0 {
		problems = append(problems, "history: trend_epsilon must not be negative")
	}
	if h.VarianceHigh < 0 || h.VarianceMedium < h.VarianceHigh {
		problems = append(problems, "history: variance bands must satisfy 0 <= variance_high <= variance_medium")
	}
	return problems
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
