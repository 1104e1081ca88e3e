package router

import (
	"math"
	"testing"

	"github.com/helix-collective/helix/pkg/config"
)

func TestInferTaskTypeConfidence(t *testing.T) {
	cfg := config.RoutingConfig{
		TaskTypes: map[string]config.TaskType{
			"alpha": {Triggers: []string{"alpha", "beta", "gamma"}},
			"beta":  {Triggers: []string{"alpha", "beta"}},
		},
	}

	decision := InferTaskType("alpha beta gamma", cfg)
	if decision.TaskType != "alpha" {
		t.Fatalf("expected alpha, got %s", decision.TaskType)
	}
	if len(decision.Matches) < 2 {
		t.Fatalf("expected matches")
	}
	if decision.Matches[0].Score != 3 || decision.Matches[1].Score != 2 {
		t.Fatalf("unexpected scores: %+v", decision.Matches)
	}

	want := 0.55
	if math.Abs(decision.Confidence-want) > 0.02 {
		t.Fatalf("confidence mismatch: got %.2f want %.2f", decision.Confidence, want)
	}
}

func TestInferTaskTypeStrongMatch(t *testing.T) {
	cfg := config.RoutingConfig{
		TaskTypes: map[string]config.TaskType{
			"alpha": {Triggers: []string{"alpha", "beta", "gamma"}},
			"beta":  {Triggers: []string{"delta"}},
		},
	}

	decision := InferTaskType("alpha beta gamma", cfg)
	if decision.TaskType != "alpha" {
		t.Fatalf("expected alpha, got %s", decision.TaskType)
	}
	if decision.Confidence < 0.9 {
		t.Fatalf("expected high confidence, got %.2f", decision.Confidence)
	}
}

func TestInferTaskTypeNoMatches(t *testing.T) {
	cfg := config.RoutingConfig{
		TaskTypes: map[string]config.TaskType{
			"alpha": {Triggers: []string{"alpha"}},
		},
	}

	decision := InferTaskType("no matches here", cfg)
	if decision.TaskType != DefaultTaskType {
		t.Fatalf("expected default, got %s", decision.TaskType)
	}
	if decision.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %.2f", decision.Confidence)
	}
	if len(decision.Matches) != 0 {
		t.Fatalf("expected no matches")
	}
}

func TestInferTaskTypeDefaults(t *testing.T) {
	cfg := config.Default().Routing

	tests := []struct {
		prompt string
		want   string
	}{
		{"Implement a binary search function", "code"},
		{"Research the history of tree-sitter", "research"},
		{"Write a poem about the sea", "creative"},
		{"Analyze the risk of this migration", "analysis"},
		{"Notify the team that the deploy finished", "notify"},
		{"good morning", DefaultTaskType},
		{"Decode this string", DefaultTaskType},
	}

	for _, tc := range tests {
		t.Run(tc.prompt, func(t *testing.T) {
			if got := InferTaskType(tc.prompt, cfg).TaskType; got != tc.want {
				t.Fatalf("InferTaskType(%q) = %s, want %s", tc.prompt, got, tc.want)
			}
		})
	}
}

func TestContainsTrigger(t *testing.T) {
	tests := []struct {
		prompt  string
		trigger string
		want    bool
	}{
		{"fix the bug", "fix", true},
		{"prefix the name", "fix", false},
		{"fixing it", "fix", false},
		{"prefix then fix", "fix", true},
		{"write a function now", "write a function", true},
		{"code_review", "code", false},
		{"anything", "", false},
	}

	for _, tc := range tests {
		if got := containsTrigger(tc.prompt, tc.trigger); got != tc.want {
			t.Errorf("containsTrigger(%q, %q) = %v, want %v", tc.prompt, tc.trigger, got, tc.want)
		}
	}
}
