package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/helix-collective/helix/pkg/config"
)

// DefaultTaskType is returned by InferTaskType when no trigger matches.
const DefaultTaskType = "default"

// InferTaskType scores task types by trigger matches and picks the best one.
// Confidence combines the margin over the runner-up with the raw match count.
func InferTaskType(prompt string, cfg config.RoutingConfig) *Decision {
	promptLower := strings.ToLower(prompt)

	var matches []Match
	for taskType, task := range cfg.TaskTypes {
		var matched []string
		for _, trig := range task.Triggers {
			if containsTrigger(promptLower, strings.ToLower(trig)) {
				matched = append(matched, trig)
			}
		}
		if len(matched) == 0 {
			continue
		}
		matches = append(matches, Match{
			TaskType: taskType,
			Score:    len(matched),
			Triggers: matched,
		})
	}

	if len(matches) == 0 {
		return &Decision{
			TaskType:   DefaultTaskType,
			Confidence: 0,
			Reasons:    []string{"no triggers matched; using default"},
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].TaskType < matches[j].TaskType
		}
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > 3 {
		matches = matches[:3]
	}

	topScore := matches[0].Score
	secondScore := 0
	if len(matches) > 1 {
		secondScore = matches[1].Score
	}

	margin := float64(topScore-secondScore) / float64(max(topScore, 1))
	strength := float64(min(topScore, 5)) / 5.0
	confidence := 0.75*margin + 0.25*strength
	if topScore >= 2 && secondScore == 0 {
		confidence = max(confidence, 0.9)
	}
	if topScore >= 3 {
		confidence = min(confidence+0.15, 1.0)
	}

	return &Decision{
		TaskType:   matches[0].TaskType,
		Confidence: confidence,
		Reasons:    []string{fmt.Sprintf("top_score=%d second_score=%d", topScore, secondScore)},
		Matches:    matches,
	}
}

// containsTrigger reports whether trigger occurs in prompt on word
// boundaries. Both are expected to be lower-cased.
func containsTrigger(prompt, trigger string) bool {
	if trigger == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(prompt[offset:], trigger)
		if idx == -1 {
			return false
		}
		start := offset + idx
		end := start + len(trigger)
		if (start == 0 || !isWordChar(prompt[start-1])) && (end == len(prompt) || !isWordChar(prompt[end])) {
			return true
		}
		offset = start + 1
	}
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
