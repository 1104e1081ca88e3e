package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helix-collective/helix/pkg/adapter"
)

// AdapterVoter asks an LLM adapter for a JSON ballot.
type AdapterVoter struct {
	ID      string
	Adapter adapter.Adapter
	Model   string
}

// Name implements Voter.
func (v AdapterVoter) Name() string {
	if v.ID != "" {
		return v.ID
	}
	if v.Adapter != nil {
		return v.Adapter.Name()
	}
	return "adapter"
}

// Vote implements Voter.
func (v AdapterVoter) Vote(ctx context.Context, question string) (Vote, error) {
	if v.Adapter == nil {
		return Vote{}, fmt.Errorf("voter %s: no adapter configured", v.Name())
	}
	resp, err := v.Adapter.Generate(ctx, v.Model, BallotPrompt(question))
	if err != nil {
		return Vote{}, err
	}
	if resp == nil || resp.Artifact == nil {
		return Vote{}, fmt.Errorf("voter %s returned empty response", v.Name())
	}

	b, err := parseBallot(resp.Artifact.Content)
	if err != nil {
		return Vote{}, fmt.Errorf("voter %s: invalid ballot: %w", v.Name(), err)
	}
	return Vote{
		Decision:   Decision(b.Decision),
		Confidence: b.Confidence,
		Rationale:  b.Rationale,
	}, nil
}

type ballot struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// BallotPrompt is the prompt AdapterVoter sends for question.
func BallotPrompt(question string) string {
	var sb strings.Builder
	sb.WriteString("You are one member of a review panel. Vote on the question below.\n")
	sb.WriteString("Return ONLY JSON: {\"decision\":\"approve|reject|abstain\",\"confidence\":0-1,\"rationale\":\"...\"}.\n\n")
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	return sb.String()
}

func parseBallot(content string) (*ballot, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// Tolerate prose around the object.
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		content = content[start : end+1]
	}

	var b ballot
	if err := json.Unmarshal([]byte(content), &b); err != nil {
		return nil, err
	}
	if b.Decision == "" {
		return nil, fmt.Errorf("missing decision")
	}
	return &b, nil
}
