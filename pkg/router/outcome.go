package router

import (
	"context"
	"time"

	"github.com/helix-collective/helix/pkg/artifact"
)

// Status is the result of a routing attempt or of a whole route.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Attempt records a single handler invocation.
type Attempt struct {
	Handler   string        `json:"handler"`
	Status    Status        `json:"status"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	Transient bool          `json:"transient,omitempty"`
}

// Outcome describes how a task was routed.
type Outcome struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
	Category string `json:"category,omitempty"`
	// Handler is the candidate that succeeded, empty on failure.
	Handler   string             `json:"handler,omitempty"`
	Attempts  int                `json:"attempts"`
	Status    Status             `json:"status"`
	Latency   time.Duration      `json:"latency"`
	Timestamp time.Time          `json:"timestamp"`
	Error     string             `json:"error,omitempty"`
	Trail     []Attempt          `json:"trail,omitempty"`
	Result    *artifact.Artifact `json:"result,omitempty"`
}

// Stats are cumulative per-candidate counters.
type Stats struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Timeouts  int `json:"timeouts"`
}

// Recorder receives every finished outcome.
type Recorder interface {
	RecordOutcome(ctx context.Context, outcome Outcome) error
}
