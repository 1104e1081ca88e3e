// Package history keeps an append-only log of scored events and routing
// outcomes, and answers trend queries over it.
package history

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/helix-collective/helix/pkg/router"
)

// ErrDuplicateID is returned when a record ID is appended twice.
var ErrDuplicateID = errors.New("duplicate record id")

// Record is one scored event.
type Record struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Vector    map[string]float64 `json:"vector"`
	Level     float64            `json:"level"`
	Category  string             `json:"category"`
	Context   map[string]string  `json:"context,omitempty"`
}

// OutcomeRecord is the durable form of a routing outcome.
type OutcomeRecord struct {
	ID        string           `json:"id"`
	TaskID    string           `json:"task_id"`
	TaskType  string           `json:"task_type"`
	Category  string           `json:"category,omitempty"`
	Handler   string           `json:"handler,omitempty"`
	Attempts  int              `json:"attempts"`
	Status    router.Status    `json:"status"`
	Latency   time.Duration    `json:"latency"`
	Timestamp time.Time        `json:"timestamp"`
	Error     string           `json:"error,omitempty"`
	Trail     []router.Attempt `json:"trail,omitempty"`
}

// Store is an append-only history log. Range queries are inclusive on both
// ends and return records ascending by timestamp, then by insertion order.
// A zero start or end leaves that side of the range open.
type Store interface {
	Append(ctx context.Context, rec Record) error
	QueryRange(ctx context.Context, start, end time.Time) ([]Record, error)
	AppendOutcome(ctx context.Context, rec OutcomeRecord) error
	QueryOutcomes(ctx context.Context, start, end time.Time) ([]OutcomeRecord, error)
	Close() error
}

// normalize fills a missing ID and timestamp and converts to UTC.
func normalize(id string, ts time.Time, now func() time.Time) (string, time.Time) {
	if id == "" {
		id = uuid.NewString()
	}
	if ts.IsZero() {
		ts = now()
	}
	return id, ts.UTC()
}

func rangeBounds(start, end time.Time) (int64, int64) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !start.IsZero() {
		lo = start.UnixNano()
	}
	if !end.IsZero() {
		hi = end.UnixNano()
	}
	return lo, hi
}

func copyVector(v map[string]float64) map[string]float64 {
	if v == nil {
		return nil
	}
	out := make(map[string]float64, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func copyContext(c map[string]string) map[string]string {
	if len(c) == 0 {
		return nil
	}
	out := make(map[string]string, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
