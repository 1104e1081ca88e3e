package history

import (
	"context"

	"github.com/helix-collective/helix/pkg/router"
)

// Recorder persists router outcomes into a Store.
type Recorder struct {
	Store Store
}

// NewRecorder returns a router.Recorder backed by store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{Store: store}
}

// RecordOutcome implements router.Recorder.
func (r *Recorder) RecordOutcome(ctx context.Context, o router.Outcome) error {
	return r.Store.AppendOutcome(ctx, OutcomeFrom(o))
}

// OutcomeFrom converts a routing outcome into its durable form.
func OutcomeFrom(o router.Outcome) OutcomeRecord {
	return OutcomeRecord{
		TaskID:    o.TaskID,
		TaskType:  o.TaskType,
		Category:  o.Category,
		Handler:   o.Handler,
		Attempts:  o.Attempts,
		Status:    o.Status,
		Latency:   o.Latency,
		Timestamp: o.Timestamp,
		Error:     o.Error,
		Trail:     append([]router.Attempt(nil), o.Trail...),
	}
}
