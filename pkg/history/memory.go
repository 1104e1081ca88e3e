package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/helix-collective/helix/pkg/router"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []Record
	outcomes []OutcomeRecord
	ids      map[string]bool
	now      func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{ids: make(map[string]bool), now: now}
}

// Append adds a record.
func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.ID, rec.Timestamp = normalize(rec.ID, rec.Timestamp, s.now)
	rec.Vector = copyVector(rec.Vector)
	rec.Context = copyContext(rec.Context)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[rec.ID] {
		return fmt.Errorf("append %s: %w", rec.ID, ErrDuplicateID)
	}
	s.ids[rec.ID] = true
	s.records = append(s.records, rec)
	return nil
}

// QueryRange returns records with start <= timestamp <= end.
func (s *MemoryStore) QueryRange(ctx context.Context, start, end time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lo, hi := rangeBounds(start, end)

	s.mu.RLock()
	var out []Record
	for _, rec := range s.records {
		ts := rec.Timestamp.UnixNano()
		if ts < lo || ts > hi {
			continue
		}
		rec.Vector = copyVector(rec.Vector)
		rec.Context = copyContext(rec.Context)
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// AppendOutcome adds a routing outcome.
func (s *MemoryStore) AppendOutcome(ctx context.Context, rec OutcomeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.ID, rec.Timestamp = normalize(rec.ID, rec.Timestamp, s.now)
	rec.Trail = append([]router.Attempt(nil), rec.Trail...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[rec.ID] {
		return fmt.Errorf("append outcome %s: %w", rec.ID, ErrDuplicateID)
	}
	s.ids[rec.ID] = true
	s.outcomes = append(s.outcomes, rec)
	return nil
}

// QueryOutcomes returns outcomes with start <= timestamp <= end.
func (s *MemoryStore) QueryOutcomes(ctx context.Context, start, end time.Time) ([]OutcomeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lo, hi := rangeBounds(start, end)

	s.mu.RLock()
	var out []OutcomeRecord
	for _, rec := range s.outcomes {
		ts := rec.Timestamp.UnixNano()
		if ts < lo || ts > hi {
			continue
		}
		rec.Trail = append([]router.Attempt(nil), rec.Trail...)
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
