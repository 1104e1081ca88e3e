// Package router dispatches tasks through ordered fallback chains of
// handlers, one chain per task type.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helix-collective/helix/pkg/adapter"
	"github.com/helix-collective/helix/pkg/artifact"
)

// DefaultTimeout bounds a handler invocation when neither the candidate nor
// the router sets one.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNoHandlerSucceeded is returned when every candidate in a chain failed.
	ErrNoHandlerSucceeded = errors.New("no handler succeeded")
	// ErrNoCandidates is returned when no chain is registered for a task type.
	ErrNoCandidates = fmt.Errorf("%w: no candidates registered", ErrNoHandlerSucceeded)
	// ErrInvalidCandidate is returned by Register for malformed chains.
	ErrInvalidCandidate = errors.New("invalid candidate")
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")
)

// Router routes tasks to the first candidate that succeeds.
type Router struct {
	mu     sync.RWMutex
	chains map[string][]Candidate

	statsMu sync.Mutex
	stats   map[string]*Stats

	logger         *zap.Logger
	defaultTimeout time.Duration
	recorder       Recorder
	preference     map[string]string
	now            func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaultTimeout sets the per-invocation timeout for candidates without one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithRecorder sets the sink that receives every outcome.
func WithRecorder(rec Recorder) Option {
	return func(r *Router) {
		r.recorder = rec
	}
}

// WithCategoryPreference maps a category name to the candidate that should
// run first for tasks of that category when the caller states no preference.
func WithCategoryPreference(pref map[string]string) Option {
	return func(r *Router) {
		r.preference = make(map[string]string, len(pref))
		for k, v := range pref {
			r.preference[k] = v
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a router with no chains registered.
func New(opts ...Option) *Router {
	r := &Router{
		chains:         make(map[string][]Candidate),
		stats:          make(map[string]*Stats),
		logger:         zap.NewNop(),
		defaultTimeout: DefaultTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register replaces the chain for taskType. Candidates are ordered by
// Priority, keeping registration order among equal priorities.
func (r *Router) Register(taskType string, candidates ...Candidate) error {
	if taskType == "" {
		return fmt.Errorf("%w: task type is required", ErrInvalidCandidate)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: task type %q needs at least one candidate", ErrInvalidCandidate, taskType)
	}

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		switch {
		case c.Name == "":
			return fmt.Errorf("%w: task type %q has a candidate without a name", ErrInvalidCandidate, taskType)
		case seen[c.Name]:
			return fmt.Errorf("%w: candidate %q listed twice for %q", ErrInvalidCandidate, c.Name, taskType)
		case c.Handler == nil:
			return fmt.Errorf("%w: candidate %q has no handler", ErrInvalidCandidate, c.Name)
		case !c.serves(taskType):
			return fmt.Errorf("%w: candidate %q cannot serve %q", ErrInvalidCandidate, c.Name, taskType)
		}
		seen[c.Name] = true
	}

	chain := make([]Candidate, len(candidates))
	copy(chain, candidates)
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Priority < chain[j].Priority
	})

	r.mu.Lock()
	r.chains[taskType] = chain
	r.mu.Unlock()

	r.logger.Debug("chain registered",
		zap.String("task_type", taskType),
		zap.Strings("candidates", names(chain)))
	return nil
}

// Unregister removes a candidate from the chain for taskType.
func (r *Router) Unregister(taskType, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.chains[taskType]
	for i, c := range chain {
		if c.Name != name {
			continue
		}
		next := make([]Candidate, 0, len(chain)-1)
		next = append(next, chain[:i]...)
		next = append(next, chain[i+1:]...)
		if len(next) == 0 {
			delete(r.chains, taskType)
		} else {
			r.chains[taskType] = next
		}
		return true
	}
	return false
}

// Chain returns the candidate names registered for taskType, in order.
func (r *Router) Chain(taskType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return names(r.chains[taskType])
}

// TaskTypes returns the registered task types, sorted.
func (r *Router) TaskTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.chains))
	for k := range r.chains {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stats returns the cumulative counters for a candidate.
func (r *Router) Stats(name string) Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	if s, ok := r.stats[name]; ok {
		return *s
	}
	return Stats{}
}

// Route runs the chain for task.Type until a candidate succeeds. A non-empty
// preferred candidate runs first; otherwise the category preference applies.
func (r *Router) Route(ctx context.Context, task Task, preferred string) (*Outcome, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	r.mu.RLock()
	chain := make([]Candidate, len(r.chains[task.Type]))
	copy(chain, r.chains[task.Type])
	r.mu.RUnlock()

	start := r.now()
	out := &Outcome{
		TaskID:    task.ID,
		TaskType:  task.Type,
		Category:  task.Category,
		Timestamp: start.UTC(),
	}
	logger := r.logger.With(zap.String("task_id", task.ID), zap.String("task_type", task.Type))

	if len(chain) == 0 {
		out.Status = StatusFailed
		out.Error = ErrNoCandidates.Error()
		logger.Warn("no candidates registered")
		r.record(ctx, out)
		return out, fmt.Errorf("task type %q: %w", task.Type, ErrNoCandidates)
	}

	if preferred == "" {
		preferred = r.preference[task.Category]
	}
	chain = moveToFront(chain, preferred)

	var lastErr error
	allTimedOut := true
	for i, cand := range chain {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, out, start, err)
		}

		attemptStart := r.now()
		result, err := r.invoke(ctx, cand, task)
		attempt := Attempt{Handler: cand.Name, Latency: r.now().Sub(attemptStart)}
		out.Attempts = i + 1

		if err == nil {
			attempt.Status = StatusSuccess
			out.Trail = append(out.Trail, attempt)
			out.Handler = cand.Name
			out.Status = StatusSuccess
			out.Result = result
			out.Latency = r.now().Sub(start)
			r.count(cand.Name, StatusSuccess)
			logger.Debug("handler succeeded",
				zap.String("handler", cand.Name),
				zap.Int("attempt", out.Attempts),
				zap.Duration("latency", attempt.Latency))
			r.record(ctx, out)
			return out, nil
		}

		// The caller gave up; the chain stops here.
		if ctx.Err() != nil {
			attempt.Status = StatusFailed
			attempt.Error = err.Error()
			out.Trail = append(out.Trail, attempt)
			return r.abort(ctx, out, start, ctx.Err())
		}

		attempt.Status = StatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			attempt.Status = StatusTimeout
		} else {
			allTimedOut = false
		}
		attempt.Error = err.Error()
		attempt.Transient = adapter.IsTransient(err)
		out.Trail = append(out.Trail, attempt)
		r.count(cand.Name, attempt.Status)
		lastErr = err

		logger.Warn("handler failed",
			zap.String("handler", cand.Name),
			zap.Int("attempt", out.Attempts),
			zap.String("status", string(attempt.Status)),
			zap.Bool("transient", attempt.Transient),
			zap.Duration("latency", attempt.Latency),
			zap.Error(err))
	}

	out.Status = StatusFailed
	if allTimedOut {
		out.Status = StatusTimeout
	}
	out.Latency = r.now().Sub(start)
	out.Error = lastErr.Error()
	logger.Error("all handlers failed",
		zap.Int("attempts", out.Attempts),
		zap.String("status", string(out.Status)),
		zap.Error(lastErr))
	r.record(ctx, out)
	return out, fmt.Errorf("%w: task type %q after %d attempts: %w", ErrNoHandlerSucceeded, task.Type, out.Attempts, lastErr)
}

func (r *Router) abort(ctx context.Context, out *Outcome, start time.Time, err error) (*Outcome, error) {
	out.Status = StatusFailed
	if errors.Is(err, context.DeadlineExceeded) {
		out.Status = StatusTimeout
	}
	out.Latency = r.now().Sub(start)
	out.Error = err.Error()
	r.logger.Warn("route aborted",
		zap.String("task_id", out.TaskID),
		zap.Int("attempts", out.Attempts),
		zap.Error(err))
	r.record(ctx, out)
	return out, err
}

type invokeResult struct {
	art *artifact.Artifact
	err error
}

// invoke runs one candidate under its timeout. The handler runs on its own
// goroutine so a handler that ignores ctx cannot hold up the chain.
func (r *Router) invoke(ctx context.Context, cand Candidate, task Task) (*artifact.Artifact, error) {
	timeout := cand.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- invokeResult{err: fmt.Errorf("%w: %v", ErrHandlerPanic, p)}
			}
		}()
		art, err := cand.Handler.Invoke(callCtx, task)
		done <- invokeResult{art: art, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && res.art == nil {
			return nil, fmt.Errorf("%s returned no result", cand.Name)
		}
		return res.art, res.err
	case <-callCtx.Done():
		return nil, fmt.Errorf("%s: %w", cand.Name, callCtx.Err())
	}
}

func (r *Router) count(name string, status Status) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s, ok := r.stats[name]
	if !ok {
		s = &Stats{}
		r.stats[name] = s
	}
	switch status {
	case StatusSuccess:
		s.Successes++
	case StatusTimeout:
		s.Timeouts++
	default:
		s.Failures++
	}
}

func (r *Router) record(ctx context.Context, out *Outcome) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordOutcome(context.WithoutCancel(ctx), *out); err != nil {
		r.logger.Warn("record outcome failed", zap.String("task_id", out.TaskID), zap.Error(err))
	}
}

func moveToFront(chain []Candidate, name string) []Candidate {
	if name == "" {
		return chain
	}
	for i, c := range chain {
		if c.Name != name {
			continue
		}
		if i == 0 {
			return chain
		}
		out := make([]Candidate, 0, len(chain))
		out = append(out, c)
		out = append(out, chain[:i]...)
		out = append(out, chain[i+1:]...)
		return out
	}
	return chain
}

func names(chain []Candidate) []string {
	out := make([]string, len(chain))
	for i, c := range chain {
		out[i] = c.Name
	}
	return out
}
