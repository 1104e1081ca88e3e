// Package engine wires the scoring, classification, routing, consensus and
// history components together. All dependencies are built once in New.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helix-collective/helix/pkg/adapter"
	"github.com/helix-collective/helix/pkg/category"
	"github.com/helix-collective/helix/pkg/config"
	"github.com/helix-collective/helix/pkg/consensus"
	"github.com/helix-collective/helix/pkg/history"
	"github.com/helix-collective/helix/pkg/logging"
	"github.com/helix-collective/helix/pkg/router"
	"github.com/helix-collective/helix/pkg/score"
)

// ErrNoVoters is returned by Decide when no configured voter is available.
var ErrNoVoters = errors.New("no voters available")

// Engine scores, classifies and routes inputs, recording each step in history.
type Engine struct {
	cfg        *config.Config
	logger     *zap.Logger
	calc       *score.Calculator
	classifier *category.Classifier
	router     *router.Router
	aggregator *consensus.Aggregator
	voters     []consensus.Voter
	store      history.Store
	ownsStore  bool
	analyzer   *history.Analyzer
	now        func() time.Time
}

type options struct {
	store    history.Store
	adapters map[string]adapter.Adapter
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures New.
type Option func(*options)

// WithStore injects the history store. The engine does not close it.
func WithStore(s history.Store) Option {
	return func(o *options) { o.store = s }
}

// WithAdapters replaces the adapters built from credentials.
func WithAdapters(adapters map[string]adapter.Adapter) Option {
	return func(o *options) { o.adapters = adapters }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New validates cfg and builds every component.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}

	calc, err := score.NewCalculator(cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	classifier, err := category.NewClassifier(cfg.Categories, cfg.Scoring.LevelMax)
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}

	adapters := o.adapters
	if adapters == nil {
		adapters = BuildAdapters(ctx, cfg, logging.Component(o.logger, "adapter"))
	}

	store, ownsStore := o.store, false
	if store == nil {
		store, err = OpenStore(cfg, o.now)
		if err != nil {
			return nil, err
		}
		ownsStore = true
	}

	r := router.New(
		router.WithLogger(logging.Component(o.logger, "router")),
		router.WithDefaultTimeout(cfg.Routing.DefaultTimeout),
		router.WithRecorder(history.NewRecorder(store)),
		router.WithCategoryPreference(cfg.Routing.CategoryPreference),
		router.WithClock(o.now),
	)
	if err := RegisterRoutes(r, cfg, adapters, logging.Component(o.logger, "router")); err != nil {
		if ownsStore {
			store.Close()
		}
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		logger:     o.logger,
		calc:       calc,
		classifier: classifier,
		router:     r,
		aggregator: consensus.New(
			consensus.WithLogger(logging.Component(o.logger, "consensus")),
			consensus.WithMinQuorum(cfg.Consensus.MinQuorum),
			consensus.WithMaxParallel(cfg.Consensus.MaxParallel),
		),
		voters:    BuildVoters(cfg, adapters, logging.Component(o.logger, "consensus")),
		store:     store,
		ownsStore: ownsStore,
		analyzer: history.NewAnalyzer(store,
			history.WithEpsilon(cfg.History.TrendEpsilon),
			history.WithLevelMax(cfg.Scoring.LevelMax),
			history.WithVarianceBands(cfg.History.VarianceHigh, cfg.History.VarianceMedium),
			history.WithClock(o.now),
		),
		now: o.now,
	}, nil
}

// OpenStore opens the history backend named by cfg.History.Driver.
func OpenStore(cfg *config.Config, now func() time.Time) (history.Store, error) {
	switch cfg.History.Driver {
	case "memory":
		return history.NewMemoryStore(now), nil
	case "sqlite", "":
		s, err := history.NewSQLiteStore(cfg.DatabasePath(), now)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("history: unknown driver %q", cfg.History.Driver)
	}
}

// Close releases the history store when the engine opened it.
func (e *Engine) Close() error {
	if e.ownsStore {
		return e.store.Close()
	}
	return nil
}

// Router exposes the underlying router for registration and stats.
func (e *Engine) Router() *router.Router {
	return e.router
}

// Categories returns the configured categories in order.
func (e *Engine) Categories() []category.Category {
	return e.classifier.Categories()
}

// Assessment is the scored and classified form of an input.
type Assessment struct {
	Vector   score.Vector      `json:"vector"`
	Level    float64           `json:"level"`
	Category category.Category `json:"category"`
	Hits     []score.Hit       `json:"hits,omitempty"`
	Record   history.Record    `json:"record"`
}

// Assess scores and classifies input and appends the result to history.
func (e *Engine) Assess(ctx context.Context, input score.Input, labels map[string]string) (*Assessment, error) {
	vec := e.calc.Compute(input)
	level := e.calc.Level(vec)
	cat := e.classifier.Classify(level)

	a := &Assessment{
		Vector:   vec,
		Level:    level,
		Category: cat,
		Record: history.Record{
			ID:        uuid.NewString(),
			Timestamp: e.now().UTC(),
			Vector:    vec.Map(),
			Level:     level,
			Category:  cat.Name,
			Context:   labels,
		},
	}
	if input.IsText() {
		a.Hits = e.calc.Matches(input.Text)
	}

	if err := e.store.Append(ctx, a.Record); err != nil {
		return a, fmt.Errorf("append history: %w", err)
	}
	e.logger.Debug("input assessed",
		zap.Float64("level", level),
		zap.String("category", cat.Name))
	return a, nil
}

// Request is one pass through the pipeline.
type Request struct {
	Input score.Input
	// Task is routed after scoring. An empty Type is inferred from the text.
	Task      router.Task
	Preferred string
	Context   map[string]string
}

// Report is the result of Process.
type Report struct {
	Assessment *Assessment      `json:"assessment"`
	Decision   *router.Decision `json:"decision,omitempty"`
	Outcome    *router.Outcome  `json:"outcome,omitempty"`
}

// Process scores the input, records it, and routes the task with its
// category attached. Routing errors are returned alongside the report.
func (e *Engine) Process(ctx context.Context, req Request) (*Report, error) {
	assessment, err := e.Assess(ctx, req.Input, req.Context)
	if err != nil {
		return &Report{Assessment: assessment}, err
	}
	report := &Report{Assessment: assessment}

	task := req.Task
	if task.Payload == "" {
		task.Payload = req.Input.Text
	}
	if task.Type == "" {
		report.Decision = router.InferTaskType(task.Payload, e.cfg.Routing)
		task.Type = report.Decision.TaskType
		if task.Type == router.DefaultTaskType {
			task.Type = e.cfg.Routing.DefaultTaskType
		}
	}
	task.Category = assessment.Category.Name

	outcome, err := e.router.Route(ctx, task, req.Preferred)
	report.Outcome = outcome
	if err != nil {
		return report, fmt.Errorf("route %s: %w", task.Type, err)
	}
	return report, nil
}

// Decide puts question to the configured voter panel.
func (e *Engine) Decide(ctx context.Context, question string) (*consensus.Result, error) {
	return e.DecideWith(ctx, question, e.cfg.Consensus.Deadline, e.cfg.Consensus.ApprovalThreshold)
}

// DecideWith puts question to the panel with an explicit deadline and threshold.
func (e *Engine) DecideWith(ctx context.Context, question string, deadline time.Duration, threshold float64) (*consensus.Result, error) {
	if len(e.voters) == 0 {
		return nil, ErrNoVoters
	}
	return e.aggregator.Vote(ctx, question, e.voters, deadline, threshold)
}

// Trend summarises the last window of history.
func (e *Engine) Trend(ctx context.Context, window time.Duration) (history.Trend, error) {
	return e.analyzer.Trend(ctx, window)
}

// Project forecasts the level horizon ahead from the last window of history.
func (e *Engine) Project(ctx context.Context, window, horizon time.Duration) (history.Projection, error) {
	return e.analyzer.Project(ctx, window, horizon)
}

// History returns the records appended since the given time.
func (e *Engine) History(ctx context.Context, since time.Time) ([]history.Record, error) {
	return e.store.QueryRange(ctx, since, time.Time{})
}

// Outcomes returns the routing outcomes recorded since the given time.
func (e *Engine) Outcomes(ctx context.Context, since time.Time) ([]history.OutcomeRecord, error) {
	return e.store.QueryOutcomes(ctx, since, time.Time{})
}
