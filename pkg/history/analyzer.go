package history

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Direction classifies the movement of the level across a window.
type Direction string

const (
	Rising  Direction = "rising"
	Falling Direction = "falling"
	Stable  Direction = "stable"
	Unknown Direction = "unknown"
)

// Confidence labels a projection by the spread of its samples.
type Confidence string

const (
	ConfidenceHigh    Confidence = "high"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceLow     Confidence = "low"
	ConfidenceUnknown Confidence = "unknown"
)

// Trend summarises the levels recorded in a window.
type Trend struct {
	Direction   Direction     `json:"direction"`
	Average     float64       `json:"average"`
	Min         float64       `json:"min"`
	Max         float64       `json:"max"`
	Latest      float64       `json:"latest"`
	Delta       float64       `json:"delta"`
	SampleCount int           `json:"sample_count"`
	Window      time.Duration `json:"window"`
}

// Projection is a linear forecast of the level.
type Projection struct {
	Predicted   float64       `json:"predicted"`
	Slope       float64       `json:"slope"`
	Variance    float64       `json:"variance"`
	Confidence  Confidence    `json:"confidence"`
	SampleCount int           `json:"sample_count"`
	Horizon     time.Duration `json:"horizon"`
}

// Analyzer answers trend queries over a Store.
type Analyzer struct {
	store          Store
	epsilon        float64
	levelMax       float64
	varianceHigh   float64
	varianceMedium float64
	now            func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithEpsilon sets the minimum last-minus-first change counted as movement.
func WithEpsilon(eps float64) AnalyzerOption {
	return func(a *Analyzer) {
		if eps >= 0 {
			a.epsilon = eps
		}
	}
}

// WithLevelMax sets the upper clamp for projections.
func WithLevelMax(max float64) AnalyzerOption {
	return func(a *Analyzer) {
		if max > 0 {
			a.levelMax = max
		}
	}
}

// WithVarianceBands sets the variance limits for high and medium confidence.
func WithVarianceBands(high, medium float64) AnalyzerOption {
	return func(a *Analyzer) {
		if high > 0 && medium >= high {
			a.varianceHigh = high
			a.varianceMedium = medium
		}
	}
}

// WithClock overrides the time source used to anchor windows.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAnalyzer creates an Analyzer over store.
func NewAnalyzer(store Store, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		store:          store,
		epsilon:        0.05,
		levelMax:       10,
		varianceHigh:   0.25,
		varianceMedium: 1.0,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Trend summarises the records of the last window. An empty window yields
// Direction Unknown.
func (a *Analyzer) Trend(ctx context.Context, window time.Duration) (Trend, error) {
	levels, _, err := a.levels(ctx, window)
	if err != nil {
		return Trend{}, err
	}
	t := Trend{Direction: Unknown, Window: window, SampleCount: len(levels)}
	if len(levels) == 0 {
		return t, nil
	}

	t.Min, t.Max = levels[0], levels[0]
	var sum float64
	for _, l := range levels {
		sum += l
		t.Min = math.Min(t.Min, l)
		t.Max = math.Max(t.Max, l)
	}
	t.Average = sum / float64(len(levels))
	t.Latest = levels[len(levels)-1]
	t.Delta = t.Latest - levels[0]

	switch {
	case t.Delta > a.epsilon:
		t.Direction = Rising
	case t.Delta < -a.epsilon:
		t.Direction = Falling
	default:
		t.Direction = Stable
	}
	return t, nil
}

// Project fits a least-squares line over (index, level) for the last window
// and extends it by horizon, converted to index steps with the mean sampling
// interval.
func (a *Analyzer) Project(ctx context.Context, window, horizon time.Duration) (Projection, error) {
	if horizon < 0 {
		return Projection{}, fmt.Errorf("horizon must not be negative")
	}
	levels, stamps, err := a.levels(ctx, window)
	if err != nil {
		return Projection{}, err
	}

	p := Projection{Confidence: ConfidenceUnknown, SampleCount: len(levels), Horizon: horizon}
	switch len(levels) {
	case 0:
		return p, nil
	case 1:
		p.Predicted = a.clamp(levels[0])
		p.Confidence = ConfidenceLow
		return p, nil
	}

	n := float64(len(levels))
	var meanX, meanY float64
	for i, l := range levels {
		meanX += float64(i)
		meanY += l
	}
	meanX /= n
	meanY /= n

	var sxy, sxx, ss float64
	for i, l := range levels {
		dx := float64(i) - meanX
		dy := l - meanY
		sxy += dx * dy
		sxx += dx * dx
		ss += dy * dy
	}
	p.Slope = sxy / sxx
	intercept := meanY - p.Slope*meanX
	p.Variance = ss / (n - 1)

	var steps float64
	if span := stamps[len(stamps)-1].Sub(stamps[0]); span > 0 {
		interval := float64(span) / (n - 1)
		steps = float64(horizon) / interval
	}
	p.Predicted = a.clamp(intercept + p.Slope*(n-1+steps))

	switch {
	case p.Variance < a.varianceHigh:
		p.Confidence = ConfidenceHigh
	case p.Variance < a.varianceMedium:
		p.Confidence = ConfidenceMedium
	default:
		p.Confidence = ConfidenceLow
	}
	return p, nil
}

func (a *Analyzer) levels(ctx context.Context, window time.Duration) ([]float64, []time.Time, error) {
	if window <= 0 {
		return nil, nil, fmt.Errorf("window must be positive")
	}
	end := a.now()
	recs, err := a.store.QueryRange(ctx, end.Add(-window), end)
	if err != nil {
		return nil, nil, fmt.Errorf("query window: %w", err)
	}
	levels := make([]float64, len(recs))
	stamps := make([]time.Time, len(recs))
	for i, r := range recs {
		levels[i] = r.Level
		stamps[i] = r.Timestamp
	}
	return levels, stamps, nil
}

func (a *Analyzer) clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > a.levelMax {
		return a.levelMax
	}
	return v
}
