package category

import (
	"errors"
	"math"
	"testing"

	"github.com/helix-collective/helix/pkg/config"
)

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	cfg := config.Default()
	c, err := NewClassifier(cfg.Categories, cfg.Scoring.LevelMax)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func TestClassify(t *testing.T) {
	c := defaultClassifier(t)

	tests := []struct {
		level float64
		want  string
	}{
		{0, "crisis"},
		{2.999, "crisis"},
		{3, "operational"},
		{5.99, "operational"},
		{6, "elevated"},
		{8.4999, "elevated"},
		{8.5, "transcendent"},
		{10, "transcendent"},
		{-1, "crisis"},
		{11, "transcendent"},
		{math.Inf(1), "transcendent"},
		{math.NaN(), "crisis"},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.level); got.Name != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.level, got.Name, tt.want)
		}
	}
}

func TestClassifyMonotonicAndTotal(t *testing.T) {
	c := defaultClassifier(t)

	prev := -1
	for i := 0; i <= 10000; i++ {
		level := float64(i) / 1000
		got := c.Classify(level)

		matches := 0
		for _, b := range c.Categories() {
			if (level >= b.Lo && level < b.Hi) || (b.Ordinal == len(c.Categories())-1 && level == b.Hi) {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("level %v matched %d bands", level, matches)
		}
		if got.Ordinal < prev {
			t.Fatalf("ordinal decreased at level %v: %d after %d", level, got.Ordinal, prev)
		}
		prev = got.Ordinal
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := defaultClassifier(t)
	for _, level := range []float64{0, 4.2, 7.7, 9.99} {
		if a, b := c.Classify(level), c.Classify(level); a != b {
			t.Fatalf("Classify(%v) not idempotent: %+v vs %+v", level, a, b)
		}
	}
}

func TestNewClassifierOrdersBands(t *testing.T) {
	c, err := NewClassifier([]config.Band{
		{Name: "high", Lo: 0.5, Hi: 1},
		{Name: "low", Lo: 0, Hi: 0.5},
	}, 1)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	cats := c.Categories()
	if cats[0].Name != "low" || cats[0].Ordinal != 0 || cats[1].Name != "high" || cats[1].Ordinal != 1 {
		t.Fatalf("unexpected order: %+v", cats)
	}
	if got, ok := c.Lookup("high"); !ok || got.Ordinal != 1 {
		t.Fatalf("Lookup(high) = %+v, %v", got, ok)
	}
	if _, ok := c.Lookup("missing"); ok {
		t.Fatal("Lookup should miss unknown names")
	}
}

func TestNewClassifierFailsFast(t *testing.T) {
	tests := []struct {
		name  string
		bands []config.Band
	}{
		{"gap", []config.Band{{Name: "a", Lo: 0, Hi: 4}, {Name: "b", Lo: 5, Hi: 10}}},
		{"overlap", []config.Band{{Name: "a", Lo: 0, Hi: 6}, {Name: "b", Lo: 5, Hi: 10}}},
		{"short", []config.Band{{Name: "a", Lo: 0, Hi: 9}}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier(tt.bands, 10)
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
