// Package score turns free text or partial numeric readings into a bounded
// score vector and reduces it to a single level.
package score

import (
	"math"
	"strings"

	"github.com/helix-collective/helix/pkg/config"
)

// Input is either free text or a partial vector. A nil Partial means text.
type Input struct {
	Text    string             `json:"text,omitempty"`
	Partial map[string]float64 `json:"partial,omitempty"`
}

// TextInput scores text by trigger accumulation.
func TextInput(text string) Input {
	return Input{Text: text}
}

// VectorInput scores a partial vector; missing dimensions take their baseline.
func VectorInput(values map[string]float64) Input {
	if values == nil {
		values = map[string]float64{}
	}
	return Input{Partial: values}
}

// IsText reports whether the input is free text.
func (in Input) IsText() bool {
	return in.Partial == nil
}

// Hit records one trigger phrase found in text.
type Hit struct {
	Dimension string  `json:"dimension"`
	Phrase    string  `json:"phrase"`
	Count     int     `json:"count"`
	Delta     float64 `json:"delta"`
}

// Calculator computes score vectors and levels from a validated ScoringConfig.
type Calculator struct {
	dims     []config.Dimension
	index    map[string]int
	levelMax float64
	triggers []compiledTrigger
}

type compiledTrigger struct {
	dim    int
	phrase string
	delta  float64
}

// NewCalculator validates the scoring configuration and compiles its triggers.
func NewCalculator(cfg config.ScoringConfig) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Calculator{
		dims:     append([]config.Dimension(nil), cfg.Dimensions...),
		index:    make(map[string]int, len(cfg.Dimensions)),
		levelMax: cfg.LevelMax,
	}
	for i, d := range c.dims {
		c.index[d.Name] = i
		for _, t := range d.Triggers {
			c.triggers = append(c.triggers, compiledTrigger{
				dim:    i,
				phrase: strings.ToLower(strings.TrimSpace(t.Phrase)),
				delta:  t.Delta,
			})
		}
	}
	return c, nil
}

// LevelMax returns the upper bound of the level range.
func (c *Calculator) LevelMax() float64 {
	return c.levelMax
}

// Dimensions returns the declared dimensions in order.
func (c *Calculator) Dimensions() []config.Dimension {
	return append([]config.Dimension(nil), c.dims...)
}

// Compute converts input into a Vector. It never fails: unknown dimensions and
// NaN values are ignored and every value, infinities included, is clamped to
// its range.
func (c *Calculator) Compute(in Input) Vector {
	values := make([]float64, len(c.dims))
	for i, d := range c.dims {
		values[i] = d.BaselineValue()
	}

	if in.IsText() {
		for _, hit := range c.matches(in.Text) {
			values[hit.dim] += hit.delta * float64(hit.count)
		}
	} else {
		for name, v := range in.Partial {
			i, ok := c.index[name]
			if !ok || math.IsNaN(v) {
				continue
			}
			values[i] = v
		}
	}

	for i, d := range c.dims {
		values[i] = clamp(values[i], d.Min, d.Max)
	}
	return newVector(c.dims, values)
}

// Level reduces a vector to a weighted sum clamped to [0, LevelMax].
// Dimensions absent from v contribute their baseline.
func (c *Calculator) Level(v Vector) float64 {
	var sum float64
	for _, d := range c.dims {
		value, ok := v.Get(d.Name)
		if !ok {
			value = d.BaselineValue()
		}
		sum += clamp(value, d.Min, d.Max) * d.Weight
	}
	return clamp(sum, 0, c.levelMax)
}

// Matches lists the trigger phrases found in text, in declaration order.
func (c *Calculator) Matches(text string) []Hit {
	found := c.matches(text)
	hits := make([]Hit, 0, len(found))
	for _, m := range found {
		hits = append(hits, Hit{
			Dimension: c.dims[m.dim].Name,
			Phrase:    m.phrase,
			Count:     m.count,
			Delta:     m.delta,
		})
	}
	return hits
}

type match struct {
	compiledTrigger
	count int
}

func (c *Calculator) matches(text string) []match {
	lower := strings.ToLower(text)
	var out []match
	for _, t := range c.triggers {
		if n := countTrigger(lower, t.phrase); n > 0 {
			out = append(out, match{compiledTrigger: t, count: n})
		}
	}
	return out
}

// countTrigger counts occurrences of trigger in text that sit on word
// boundaries. Both arguments must already be lower case.
func countTrigger(text, trigger string) int {
	if trigger == "" {
		return 0
	}
	count := 0
	offset := 0
	for {
		idx := strings.Index(text[offset:], trigger)
		if idx == -1 {
			return count
		}
		start := offset + idx
		end := start + len(trigger)

		if (start == 0 || !isWordChar(text[start-1])) && (end == len(text) || !isWordChar(text[end])) {
			count++
		}
		offset = start + 1
	}
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
