package config

// ScoringConfig declares the score dimensions and the level range.
type ScoringConfig struct {
	LevelMax   float64     `yaml:"level_max"`
	Dimensions []Dimension `yaml:"dimensions"`
}

// Dimension is one named, bounded component of a score vector.
type Dimension struct {
	Name     string    `yaml:"name"`
	Min      float64   `yaml:"min"`
	Max      float64   `yaml:"max"`
	Baseline *float64  `yaml:"baseline,omitempty"` // midpoint when unset
	Weight   float64   `yaml:"weight"`
	Triggers []Trigger `yaml:"triggers,omitempty"`
}

// Trigger adds Delta to its dimension for every occurrence of Phrase.
type Trigger struct {
	Phrase string  `yaml:"phrase"`
	Delta  float64 `yaml:"delta"`
}

// Band maps the level interval [Lo, Hi) to a category name.
type Band struct {
	Name string  `yaml:"name"`
	Lo   float64 `yaml:"lo"`
	Hi   float64 `yaml:"hi"`
}

// BaselineValue returns the configured baseline or the midpoint of the range.
func (d Dimension) BaselineValue() float64 {
	if d.Baseline != nil {
		return *d.Baseline
	}
	return d.Min + (d.Max-d.Min)/2
}

// Float returns a pointer to v, for literal baselines.
func Float(v float64) *float64 {
	return &v
}
