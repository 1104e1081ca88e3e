// Package category maps a scalar level onto ordered, contiguous bands.
package category

import (
	"sort"

	"github.com/helix-collective/helix/pkg/config"
)

// Category is a band label with its position in the band order.
type Category struct {
	Name    string  `json:"name"`
	Ordinal int     `json:"ordinal"`
	Lo      float64 `json:"lo"`
	Hi      float64 `json:"hi"`
}

// Classifier performs band lookup. It is immutable and safe for concurrent use.
type Classifier struct {
	bands    []Category
	levelMax float64
}

// NewClassifier validates that bands partition [0, levelMax] and returns a
// classifier. Misconfiguration is reported here, never by Classify.
func NewClassifier(bands []config.Band, levelMax float64) (*Classifier, error) {
	if err := config.ValidateBands(bands, levelMax); err != nil {
		return nil, err
	}

	ordered := make([]config.Band, len(bands))
	copy(ordered, bands)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Lo < ordered[j].Lo })

	c := &Classifier{
		bands:    make([]Category, len(ordered)),
		levelMax: levelMax,
	}
	for i, b := range ordered {
		c.bands[i] = Category{Name: b.Name, Ordinal: i, Lo: b.Lo, Hi: b.Hi}
	}
	return c, nil
}

// Classify returns the category whose [Lo, Hi) band contains level. The top
// band also holds levelMax; out-of-range levels clamp to the first or last band.
func (c *Classifier) Classify(level float64) Category {
	last := len(c.bands) - 1
	if level >= c.levelMax {
		return c.bands[last]
	}
	if !(level >= c.bands[0].Lo) { // also catches NaN
		return c.bands[0]
	}
	// First band whose upper bound lies above level.
	i := sort.Search(len(c.bands), func(i int) bool { return level < c.bands[i].Hi })
	if i > last {
		i = last
	}
	return c.bands[i]
}

// Categories returns the bands in ascending order.
func (c *Classifier) Categories() []Category {
	return append([]Category(nil), c.bands...)
}

// Lookup returns the category with the given name.
func (c *Classifier) Lookup(name string) (Category, bool) {
	for _, b := range c.bands {
		if b.Name == name {
			return b, true
		}
	}
	return Category{}, false
}
