package score

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helix-collective/helix/pkg/config"
)

// Vector is an immutable set of named dimension values.
type Vector struct {
	names  []string
	values map[string]float64
}

func newVector(dims []config.Dimension, values []float64) Vector {
	v := Vector{
		names:  make([]string, len(dims)),
		values: make(map[string]float64, len(dims)),
	}
	for i, d := range dims {
		v.names[i] = d.Name
		v.values[d.Name] = values[i]
	}
	return v
}

// Get returns the value of a dimension.
func (v Vector) Get(name string) (float64, bool) {
	value, ok := v.values[name]
	return value, ok
}

// Names returns the dimension names in declaration order.
func (v Vector) Names() []string {
	return append([]string(nil), v.names...)
}

// Len returns the number of dimensions.
func (v Vector) Len() int {
	return len(v.names)
}

// Map returns a copy of the values keyed by dimension name.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

func (v Vector) String() string {
	parts := make([]string, len(v.names))
	for i, name := range v.names {
		parts[i] = fmt.Sprintf("%s=%.3f", name, v.values[name])
	}
	return strings.Join(parts, " ")
}

// MarshalJSON encodes the vector as an object keyed by dimension name.
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.values)
}
