// Package diagnosis computes candidate explanations for observed test
// failures: minimal sets of elements that hit every conflict, ranked by a
// Barinel-style likelihood built from element goodness.
package diagnosis

import (
	"sort"
	"strings"
)

// Diagnosis is a set of elements hypothesized to be jointly faulty.
// Components are kept sorted.
type Diagnosis struct {
	Components  []string `json:"components"`
	Probability float64  `json:"probability"`
}

// New builds a diagnosis with sorted, deduplicated components.
func New(probability float64, components ...string) Diagnosis {
	c := append([]string(nil), components...)
	sort.Strings(c)
	out := c[:0]
	for i, e := range c {
		if i > 0 && e == c[i-1] {
			continue
		}
		out = append(out, e)
	}
	return Diagnosis{Components: out, Probability: probability}
}

// Key is a stable identifier for the component set.
func (d Diagnosis) Key() string {
	return strings.Join(d.Components, ",")
}

// Contains reports whether e is one of the diagnosis components.
func (d Diagnosis) Contains(e string) bool {
	i := sort.SearchStrings(d.Components, e)
	return i < len(d.Components) && d.Components[i] == e
}

// Hits reports whether the diagnosis shares at least one element with c.
func (d Diagnosis) Hits(c Conflict) bool {
	for _, e := range d.Components {
		if c.Elements.Has(e) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (d Diagnosis) Clone() Diagnosis {
	return Diagnosis{Components: append([]string(nil), d.Components...), Probability: d.Probability}
}

// CloneAll deep-copies a diagnosis list.
func CloneAll(ds []Diagnosis) []Diagnosis {
	out := make([]Diagnosis, len(ds))
	for i, d := range ds {
		out[i] = d.Clone()
	}
	return out
}

// IsHittingSet reports whether components intersect every conflict.
func IsHittingSet(components []string, conflicts []Conflict) bool {
	d := Diagnosis{Components: components}
	for _, c := range conflicts {
		if len(c.Elements) == 0 {
			continue
		}
		if !d.Hits(c) {
			return false
		}
	}
	return true
}

// IsMinimal reports whether removing any single component breaks the
// hitting-set property.
func IsMinimal(components []string, conflicts []Conflict) bool {
	reduced := make([]string, 0, len(components))
	for skip := range components {
		reduced = reduced[:0]
		for i, e := range components {
			if i != skip {
				reduced = append(reduced, e)
			}
		}
		if IsHittingSet(reduced, conflicts) {
			return false
		}
	}
	return true
}

// TotalProbability sums the probabilities of ds.
func TotalProbability(ds []Diagnosis) float64 {
	var sum float64
	for _, d := range ds {
		sum += d.Probability
	}
	return sum
}
