// Package coverage holds the program spectrum a diagnosis is computed from:
// elements, observed test cases, the coverage matrix and per-element counters.
package coverage

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidSpectrum is returned when a spectrum's dimensions do not line up.
var ErrInvalidSpectrum = errors.New("invalid spectrum")

// TestCase is a single observed test execution.
type TestCase struct {
	Name   string `json:"name"`
	Failed bool   `json:"failed"`
}

// Spectrum is the full coverage record of a test suite: every known test,
// its outcome, and which elements it covered.
type Spectrum struct {
	Elements []string   `json:"elements"`
	Tests    []TestCase `json:"tests"`
	Matrix   [][]bool   `json:"matrix"`
}

// Validate checks that the matrix has one row per test and one column per
// element, and that test and element identifiers are unique.
func (s *Spectrum) Validate() error {
	if len(s.Elements) == 0 {
		return fmt.Errorf("%w: no elements", ErrInvalidSpectrum)
	}
	if len(s.Matrix) != len(s.Tests) {
		return fmt.Errorf("%w: %d matrix rows for %d tests", ErrInvalidSpectrum, len(s.Matrix), len(s.Tests))
	}
	for i, row := range s.Matrix {
		if len(row) != len(s.Elements) {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidSpectrum, i, len(row), len(s.Elements))
		}
	}

	seen := make(map[string]struct{}, len(s.Elements))
	for _, e := range s.Elements {
		if _, dup := seen[e]; dup {
			return fmt.Errorf("%w: duplicate element %q", ErrInvalidSpectrum, e)
		}
		seen[e] = struct{}{}
	}

	names := make(map[string]struct{}, len(s.Tests))
	for _, t := range s.Tests {
		if _, dup := names[t.Name]; dup {
			return fmt.Errorf("%w: duplicate test %q", ErrInvalidSpectrum, t.Name)
		}
		names[t.Name] = struct{}{}
	}
	return nil
}

// IndexOf returns the row index of the named test, or -1.
func (s *Spectrum) IndexOf(name string) int {
	for i, t := range s.Tests {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// Trace returns the set of elements covered by the test at row i.
func (s *Spectrum) Trace(i int) ElementSet {
	if i < 0 || i >= len(s.Matrix) {
		return ElementSet{}
	}
	return RowTrace(s.Matrix[i], s.Elements)
}

// FailedTests returns the number of tests marked as failed.
func (s *Spectrum) FailedTests() int {
	n := 0
	for _, t := range s.Tests {
		if t.Failed {
			n++
		}
	}
	return n
}

// RowTrace converts a coverage row into the set of covered elements.
// Columns beyond the end of row count as not covered.
func RowTrace(row []bool, elements []string) ElementSet {
	trace := ElementSet{}
	for j, e := range elements {
		if j < len(row) && row[j] {
			trace.Add(e)
		}
	}
	return trace
}

// Row converts a trace back into a coverage row over elements.
func Row(trace ElementSet, elements []string) []bool {
	row := make([]bool, len(elements))
	for j, e := range elements {
		row[j] = trace.Has(e)
	}
	return row
}

// ElementSet is an unordered set of element identifiers.
type ElementSet map[string]struct{}

// NewElementSet builds a set from the given elements.
func NewElementSet(elements ...string) ElementSet {
	s := make(ElementSet, len(elements))
	for _, e := range elements {
		s[e] = struct{}{}
	}
	return s
}

// Add inserts e into the set.
func (s ElementSet) Add(e string) { s[e] = struct{}{} }

// Has reports whether e is in the set.
func (s ElementSet) Has(e string) bool {
	_, ok := s[e]
	return ok
}

// Sorted returns the elements in lexicographic order.
func (s ElementSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Intersect returns the elements of s that also appear in other.
func (s ElementSet) Intersect(other []string) []string {
	var out []string
	for _, e := range other {
		if s.Has(e) {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns an independent copy of the set.
func (s ElementSet) Clone() ElementSet {
	c := make(ElementSet, len(s))
	for e := range s {
		c[e] = struct{}{}
	}
	return c
}
