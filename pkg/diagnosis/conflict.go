package diagnosis

import "github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"

// Conflict is the set of elements covered by one failing test: at least one
// of them must be faulty.
type Conflict struct {
	Test     string              `json:"test"`
	Elements coverage.ElementSet `json:"-"`
}

// ExtractConflicts derives one conflict per failed observed test. Passing
// tests and failing tests that cover nothing yield no conflict, so an empty
// result means there is no fault evidence.
func ExtractConflicts(tests []coverage.TestCase, matrix [][]bool, elements []string) []Conflict {
	var conflicts []Conflict
	for i, t := range tests {
		if !t.Failed || i >= len(matrix) {
			continue
		}
		trace := coverage.RowTrace(matrix[i], elements)
		if len(trace) == 0 {
			continue
		}
		conflicts = append(conflicts, Conflict{Test: t.Name, Elements: trace})
	}
	return conflicts
}
