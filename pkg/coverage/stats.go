package coverage

// ElemStats counts how an element relates to the observed tests.
//
//	EF: failed and covers   EP: passed and covers
//	NF: failed, not covered NP: passed, not covered
type ElemStats struct {
	Element string `json:"element"`
	EF      int    `json:"ef"`
	EP      int    `json:"ep"`
	NF      int    `json:"nf"`
	NP      int    `json:"np"`
}

// Total returns the number of observed tests the counters were built from.
func (s ElemStats) Total() int {
	return s.EF + s.EP + s.NF + s.NP
}

// Covering returns the number of observed tests that executed the element.
func (s ElemStats) Covering() int {
	return s.EF + s.EP
}

// Stats maps element identifiers to their counters.
type Stats map[string]ElemStats

// BuildStats recomputes every element's counters from the observed tests and
// their coverage rows. Rows shorter than the element list count the missing
// columns as not covered.
func BuildStats(elements []string, tests []TestCase, matrix [][]bool) Stats {
	stats := make(Stats, len(elements))
	for j, e := range elements {
		es := ElemStats{Element: e}
		for i, t := range tests {
			covers := i < len(matrix) && j < len(matrix[i]) && matrix[i][j]
			switch {
			case t.Failed && covers:
				es.EF++
			case !t.Failed && covers:
				es.EP++
			case t.Failed:
				es.NF++
			default:
				es.NP++
			}
		}
		stats[e] = es
	}
	return stats
}
