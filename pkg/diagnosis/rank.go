package diagnosis

import (
	"sort"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
)

// ElementRank is one row of a single-fault suspiciousness ranking.
type ElementRank struct {
	Element        string  `json:"element"`
	Goodness       float64 `json:"goodness"`
	Suspiciousness float64 `json:"suspiciousness"`
	EF             int     `json:"ef"`
	EP             int     `json:"ep"`
}

// RankElements ranks every element that was covered by at least one failing
// test by its single-fault score 1 - goodness, highest first, ties broken by
// element name. It is the classic spectrum-based ranking that TDP refines.
func RankElements(stats coverage.Stats) []ElementRank {
	var ranks []ElementRank
	for e, es := range stats {
		if es.EF == 0 {
			continue
		}
		g := Goodness(e, stats)
		ranks = append(ranks, ElementRank{
			Element:        e,
			Goodness:       g,
			Suspiciousness: 1 - g,
			EF:             es.EF,
			EP:             es.EP,
		})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Suspiciousness != ranks[j].Suspiciousness {
			return ranks[i].Suspiciousness > ranks[j].Suspiciousness
		}
		return ranks[i].Element < ranks[j].Element
	})
	return ranks
}
