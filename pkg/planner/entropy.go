package planner

import (
	"math"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
)

// DefaultConvergenceThreshold is the probability at which a single dominant
// diagnosis counts as a final answer.
const DefaultConvergenceThreshold = 0.95

// Entropy is the Shannon entropy of the diagnosis distribution in nats.
// Entries with zero probability contribute nothing.
func Entropy(ds []diagnosis.Diagnosis) float64 {
	var h float64
	for _, d := range ds {
		if d.Probability > 0 {
			h -= d.Probability * math.Log(d.Probability)
		}
	}
	return h
}

// Statistics summarizes a diagnosis list.
type Statistics struct {
	Count              int                  `json:"count"`
	Entropy            float64              `json:"entropy"`
	HighestProbability float64              `json:"highest_probability"`
	MostLikely         *diagnosis.Diagnosis `json:"most_likely,omitempty"`
	Complete           bool                 `json:"complete"`
}

// Summarize computes Statistics for ds. The list is complete when it holds
// exactly one diagnosis, or when threshold lies in (0, 1) and the most
// likely diagnosis reaches it. A threshold of 1 or more (or 0) keeps the
// strict single-diagnosis rule.
func Summarize(ds []diagnosis.Diagnosis, threshold float64) Statistics {
	st := Statistics{Count: len(ds), Entropy: Entropy(ds)}
	for i := range ds {
		if st.MostLikely == nil || ds[i].Probability > st.HighestProbability {
			best := ds[i].Clone()
			st.MostLikely = &best
			st.HighestProbability = ds[i].Probability
		}
	}

	switch {
	case len(ds) == 1:
		st.Complete = true
	case len(ds) > 1 && threshold > 0 && threshold < 1:
		st.Complete = st.HighestProbability >= threshold
	}
	return st
}
