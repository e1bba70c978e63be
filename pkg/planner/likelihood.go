package planner

import (
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
)

// Likelihood bounds. No simulated outcome is ever treated as certain.
const (
	MinLikelihood = 0.05
	MaxLikelihood = 0.95
	// PruneThreshold drops diagnoses whose updated weight falls to or below it.
	PruneThreshold = 0.001
)

// AvailableTest is a test that has not been observed yet, with the elements
// it is expected to cover.
type AvailableTest struct {
	Name           string              `json:"name"`
	EstimatedTrace coverage.ElementSet `json:"-"`
}

// Trace returns the estimated trace in sorted order.
func (t AvailableTest) Trace() []string {
	return t.EstimatedTrace.Sorted()
}

// passGiven is the probability the test passes if d is the true diagnosis.
func passGiven(test AvailableTest, d diagnosis.Diagnosis, stats coverage.Stats) (float64, bool) {
	touched := test.EstimatedTrace.Intersect(d.Components)
	if len(touched) == 0 {
		return MaxLikelihood, false
	}
	g := 1.0
	for _, e := range touched {
		g *= diagnosis.Goodness(e, stats)
	}
	return g, true
}

// EstimatePassProbability is the probability that test passes, averaged over
// the diagnosis distribution and clamped to [MinLikelihood, MaxLikelihood].
func EstimatePassProbability(test AvailableTest, ds []diagnosis.Diagnosis, stats coverage.Stats) float64 {
	var p float64
	for _, d := range ds {
		pass, _ := passGiven(test, d, stats)
		p += d.Probability * diagnosis.Clamp(pass, MinLikelihood, MaxLikelihood)
	}
	return diagnosis.Clamp(p, MinLikelihood, MaxLikelihood)
}

// UpdateForOutcome applies Bayes' rule for a hypothetical outcome of test and
// returns a new, renormalized distribution. Diagnoses whose weight drops to
// PruneThreshold or below are removed; if none survive, the result is a
// uniform distribution over the original diagnoses. ds is not modified.
func UpdateForOutcome(ds []diagnosis.Diagnosis, test AvailableTest, pass bool, stats coverage.Stats) []diagnosis.Diagnosis {
	updated, _ := update(ds, test, pass, stats)
	return updated
}

// update is UpdateForOutcome that also reports whether the uniform fallback
// was used.
func update(ds []diagnosis.Diagnosis, test AvailableTest, pass bool, stats coverage.Stats) ([]diagnosis.Diagnosis, bool) {
	var out []diagnosis.Diagnosis
	for _, d := range ds {
		p := d.Probability * outcomeLikelihood(test, d, pass, stats)
		if p > PruneThreshold {
			c := d.Clone()
			c.Probability = p
			out = append(out, c)
		}
	}

	if len(out) == 0 || diagnosis.TotalProbability(out) <= 0 {
		uniform := diagnosis.CloneAll(ds)
		for i := range uniform {
			uniform[i].Probability = 1 / float64(len(uniform))
		}
		return uniform, true
	}

	diagnosis.Normalize(out)
	return out, false
}

func outcomeLikelihood(test AvailableTest, d diagnosis.Diagnosis, pass bool, stats coverage.Stats) float64 {
	g, touched := passGiven(test, d, stats)
	if !touched {
		if pass {
			return MaxLikelihood
		}
		return MinLikelihood
	}
	if pass {
		return diagnosis.Clamp(g, MinLikelihood, MaxLikelihood)
	}
	return diagnosis.Clamp(1-g, MinLikelihood, MaxLikelihood)
}

// InformationGain is the expected entropy reduction from running test,
// floored at zero.
func InformationGain(test AvailableTest, ds []diagnosis.Diagnosis, stats coverage.Stats, currentEntropy float64) float64 {
	gain, _ := informationGain(test, ds, stats, currentEntropy)
	return gain
}

func informationGain(test AvailableTest, ds []diagnosis.Diagnosis, stats coverage.Stats, currentEntropy float64) (float64, int) {
	pPass := EstimatePassProbability(test, ds, stats)
	pFail := 1 - pPass

	ifPass, fbPass := update(ds, test, true, stats)
	ifFail, fbFail := update(ds, test, false, stats)

	expected := pPass*Entropy(ifPass) + pFail*Entropy(ifFail)
	fallbacks := 0
	if fbPass {
		fallbacks++
	}
	if fbFail {
		fallbacks++
	}
	return max(0, currentEntropy-expected), fallbacks
}
