package diagnosis

import "github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"

// Goodness bounds. Products of many goodness values feed probability updates
// and logarithms, so a single 0 or 1 must never reach them.
const (
	MinGoodness     = 0.01
	MaxGoodness     = 0.99
	NeutralGoodness = 0.5
)

// Goodness estimates the probability that a test covering element passes:
// ep / (ef + ep), clamped to [MinGoodness, MaxGoodness]. Elements without
// statistics or never covered by an observed test get NeutralGoodness.
func Goodness(element string, stats coverage.Stats) float64 {
	es, ok := stats[element]
	if !ok || es.Covering() == 0 {
		return NeutralGoodness
	}
	g := float64(es.EP) / float64(es.Covering())
	return Clamp(g, MinGoodness, MaxGoodness)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
