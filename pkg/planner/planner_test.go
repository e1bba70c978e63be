package planner

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func twoDiagnoses() ([]diagnosis.Diagnosis, coverage.Stats) {
	stats := coverage.Stats{
		"A": {Element: "A", EF: 4, EP: 1}, // goodness 0.2
		"B": {Element: "B", EF: 1, EP: 4}, // goodness 0.8
	}
	return []diagnosis.Diagnosis{diagnosis.New(0.8, "A"), diagnosis.New(0.2, "B")}, stats
}

func available(name string, trace ...string) AvailableTest {
	return AvailableTest{Name: name, EstimatedTrace: coverage.NewElementSet(trace...)}
}

func TestEntropy(t *testing.T) {
	tests := []struct {
		name string
		ps   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"certain", []float64{1}, 0},
		{"coin", []float64{0.5, 0.5}, math.Ln2},
		{"skewed", []float64{0.8, 0.2}, 0.5004024235381879},
		{"zero entries ignored", []float64{0.5, 0, 0.5}, math.Ln2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := make([]diagnosis.Diagnosis, len(tt.ps))
			for i, p := range tt.ps {
				ds[i] = diagnosis.New(p, fmt.Sprintf("e%d", i))
			}
			assert.InDelta(t, tt.want, Entropy(ds), 1e-9)
		})
	}
}

func TestEntropy_NonNegative(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for round := 0; round < 50; round++ {
		ds := make([]diagnosis.Diagnosis, 1+rng.IntN(8))
		for i := range ds {
			ds[i] = diagnosis.New(rng.Float64(), fmt.Sprintf("e%d", i))
		}
		diagnosis.Normalize(ds)
		assert.GreaterOrEqual(t, Entropy(ds), 0.0)
	}
}

func TestSummarize(t *testing.T) {
	ds, _ := twoDiagnoses()

	st := Summarize(ds, DefaultConvergenceThreshold)
	assert.Equal(t, 2, st.Count)
	assert.InDelta(t, 0.5004, st.Entropy, 1e-4)
	assert.InDelta(t, 0.8, st.HighestProbability, 1e-12)
	require.NotNil(t, st.MostLikely)
	assert.Equal(t, []string{"A"}, st.MostLikely.Components)
	assert.False(t, st.Complete)

	assert.True(t, Summarize(ds, 0.8).Complete)
	assert.False(t, Summarize(ds, 1).Complete, "threshold 1 is the strict policy")
	assert.True(t, Summarize(ds[:1], 1).Complete)

	empty := Summarize(nil, DefaultConvergenceThreshold)
	assert.Nil(t, empty.MostLikely)
	assert.False(t, empty.Complete)
}

func TestEstimatePassProbability(t *testing.T) {
	ds, stats := twoDiagnoses()

	// {A} is touched with goodness 0.2, {B} is not touched.
	assert.InDelta(t, 0.8*0.2+0.2*0.95, EstimatePassProbability(available("t", "A"), ds, stats), 1e-12)
	assert.InDelta(t, 0.95, EstimatePassProbability(available("none", "Z"), ds, stats), 1e-12)
}

func TestUpdateForOutcome(t *testing.T) {
	ds, stats := twoDiagnoses()
	test := available("t", "A")

	failed := UpdateForOutcome(ds, test, false, stats)
	require.Len(t, failed, 2)
	// {A}: 0.8*0.8, {B}: 0.2*0.05
	assert.InDelta(t, 0.64/(0.64+0.01), failed[0].Probability, 1e-12)
	assert.InDelta(t, 1.0, diagnosis.TotalProbability(failed), 1e-9)

	passed := UpdateForOutcome(ds, test, true, stats)
	require.Len(t, passed, 2)
	// {A}: 0.8*0.2, {B}: 0.2*0.95
	assert.InDelta(t, 0.16/(0.16+0.19), passed[0].Probability, 1e-12)

	assert.InDelta(t, 0.8, ds[0].Probability, 1e-12, "input must not change")
	assert.InDelta(t, 0.2, ds[1].Probability, 1e-12, "input must not change")
}

func TestUpdateForOutcome_Prunes(t *testing.T) {
	ds := []diagnosis.Diagnosis{diagnosis.New(0.999, "A"), diagnosis.New(0.001, "B")}

	updated := UpdateForOutcome(ds, available("t", "A"), true, coverage.Stats{})

	require.Len(t, updated, 1)
	assert.Equal(t, []string{"A"}, updated[0].Components)
	assert.InDelta(t, 1.0, updated[0].Probability, 1e-12)
}

func TestUpdateForOutcome_UniformFallback(t *testing.T) {
	ds := make([]diagnosis.Diagnosis, 100)
	for i := range ds {
		ds[i] = diagnosis.New(0.01, fmt.Sprintf("e%03d", i))
	}

	// No diagnosis is touched, so a failure gives every entry 0.01*0.05.
	updated := UpdateForOutcome(ds, available("t", "other"), false, coverage.Stats{})

	require.Len(t, updated, len(ds))
	for i, d := range updated {
		assert.Equal(t, ds[i].Components, d.Components)
		assert.InDelta(t, 0.01, d.Probability, 1e-12)
	}
}

func TestInformationGain(t *testing.T) {
	ds, stats := twoDiagnoses()
	h := Entropy(ds)

	informative := InformationGain(available("t", "A"), ds, stats, h)
	assert.Greater(t, informative, 0.0)

	assert.InDelta(t, 0, InformationGain(available("none", "Z"), ds, stats, h), 1e-9)
}

func TestInformationGain_NeverNegative(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	elements := []string{"a", "b", "c", "d", "e"}

	for round := 0; round < 40; round++ {
		stats := coverage.Stats{}
		for _, e := range elements {
			stats[e] = coverage.ElemStats{Element: e, EF: rng.IntN(4), EP: rng.IntN(4)}
		}
		ds := make([]diagnosis.Diagnosis, 2+rng.IntN(4))
		for i := range ds {
			ds[i] = diagnosis.New(rng.Float64()+0.01, elements[rng.IntN(len(elements))], elements[rng.IntN(len(elements))])
		}
		diagnosis.Normalize(ds)

		trace := available("t", elements[rng.IntN(len(elements))], elements[rng.IntN(len(elements))])
		assert.GreaterOrEqual(t, InformationGain(trace, ds, stats, Entropy(ds)), 0.0)
	}
}

func TestSelectBest(t *testing.T) {
	defer goleak.VerifyNone(t)

	ds, stats := twoDiagnoses()
	tests := []AvailableTest{
		available("useless", "Z"),
		available("first", "A"),
		available("second", "A"),
	}

	sel, err := New(stats, Options{Workers: 2}).SelectBest(context.Background(), tests, ds)
	require.NoError(t, err)
	require.NotNil(t, sel)

	assert.Equal(t, "first", sel.Test.Name, "earliest candidate wins ties")
	assert.False(t, sel.Random)
	assert.InDelta(t, Entropy(ds), sel.CurrentEntropy, 1e-12)
	require.Len(t, sel.Gains, 3)
	assert.Equal(t, "useless", sel.Gains[0].Test)
	assert.Equal(t, sel.Gains[1].InfoGain, sel.Gains[2].InfoGain)
	assert.Equal(t, sel.Gains[1].InfoGain, sel.InfoGain)
}

func TestSelectBest_NothingToDo(t *testing.T) {
	ds, stats := twoDiagnoses()
	p := New(stats, Options{})

	sel, err := p.SelectBest(context.Background(), nil, ds)
	require.NoError(t, err)
	assert.Nil(t, sel)

	sel, err = p.SelectBest(context.Background(), []AvailableTest{available("t", "A")}, ds[:1])
	require.NoError(t, err)
	assert.Nil(t, sel)
}

func TestSelectBest_RandomWithoutStats(t *testing.T) {
	ds, _ := twoDiagnoses()
	tests := []AvailableTest{available("a", "A"), available("b", "B"), available("c", "A", "B")}

	p := New(coverage.Stats{}, Options{Rand: rand.New(rand.NewPCG(1, 2))})
	sel, err := p.SelectBest(context.Background(), tests, ds)
	require.NoError(t, err)
	require.NotNil(t, sel)

	assert.True(t, sel.Random)
	assert.Contains(t, []string{"a", "b", "c"}, sel.Test.Name)
	assert.Empty(t, sel.Gains)
}

func TestSelectBest_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ds, stats := twoDiagnoses()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(stats, Options{}).SelectBest(ctx, []AvailableTest{available("t", "A")}, ds)
	assert.ErrorIs(t, err, context.Canceled)
}
