// Package tdp runs the Test, Diagnose, Plan loop: it diagnoses the observed
// failures, plans the most informative test, executes it through an Oracle
// and folds the result back into an immutable State.
package tdp

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
)

// ErrConfig marks problems with the input that make a run impossible.
var ErrConfig = errors.New("invalid configuration")

// Options selects the initial observations of a session.
type Options struct {
	// Observe lists the tests observed up front, by name or by 1-based
	// position in the suite. Empty means every suite test.
	Observe []string
	// Catalog adds tests that are not part of the recorded suite.
	Catalog []planner.AvailableTest
}

// State is one snapshot of a session. Methods never modify the receiver;
// Apply returns a new State that shares unchanged data with the old one.
type State struct {
	elements []string
	observed []coverage.TestCase
	matrix   [][]bool
	stats    coverage.Stats
	pool     []planner.AvailableTest
	results  []TestResult
}

// NewState builds the initial state from the recorded suite.
func NewState(spectrum coverage.Spectrum, opts Options) (State, error) {
	if err := spectrum.Validate(); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	selected, err := resolveObserve(spectrum, opts.Observe)
	if err != nil {
		return State{}, err
	}

	st := State{elements: append([]string(nil), spectrum.Elements...)}
	for _, i := range selected {
		st.observed = append(st.observed, spectrum.Tests[i])
		st.matrix = append(st.matrix, append([]bool(nil), spectrum.Matrix[i]...))
	}
	st.stats = coverage.BuildStats(st.elements, st.observed, st.matrix)

	known := make(map[string]struct{}, len(spectrum.Tests))
	isObserved := make(map[int]bool, len(selected))
	for _, i := range selected {
		isObserved[i] = true
	}
	for i, tc := range spectrum.Tests {
		known[tc.Name] = struct{}{}
		if isObserved[i] {
			continue
		}
		trace := spectrum.Trace(i)
		if len(trace) == 0 {
			continue
		}
		st.pool = append(st.pool, planner.AvailableTest{Name: tc.Name, EstimatedTrace: trace})
	}
	for _, t := range opts.Catalog {
		if _, dup := known[t.Name]; dup || len(t.EstimatedTrace) == 0 {
			continue
		}
		known[t.Name] = struct{}{}
		st.pool = append(st.pool, t)
	}
	return st, nil
}

// resolveObserve maps names and 1-based positions to suite indices in the
// order given. Duplicates are ignored.
func resolveObserve(spectrum coverage.Spectrum, refs []string) ([]int, error) {
	if len(refs) == 0 {
		all := make([]int, len(spectrum.Tests))
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	seen := make(map[int]bool, len(refs))
	var out []int
	for _, ref := range refs {
		i := spectrum.IndexOf(ref)
		if i < 0 {
			n, err := strconv.Atoi(ref)
			if err != nil || n < 1 || n > len(spectrum.Tests) {
				return nil, fmt.Errorf("%w: unknown test %q", ErrConfig, ref)
			}
			i = n - 1
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out, nil
}

// Elements returns the element universe.
func (s State) Elements() []string { return s.elements }

// Observed returns the observed tests in observation order.
func (s State) Observed() []coverage.TestCase {
	return append([]coverage.TestCase(nil), s.observed...)
}

// Matrix returns the coverage rows of the observed tests. Rows must not be
// modified.
func (s State) Matrix() [][]bool {
	return append([][]bool(nil), s.matrix...)
}

// Stats returns the element statistics over the observed tests. The map
// must not be modified.
func (s State) Stats() coverage.Stats { return s.stats }

// Pool returns the tests that can still be executed.
func (s State) Pool() []planner.AvailableTest {
	return append([]planner.AvailableTest(nil), s.pool...)
}

// Results returns the oracle results applied so far.
func (s State) Results() []TestResult {
	return append([]TestResult(nil), s.results...)
}

// Conflicts returns one conflict per failing observed test.
func (s State) Conflicts() []diagnosis.Conflict {
	return diagnosis.ExtractConflicts(s.observed, s.matrix, s.elements)
}

// Valid reports whether s was produced by NewState.
func (s State) Valid() bool { return s.elements != nil && s.stats != nil }

// Apply returns the state after observing r. The executed test leaves the
// pool; its coverage row is the actual trace, or the estimated trace of the
// pooled test when the oracle reported none.
func (s State) Apply(r TestResult) State {
	trace := r.ActualTrace
	pool := make([]planner.AvailableTest, 0, len(s.pool))
	for _, t := range s.pool {
		if t.Name == r.Name {
			if len(trace) == 0 {
				trace = t.EstimatedTrace
			}
			continue
		}
		pool = append(pool, t)
	}

	next := State{
		elements: s.elements,
		observed: append(s.Observed(), coverage.TestCase{Name: r.Name, Failed: !r.Passed}),
		matrix:   append(s.Matrix(), coverage.Row(trace, s.elements)),
		pool:     pool,
		results:  append(s.Results(), r),
	}
	next.stats = coverage.BuildStats(next.elements, next.observed, next.matrix)
	return next
}

// Diagnose computes the ranked diagnoses for the failures observed in s.
func Diagnose(ctx context.Context, s State, opts diagnosis.Options) ([]diagnosis.Diagnosis, error) {
	return diagnosis.Compute(ctx, s.Conflicts(), s.stats, opts)
}
