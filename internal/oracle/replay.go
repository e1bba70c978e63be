package oracle

import (
	"context"
	"fmt"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
)

// Replay answers with the outcomes and traces recorded in a spectrum, which
// makes a whole session reproducible offline.
type Replay struct {
	spectrum coverage.Spectrum
	index    map[string]int
}

// NewReplay returns a Replay over s.
func NewReplay(s coverage.Spectrum) *Replay {
	r := &Replay{spectrum: s, index: make(map[string]int, len(s.Tests))}
	for i, t := range s.Tests {
		r.index[t.Name] = i
	}
	return r
}

// Execute implements tdp.Oracle.
func (r *Replay) Execute(ctx context.Context, test planner.AvailableTest) (tdp.TestResult, error) {
	if err := ctx.Err(); err != nil {
		return tdp.TestResult{}, err
	}
	i, ok := r.index[test.Name]
	if !ok {
		return tdp.TestResult{}, fmt.Errorf("%w: %s", ErrUnknownTest, test.Name)
	}
	return tdp.TestResult{
		Name:        test.Name,
		Passed:      !r.spectrum.Tests[i].Failed,
		ActualTrace: r.spectrum.Trace(i),
	}, nil
}
