package report

import (
	"context"
	"io"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/briandowns/spinner"
)

// Spinner shows a spinner while the wrapped oracle runs a test. It is meant
// for slow oracles such as build commands; when Enabled is false it only
// delegates.
type Spinner struct {
	Oracle  tdp.Oracle
	W       io.Writer
	Enabled bool
}

// Execute runs test on the wrapped oracle.
func (s *Spinner) Execute(ctx context.Context, test planner.AvailableTest) (tdp.TestResult, error) {
	if !s.Enabled || s.W == nil {
		return s.Oracle.Execute(ctx, test)
	}
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.W))
	sp.Suffix = " running " + test.Name
	sp.Start()
	defer sp.Stop()
	return s.Oracle.Execute(ctx, test)
}
