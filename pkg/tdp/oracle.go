package tdp

import (
	"context"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
)

// TestResult is what an Oracle reports after executing a test.
type TestResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	// ActualTrace is the coverage observed during execution. Empty means
	// unknown, in which case the estimated trace is used.
	ActualTrace coverage.ElementSet `json:"-"`
	Duration    time.Duration       `json:"duration,omitempty"`
}

// Oracle executes a planned test and reports its outcome.
type Oracle interface {
	Execute(ctx context.Context, test planner.AvailableTest) (TestResult, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, test planner.AvailableTest) (TestResult, error)

// Execute calls f.
func (f OracleFunc) Execute(ctx context.Context, test planner.AvailableTest) (TestResult, error) {
	return f(ctx, test)
}
