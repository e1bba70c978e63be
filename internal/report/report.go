// Package report renders sessions, diagnoses and rankings for the terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// DefaultLimit is how many diagnoses or ranks are listed before the rest is
// summarized.
const DefaultLimit = 10

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ConfigureColor turns colored output off unless f is a terminal and the
// caller did not ask for plain output.
func ConfigureColor(f *os.File, disabled bool) {
	color.NoColor = disabled || !IsTerminal(f)
}

// FormatComponents renders a diagnosis compactly. Sets of more than three
// components show the first two and a count of the rest.
func FormatComponents(components []string) string {
	if len(components) <= 3 {
		return "[" + strings.Join(components, ", ") + "]"
	}
	sorted := append([]string(nil), components...)
	sort.Strings(sorted)
	return fmt.Sprintf("[%s, %s, ... +%d more]", sorted[0], sorted[1], len(sorted)-2)
}

// TextObserver prints session progress as human-readable lines.
type TextObserver struct {
	W       io.Writer
	Verbose bool

	max int
}

// Emit writes a line for ev.
func (o *TextObserver) Emit(ev tdp.Event) {
	dim := color.New(color.FgHiBlack)
	switch ev.Type {
	case tdp.EventSessionStart:
		o.max = ev.MaxIterations
		_, _ = dim.Fprintf(o.W, "Session %s: %d observed tests, %d candidate tests, budget %d\n",
			shortID(ev.SessionID), ev.Observed, ev.Pool, ev.MaxIterations)
	case tdp.EventDiagnose:
		fmt.Fprintf(o.W, "[iteration %d/%d] %d diagnoses, entropy %.4f\n", ev.Iteration, o.max, len(ev.Diagnoses), ev.Entropy)
		if o.Verbose {
			PrintDiagnoses(o.W, ev.Diagnoses, 5)
		}
	case tdp.EventPlan:
		if ev.Random {
			fmt.Fprintf(o.W, "[iteration %d/%d] Next test: %s (random pick, no observations yet)\n", ev.Iteration, o.max, ev.Test)
		} else {
			fmt.Fprintf(o.W, "[iteration %d/%d] Next test: %s (info gain %.4f)\n", ev.Iteration, o.max, ev.Test, ev.InfoGain)
		}
	case tdp.EventTest:
		result := color.New(color.FgGreen).Sprint("PASSED")
		if ev.Passed != nil && !*ev.Passed {
			result = color.New(color.FgRed).Sprint("FAILED")
		}
		fmt.Fprintf(o.W, "[iteration %d/%d]   result: %s\n", ev.Iteration, o.max, result)
	case tdp.EventUpdate:
		if o.Verbose {
			_, _ = dim.Fprintf(o.W, "  %d observed tests, %d remaining\n", ev.Observed, ev.Pool)
		}
	}
}

// PrintDiagnoses lists up to limit diagnoses with their probabilities. A
// non-positive limit selects DefaultLimit.
func PrintDiagnoses(w io.Writer, ds []diagnosis.Diagnosis, limit int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(ds) == 0 {
		fmt.Fprintln(w, "  (no diagnoses)")
		return
	}
	for i, d := range ds {
		if i == limit {
			_, _ = color.New(color.FgHiBlack).Fprintf(w, "  ... and %d more\n", len(ds)-limit)
			break
		}
		fmt.Fprintf(w, "  %2d. %-60s %6.2f%%\n", i+1, FormatComponents(d.Components), d.Probability*100)
	}
}

func noDiagnosisReason(status tdp.Status) string {
	switch status {
	case tdp.StatusNoEvidence:
		return "No observed test failed, so there is nothing to localize."
	case tdp.StatusInterrupted:
		return "The session stopped before a diagnosis was computed."
	default:
		return "No diagnosis explains the observed failures."
	}
}

// PrintOutcome writes the session summary to stderr and the final diagnosis
// to stdout.
func PrintOutcome(stderr, stdout io.Writer, out *tdp.Outcome) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(stderr)
	_, _ = dim.Fprintln(stderr, "  "+strings.Repeat("━", 50))
	fmt.Fprintf(stderr, "  Status: %s after %d tests\n", statusColor(out.Status).Sprint(out.Status), out.Iterations)
	fmt.Fprintf(stderr, "  Diagnoses: %d, entropy %.4f\n", out.Statistics.Count, out.Statistics.Entropy)
	if out.Error != "" {
		_, _ = color.New(color.FgYellow).Fprintf(stderr, "  Stopped early: %s\n", out.Error)
	}
	fmt.Fprintln(stderr)

	if out.Best == nil {
		_, _ = bold.Fprintln(stdout, "NO DIAGNOSIS")
		fmt.Fprintln(stdout, noDiagnosisReason(out.Status))
		return
	}

	_, _ = bold.Fprintf(stdout, "FAULTY COMPONENTS (%.1f%%)\n", out.Best.Probability*100)
	for _, c := range out.Best.Components {
		fmt.Fprintf(stdout, "  • %s\n", c)
	}
	if out.BestEffort {
		_, _ = dim.Fprintln(stdout, "  (best effort, not converged)")
	}
	fmt.Fprintln(stdout)

	if len(out.Diagnoses) > 1 {
		_, _ = bold.Fprintln(stdout, "CANDIDATES")
		PrintDiagnoses(stdout, out.Diagnoses, DefaultLimit)
		fmt.Fprintln(stdout)
	}

	if len(out.Executed) > 0 {
		_, _ = bold.Fprintln(stdout, "TESTS EXECUTED")
		for _, r := range out.Executed {
			mark := color.New(color.FgGreen).Sprint("pass")
			if !r.Passed {
				mark = color.New(color.FgRed).Sprint("fail")
			}
			fmt.Fprintf(stdout, "  %s  %s\n", mark, r.Name)
		}
	}
}

// PrintRanking lists the single-fault suspiciousness ranking.
func PrintRanking(w io.Writer, ranks []diagnosis.ElementRank, limit int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(ranks) == 0 {
		fmt.Fprintln(w, "  (no element is covered by a failing test)")
		return
	}
	for i, r := range ranks {
		if i == limit {
			_, _ = color.New(color.FgHiBlack).Fprintf(w, "  ... and %d more\n", len(ranks)-limit)
			break
		}
		fmt.Fprintf(w, "  %2d. %-60s %.3f (ef=%d, ep=%d)\n", i+1, r.Element, r.Suspiciousness, r.EF, r.EP)
	}
}

// PrintSelection writes a planning decision and the gain of every candidate.
func PrintSelection(w io.Writer, sel *planner.Selection) {
	bold := color.New(color.Bold)
	if sel == nil {
		fmt.Fprintln(w, "No test to recommend.")
		return
	}
	_, _ = bold.Fprintf(w, "NEXT TEST: %s\n", sel.Test.Name)
	if sel.Random {
		fmt.Fprintln(w, "  picked at random: no test has been observed yet")
		return
	}
	fmt.Fprintf(w, "  info gain %.4f, current entropy %.4f\n", sel.InfoGain, sel.CurrentEntropy)
	for _, g := range sel.Gains {
		fmt.Fprintf(w, "  %-60s gain=%.4f p(pass)=%.3f\n", g.Test, g.InfoGain, g.PassProbability)
	}
}

// PrintGoodness explains the goodness of every element in the estimated
// trace of test.
func PrintGoodness(w io.Writer, test planner.AvailableTest, stats coverage.Stats) {
	fmt.Fprintf(w, "Test: %s\n", test.Name)
	for _, e := range test.Trace() {
		g := diagnosis.Goodness(e, stats)
		es, ok := stats[e]
		if !ok {
			fmt.Fprintf(w, "  %-50s: goodness=%.3f (no stats)\n", e, g)
			continue
		}
		fmt.Fprintf(w, "  %-50s: goodness=%.3f (ef=%d, ep=%d, total=%d)\n", e, g, es.EF, es.EP, es.EF+es.EP)
	}
}

func statusColor(s tdp.Status) *color.Color {
	switch s {
	case tdp.StatusConverged:
		return color.New(color.FgGreen, color.Bold)
	case tdp.StatusInterrupted:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
