package tdp

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds a session when Config.MaxIterations is zero.
const DefaultMaxIterations = 10

// Status is how a session ended.
type Status string

const (
	// StatusConverged means a single diagnosis dominates.
	StatusConverged Status = "converged"
	// StatusNoEvidence means no observed test failed.
	StatusNoEvidence Status = "no_evidence"
	// StatusExhausted means no test was left to run.
	StatusExhausted Status = "exhausted"
	// StatusBudgetExceeded means MaxIterations tests ran without convergence.
	StatusBudgetExceeded Status = "budget_exceeded"
	// StatusInterrupted means the oracle failed or the context ended.
	StatusInterrupted Status = "interrupted"
)

// Config tunes a Runner. Zero values select defaults.
type Config struct {
	MaxIterations        int
	MaxDiagnoses         int
	MaxCardinality       int
	MaxCandidates        int
	ConvergenceThreshold float64
	Workers              int
	// TestTimeout bounds each oracle call. Zero means no limit.
	TestTimeout time.Duration
	// Rand drives the random fallback of the planner.
	Rand *rand.Rand
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        DefaultMaxIterations,
		MaxDiagnoses:         diagnosis.DefaultMaxDiagnoses,
		MaxCandidates:        diagnosis.DefaultMaxCandidates,
		ConvergenceThreshold: planner.DefaultConvergenceThreshold,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxDiagnoses <= 0 {
		c.MaxDiagnoses = d.MaxDiagnoses
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.ConvergenceThreshold <= 0 {
		c.ConvergenceThreshold = d.ConvergenceThreshold
	}
	return c
}

// DiagnosisOptions returns the hitting-set bounds of c.
func (c Config) DiagnosisOptions() diagnosis.Options {
	return diagnosis.Options{
		MaxDiagnoses:   c.MaxDiagnoses,
		MaxCardinality: c.MaxCardinality,
		MaxCandidates:  c.MaxCandidates,
		Workers:        c.Workers,
	}
}

// Outcome is the result of a session.
type Outcome struct {
	SessionID  string                `json:"session_id"`
	Status     Status                `json:"status"`
	Iterations int                   `json:"iterations"`
	Diagnoses  []diagnosis.Diagnosis `json:"diagnoses"`
	Best       *diagnosis.Diagnosis  `json:"best,omitempty"`
	Statistics planner.Statistics    `json:"statistics"`
	Executed   []TestResult          `json:"executed"`
	// BestEffort is true unless the session converged.
	BestEffort bool   `json:"best_effort"`
	Error      string `json:"error,omitempty"`
	// Err is the oracle or context error behind StatusInterrupted.
	Err error `json:"-"`
	// State is the final session state.
	State State `json:"-"`
}

// Runner drives the Diagnose, Plan, Test, Update cycle.
type Runner struct {
	Oracle   Oracle
	Observer Observer
	Logger   *zap.Logger
	Config   Config
}

// session carries the per-run bookkeeping of Run.
type session struct {
	*Runner
	id  string
	cfg Config
	log *zap.Logger
}

// Run executes a session starting from st. It returns an error only when
// the session cannot start; every terminal condition, including oracle
// failures and cancellation, is reported through the Outcome.
func (r *Runner) Run(ctx context.Context, st State) (*Outcome, error) {
	if r.Oracle == nil {
		return nil, fmt.Errorf("%w: no oracle", ErrConfig)
	}
	if !st.Valid() {
		return nil, fmt.Errorf("%w: state was not built with NewState", ErrConfig)
	}

	s := &session{Runner: r, id: uuid.NewString(), cfg: r.Config.withDefaults(), log: r.Logger}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.With(zap.String("session", s.id))

	s.emit(Event{
		Type:          EventSessionStart,
		MaxIterations: s.cfg.MaxIterations,
		Observed:      len(st.observed),
		Pool:          len(st.pool),
	})
	s.log.Info("session started",
		zap.Int("observed", len(st.observed)),
		zap.Int("pool", len(st.pool)),
		zap.Int("max_iterations", s.cfg.MaxIterations))

	var ds []diagnosis.Diagnosis
	for iter := 1; iter <= s.cfg.MaxIterations; iter++ {
		next, err := Diagnose(ctx, st, s.cfg.DiagnosisOptions())
		if err != nil {
			// Keep the last complete diagnosis as the best-effort answer.
			return s.finish(st, iter-1, ds, StatusInterrupted, err), nil
		}
		ds = next
		stats := planner.Summarize(ds, s.cfg.ConvergenceThreshold)
		s.emit(Event{
			Type:       EventDiagnose,
			Iteration:  iter,
			Entropy:    stats.Entropy,
			Diagnoses:  diagnosis.CloneAll(ds),
			Statistics: &stats,
		})

		switch {
		case len(ds) == 0:
			return s.finish(st, iter-1, ds, StatusNoEvidence, nil), nil
		case stats.Complete:
			return s.finish(st, iter-1, ds, StatusConverged, nil), nil
		}

		sel, err := planner.New(st.stats, planner.Options{
			Workers: s.cfg.Workers,
			Rand:    s.cfg.Rand,
			Logger:  s.log,
		}).SelectBest(ctx, st.pool, ds)
		if err != nil {
			return s.finish(st, iter-1, ds, StatusInterrupted, err), nil
		}
		if sel == nil {
			return s.finish(st, iter-1, ds, StatusExhausted, nil), nil
		}
		s.emit(Event{
			Type:      EventPlan,
			Iteration: iter,
			Entropy:   sel.CurrentEntropy,
			Test:      sel.Test.Name,
			InfoGain:  sel.InfoGain,
			Gains:     sel.Gains,
			Random:    sel.Random,
			Pool:      len(st.pool),
		})

		res, err := s.execute(ctx, sel.Test)
		if err != nil {
			s.log.Warn("oracle failed", zap.String("test", sel.Test.Name), zap.Error(err))
			return s.finish(st, iter-1, ds, StatusInterrupted, err), nil
		}
		passed := res.Passed
		s.emit(Event{Type: EventTest, Iteration: iter, Test: res.Name, Passed: &passed})

		st = st.Apply(res)
		s.emit(Event{
			Type:      EventUpdate,
			Iteration: iter,
			Test:      res.Name,
			Observed:  len(st.observed),
			Pool:      len(st.pool),
		})
	}

	final, err := Diagnose(ctx, st, s.cfg.DiagnosisOptions())
	if err != nil {
		return s.finish(st, s.cfg.MaxIterations, ds, StatusInterrupted, err), nil
	}
	ds = final
	status := StatusBudgetExceeded
	switch {
	case len(ds) == 0:
		status = StatusNoEvidence
	case planner.Summarize(ds, s.cfg.ConvergenceThreshold).Complete:
		status = StatusConverged
	}
	return s.finish(st, s.cfg.MaxIterations, ds, status, nil), nil
}

func (s *session) execute(ctx context.Context, test planner.AvailableTest) (TestResult, error) {
	if s.cfg.TestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TestTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.Oracle.Execute(ctx, test)
	if err != nil {
		return TestResult{}, fmt.Errorf("failed to execute %s: %w", test.Name, err)
	}
	if res.Name != "" && res.Name != test.Name {
		s.log.Warn("oracle reported a different test name",
			zap.String("test", test.Name),
			zap.String("reported", res.Name))
	}
	res.Name = test.Name
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return res, nil
}

func (s *session) finish(st State, iterations int, ds []diagnosis.Diagnosis, status Status, err error) *Outcome {
	if ds == nil {
		ds = []diagnosis.Diagnosis{}
	}
	stats := planner.Summarize(ds, s.cfg.ConvergenceThreshold)
	out := &Outcome{
		SessionID:  s.id,
		Status:     status,
		Iterations: iterations,
		Diagnoses:  ds,
		Best:       stats.MostLikely,
		Statistics: stats,
		Executed:   st.Results(),
		BestEffort: status != StatusConverged,
		Err:        err,
		State:      st,
	}
	if err != nil {
		out.Error = err.Error()
	}

	s.log.Info("session finished",
		zap.String("status", string(status)),
		zap.Int("iterations", iterations),
		zap.Int("diagnoses", len(ds)),
		zap.Float64("entropy", stats.Entropy))
	s.emit(Event{Type: EventDone, Iteration: iterations, Entropy: stats.Entropy, Outcome: out})
	return out
}

func (s *session) emit(ev Event) {
	if s.Observer == nil {
		return
	}
	ev.SessionID = s.id
	ev.Time = time.Now()
	s.Observer.Emit(ev)
}
