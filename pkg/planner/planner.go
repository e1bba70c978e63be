// Package planner chooses which test to run next. It scores every candidate
// by the expected reduction in diagnosis entropy and picks the best one.
package planner

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures a Planner.
type Options struct {
	// Workers bounds how many candidates are evaluated at once. Zero means
	// runtime.NumCPU().
	Workers int
	// Rand picks a test when there are no statistics to reason with.
	Rand *rand.Rand
	// Logger receives debug output. Nil means no logging.
	Logger *zap.Logger
}

// Gain is the information gain computed for one candidate test.
type Gain struct {
	Test            string  `json:"test"`
	InfoGain        float64 `json:"info_gain"`
	PassProbability float64 `json:"pass_probability"`
}

// Selection is the outcome of SelectBest.
type Selection struct {
	Test           AvailableTest `json:"test"`
	InfoGain       float64       `json:"info_gain"`
	CurrentEntropy float64       `json:"current_entropy"`
	// Gains holds one entry per candidate in input order. Empty when Random.
	Gains  []Gain `json:"gains,omitempty"`
	Random bool   `json:"random"`
}

// Planner selects tests against a fixed set of element statistics.
type Planner struct {
	stats   coverage.Stats
	workers int
	rng     *rand.Rand
	log     *zap.Logger
}

// New returns a Planner for stats.
func New(stats coverage.Stats, opts Options) *Planner {
	p := &Planner{
		stats:   stats,
		workers: opts.Workers,
		rng:     opts.Rand,
		log:     opts.Logger,
	}
	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// SelectBest returns the candidate with the greatest expected information
// gain. The first candidate wins ties. It returns nil when there are no
// candidates or at most one diagnosis, since nothing is left to separate.
func (p *Planner) SelectBest(ctx context.Context, tests []AvailableTest, ds []diagnosis.Diagnosis) (*Selection, error) {
	if len(tests) == 0 || len(ds) <= 1 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current := Entropy(ds)
	if !loaded(p.stats) {
		i := p.rng.IntN(len(tests))
		p.log.Debug("no statistics, selecting test at random", zap.String("test", tests[i].Name))
		return &Selection{Test: tests[i], CurrentEntropy: current, Random: true}, nil
	}

	gains := make([]Gain, len(tests))
	var fallbacks atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range tests {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			gain, fb := informationGain(tests[i], ds, p.stats, current)
			fallbacks.Add(int64(fb))
			gains[i] = Gain{
				Test:            tests[i].Name,
				InfoGain:        gain,
				PassProbability: EstimatePassProbability(tests[i], ds, p.stats),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if n := fallbacks.Load(); n > 0 {
		p.log.Debug("all diagnoses pruned in simulated update, used uniform fallback",
			zap.Int64("count", n))
	}

	best := 0
	for i := 1; i < len(gains); i++ {
		if gains[i].InfoGain > gains[best].InfoGain {
			best = i
		}
	}

	p.log.Debug("selected test",
		zap.String("test", tests[best].Name),
		zap.Float64("info_gain", gains[best].InfoGain),
		zap.Float64("entropy", current),
		zap.Int("candidates", len(tests)))

	return &Selection{
		Test:           tests[best],
		InfoGain:       gains[best].InfoGain,
		CurrentEntropy: current,
		Gains:          gains,
	}, nil
}

// loaded reports whether stats carries at least one observation.
func loaded(stats coverage.Stats) bool {
	for _, es := range stats {
		if es.Total() > 0 {
			return true
		}
	}
	return false
}
