package diagnosis

import (
	"context"
	"errors"
	"runtime"
	"sort"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"golang.org/x/sync/errgroup"
)

// Defaults for Options fields left at zero.
const (
	DefaultMaxDiagnoses  = 20
	DefaultMaxCandidates = 10000
)

// errCandidateLimit stops the search once enough candidates were collected.
var errCandidateLimit = errors.New("candidate limit reached")

// Options bounds the hitting-set search.
//
// The search is a deliberate approximation: it enumerates minimal hitting
// sets smallest-first and stops at MaxCardinality or after MaxCandidates
// sets, so only the highest-ranked prefix of a very large family is scored.
type Options struct {
	// MaxDiagnoses is how many ranked diagnoses are kept (top-K).
	MaxDiagnoses int
	// MaxCardinality caps diagnosis size. Zero means the number of
	// conflicts, which no minimal hitting set can exceed.
	MaxCardinality int
	// MaxCandidates caps how many minimal hitting sets are enumerated.
	MaxCandidates int
	// Workers bounds scoring parallelism. Zero means runtime.NumCPU().
	Workers int
}

func (o Options) withDefaults(numConflicts int) Options {
	if o.MaxDiagnoses <= 0 {
		o.MaxDiagnoses = DefaultMaxDiagnoses
	}
	if o.MaxCardinality <= 0 || o.MaxCardinality > numConflicts {
		o.MaxCardinality = numConflicts
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// Compute enumerates minimal hitting sets over conflicts, scores each with
// Score, ranks them and returns the top MaxDiagnoses with probabilities
// renormalized to sum to 1.
//
// Ranking is by score descending, then cardinality ascending, then the
// lexicographic order of the sorted components, so identical input always
// yields identical output. No conflicts means no fault evidence and yields
// an empty list.
func Compute(ctx context.Context, conflicts []Conflict, stats coverage.Stats, opts Options) ([]Diagnosis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conflicts = nonEmpty(conflicts)
	if len(conflicts) == 0 {
		return []Diagnosis{}, nil
	}
	opts = opts.withDefaults(len(conflicts))

	candidates, err := enumerate(ctx, conflicts, opts)
	if err != nil {
		return nil, err
	}

	scored, err := scoreAll(ctx, candidates, stats, opts.Workers)
	if err != nil {
		return nil, err
	}

	Rank(scored)
	if len(scored) > opts.MaxDiagnoses {
		scored = scored[:opts.MaxDiagnoses]
	}
	Normalize(scored)
	return scored, nil
}

// Score is the un-normalized posterior weight of a diagnosis: the product of
// (1 - goodness) over its components.
func Score(components []string, stats coverage.Stats) float64 {
	s := 1.0
	for _, e := range components {
		s *= 1 - Goodness(e, stats)
	}
	return s
}

// Rank sorts ds by probability descending, cardinality ascending, then key.
func Rank(ds []Diagnosis) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Probability != b.Probability {
			return a.Probability > b.Probability
		}
		if len(a.Components) != len(b.Components) {
			return len(a.Components) < len(b.Components)
		}
		return a.Key() < b.Key()
	})
}

// Normalize rescales probabilities to sum to 1. A list whose weights sum to
// zero becomes uniform.
func Normalize(ds []Diagnosis) {
	if len(ds) == 0 {
		return
	}
	total := TotalProbability(ds)
	for i := range ds {
		if total > 0 {
			ds[i].Probability /= total
		} else {
			ds[i].Probability = 1 / float64(len(ds))
		}
	}
}

func nonEmpty(conflicts []Conflict) []Conflict {
	out := make([]Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		if len(c.Elements) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func scoreAll(ctx context.Context, candidates [][]string, stats coverage.Stats, workers int) ([]Diagnosis, error) {
	out := make([]Diagnosis, len(candidates))
	if len(candidates) == 0 {
		return out, nil
	}

	chunk := (len(candidates) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(candidates); start += chunk {
		end := min(start+chunk, len(candidates))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				d := New(0, candidates[i]...)
				d.Probability = Score(d.Components, stats)
				out[i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// searcher runs the cardinality-first branch-and-bound enumeration.
type searcher struct {
	ctx       context.Context
	conflicts []Conflict
	branches  [][]string
	accepted  [][]string
	seen      map[string]struct{}
	limit     int
	visited   int
}

func enumerate(ctx context.Context, conflicts []Conflict, opts Options) ([][]string, error) {
	s := &searcher{
		ctx:       ctx,
		conflicts: conflicts,
		branches:  make([][]string, len(conflicts)),
		seen:      make(map[string]struct{}),
		limit:     opts.MaxCandidates,
	}
	for i, c := range conflicts {
		s.branches[i] = c.Elements.Sorted()
	}

	for depth := 1; depth <= opts.MaxCardinality; depth++ {
		err := s.search(nil, depth)
		if errors.Is(err, errCandidateLimit) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return s.accepted, nil
}

// search extends partial by branching on the elements of the first conflict
// it does not hit, up to depth elements.
func (s *searcher) search(partial []string, depth int) error {
	s.visited++
	if s.visited%1024 == 0 {
		if err := s.ctx.Err(); err != nil {
			return err
		}
	}

	next := s.firstUnhit(partial)
	if next < 0 {
		return s.accept(partial)
	}
	if len(partial) == depth {
		return nil
	}

	for _, e := range s.branches[next] {
		candidate := append(append(make([]string, 0, len(partial)+1), partial...), e)
		if s.extendsAccepted(candidate) {
			continue
		}
		if err := s.search(candidate, depth); err != nil {
			return err
		}
	}
	return nil
}

func (s *searcher) firstUnhit(partial []string) int {
	for i, c := range s.conflicts {
		hit := false
		for _, e := range partial {
			if c.Elements.Has(e) {
				hit = true
				break
			}
		}
		if !hit {
			return i
		}
	}
	return -1
}

func (s *searcher) accept(partial []string) error {
	d := New(0, partial...)
	key := d.Key()
	if _, dup := s.seen[key]; dup {
		return nil
	}
	s.seen[key] = struct{}{}
	if s.extendsAccepted(d.Components) || !IsMinimal(d.Components, s.conflicts) {
		return nil
	}

	s.accepted = append(s.accepted, d.Components)
	if len(s.accepted) >= s.limit {
		return errCandidateLimit
	}
	return nil
}

// extendsAccepted reports whether set contains every element of an accepted
// diagnosis, which makes any completion of it non-minimal.
func (s *searcher) extendsAccepted(set []string) bool {
	for _, a := range s.accepted {
		if len(a) > len(set) {
			continue
		}
		if containsAll(set, a) {
			return true
		}
	}
	return false
}

func containsAll(set, sub []string) bool {
	for _, x := range sub {
		found := false
		for _, y := range set {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
