// Package solver searches a csp.Model for an objective-minimal assignment.
//
// The search is a depth-first branch and bound with forward checking. Exams
// are branched on in smallest-domain-first order; every value is a placement
// plus a proctor set. After each decision the candidate placements of the
// remaining exams that can no longer coexist with it are pruned, and a branch
// is abandoned as soon as a domain empties, a level/department/room group runs
// out of free slots, or its objective lower bound cannot beat the incumbent.
package solver

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/sourcegraph/conc/pool"

	"github.com/noah-isme/exam-scheduler/internal/csp"
)

// Verdict is the outcome of a search.
type Verdict int

const (
	// Optimal means the search space was exhausted and the solution is minimal.
	Optimal Verdict = iota + 1
	// Feasible means the budget ran out after at least one solution was found.
	Feasible
	// Infeasible means the search space was exhausted without a solution.
	Infeasible
	// BudgetExceeded means the budget ran out before any solution was found.
	BudgetExceeded
)

func (v Verdict) String() string {
	switch v {
	case Optimal:
		return "OPTIMAL"
	case Feasible:
		return "FEASIBLE"
	case Infeasible:
		return "INFEASIBLE"
	case BudgetExceeded:
		return "BUDGET_EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// Solved reports whether the verdict carries a solution.
func (v Verdict) Solved() bool {
	return v == Optimal || v == Feasible
}

// Options bound the search. Zero values mean no limit for the budgets and a
// single worker.
type Options struct {
	TimeLimit time.Duration
	MaxNodes  int64
	Workers   int
}

// Result is what a search returns. Solution and Assignment are nil unless the
// verdict is Optimal or Feasible.
type Result struct {
	Verdict    Verdict
	Solution   *csp.Solution
	Assignment *bitset.BitSet
	Objective  int64
	Nodes      int64
	Elapsed    time.Duration
}

const checkpointEvery = 64

// Solve runs the search. It never fails: malformed models are a builder bug
// and budgets only change the verdict. Cancelling ctx stops the search at the
// next checkpoint and returns the best solution found so far.
func Solve(ctx context.Context, model *csp.Model, opts Options) Result {
	started := time.Now()
	if model.Empty() {
		sol := &csp.Solution{}
		return Result{Verdict: Optimal, Solution: sol, Assignment: bitset.New(0), Elapsed: time.Since(started)}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	sh := &shared{
		ctx:      ctx,
		model:    model,
		maxNodes: opts.MaxNodes,
	}
	sh.best.Store(math.MaxInt64)
	if opts.TimeLimit > 0 {
		sh.deadline = started.Add(opts.TimeLimit)
	}
	if ctx.Err() != nil {
		sh.stopped.Store(true)
	}

	root, ok := newWorker(sh, 0, 1).rootState()
	if !ok {
		return Result{Verdict: Infeasible, Elapsed: time.Since(started)}
	}

	searchers := make([]*worker, workers)
	for i := range searchers {
		searchers[i] = root.fork(i, workers)
	}

	if workers == 1 {
		searchers[0].run()
	} else {
		p := pool.New().WithMaxGoroutines(workers)
		for _, w := range searchers {
			w := w
			p.Go(w.run)
		}
		p.Wait()
	}

	var best *worker
	for _, w := range searchers {
		if w.best == nil {
			continue
		}
		// equal objectives go to the earliest root placement, which is the
		// solution a single worker would have found first
		if best == nil || w.bestCost < best.bestCost ||
			(w.bestCost == best.bestCost && w.bestRoot < best.bestRoot) {
			best = w
		}
	}

	res := Result{Nodes: sh.nodes.Load(), Elapsed: time.Since(started)}
	complete := !sh.stopped.Load()
	switch {
	case best != nil && complete:
		res.Verdict = Optimal
	case best != nil:
		res.Verdict = Feasible
	case complete:
		res.Verdict = Infeasible
	default:
		res.Verdict = BudgetExceeded
	}
	if best != nil {
		res.Solution = best.best
		res.Objective = best.bestCost
		res.Assignment = model.Encode(*best.best)
	}
	return res
}

// shared is the only state workers have in common besides the read-only model.
type shared struct {
	ctx      context.Context
	model    *csp.Model
	maxNodes int64
	deadline time.Time

	nodes   atomic.Int64
	best    atomic.Int64
	stopped atomic.Bool
}

// offer publishes an objective, keeping only strictly better values.
func (s *shared) offer(cost int64) {
	for {
		current := s.best.Load()
		if cost >= current {
			return
		}
		if s.best.CompareAndSwap(current, cost) {
			return
		}
	}
}

// tick counts a node and reports whether the search must stop.
func (s *shared) tick(local int64) bool {
	if s.stopped.Load() {
		return true
	}
	n := s.nodes.Add(1)
	if s.maxNodes > 0 && n > s.maxNodes {
		s.stopped.Store(true)
		return true
	}
	if local%checkpointEvery == 0 {
		if s.ctx.Err() != nil || (!s.deadline.IsZero() && time.Now().After(s.deadline)) {
			s.stopped.Store(true)
			return true
		}
	}
	return false
}
