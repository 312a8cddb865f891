package solver

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/noah-isme/exam-scheduler/internal/csp"
)

type trailEntry struct {
	exam      int
	placement int
}

// worker owns a mutable copy of the search state. Workers only share the
// model and the counters in shared.
type worker struct {
	sh    *shared
	m     *csp.Model
	id    int
	count int

	assigned []int
	proctors [][]int
	alive    [][]bool
	size     []int
	trail    []trailEntry

	roomBusy    []*bitset.BitSet
	proctorBusy []*bitset.BitSet
	levelBusy   []*bitset.BitSet
	deptBusy    []*bitset.BitSet
	levelDemand []int
	deptDemand  []int
	demand      int
	roomFree    int

	cost  int64
	local int64
	root  int

	best     *csp.Solution
	bestCost int64
	bestRoot int
}

func newWorker(sh *shared, id, count int) *worker {
	m := sh.model
	n := len(m.Exams)
	w := &worker{
		sh:          sh,
		m:           m,
		id:          id,
		count:       count,
		assigned:    make([]int, n),
		proctors:    make([][]int, n),
		alive:       make([][]bool, n),
		size:        make([]int, n),
		roomBusy:    newBitsets(m.NumRooms, m.NumSlots),
		proctorBusy: newBitsets(m.NumProctors, m.NumSlots),
		levelBusy:   newBitsets(m.NumLevels, m.NumSlots),
		deptBusy:    newBitsets(m.NumDepts, m.NumSlots),
		levelDemand: make([]int, m.NumLevels),
		deptDemand:  make([]int, m.NumDepts),
		roomFree:    m.NumRooms * m.NumSlots,
	}
	for e, v := range m.Exams {
		w.assigned[e] = -1
		w.alive[e] = make([]bool, len(v.Placements))
		for i := range w.alive[e] {
			w.alive[e][i] = true
		}
		w.size[e] = len(v.Placements)
		w.levelDemand[v.Level] += v.SpanLen
		w.deptDemand[v.Department] += v.SpanLen
		w.demand += v.SpanLen
	}
	return w
}

func newBitsets(n, width int) []*bitset.BitSet {
	sets := make([]*bitset.BitSet, n)
	for i := range sets {
		sets[i] = bitset.New(uint(width))
	}
	return sets
}

// rootState applies the unit rules before any branching: placements that
// cannot be staffed are dropped, and an empty domain or an overloaded
// level/department group proves infeasibility outright.
func (w *worker) rootState() (*worker, bool) {
	for e, v := range w.m.Exams {
		for i, pl := range v.Placements {
			if len(pl.Proctors) < w.m.MinProctors {
				w.alive[e][i] = false
				w.size[e]--
			}
		}
		if w.size[e] == 0 {
			return w, false
		}
	}
	return w, w.groupsFit()
}

// fork copies the root domains into a fresh worker responsible for one
// partition of the first branching decision.
func (w *worker) fork(id, count int) *worker {
	f := newWorker(w.sh, id, count)
	for e := range w.alive {
		copy(f.alive[e], w.alive[e])
	}
	copy(f.size, w.size)
	return f
}

func (w *worker) run() {
	w.search(0)
}

// search explores the subtree below the current partial assignment. It
// returns false once the budget is exhausted.
func (w *worker) search(depth int) bool {
	e := w.selectExam()
	if e < 0 {
		w.record()
		return true
	}
	if !w.groupsFit() {
		return true
	}

	// cheapest completion of every other unassigned exam
	rest := w.lowerBound() - w.cost - w.minCost(e)
	for qi, alive := range w.alive[e] {
		if !alive {
			continue
		}
		if depth == 0 && qi%w.count != w.id {
			continue
		}
		if depth == 0 {
			w.root = qi
		}
		pl := &w.m.Exams[e].Placements[qi]
		bound := w.cost + pl.Cost + rest
		if !w.improves(bound) {
			// placements are ordered by cost, nothing later can do better
			break
		}

		free := w.freeProctorList(pl)
		stopped := false
		combinations(len(free), w.m.MinProctors, func(pick []int) bool {
			if !w.improves(bound) {
				return false
			}
			w.local++
			if w.sh.tick(w.local) {
				stopped = true
				return false
			}
			set := make([]int, len(pick))
			for i, k := range pick {
				set[i] = free[k]
			}
			w.assign(e, qi, set)
			mark, ok := w.prune(e)
			if ok && !w.search(depth+1) {
				stopped = true
			}
			w.undo(mark)
			w.unassign(e)
			return !stopped
		})
		if stopped {
			return false
		}
	}
	return true
}

// improves reports whether a branch with the given lower bound can still
// produce a solution worth keeping. The local incumbent cuts ties so the
// first solution found at a cost wins; the shared bound only cuts strictly
// worse branches so that tie-breaking between workers stays deterministic.
func (w *worker) improves(bound int64) bool {
	if w.best != nil && bound >= w.bestCost {
		return false
	}
	return bound <= w.sh.best.Load()
}

// selectExam picks the unassigned exam with the fewest remaining placements,
// preferring longer spans, then lower index.
func (w *worker) selectExam() int {
	best := -1
	for f := range w.m.Exams {
		if w.assigned[f] >= 0 {
			continue
		}
		if best < 0 || w.size[f] < w.size[best] ||
			(w.size[f] == w.size[best] && w.m.Exams[f].SpanLen > w.m.Exams[best].SpanLen) {
			best = f
		}
	}
	return best
}

func (w *worker) minCost(e int) int64 {
	for i, alive := range w.alive[e] {
		if alive {
			return w.m.Exams[e].Placements[i].Cost
		}
	}
	return 0
}

// lowerBound is the objective already committed plus the cheapest remaining
// placement of every unassigned exam.
func (w *worker) lowerBound() int64 {
	bound := w.cost
	for f := range w.m.Exams {
		if w.assigned[f] < 0 {
			bound += w.minCost(f)
		}
	}
	return bound
}

// groupsFit is a pigeonhole check: the exams still to place in one level or
// department need more free slots than that group has left, or all of them
// need more room-slots than remain.
func (w *worker) groupsFit() bool {
	for g, need := range w.levelDemand {
		if need > w.m.NumSlots-int(w.levelBusy[g].Count()) {
			return false
		}
	}
	for g, need := range w.deptDemand {
		if need > w.m.NumSlots-int(w.deptBusy[g].Count()) {
			return false
		}
	}
	return w.demand <= w.roomFree
}

func (w *worker) assign(e, qi int, proctors []int) {
	v := &w.m.Exams[e]
	pl := &v.Placements[qi]
	w.assigned[e] = qi
	w.proctors[e] = proctors
	w.roomBusy[pl.Room].InPlaceUnion(pl.Span)
	for _, p := range proctors {
		w.proctorBusy[p].InPlaceUnion(pl.Span)
	}
	w.levelBusy[v.Level].InPlaceUnion(pl.Span)
	w.deptBusy[v.Department].InPlaceUnion(pl.Span)
	w.levelDemand[v.Level] -= v.SpanLen
	w.deptDemand[v.Department] -= v.SpanLen
	w.demand -= v.SpanLen
	w.roomFree -= v.SpanLen
	w.cost += pl.Cost
}

// unassign reverses assign. Spans sharing a room, proctor, level or
// department never overlap, so set difference restores the busy masks.
func (w *worker) unassign(e int) {
	v := &w.m.Exams[e]
	pl := &v.Placements[w.assigned[e]]
	w.roomBusy[pl.Room].InPlaceDifference(pl.Span)
	for _, p := range w.proctors[e] {
		w.proctorBusy[p].InPlaceDifference(pl.Span)
	}
	w.levelBusy[v.Level].InPlaceDifference(pl.Span)
	w.deptBusy[v.Department].InPlaceDifference(pl.Span)
	w.levelDemand[v.Level] += v.SpanLen
	w.deptDemand[v.Department] += v.SpanLen
	w.demand += v.SpanLen
	w.roomFree += v.SpanLen
	w.cost -= pl.Cost
	w.assigned[e] = -1
	w.proctors[e] = nil
}

// prune removes every placement of an unassigned exam that overlaps exam e's
// new span and collides with it on room, level or department, or that no
// longer has enough free proctors. It returns the trail mark to undo to.
func (w *worker) prune(e int) (int, bool) {
	mark := len(w.trail)
	pl := &w.m.Exams[e].Placements[w.assigned[e]]
	for f := range w.m.Exams {
		if w.assigned[f] >= 0 {
			continue
		}
		conflicting := w.m.Conflicting(e, f)
		for qi, alive := range w.alive[f] {
			if !alive {
				continue
			}
			q := &w.m.Exams[f].Placements[qi]
			if q.Span.IntersectionCardinality(pl.Span) == 0 {
				continue
			}
			if conflicting || q.Room == pl.Room || !w.staffable(q) {
				w.alive[f][qi] = false
				w.size[f]--
				w.trail = append(w.trail, trailEntry{exam: f, placement: qi})
			}
		}
		if w.size[f] == 0 {
			return mark, false
		}
	}
	return mark, true
}

func (w *worker) undo(mark int) {
	for len(w.trail) > mark {
		last := w.trail[len(w.trail)-1]
		w.trail = w.trail[:len(w.trail)-1]
		w.alive[last.exam][last.placement] = true
		w.size[last.exam]++
	}
}

func (w *worker) staffable(pl *csp.Placement) bool {
	free := 0
	for _, p := range pl.Proctors {
		if w.proctorBusy[p].IntersectionCardinality(pl.Span) == 0 {
			free++
			if free >= w.m.MinProctors {
				return true
			}
		}
	}
	return false
}

func (w *worker) freeProctorList(pl *csp.Placement) []int {
	free := make([]int, 0, len(pl.Proctors))
	for _, p := range pl.Proctors {
		if w.proctorBusy[p].IntersectionCardinality(pl.Span) == 0 {
			free = append(free, p)
		}
	}
	return free
}

func (w *worker) record() {
	if w.best != nil && w.cost >= w.bestCost {
		return
	}
	sol := &csp.Solution{
		Placements: make([]int, len(w.assigned)),
		Proctors:   make([][]int, len(w.proctors)),
		Objective:  w.cost,
	}
	copy(sol.Placements, w.assigned)
	for e, set := range w.proctors {
		sol.Proctors[e] = append([]int(nil), set...)
	}
	w.best = sol
	w.bestCost = w.cost
	w.bestRoot = w.root
	w.sh.offer(w.cost)
}

// combinations calls fn with every k-subset of 0..n-1 in lexicographic order
// until fn returns false.
func combinations(n, k int, fn func(pick []int) bool) {
	if k <= 0 || k > n {
		return
	}
	pick := make([]int, k)
	for i := range pick {
		pick[i] = i
	}
	for {
		if !fn(pick) {
			return
		}
		i := k - 1
		for i >= 0 && pick[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		pick[i]++
		for j := i + 1; j < k; j++ {
			pick[j] = pick[j-1] + 1
		}
	}
}
