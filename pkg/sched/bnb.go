package sched

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"
)

const (
	// DefaultTimeLimit is the search budget when BranchAndBound.TimeLimit is
	// zero.
	DefaultTimeLimit = 100 * time.Second

	// DefaultLPMaxCells caps the dense constraint matrix of the root LP
	// relaxation.
	DefaultLPMaxCells = 4 << 20
)

// BranchAndBound is a depth-first branch and bound engine.
//
// Intervals are decided one at a time, forced intervals first and then by
// earliest start. Each interval tries its candidate starts before being left
// absent. Candidate starts are the earliest start, the latest start and the
// ends of already placed intervals in between, so schedules are
// left-justified. A node is pruned when the intervals placed plus the
// undecided intervals that still fit cannot beat the incumbent. The root
// bound also uses an LP relaxation of the fixed-start intervals.
//
// Optimality is claimed when the search completes over intervals whose start
// is fixed, or when the incumbent meets the root bound.
type BranchAndBound struct {
	// TimeLimit bounds the wall-clock search. Zero means DefaultTimeLimit.
	TimeLimit time.Duration

	// LPMaxCells caps the LP relaxation size. Zero means DefaultLPMaxCells;
	// negative disables the LP.
	LPMaxCells int

	// Logger is optional. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Solve implements Solver.
func (b *BranchAndBound) Solve(ctx context.Context, m *Model) (*Solution, error) {
	began := time.Now()
	if err := m.Validate(); err != nil {
		return &Solution{Status: ModelInvalid}, err
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := b.TimeLimit
	if limit <= 0 {
		limit = DefaultTimeLimit
	}
	cells := b.LPMaxCells
	if cells == 0 {
		cells = DefaultLPMaxCells
	}

	s := newSearch(ctx, m, began.Add(limit))
	s.bound = s.aliveLeft
	if cells > 0 && s.forcedDead == 0 {
		if lpb, ok := s.lpBound(cells); ok {
			logger.Debug("sched: lp relaxation", "bound", lpb, "intervals", len(m.Intervals))
			s.bound = min(s.bound, lpb)
		}
	}
	s.dfs(0)

	sol := s.solution()
	sol.Elapsed = time.Since(began)
	logger.Debug("sched: search finished",
		"status", sol.Status.String(),
		"objective", sol.Objective,
		"bound", sol.Bound,
		"nodes", sol.Nodes,
		"elapsed", sol.Elapsed)
	return sol, nil
}

type member struct {
	c      int
	demand int64
}

type span struct {
	start, end, demand int64
}

type search struct {
	m        *Model
	ctx      context.Context
	deadline time.Time

	lo, hi    []int64
	members   [][]member
	neighbors [][]int
	order     []int
	rank      []int
	allFixed  bool

	alive      []bool
	aliveLeft  int
	forcedDead int

	present []bool
	start   []int64
	placed  [][]span
	count   int

	best        int
	bestPresent []bool
	bestStart   []int64
	bound       int

	rootDead bool

	nodes   int64
	stopped bool
	proven  bool
	scratch []span
}

func newSearch(ctx context.Context, m *Model, deadline time.Time) *search {
	n := len(m.Intervals)
	s := &search{
		m:        m,
		ctx:      ctx,
		deadline: deadline,
		lo:       make([]int64, n),
		hi:       make([]int64, n),
		members:  make([][]member, n),
		rank:     make([]int, n),
		alive:    make([]bool, n),
		present:  make([]bool, n),
		start:    make([]int64, n),
		placed:   make([][]span, len(m.Cumulatives)),
		allFixed: true,
		best:     -1,
	}
	for i := range m.Intervals {
		s.lo[i], s.hi[i] = m.Intervals[i].window()
		if s.lo[i] < s.hi[i] {
			s.allFixed = false
		}
	}
	for c, cu := range m.Cumulatives {
		for k, i := range cu.Intervals {
			s.members[i] = append(s.members[i], member{c, cu.Demands[k]})
		}
	}

	for i := range m.Intervals {
		ok := s.lo[i] <= s.hi[i]
		for _, mem := range s.members[i] {
			if s.consumes(i, mem) && mem.demand > m.Cumulatives[mem.c].CapacityMax {
				ok = false
			}
		}
		s.alive[i] = ok
		if ok {
			s.aliveLeft++
		} else if s.forced(i) {
			s.forcedDead++
		}
	}

	s.order = make([]int, n)
	for i := range s.order {
		s.order[i] = i
	}
	slices.SortStableFunc(s.order, func(a, b int) int {
		if fa, fb := s.forced(a), s.forced(b); fa != fb {
			if fa {
				return -1
			}
			return 1
		}
		return cmp.Compare(s.lo[a], s.lo[b])
	})
	for k, i := range s.order {
		s.rank[i] = k
	}
	s.neighbors = s.findNeighbors()
	s.rootDead = s.forcedDead > 0
	return s
}

func (s *search) forced(i int) bool {
	return s.m.Intervals[i].Presence == Forced
}

func (s *search) consumes(i int, mem member) bool {
	return mem.demand > 0 && s.m.Intervals[i].Duration > 0
}

// findNeighbors lists, per interval, the intervals sharing a cumulative whose
// reachable ranges overlap. Only neighbors can change whether an interval
// still fits.
func (s *search) findNeighbors() [][]int {
	n := len(s.m.Intervals)
	sets := make([]map[int]struct{}, n)
	reach := func(i int) (int64, int64) {
		return s.lo[i], s.hi[i] + s.m.Intervals[i].Duration
	}
	for _, cu := range s.m.Cumulatives {
		for a := 0; a < len(cu.Intervals); a++ {
			i := cu.Intervals[a]
			ilo, ihi := reach(i)
			for b := a + 1; b < len(cu.Intervals); b++ {
				j := cu.Intervals[b]
				jlo, jhi := reach(j)
				if ilo >= jhi || jlo >= ihi {
					continue
				}
				if sets[i] == nil {
					sets[i] = make(map[int]struct{})
				}
				if sets[j] == nil {
					sets[j] = make(map[int]struct{})
				}
				sets[i][j] = struct{}{}
				sets[j][i] = struct{}{}
			}
		}
	}
	out := make([][]int, n)
	for i, set := range sets {
		for j := range set {
			out[i] = append(out[i], j)
		}
		slices.Sort(out[i])
	}
	return out
}

func (s *search) halted() bool {
	if s.stopped || s.proven {
		return true
	}
	if s.nodes&255 == 0 {
		if time.Now().After(s.deadline) || s.ctx.Err() != nil {
			s.stopped = true
		}
	}
	return s.stopped
}

func (s *search) dfs(k int) {
	if s.halted() {
		return
	}
	s.nodes++
	if s.forcedDead > 0 {
		return
	}
	if s.best >= 0 && s.count+s.aliveLeft <= s.best {
		return
	}
	if k == len(s.order) {
		s.record()
		return
	}

	i := s.order[k]
	if !s.alive[i] {
		s.dfs(k + 1)
		return
	}
	s.aliveLeft--
	for _, st := range s.candidates(i) {
		if !s.fitsAt(i, st) {
			continue
		}
		killed := s.place(i, st)
		s.dfs(k + 1)
		s.unplace(i, killed)
		if s.halted() {
			break
		}
	}
	if !s.forced(i) && !s.halted() {
		s.dfs(k + 1)
	}
	s.aliveLeft++
}

// candidates returns the start values tried for interval i.
func (s *search) candidates(i int) []int64 {
	lo, hi := s.lo[i], s.hi[i]
	if lo == hi {
		return []int64{lo}
	}
	out := []int64{lo}
	for _, mem := range s.members[i] {
		for _, sp := range s.placed[mem.c] {
			if sp.end > lo && sp.end < hi {
				out = append(out, sp.end)
			}
		}
	}
	out = append(out, hi)
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *search) fitsAt(i int, st int64) bool {
	end := st + s.m.Intervals[i].Duration
	for _, mem := range s.members[i] {
		if !s.consumes(i, mem) {
			continue
		}
		if s.peak(s.placed[mem.c], st, end)+mem.demand > s.m.Cumulatives[mem.c].CapacityMax {
			return false
		}
	}
	return true
}

func (s *search) canFit(i int) bool {
	for _, st := range s.candidates(i) {
		if s.fitsAt(i, st) {
			return true
		}
	}
	return false
}

// peak returns the highest summed demand of spans over [from, to).
func (s *search) peak(spans []span, from, to int64) int64 {
	over := s.scratch[:0]
	for _, sp := range spans {
		if sp.start < to && sp.end > from {
			over = append(over, sp)
		}
	}
	s.scratch = over
	var best int64
	at := func(t int64) {
		var sum int64
		for _, sp := range over {
			if sp.start <= t && t < sp.end {
				sum += sp.demand
			}
		}
		best = max(best, sum)
	}
	at(from)
	for _, sp := range over {
		if sp.start > from {
			at(sp.start)
		}
	}
	return best
}

// place makes interval i present at st and returns the undecided neighbors
// that no longer fit.
func (s *search) place(i int, st int64) []int {
	s.present[i] = true
	s.start[i] = st
	s.count++
	end := st + s.m.Intervals[i].Duration
	for _, mem := range s.members[i] {
		if s.consumes(i, mem) {
			s.placed[mem.c] = append(s.placed[mem.c], span{st, end, mem.demand})
		}
	}

	var killed []int
	for _, j := range s.neighbors[i] {
		if s.rank[j] <= s.rank[i] || !s.alive[j] {
			continue
		}
		if !s.canFit(j) {
			s.alive[j] = false
			s.aliveLeft--
			if s.forced(j) {
				s.forcedDead++
			}
			killed = append(killed, j)
		}
	}
	return killed
}

func (s *search) unplace(i int, killed []int) {
	for _, j := range killed {
		s.alive[j] = true
		s.aliveLeft++
		if s.forced(j) {
			s.forcedDead--
		}
	}
	for _, mem := range s.members[i] {
		if s.consumes(i, mem) {
			s.placed[mem.c] = s.placed[mem.c][:len(s.placed[mem.c])-1]
		}
	}
	s.present[i] = false
	s.count--
}

func (s *search) record() {
	if s.count <= s.best {
		return
	}
	s.best = s.count
	s.bestPresent = slices.Clone(s.present)
	s.bestStart = slices.Clone(s.start)
	if s.best >= s.bound {
		s.proven = true
	}
}

func (s *search) solution() *Solution {
	sol := &Solution{
		Objective: max(s.best, 0),
		Bound:     s.bound,
		Nodes:     s.nodes,
	}
	complete := !s.stopped
	switch {
	case s.best >= 0 && (s.proven || complete && s.allFixed):
		sol.Status = Optimal
		sol.Bound = s.best
	case s.best >= 0:
		sol.Status = Feasible
	case complete && (s.allFixed || s.rootDead):
		sol.Status = Infeasible
		sol.Bound = 0
	default:
		sol.Status = Unknown
	}
	if !sol.Status.HasSchedule() {
		return sol
	}

	sol.Present = s.bestPresent
	sol.Start = make([]int64, len(s.bestStart))
	for i, p := range sol.Present {
		if p {
			sol.Start[i] = s.bestStart[i]
		}
	}
	sol.Capacity = usedCapacity(s.m, sol.Present, sol.Start)
	return sol
}
