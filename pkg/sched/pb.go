package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/crillab/gophersat/solver"
)

// PseudoBoolean solves models in which every admissible interval has a fixed
// start, using the gophersat pseudo-boolean optimizer.
//
// With starts fixed, each cumulative reduces to one linear constraint per
// distinct start instant: the summed demand of the intervals covering that
// instant stays within the capacity maximum. Instants whose covering demand
// cannot exceed the capacity produce no constraint. Intervals linked by
// constraints form independent components, each solved as its own problem;
// intervals in no constraint are simply present.
//
// A model with a movable start yields ErrUnsupportedModel. Solution.Nodes
// counts the components handed to the optimizer.
type PseudoBoolean struct {
	// TimeLimit bounds the wall-clock time shared by all components. Zero
	// means DefaultTimeLimit.
	TimeLimit time.Duration

	// Logger is optional. If nil, uses slog.Default().
	Logger *slog.Logger
}

// pbRow is sum(weights[j] * present[members[j]]) <= capMax.
type pbRow struct {
	members []int
	weights []int
	capMax  int
}

type pbComponent struct {
	members []int
	rows    []pbRow
}

// Solve implements Solver.
func (p *PseudoBoolean) Solve(ctx context.Context, m *Model) (*Solution, error) {
	began := time.Now()
	if err := m.Validate(); err != nil {
		return &Solution{Status: ModelInvalid}, err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := p.TimeLimit
	if limit <= 0 {
		limit = DefaultTimeLimit
	}

	n := len(m.Intervals)
	start := make([]int64, n)
	admissible := make([]bool, n)
	forcedDead := false
	for i := range m.Intervals {
		iv := &m.Intervals[i]
		lo, hi := iv.window()
		switch {
		case lo < hi:
			return nil, fmt.Errorf("%w: interval %d (%s) start ranges over [%d, %d]", ErrUnsupportedModel, i, iv.Name, lo, hi)
		case lo > hi:
			forcedDead = forcedDead || iv.Presence == Forced
		default:
			admissible[i] = true
			start[i] = lo
		}
	}
	if forcedDead {
		return &Solution{Status: Infeasible, Elapsed: time.Since(began)}, nil
	}

	ctx, cancel := context.WithDeadline(ctx, began.Add(limit))
	defer cancel()

	comps, linked := pbComponents(m, pbRows(m, admissible, start))
	sol := &Solution{
		Present: make([]bool, n),
		Start:   make([]int64, n),
	}
	for i := range m.Intervals {
		if admissible[i] && !linked[i] {
			sol.Present[i] = true
			sol.Objective++
			sol.Bound++
		}
	}

	status := Optimal
	for _, comp := range comps {
		present, st := p.solveComponent(ctx, m, comp)
		sol.Nodes++
		switch st {
		case Infeasible:
			logger.Debug("sched: component infeasible", "intervals", len(comp.members), "constraints", len(comp.rows))
			return &Solution{Status: Infeasible, Nodes: sol.Nodes, Elapsed: time.Since(began)}, nil
		case Unknown:
			status = Unknown
			sol.Bound += len(comp.members)
			continue
		case Feasible:
			if status == Optimal {
				status = Feasible
			}
			sol.Bound += len(comp.members)
		}
		got := 0
		for k, i := range comp.members {
			if present[k] {
				sol.Present[i] = true
				got++
			}
		}
		sol.Objective += got
		if st == Optimal {
			sol.Bound += got
		}
	}

	sol.Status = status
	sol.Elapsed = time.Since(began)
	if status.HasSchedule() {
		for i, ok := range sol.Present {
			if ok {
				sol.Start[i] = start[i]
			}
		}
		sol.Capacity = usedCapacity(m, sol.Present, sol.Start)
	} else {
		sol.Objective = 0
		sol.Present, sol.Start = nil, nil
	}
	logger.Debug("sched: pseudo-boolean finished",
		"status", sol.Status.String(),
		"objective", sol.Objective,
		"bound", sol.Bound,
		"components", len(comps),
		"elapsed", sol.Elapsed)
	return sol, nil
}

// solveComponent returns the presence of comp.members and one of Optimal,
// Feasible, Infeasible or Unknown.
func (p *PseudoBoolean) solveComponent(ctx context.Context, m *Model, comp pbComponent) ([]bool, Status) {
	nv := len(comp.members)
	local := make(map[int]int, nv)
	hasForced := false
	for k, i := range comp.members {
		local[i] = k
		hasForced = hasForced || m.Intervals[i].Presence == Forced
	}
	absent := func() ([]bool, Status) {
		if hasForced {
			return nil, Unknown
		}
		return make([]bool, nv), Feasible
	}
	if ctx.Err() != nil {
		return absent()
	}

	// Variable k+1 is presence of member k, nv+k+1 marks it absent.
	var constrs []solver.PBConstr
	for k, i := range comp.members {
		constrs = append(constrs, solver.PropClause(k+1, nv+k+1))
		if m.Intervals[i].Presence == Forced {
			constrs = append(constrs, solver.PropClause(k+1))
		}
	}
	for _, r := range comp.rows {
		lits := make([]int, len(r.members))
		for j, i := range r.members {
			lits[j] = local[i] + 1
		}
		constrs = append(constrs, solver.LtEq(lits, slices.Clone(r.weights), r.capMax))
	}
	pb := solver.ParsePBConstrs(constrs)
	cost := make([]solver.Lit, nv)
	weights := make([]int, nv)
	for k := range cost {
		cost[k] = solver.IntToLit(int32(nv + k + 1))
		weights[k] = 1
	}
	pb.SetCostFunc(cost, weights)

	stop := make(chan struct{})
	done := make(chan struct{})
	var halted atomic.Bool
	go func() {
		select {
		case <-ctx.Done():
			halted.Store(true)
			close(stop)
		case <-done:
		}
	}()
	res := solver.New(pb).Optimal(nil, stop)
	close(done)

	switch {
	case res.Status == solver.Unsat:
		return nil, Infeasible
	case res.Status == solver.Sat && len(res.Model) >= nv:
		present := make([]bool, nv)
		copy(present, res.Model[:nv])
		if halted.Load() {
			return present, Feasible
		}
		return present, Optimal
	default:
		return absent()
	}
}

// pbRows lists the capacity constraints of the admissible intervals at their
// fixed starts.
func pbRows(m *Model, admissible []bool, start []int64) []pbRow {
	var rows []pbRow
	for _, cu := range m.Cumulatives {
		var members []int
		var demands []int64
		for k, i := range cu.Intervals {
			if admissible[i] && cu.Demands[k] > 0 && m.Intervals[i].Duration > 0 {
				members = append(members, i)
				demands = append(demands, cu.Demands[k])
			}
		}
		instants := make([]int64, len(members))
		for j, i := range members {
			instants[j] = start[i]
		}
		slices.Sort(instants)
		instants = slices.Compact(instants)

		var prev []int
		for _, t := range instants {
			var r pbRow
			var total int64
			for j, i := range members {
				if start[i] <= t && t < start[i]+m.Intervals[i].Duration {
					r.members = append(r.members, i)
					r.weights = append(r.weights, int(demands[j]))
					total += demands[j]
				}
			}
			if total <= cu.CapacityMax || slices.Equal(r.members, prev) {
				continue
			}
			r.capMax = int(cu.CapacityMax)
			prev = r.members
			rows = append(rows, r)
		}
	}
	return rows
}

// pbComponents groups rows by the intervals they share. linked marks the
// intervals appearing in any row.
func pbComponents(m *Model, rows []pbRow) ([]pbComponent, []bool) {
	n := len(m.Intervals)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	linked := make([]bool, n)
	for _, r := range rows {
		for _, i := range r.members {
			linked[i] = true
			parent[find(i)] = find(r.members[0])
		}
	}

	index := make(map[int]int)
	var comps []pbComponent
	for i := range n {
		if !linked[i] {
			continue
		}
		root := find(i)
		c, ok := index[root]
		if !ok {
			c = len(comps)
			index[root] = c
			comps = append(comps, pbComponent{})
		}
		comps[c].members = append(comps[c].members, i)
	}
	for _, r := range rows {
		c := index[find(r.members[0])]
		comps[c].rows = append(comps[c].rows, r)
	}
	return comps, linked
}

// Auto solves fixed-start models with PseudoBoolean and falls back to
// BranchAndBound when a start can move.
type Auto struct {
	// TimeLimit bounds the wall-clock search. Zero means DefaultTimeLimit.
	TimeLimit time.Duration

	// Logger is optional. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Solve implements Solver.
func (a *Auto) Solve(ctx context.Context, m *Model) (*Solution, error) {
	pb := &PseudoBoolean{TimeLimit: a.TimeLimit, Logger: a.Logger}
	sol, err := pb.Solve(ctx, m)
	if !errors.Is(err, ErrUnsupportedModel) {
		return sol, err
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("sched: falling back to branch and bound", "reason", err)
	bb := &BranchAndBound{TimeLimit: a.TimeLimit, Logger: a.Logger}
	return bb.Solve(ctx, m)
}
