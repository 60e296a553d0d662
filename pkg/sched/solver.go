package sched

import (
	"context"
	"time"
)

// Status is the terminal outcome of a solve.
type Status int

const (
	// Unknown means the search stopped before finding any schedule.
	Unknown Status = iota
	// Optimal means the schedule is proven to maximize the objective.
	Optimal
	// Feasible means a schedule was found but not proven optimal.
	Feasible
	// Infeasible means no schedule satisfies the constraints.
	Infeasible
	// ModelInvalid means the model failed validation.
	ModelInvalid
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Feasible:
		return "feasible"
	case Infeasible:
		return "infeasible"
	case ModelInvalid:
		return "model_invalid"
	default:
		return "unknown"
	}
}

// HasSchedule reports whether the status carries a usable assignment.
func (s Status) HasSchedule() bool {
	return s == Optimal || s == Feasible
}

// Solution is the outcome of Solve. Present, Start and Capacity are only
// meaningful when Status.HasSchedule.
type Solution struct {
	Status Status

	// Objective is the number of present intervals.
	Objective int

	// Bound is the best known upper bound on the objective.
	Bound int

	// Present and Start are indexed like Model.Intervals.
	Present []bool
	Start   []int64

	// Capacity is the capacity chosen for each cumulative, indexed like
	// Model.Cumulatives.
	Capacity []int64

	// Nodes measures the work done: search nodes for BranchAndBound,
	// optimizer calls for PseudoBoolean.
	Nodes int64

	Elapsed time.Duration
}

// Solver solves a model. Implementations return an error wrapping
// ErrInvalidModel for malformed models, together with a solution whose
// status is ModelInvalid. An engine that cannot represent a valid model
// returns an error wrapping ErrUnsupportedModel and a nil solution. Running
// out of time or proving infeasibility is reported through the status, not
// an error.
type Solver interface {
	Solve(ctx context.Context, m *Model) (*Solution, error)
}

// usedCapacity returns, per cumulative, the peak demand of the present
// intervals, raised to the capacity minimum.
func usedCapacity(m *Model, present []bool, start []int64) []int64 {
	out := make([]int64, len(m.Cumulatives))
	for c, cu := range m.Cumulatives {
		var spans []span
		for k, i := range cu.Intervals {
			if present[i] && cu.Demands[k] > 0 && m.Intervals[i].Duration > 0 {
				spans = append(spans, span{start[i], start[i] + m.Intervals[i].Duration, cu.Demands[k]})
			}
		}
		var used int64
		for _, sp := range spans {
			var sum int64
			for _, o := range spans {
				if o.start <= sp.start && sp.start < o.end {
					sum += o.demand
				}
			}
			used = max(used, sum)
		}
		out[c] = max(used, cu.CapacityMin)
	}
	return out
}
