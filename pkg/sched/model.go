// Package sched solves cumulative scheduling problems over optional
// intervals.
//
// A [Model] holds optional intervals, each with a start domain, a fixed
// duration, an end domain and a presence literal that is either free or
// forced true, and cumulative constraints that bound the summed demand of
// the present intervals overlapping any instant by a capacity chosen from an
// integer range. The objective is to maximize the number of present
// intervals.
//
// Engines implement [Solver]. [PseudoBoolean] encodes fixed-start models as
// pseudo-boolean optimization problems, [BranchAndBound] searches start
// times directly, and [Auto] picks between them.
package sched

import (
	"errors"
	"fmt"
)

// ErrInvalidModel is returned when a model is malformed.
var ErrInvalidModel = errors.New("sched: invalid model")

// ErrUnsupportedModel is returned by engines that cannot encode a model.
var ErrUnsupportedModel = errors.New("sched: unsupported model")

// Presence is the state of an interval's presence literal.
type Presence int

const (
	// Free leaves presence to the solver.
	Free Presence = iota
	// Forced requires the interval to be present.
	Forced
)

func (p Presence) String() string {
	if p == Forced {
		return "forced"
	}
	return "free"
}

// Interval is an optional interval variable. An interval occupies the
// half-open range [start, start+Duration).
type Interval struct {
	Name     string
	StartMin int64
	StartMax int64
	Duration int64
	EndMin   int64
	EndMax   int64
	Presence Presence
}

// window returns the start values compatible with both domains.
func (iv *Interval) window() (lo, hi int64) {
	lo = max(iv.StartMin, iv.EndMin-iv.Duration)
	hi = min(iv.StartMax, iv.EndMax-iv.Duration)
	return lo, hi
}

// Cumulative bounds the demand of overlapping present intervals.
type Cumulative struct {
	Name        string
	Intervals   []int
	Demands     []int64
	CapacityMin int64
	CapacityMax int64
}

// Model is a set of intervals and cumulative constraints. The zero value is
// an empty model.
type Model struct {
	Intervals   []Interval
	Cumulatives []Cumulative
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// NewOptionalInterval adds a free interval and returns its index.
func (m *Model) NewOptionalInterval(name string, startMin, startMax, duration, endMin, endMax int64) int {
	m.Intervals = append(m.Intervals, Interval{
		Name:     name,
		StartMin: startMin,
		StartMax: startMax,
		Duration: duration,
		EndMin:   endMin,
		EndMax:   endMax,
	})
	return len(m.Intervals) - 1
}

// SetPresence sets the presence literal of interval i.
func (m *Model) SetPresence(i int, p Presence) {
	m.Intervals[i].Presence = p
}

// AddCumulative adds a cumulative constraint and returns its index. The
// slices are copied.
func (m *Model) AddCumulative(name string, intervals []int, demands []int64, capMin, capMax int64) int {
	m.Cumulatives = append(m.Cumulatives, Cumulative{
		Name:        name,
		Intervals:   append([]int(nil), intervals...),
		Demands:     append([]int64(nil), demands...),
		CapacityMin: capMin,
		CapacityMax: capMax,
	})
	return len(m.Cumulatives) - 1
}

// Validate reports structural errors. An interval whose start and end
// domains do not intersect is not an error: it can only be absent.
func (m *Model) Validate() error {
	for i, iv := range m.Intervals {
		switch {
		case iv.Duration < 0:
			return fmt.Errorf("%w: interval %d (%s) has negative duration %d", ErrInvalidModel, i, iv.Name, iv.Duration)
		case iv.StartMin > iv.StartMax:
			return fmt.Errorf("%w: interval %d (%s) start domain [%d, %d] is empty", ErrInvalidModel, i, iv.Name, iv.StartMin, iv.StartMax)
		case iv.EndMin > iv.EndMax:
			return fmt.Errorf("%w: interval %d (%s) end domain [%d, %d] is empty", ErrInvalidModel, i, iv.Name, iv.EndMin, iv.EndMax)
		case iv.Presence != Free && iv.Presence != Forced:
			return fmt.Errorf("%w: interval %d (%s) has presence %d", ErrInvalidModel, i, iv.Name, iv.Presence)
		}
	}
	for c, cu := range m.Cumulatives {
		if len(cu.Intervals) != len(cu.Demands) {
			return fmt.Errorf("%w: cumulative %d (%s) has %d intervals and %d demands", ErrInvalidModel, c, cu.Name, len(cu.Intervals), len(cu.Demands))
		}
		if cu.CapacityMin < 0 || cu.CapacityMin > cu.CapacityMax {
			return fmt.Errorf("%w: cumulative %d (%s) capacity [%d, %d]", ErrInvalidModel, c, cu.Name, cu.CapacityMin, cu.CapacityMax)
		}
		seen := make(map[int]bool, len(cu.Intervals))
		for k, i := range cu.Intervals {
			if i < 0 || i >= len(m.Intervals) {
				return fmt.Errorf("%w: cumulative %d (%s) references interval %d", ErrInvalidModel, c, cu.Name, i)
			}
			if seen[i] {
				return fmt.Errorf("%w: cumulative %d (%s) lists interval %d twice", ErrInvalidModel, c, cu.Name, i)
			}
			seen[i] = true
			if cu.Demands[k] < 0 {
				return fmt.Errorf("%w: cumulative %d (%s) demand %d is negative", ErrInvalidModel, c, cu.Name, cu.Demands[k])
			}
		}
	}
	return nil
}
