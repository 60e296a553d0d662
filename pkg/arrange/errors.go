// Package arrange runs the arrangement pipeline: tempo normalization, model
// building, solving, materialization and run recording.
package arrange

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alitavanaali/MusiComb/pkg/placement"
)

var (
	// ErrConfig wraps malformed song parameters, section profiles and run
	// ids. It is not worth retrying.
	ErrConfig = errors.New("arrange: configuration error")

	// ErrInfeasible is returned, inside an *InfeasibleError, when no
	// schedule places any fragment.
	ErrInfeasible = errors.New("arrange: infeasible")

	// ErrTimeout is returned when the solver stops without a schedule.
	ErrTimeout = errors.New("arrange: no schedule within the time limit")
)

// InfeasibleError reports what each song window was asked to hold.
type InfeasibleError struct {
	Pressure []placement.Pressure
}

func (e *InfeasibleError) Error() string {
	var b strings.Builder
	b.WriteString(ErrInfeasible.Error())
	sep := ": "
	for _, p := range e.Pressure {
		if p.ForcedPeak <= p.CapacityMax && p.CapacityMax > 0 {
			continue
		}
		fmt.Fprintf(&b, "%s%s forced peak %d, capacity [%d, %d]", sep, p.Window, p.ForcedPeak, p.CapacityMin, p.CapacityMax)
		sep = "; "
	}
	if sep == ": " {
		b.WriteString(": no fragment repeat fits its windows")
	}
	return b.String()
}

func (e *InfeasibleError) Unwrap() error {
	return ErrInfeasible
}
