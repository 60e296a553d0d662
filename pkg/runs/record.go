// Package runs keeps the history of arrangement runs in a kv store. Every
// run is recorded, including the ones that produced no files, so a failed
// arrangement can be inspected later.
package runs

import (
	"time"

	"github.com/google/uuid"
)

// Outcome values beyond the solver statuses.
const (
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Record describes one arrangement run.
type Record struct {
	ID        string    `msgpack:"id" json:"id"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`

	// Outcome is the solver status name ("optimal", "feasible",
	// "infeasible", ...) or OutcomeTimeout / OutcomeError.
	Outcome string `msgpack:"outcome" json:"outcome"`
	Error   string `msgpack:"error,omitempty" json:"error,omitempty"`

	Genre         string `msgpack:"genre,omitempty" json:"genre,omitempty"`
	BPM           int    `msgpack:"bpm" json:"bpm"`
	TimeSignature string `msgpack:"time_signature" json:"time_signature"`
	Measures      int    `msgpack:"measures" json:"measures"`
	LengthMs      int64  `msgpack:"length_ms" json:"length_ms"`
	Seed          uint64 `msgpack:"seed" json:"seed"`
	Tempo         uint32 `msgpack:"tempo" json:"tempo"`

	// Roles maps each role to its fragment names.
	Roles map[string][]string `msgpack:"roles" json:"roles"`

	Slots     int   `msgpack:"slots" json:"slots"`
	Present   int   `msgpack:"present" json:"present"`
	Objective int64 `msgpack:"objective" json:"objective"`
	Bound     int64 `msgpack:"bound" json:"bound"`

	Windows []Window `msgpack:"windows,omitempty" json:"windows,omitempty"`

	// Outputs are the locations of the written files.
	Outputs []string `msgpack:"outputs,omitempty" json:"outputs,omitempty"`

	ElapsedMs int64 `msgpack:"elapsed_ms" json:"elapsed_ms"`
}

// Window is the capacity a run chose for one song window.
type Window struct {
	Name     string `msgpack:"name" json:"name"`
	Capacity int64  `msgpack:"capacity" json:"capacity"`
	Min      int64  `msgpack:"min" json:"min"`
	Max      int64  `msgpack:"max" json:"max"`
}

// NewID returns a fresh run identifier.
func NewID() string {
	return uuid.NewString()
}
