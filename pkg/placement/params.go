// Package placement turns role fragments into a scheduling model: every
// repeat of every fragment becomes an optional interval pinned to its own
// bar-aligned region and billed against the song windows of the section
// profile.
package placement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidParams is returned for unusable song parameters.
var ErrInvalidParams = errors.New("placement: invalid params")

// TimeSignature is a song meter. Only BeatsPerBar affects timing.
type TimeSignature struct {
	BeatsPerBar int `json:"beats_per_bar"`
	BeatUnit    int `json:"beat_unit"`
}

// Time4_4 is common time.
var Time4_4 = TimeSignature{4, 4}

func (t TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", t.BeatsPerBar, t.BeatUnit)
}

// ParseTimeSignature parses "N/M".
func ParseTimeSignature(s string) (TimeSignature, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return TimeSignature{}, fmt.Errorf("%w: time signature %q", ErrInvalidParams, s)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return TimeSignature{}, fmt.Errorf("%w: time signature %q", ErrInvalidParams, s)
	}
	d, err := strconv.Atoi(den)
	if err != nil || d <= 0 {
		return TimeSignature{}, fmt.Errorf("%w: time signature %q", ErrInvalidParams, s)
	}
	return TimeSignature{n, d}, nil
}

// Params are the song parameters.
type Params struct {
	BPM       int           `json:"bpm"`
	Signature TimeSignature `json:"time_signature"`

	// Measures is the number of measures one repeat region spans.
	Measures int `json:"num_measures"`

	// LengthMs is the song length.
	LengthMs int64 `json:"length_ms"`
}

// LengthFromMinutes converts a song length in minutes to milliseconds,
// truncating.
func LengthFromMinutes(minutes float64) int64 {
	return int64(minutes * 60000)
}

// Validate rejects non-positive values.
func (p Params) Validate() error {
	switch {
	case p.BPM <= 0:
		return fmt.Errorf("%w: bpm %d", ErrInvalidParams, p.BPM)
	case p.Signature.BeatsPerBar <= 0:
		return fmt.Errorf("%w: %d beats per bar", ErrInvalidParams, p.Signature.BeatsPerBar)
	case p.Measures <= 0:
		return fmt.Errorf("%w: %d measures", ErrInvalidParams, p.Measures)
	case p.LengthMs <= 0:
		return fmt.Errorf("%w: song length %dms", ErrInvalidParams, p.LengthMs)
	}
	return nil
}

// BarDuration returns the length of one repeat region in milliseconds.
func (p Params) BarDuration() int64 {
	return BarDuration(p.BPM, p.Signature.BeatsPerBar, p.Measures)
}

// BarDuration returns measures*beatsPerBar beats at bpm in milliseconds,
// truncated.
func BarDuration(bpm, beatsPerBar, measures int) int64 {
	if bpm <= 0 {
		return 0
	}
	return int64(measures) * int64(beatsPerBar) * 60000 / int64(bpm)
}
