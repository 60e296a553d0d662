package timeline

import (
	"errors"
	"io"

	"gitlab.com/gomidi/midi/v2/smf"
)

// ErrEmptyMerge is returned when a merge receives no fragments.
var ErrEmptyMerge = errors.New("timeline: nothing to merge")

// MsToTicks converts a millisecond offset to ticks at tempo (microseconds per
// beat) and resolution tpb, truncating.
func MsToTicks(ms int64, tempo uint32, tpb uint16) int64 {
	if tempo == 0 {
		return 0
	}
	return ms * 1000 * int64(tpb) / int64(tempo)
}

// TicksToMs converts ticks to milliseconds at a constant tempo, truncating.
func TicksToMs(ticks int64, tempo uint32, tpb uint16) int64 {
	if tpb == 0 {
		return 0
	}
	return ticks * int64(tempo) / (int64(tpb) * 1000)
}

// MergeStats reports data-quality events seen during an inner merge.
type MergeStats struct {
	// Dropped counts events removed because they fall at or after the song
	// end, including notes that would be cut short by it.
	Dropped int `json:"dropped"`

	// Popped counts already emitted events removed to realign a percussion
	// repeat that overran its bar.
	Popped int `json:"popped"`

	// Clamped counts percussion realignments that stayed negative after
	// popping every emitted event and were clamped to zero.
	Clamped int `json:"clamped"`
}

// InnerMerge joins shifted repeats of one fragment into a single continuous
// track no longer than lengthMs.
//
// Header declarations are copied from the leading fragment until the first
// other event. Program changes are realigned against the running elapsed
// time so repeats follow each other; for percussion only the first event of
// each repeat is realigned, popping trailing events that the previous repeat
// wrote past the new start. A note whose sounding span would reach the song
// end is dropped with its release.
func InnerMerge(frags []*Fragment, lengthMs int64) (*Fragment, MergeStats, error) {
	var stats MergeStats
	if len(frags) == 0 {
		return nil, stats, ErrEmptyMerge
	}
	first := frags[0]
	limit := MsToTicks(lengthMs, first.Tempo(), first.TicksPerBeat)

	out := &Fragment{
		Name:         first.Name,
		Role:         first.Role,
		Instrument:   first.Instrument,
		TicksPerBeat: first.TicksPerBeat,
		Channel:      first.Channel,
	}

	var (
		track      smf.Track
		headerDone bool
		base       int   // header events at the start of track
		elapsed    int64 // absolute song position of the last event seen
		pending    int64 // delta of skipped events not yet written
	)
	place := func(delta int64, msg smf.Message, span int64) {
		elapsed += delta
		if elapsed >= limit || elapsed+span >= limit {
			pending += delta
			stats.Dropped++
			return
		}
		track = append(track, smf.Event{Delta: uint32(delta + pending), Message: msg})
		pending = 0
	}

	for _, frag := range frags {
		percussion := frag.IsPercussion()
		firstHit := true
		spans := noteSpans(frag.Track)

		for j, ev := range frag.Track {
			msg := ev.Message
			delta := int64(ev.Delta)

			if isHeaderMeta(msg) {
				if !headerDone {
					track = append(track, ev)
				}
				continue
			}
			if !headerDone {
				headerDone = true
				base = len(track)
			}

			switch {
			case isEndOfTrack(msg):
				continue

			case isProgramChange(msg):
				place(max(0, delta-elapsed), msg, 0)

			case percussion && firstHit:
				firstHit = false
				for delta < elapsed && len(track) > base {
					last := track[len(track)-1]
					track = track[:len(track)-1]
					elapsed -= int64(last.Delta)
					stats.Popped++
				}
				d := delta - elapsed
				if d < 0 {
					d = 0
					stats.Clamped++
				}
				place(d, msg, spans[j])

			default:
				place(delta, msg, spans[j])
			}
		}
	}

	out.Track = track
	return out, stats, nil
}

// noteSpans maps the index of every note start to the ticks until its
// release. Unreleased notes have no entry.
func noteSpans(track smf.Track) map[int]int64 {
	spans := make(map[int]int64)
	open := make(map[noteKey][]int)
	abs := make([]int64, len(track))
	var tick int64
	for i, ev := range track {
		tick += int64(ev.Delta)
		abs[i] = tick
		if k, ok := noteStart(ev.Message); ok {
			open[k] = append(open[k], i)
			continue
		}
		if k, ok := noteEnd(ev.Message); ok {
			if q := open[k]; len(q) > 0 {
				spans[q[0]] = tick - abs[q[0]]
				open[k] = q[1:]
			}
		}
	}
	return spans
}

// Merge lays fragments side by side as the tracks of one format-1 file at
// the first fragment's resolution. Fragments at another resolution are
// rescaled.
func Merge(frags []*Fragment) (*smf.SMF, error) {
	if len(frags) == 0 {
		return nil, ErrEmptyMerge
	}
	tpb := frags[0].TicksPerBeat
	s := smf.NewSMF1()
	s.TimeFormat = smf.MetricTicks(tpb)
	for _, f := range frags {
		s.Tracks = append(s.Tracks, closedTrack(f, tpb))
	}
	return s, nil
}

// Write merges fragments with Merge and encodes the file to w.
func Write(w io.Writer, frags []*Fragment) error {
	s, err := Merge(frags)
	if err != nil {
		return err
	}
	_, err = s.WriteTo(w)
	return err
}

// closedTrack copies the events of f at resolution tpb and terminates the
// track with a single end-of-track marker.
func closedTrack(f *Fragment, tpb uint16) smf.Track {
	out := make(smf.Track, 0, len(f.Track)+1)
	var absIn, lastOut, endOut uint64
	scale := func(tick uint64) uint64 {
		if f.TicksPerBeat == tpb || f.TicksPerBeat == 0 {
			return tick
		}
		return tick * uint64(tpb) / uint64(f.TicksPerBeat)
	}
	for _, ev := range f.Track {
		absIn += uint64(ev.Delta)
		absOut := scale(absIn)
		endOut = max(endOut, absOut)
		if isEndOfTrack(ev.Message) {
			continue
		}
		out = append(out, smf.Event{Delta: uint32(absOut - lastOut), Message: ev.Message})
		lastOut = absOut
	}
	out.Close(uint32(endOut - lastOut))
	return out
}
