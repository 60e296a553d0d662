// Package timeline models musical fragments as Standard MIDI File event
// sequences and provides the timing operations the arranger needs: tempo
// lookup and rewrite, millisecond duration, time shifting and merging of
// shifted copies into role tracks.
//
// A [Fragment] holds a single [smf.Track] whose events carry delta ticks.
// Message bytes may be shared between a fragment and its clones; every
// operation that changes a message replaces it with a fresh slice.
package timeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultTempo is the tempo in effect before any set-tempo event, in
// microseconds per beat (120 BPM).
const DefaultTempo uint32 = 500000

// RolePercussion is the role whose fragments play on the percussion channel.
const RolePercussion = "drum"

var (
	// ErrNoTracks is returned when a file carries no tracks.
	ErrNoTracks = errors.New("timeline: file has no tracks")

	// ErrTimeFormat is returned for SMPTE-timed files.
	ErrTimeFormat = errors.New("timeline: only metric time format is supported")
)

// Fragment is one pre-recorded part for one role.
type Fragment struct {
	// Name identifies the fragment, e.g. "pad_0". It is also written as the
	// track name.
	Name string

	// Role is the instrumental function, e.g. "pad" or "main_melody".
	Role string

	// Instrument is the dataset instrument name, if known.
	Instrument string

	// TicksPerBeat is the file resolution.
	TicksPerBeat uint16

	// Channel is the output channel assigned at load.
	Channel uint8

	// Track holds the events in delta-tick order.
	Track smf.Track

	// lead records ticks added by Shift, keyed by event index.
	lead map[int]uint32
}

// FragmentOptions controls how a loaded file is prepared.
type FragmentOptions struct {
	// Name is written as the track name. Required.
	Name string

	// Role overrides the role derived from Name.
	Role string

	// Instrument selects the program written to every program change.
	// Ignored for percussion and when empty.
	Instrument string

	// Programs resolves Instrument. Defaults to DefaultPrograms.
	Programs Programs

	// Channels assigns the output channel of melodic fragments. When nil
	// the file's channels are kept; an arrangement run assigns them when it
	// materializes.
	Channels *ChannelAllocator
}

// New wraps an already prepared track without any preprocessing.
func New(name string, ticksPerBeat uint16, track smf.Track) *Fragment {
	return &Fragment{
		Name:         name,
		Role:         RoleOf(name),
		TicksPerBeat: ticksPerBeat,
		Track:        track,
	}
}

// Load reads and prepares the fragment stored at path.
func Load(path string, opts FragmentOptions) (*Fragment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("timeline: open %s: %w", path, err)
	}
	defer f.Close()
	frag, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("timeline: load %s: %w", path, err)
	}
	return frag, nil
}

// Read decodes a Standard MIDI File and prepares it as a fragment.
func Read(r io.Reader, opts FragmentOptions) (*Fragment, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("timeline: decode: %w", err)
	}
	return FromSMF(s, opts)
}

// FromSMF prepares a decoded file: all tracks are folded into one, the track
// is renamed, program changes take the instrument's program and channels are
// assigned.
func FromSMF(s *smf.SMF, opts FragmentOptions) (*Fragment, error) {
	if len(s.Tracks) == 0 {
		return nil, ErrNoTracks
	}
	tpb, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, ErrTimeFormat
	}

	frag := &Fragment{
		Name:         opts.Name,
		Role:         opts.Role,
		Instrument:   opts.Instrument,
		TicksPerBeat: tpb.Resolution(),
		Track:        mergeTracks(s.Tracks),
	}
	if frag.Role == "" {
		frag.Role = RoleOf(opts.Name)
	}
	frag.setName(opts.Name)

	if !frag.IsPercussion() && opts.Instrument != "" {
		programs := opts.Programs
		if programs == nil {
			programs = DefaultPrograms()
		}
		prog, err := programs.Program(opts.Instrument)
		if err != nil {
			return nil, err
		}
		frag.setProgram(prog)
	}
	frag.assignChannel(opts.Channels)
	return frag, nil
}

// RoleOf derives the role from a fragment name: "main_melody_1" and
// "sub_melody_0" keep two segments, everything else keeps the first.
func RoleOf(name string) string {
	parts := strings.Split(name, "_")
	if len(parts) >= 2 && (parts[0] == "main" || parts[0] == "sub") {
		return parts[0] + "_" + parts[1]
	}
	return parts[0]
}

// IsPercussion reports whether the fragment belongs to the percussion role.
func (f *Fragment) IsPercussion() bool {
	return f.Role == RolePercussion || strings.HasPrefix(f.Name, RolePercussion)
}

// Clone returns a copy whose event slice can be changed independently.
func (f *Fragment) Clone() *Fragment {
	out := *f
	out.Track = make(smf.Track, len(f.Track))
	copy(out.Track, f.Track)
	if f.lead != nil {
		out.lead = make(map[int]uint32, len(f.lead))
		for k, v := range f.lead {
			out.lead[k] = v
		}
	}
	return &out
}

// Tempo returns the first declared tempo in microseconds per beat, or
// DefaultTempo when the fragment declares none.
func (f *Fragment) Tempo() uint32 {
	for _, ev := range f.Track {
		if us, ok := tempoOf(ev.Message); ok {
			return us
		}
	}
	return DefaultTempo
}

// SetTempo rewrites every set-tempo event to us.
func (f *Fragment) SetTempo(us uint32) {
	for i, ev := range f.Track {
		if _, ok := tempoOf(ev.Message); ok {
			f.Track[i].Message = tempoMessage(us)
		}
	}
}

// Duration returns the length of the fragment content in milliseconds,
// integrating ticks against the tempo active in each segment. Delay added by
// Shift is not part of the content.
func (f *Fragment) Duration() int64 {
	if f.TicksPerBeat == 0 {
		return 0
	}
	tempo := uint64(DefaultTempo)
	var ticks, micros uint64 // micros is scaled by TicksPerBeat
	for i, ev := range f.Track {
		ticks += uint64(ev.Delta - f.lead[i])
		if us, ok := tempoOf(ev.Message); ok {
			micros += ticks * tempo
			ticks = 0
			tempo = uint64(us)
		}
	}
	micros += ticks * tempo
	return int64(micros / (uint64(f.TicksPerBeat) * 1000))
}

// Shift returns a copy delayed by ms milliseconds, converted to ticks at the
// fragment's own tempo. Percussion delays its first non-meta event; other
// roles delay their program changes, and the delay carries to the notes
// through the relative timing. A melodic fragment without program changes
// is not delayed; an inner merge plays its repeats back to back. Offsets
// below zero are treated as zero.
func (f *Fragment) Shift(ms int64) *Fragment {
	out := f.Clone()
	if ms <= 0 {
		return out
	}
	ticks := MsToTicks(ms, f.Tempo(), f.TicksPerBeat)
	if ticks <= 0 {
		return out
	}
	if out.lead == nil {
		out.lead = make(map[int]uint32)
	}
	for _, i := range out.shiftTargets() {
		out.Track[i].Delta += uint32(ticks)
		out.lead[i] += uint32(ticks)
	}
	return out
}

// shiftTargets returns the indexes of the events that carry a shift.
func (f *Fragment) shiftTargets() []int {
	percussion := f.IsPercussion()
	var out []int
	for i, ev := range f.Track {
		if ev.Message.IsMeta() {
			continue
		}
		if percussion {
			return []int{i}
		}
		if isProgramChange(ev.Message) {
			out = append(out, i)
		}
	}
	return out
}

// setName replaces the first track name event or inserts one at the start.
func (f *Fragment) setName(name string) {
	if name == "" {
		return
	}
	msg := smf.MetaTrackSequenceName(name)
	for i, ev := range f.Track {
		if ev.Message.Is(smf.MetaTrackNameMsg) {
			f.Track[i].Message = msg
			return
		}
	}
	f.Track = append(smf.Track{{Delta: 0, Message: msg}}, f.Track...)
}

func (f *Fragment) setProgram(program uint8) {
	for i, ev := range f.Track {
		if isProgramChange(ev.Message) {
			f.Track[i].Message = withProgram(ev.Message, program)
		}
	}
}

// assignChannel routes percussion notes and controllers to the percussion
// channel; melodic fragments take the allocator's next channel for program
// changes and notes.
func (f *Fragment) assignChannel(channels *ChannelAllocator) {
	if f.IsPercussion() {
		f.Channel = PercussionChannel
		for i, ev := range f.Track {
			if isNoteEvent(ev.Message) || isControlChange(ev.Message) {
				f.Track[i].Message = withChannel(ev.Message, PercussionChannel)
			}
		}
		return
	}
	if channels == nil {
		for _, ev := range f.Track {
			if ch, ok := channelOf(ev.Message); ok {
				f.Channel = ch
				break
			}
		}
		return
	}
	f.setChannel(channels.Next())
}

// WithChannel returns a copy whose program changes and notes play on ch.
// Percussion stays on the percussion channel.
func (f *Fragment) WithChannel(ch uint8) *Fragment {
	out := f.Clone()
	if !out.IsPercussion() {
		out.setChannel(ch & 0x0F)
	}
	return out
}

func (f *Fragment) setChannel(ch uint8) {
	f.Channel = ch
	for i, ev := range f.Track {
		if isProgramChange(ev.Message) || isNoteEvent(ev.Message) {
			f.Track[i].Message = withChannel(ev.Message, ch)
		}
	}
}

// mergeTracks folds all tracks into one ordered by absolute tick, keeping
// track order for simultaneous events. End-of-track markers collapse into a
// single trailing marker at the latest position.
func mergeTracks(tracks []smf.Track) smf.Track {
	type absEvent struct {
		tick uint64
		msg  smf.Message
	}
	var all []absEvent
	for _, tr := range tracks {
		var tick uint64
		for _, ev := range tr {
			tick += uint64(ev.Delta)
			all = append(all, absEvent{tick, ev.Message})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].tick < all[j].tick })

	out := make(smf.Track, 0, len(all)+1)
	var prev, end uint64
	for _, ev := range all {
		end = max(end, ev.tick)
		if isEndOfTrack(ev.msg) {
			continue
		}
		out = append(out, smf.Event{Delta: uint32(ev.tick - prev), Message: ev.msg})
		prev = ev.tick
	}
	out.Close(uint32(end - prev))
	return out
}
