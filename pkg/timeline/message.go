package timeline

import (
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// metaTempo is the set-tempo meta type byte.
const metaTempo byte = 0x51

// isHeaderMeta reports whether m is one of the file header declarations that
// an inner merge copies from the first fragment only.
func isHeaderMeta(m smf.Message) bool {
	switch m.Type() {
	case smf.MetaTrackNameMsg, smf.MetaTempoMsg, smf.MetaTimeSigMsg, smf.MetaKeySigMsg, smf.MetaSMPTEOffsetMsg, smf.MetaInstrumentMsg:
		return true
	}
	return false
}

func isEndOfTrack(m smf.Message) bool {
	return m.Is(smf.MetaEndOfTrackMsg)
}

// channelOf returns the channel of a channel voice message.
func channelOf(m smf.Message) (uint8, bool) {
	var ch uint8
	ok := m.GetChannel(&ch)
	return ch, ok
}

func isProgramChange(m smf.Message) bool {
	var ch, program uint8
	return m.GetProgramChange(&ch, &program)
}

func isControlChange(m smf.Message) bool {
	var ch, controller, value uint8
	return m.GetControlChange(&ch, &controller, &value)
}

// isNoteEvent reports note-on and note-off messages, including the
// zero-velocity note-on form of a note-off.
func isNoteEvent(m smf.Message) bool {
	var ch, key, vel uint8
	return m.GetNoteOn(&ch, &key, &vel) || m.GetNoteOff(&ch, &key, &vel)
}

// tempoOf decodes a set-tempo meta event into microseconds per beat.
func tempoOf(m smf.Message) (uint32, bool) {
	if !m.Is(smf.MetaTempoMsg) || len(m) < 6 || m[2] != 3 {
		return 0, false
	}
	return uint32(m[3])<<16 | uint32(m[4])<<8 | uint32(m[5]), true
}

// tempoMessage encodes a set-tempo meta event. The value is stored as-is so
// microsecond tempos survive without a BPM round trip.
func tempoMessage(us uint32) smf.Message {
	return smf.Message{0xFF, metaTempo, 0x03, byte(us >> 16), byte(us >> 8), byte(us)}
}

// withChannel returns a copy of m addressed to channel ch. Messages are
// never modified in place because fragments share message storage.
func withChannel(m smf.Message, ch uint8) smf.Message {
	out := make(smf.Message, len(m))
	copy(out, m)
	out[0] = out[0]&0xF0 | ch&0x0F
	return out
}

// withProgram returns a program change on the channel of m selecting
// program.
func withProgram(m smf.Message, program uint8) smf.Message {
	ch, _ := channelOf(m)
	return smf.Message(midi.ProgramChange(ch, program&0x7F))
}

// noteKey identifies a sounding note for on/off pairing.
type noteKey struct {
	channel, key uint8
}

// noteStart reports a note-on with non-zero velocity.
func noteStart(m smf.Message) (noteKey, bool) {
	var ch, key, vel uint8
	if m.GetNoteStart(&ch, &key, &vel) {
		return noteKey{ch, key}, true
	}
	return noteKey{}, false
}

// noteEnd reports a note-off or zero-velocity note-on.
func noteEnd(m smf.Message) (noteKey, bool) {
	var ch, key uint8
	if m.GetNoteEnd(&ch, &key) {
		return noteKey{ch, key}, true
	}
	return noteKey{}, false
}
