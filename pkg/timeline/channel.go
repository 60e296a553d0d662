package timeline

// PercussionChannel is the zero-based General MIDI percussion channel.
const PercussionChannel uint8 = 9

// ChannelAllocator hands out output channels to melodic fragments in load
// order, skipping the percussion channel and wrapping after 16.
//
// One allocator belongs to one arrangement run. It is not safe for
// concurrent use.
type ChannelAllocator struct {
	next uint8
}

// NewChannelAllocator returns an allocator starting at channel 0.
func NewChannelAllocator() *ChannelAllocator {
	return &ChannelAllocator{}
}

// Next returns the next free melodic channel.
func (a *ChannelAllocator) Next() uint8 {
	ch := a.next
	if ch == PercussionChannel {
		ch++
	}
	a.next = (ch + 1) % 16
	return ch
}
