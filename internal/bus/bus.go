// SPDX-License-Identifier: MIT
/*
Package bus implements the planar sample buffer that carries audio between
render nodes, plus the channel up/down-mix rules applied where multiple
connections feed a single node input.

Thread Safety:
- A Bus is owned by exactly one node (or one mix slot) for the duration of
  a render quantum; no internal locking.
- All channel storage is allocated up front; render-time operations only
  slice into pre-allocated memory.
*/
package bus

// MaxChannels is the largest channel count a bus will ever mix to.
const MaxChannels = 32

// Bus is a fixed-frame-count planar float32 sample buffer. The active
// channel count can shrink or grow up to the capacity chosen at creation;
// frames per channel never change.
type Bus struct {
	channels     [][]float32
	channelCount int
	frames       int
}

// New creates a bus with the given active channel count and frame count.
// Capacity equals the initial channel count.
func New(channelCount, frames int) *Bus {
	return NewWithCapacity(channelCount, channelCount, frames)
}

// NewWithCapacity creates a bus whose active channel count may later be
// raised up to capacity without allocating.
func NewWithCapacity(channelCount, capacity, frames int) *Bus {
	if capacity < channelCount {
		capacity = channelCount
	}
	if capacity < 1 {
		capacity = 1
	}
	if capacity > MaxChannels {
		capacity = MaxChannels
	}
	if channelCount > capacity {
		channelCount = capacity
	}
	channels := make([][]float32, capacity)
	for i := range channels {
		channels[i] = make([]float32, frames)
	}
	return &Bus{
		channels:     channels,
		channelCount: channelCount,
		frames:       frames,
	}
}

// ChannelCount returns the active channel count. Zero means the bus is
// silent and carries no data this quantum.
func (b *Bus) ChannelCount() int { return b.channelCount }

// ChannelCapacity returns the largest channel count this bus can adopt.
func (b *Bus) ChannelCapacity() int { return len(b.channels) }

// Frames returns the per-channel frame count.
func (b *Bus) Frames() int { return b.frames }

// SetChannelCount adopts a new active channel count, clamped to capacity.
func (b *Bus) SetChannelCount(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(b.channels) {
		n = len(b.channels)
	}
	b.channelCount = n
}

// Channel returns the sample slice for channel i.
func (b *Bus) Channel(i int) []float32 { return b.channels[i] }

// Zero clears every channel up to capacity.
func (b *Bus) Zero() {
	for _, ch := range b.channels {
		for i := range ch {
			ch[i] = 0
		}
	}
}

// CopyFrom adopts the source's channel count (clamped to capacity) and
// copies its samples. Channels beyond the source's count are zeroed.
func (b *Bus) CopyFrom(src *Bus) {
	count := src.channelCount
	if count > len(b.channels) {
		count = len(b.channels)
	}
	b.channelCount = count
	for ch := 0; ch < count; ch++ {
		copy(b.channels[ch], src.channels[ch])
	}
	for ch := count; ch < len(b.channels); ch++ {
		for i := range b.channels[ch] {
			b.channels[ch][i] = 0
		}
	}
}

// Scale multiplies every active sample by gain.
func (b *Bus) Scale(gain float32) {
	for ch := 0; ch < b.channelCount; ch++ {
		samples := b.channels[ch]
		for i := range samples {
			samples[i] *= gain
		}
	}
}

// IsSilent reports whether every active sample is exactly zero.
func (b *Bus) IsSilent() bool {
	for ch := 0; ch < b.channelCount; ch++ {
		for _, s := range b.channels[ch] {
			if s != 0 {
				return false
			}
		}
	}
	return true
}
