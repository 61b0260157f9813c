// SPDX-License-Identifier: MIT
package graph

import "sort"

// SampleBuffer is externalized planar PCM sample data, owned by a
// ResourceRegistry independently of any node description.
type SampleBuffer struct {
	SampleRate float32
	Channels   [][]float32
}

// Frames returns the per-channel frame count.
func (b *SampleBuffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// ResourceResolver resolves buffer ids to sample data at encode time.
type ResourceResolver interface {
	ResolveSampleBuffer(id uint64) *SampleBuffer
}

// ResourceRegistry maps buffer ids to externalized sample data. It is
// created alongside a Description and owned by whichever side runs the
// executor; it is not safe for concurrent mutation.
type ResourceRegistry struct {
	buffers map[uint64]*SampleBuffer
	nextID  uint64
}

// NewResourceRegistry returns an empty registry. Id zero is reserved as
// "no buffer".
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{
		buffers: make(map[uint64]*SampleBuffer),
		nextID:  1,
	}
}

// Register stores a buffer and returns its newly assigned id.
func (r *ResourceRegistry) Register(b *SampleBuffer) uint64 {
	id := r.nextID
	r.nextID++
	r.buffers[id] = b
	return id
}

// Set stores a buffer under an explicit id (used by the wire decoder).
func (r *ResourceRegistry) Set(id uint64, b *SampleBuffer) {
	r.buffers[id] = b
	if id >= r.nextID {
		r.nextID = id + 1
	}
}

// ResolveSampleBuffer returns the buffer for id, or nil.
func (r *ResourceRegistry) ResolveSampleBuffer(id uint64) *SampleBuffer {
	return r.buffers[id]
}

// Len returns the number of registered buffers.
func (r *ResourceRegistry) Len() int { return len(r.buffers) }

// IDs returns all buffer ids in ascending order.
func (r *ResourceRegistry) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.buffers))
	for id := range r.buffers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
