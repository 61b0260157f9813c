// SPDX-License-Identifier: MIT
package render

import (
	"audiograph/internal/bus"
	"audiograph/internal/graph"
	"audiograph/pkg/bitint"
)

// delayNode delays its input by the delayTime parameter, up to the
// fixed maximum declared at build time. The node is the only one the
// compiler may split in two: when a delay sits on a feedback cycle, its
// reader half runs early in the quantum (producing last quantum's
// audio) and its writer half runs late, which is what breaks the cycle.
//
// Each channel has its own power-of-two ring so the write cursor wraps
// with a mask instead of a division.
type delayNode struct {
	out  *bus.Bus
	ring [][]float32
	mask int
	// write cursor, in ring positions. Shared by all channels.
	cursor   int
	maxDelay float64
	// input channel count captured by the writer half for the reader.
	writtenChannels int
}

func newDelayNode(desc graph.DelayNode, sampleRate float32, quantum int) *delayNode {
	frames := int(desc.MaxDelaySeconds*float64(sampleRate)) + quantum
	size := bitint.NextPowerOfTwo(frames)
	n := &delayNode{
		out:      bus.NewWithCapacity(1, bus.MaxChannels, quantum),
		ring:     make([][]float32, bus.MaxChannels),
		mask:     size - 1,
		maxDelay: desc.MaxDelaySeconds,
	}
	for c := range n.ring {
		n.ring[c] = make([]float32, size)
	}
	return n
}

// Process handles the acyclic case: write this quantum's input, then
// read it back out at the delayed position.
func (n *delayNode) Process(ctx *Context, id graph.NodeID, inputs []*bus.Bus, params []*bus.Bus) {
	n.ProcessWriter(ctx, id, inputs)
	n.ProcessReader(ctx, id, params)
	n.Advance(ctx.QuantumSize)
}

// ProcessWriter copies the input quantum into the rings at the current
// cursor. On a cycle this runs after ProcessReader.
func (n *delayNode) ProcessWriter(_ *Context, _ graph.NodeID, inputs []*bus.Bus) {
	in := inputs[0]
	n.writtenChannels = in.ChannelCount()
	for c := 0; c < in.ChannelCount(); c++ {
		src := in.Channel(c)
		ring := n.ring[c]
		for i, s := range src {
			ring[(n.cursor+i)&n.mask] = s
		}
	}
}

// ProcessReader fills the output from the rings, reading delayTime
// seconds behind the cursor with linear interpolation between the two
// neighbouring samples.
func (n *delayNode) ProcessReader(ctx *Context, _ graph.NodeID, params []*bus.Bus) {
	delay := params[graph.DelayParamTime].Channel(0)
	ch := n.writtenChannels
	if ch == 0 {
		ch = 1
	}
	n.out.SetChannelCount(ch)

	for c := 0; c < ch; c++ {
		ring := n.ring[c]
		dst := n.out.Channel(c)
		for i := range dst {
			d := float64(delay[i])
			if d < 0 {
				d = 0
			}
			if d > n.maxDelay {
				d = n.maxDelay
			}
			offset := d * float64(ctx.SampleRate)
			whole := int(offset)
			frac := float32(offset - float64(whole))

			pos := n.cursor + i - whole
			a := ring[pos&n.mask]
			b := ring[(pos-1)&n.mask]
			dst[i] = a + frac*(b-a)
		}
	}
}

// Advance moves the cursor past the quantum written this round. Called
// once per quantum, after both halves have run.
func (n *delayNode) Advance(frames int) {
	n.cursor = (n.cursor + frames) & n.mask
}

func (n *delayNode) Output(int) *bus.Bus { return n.out }
func (n *delayNode) OutputCount() int    { return 1 }

func (n *delayNode) ApplyDescription(desc graph.NodeDescription) {
	// DelaySeconds rides in through the parameter bus; max delay
	// changes rebuild the node, so nothing to absorb here.
}
