// SPDX-License-Identifier: MIT
package render

import (
	"math"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// unsupportedNode stands in for node kinds the renderer cannot process.
// It stays in the graph so topology and ids remain stable, and emits
// silence.
type unsupportedNode struct {
	out *bus.Bus
}

func newUnsupportedNode(quantum int) *unsupportedNode {
	return &unsupportedNode{out: bus.New(1, quantum)}
}

func (n *unsupportedNode) Process(*Context, graph.NodeID, []*bus.Bus, []*bus.Bus) {
	silenceInto(n.out)
}
func (n *unsupportedNode) Output(int) *bus.Bus               { return n.out }
func (n *unsupportedNode) OutputCount() int                  { return 1 }
func (n *unsupportedNode) ApplyDescription(graph.NodeDescription) {}

// destinationNode terminates the graph. Its output bus is what the
// audio driver or offline renderer consumes.
type destinationNode struct {
	out *bus.Bus
}

func newDestinationNode(desc graph.DestinationNode, quantum int) *destinationNode {
	ch := desc.Layout.Count
	if ch <= 0 {
		ch = 2
	}
	return &destinationNode{out: bus.New(ch, quantum)}
}

func (n *destinationNode) Process(_ *Context, _ graph.NodeID, inputs []*bus.Bus, _ []*bus.Bus) {
	if len(inputs) == 0 || inputs[0] == nil {
		n.out.Zero()
		return
	}
	n.out.CopyFrom(inputs[0])
}

func (n *destinationNode) Output(int) *bus.Bus               { return n.out }
func (n *destinationNode) OutputCount() int                  { return 1 }
func (n *destinationNode) ApplyDescription(graph.NodeDescription) {}

// gainNode scales its input by the gain parameter, sample by sample.
type gainNode struct {
	out *bus.Bus
}

func newGainNode(quantum int) *gainNode {
	return &gainNode{out: bus.NewWithCapacity(1, bus.MaxChannels, quantum)}
}

func (n *gainNode) Process(_ *Context, _ graph.NodeID, inputs []*bus.Bus, params []*bus.Bus) {
	in := inputs[0]
	n.out.SetChannelCount(in.ChannelCount())
	gain := params[graph.GainParamGain].Channel(0)
	for c := 0; c < in.ChannelCount(); c++ {
		src := in.Channel(c)
		dst := n.out.Channel(c)
		for i := range dst {
			dst[i] = src[i] * gain[i]
		}
	}
}

func (n *gainNode) Output(int) *bus.Bus               { return n.out }
func (n *gainNode) OutputCount() int                  { return 1 }
func (n *gainNode) ApplyDescription(graph.NodeDescription) {}

// stereoPannerNode applies equal-power panning. Output is always
// stereo; mono input pans between channels, stereo input follows the
// standard asymmetric pan law.
type stereoPannerNode struct {
	out *bus.Bus
}

func newStereoPannerNode(quantum int) *stereoPannerNode {
	return &stereoPannerNode{out: bus.New(2, quantum)}
}

func (n *stereoPannerNode) Process(_ *Context, _ graph.NodeID, inputs []*bus.Bus, params []*bus.Bus) {
	in := inputs[0]
	pan := params[graph.StereoPannerParamPan].Channel(0)
	outL := n.out.Channel(0)
	outR := n.out.Channel(1)

	if in.ChannelCount() == 1 {
		src := in.Channel(0)
		for i := range outL {
			x := (clampPan(pan[i]) + 1) / 2
			gl, gr := panGains(x)
			outL[i] = src[i] * gl
			outR[i] = src[i] * gr
		}
		return
	}

	srcL := in.Channel(0)
	srcR := in.Channel(1)
	for i := range outL {
		p := clampPan(pan[i])
		if p <= 0 {
			gl, gr := panGains(p + 1)
			outL[i] = srcL[i] + srcR[i]*gl
			outR[i] = srcR[i] * gr
		} else {
			gl, gr := panGains(p)
			outL[i] = srcL[i] * gl
			outR[i] = srcR[i] + srcL[i]*gr
		}
	}
}

func (n *stereoPannerNode) Output(int) *bus.Bus               { return n.out }
func (n *stereoPannerNode) OutputCount() int                  { return 1 }
func (n *stereoPannerNode) ApplyDescription(graph.NodeDescription) {}

func clampPan(p float32) float32 {
	if p < -1 {
		return -1
	}
	if p > 1 {
		return 1
	}
	return p
}

func panGains(x float32) (l, r float32) {
	angle := float64(x) * math.Pi / 2
	return float32(math.Cos(angle)), float32(math.Sin(angle))
}

// tapNode is a transparent observation point. Input passes through
// unchanged while a copy goes to the sink, if one is attached. Sink
// errors mute the tap's observation, never the signal path.
type tapNode struct {
	out   *bus.Bus
	label string
	sink  Sink
	dead  bool
}

// Sink receives quanta observed by tap nodes. WriteQuantum runs on the
// render thread; implementations must hand the data off quickly.
type Sink interface {
	WriteQuantum(label string, ctx *Context, b *bus.Bus) error
}

func newTapNode(desc graph.TapNode, sink Sink, quantum int) *tapNode {
	return &tapNode{
		out:   bus.NewWithCapacity(1, bus.MaxChannels, quantum),
		label: desc.Label,
		sink:  sink,
	}
}

func (n *tapNode) Process(ctx *Context, _ graph.NodeID, inputs []*bus.Bus, _ []*bus.Bus) {
	in := inputs[0]
	n.out.SetChannelCount(in.ChannelCount())
	n.out.CopyFrom(in)
	if n.sink == nil || n.dead {
		return
	}
	if err := n.sink.WriteQuantum(n.label, ctx, n.out); err != nil {
		n.dead = true
	}
}

func (n *tapNode) Output(int) *bus.Bus { return n.out }
func (n *tapNode) OutputCount() int    { return 1 }

func (n *tapNode) ApplyDescription(desc graph.NodeDescription) {
	if d, ok := desc.(graph.TapNode); ok {
		n.label = d.Label
	}
}
