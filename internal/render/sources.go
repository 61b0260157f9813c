// SPDX-License-Identifier: MIT
package render

import (
	"math"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// schedule tracks the start/stop window of a source node. Frames are
// absolute; graph.NoFrame means unset.
type schedule struct {
	start int64
	stop  int64
}

func scheduleFrom(s graph.FrameSchedule) schedule {
	return schedule{start: s.StartFrame, stop: s.StopFrame}
}

// activeAt reports whether the source plays at the given frame.
func (s *schedule) activeAt(frame uint64) bool {
	if s.start == graph.NoFrame || int64(frame) < s.start {
		return false
	}
	return s.stop == graph.NoFrame || int64(frame) < s.stop
}

// constantSourceNode emits its offset parameter, gated by the schedule.
type constantSourceNode struct {
	out   *bus.Bus
	sched schedule
}

func newConstantSourceNode(desc graph.ConstantSourceNode, quantum int) *constantSourceNode {
	return &constantSourceNode{
		out:   bus.New(1, quantum),
		sched: scheduleFrom(desc.Schedule),
	}
}

func (n *constantSourceNode) Process(ctx *Context, _ graph.NodeID, _ []*bus.Bus, params []*bus.Bus) {
	offset := params[graph.ConstantSourceParamOffset].Channel(0)
	dst := n.out.Channel(0)
	for i := range dst {
		if n.sched.activeAt(ctx.CurrentFrame + uint64(i)) {
			dst[i] = offset[i]
		} else {
			dst[i] = 0
		}
	}
}

func (n *constantSourceNode) Output(int) *bus.Bus { return n.out }
func (n *constantSourceNode) OutputCount() int    { return 1 }

func (n *constantSourceNode) ApplyDescription(desc graph.NodeDescription) {
	if d, ok := desc.(graph.ConstantSourceNode); ok {
		n.sched = scheduleFrom(d.Schedule)
	}
}

func (n *constantSourceNode) ScheduleStart(frame int64) { n.sched.start = frame }
func (n *constantSourceNode) ScheduleStop(frame int64)  { n.sched.stop = frame }

// oscillatorNode is a phase-accumulator oscillator. Frequency and
// detune are audio-rate parameters; the effective frequency is
// frequency * 2^(detune/1200), clamped to the Nyquist limit.
type oscillatorNode struct {
	out       *bus.Bus
	shape     graph.Waveform
	table     []float32
	tableGain float32
	phase     float64
	sched     schedule
}

func newOscillatorNode(desc graph.OscillatorNode, quantum int) *oscillatorNode {
	return &oscillatorNode{
		out:       bus.New(1, quantum),
		shape:     desc.Shape,
		table:     desc.WaveTable,
		tableGain: desc.WaveTableGain,
		sched:     scheduleFrom(desc.Schedule),
	}
}

func (n *oscillatorNode) Process(ctx *Context, _ graph.NodeID, _ []*bus.Bus, params []*bus.Bus) {
	freq := params[graph.OscillatorParamFrequency].Channel(0)
	detune := params[graph.OscillatorParamDetune].Channel(0)
	dst := n.out.Channel(0)
	nyquist := float64(ctx.SampleRate) / 2

	for i := range dst {
		if !n.sched.activeAt(ctx.CurrentFrame + uint64(i)) {
			dst[i] = 0
			continue
		}
		f := float64(freq[i]) * math.Exp2(float64(detune[i])/1200)
		if f > nyquist {
			f = nyquist
		}
		if f < -nyquist {
			f = -nyquist
		}
		dst[i] = n.sample()
		n.phase += f / float64(ctx.SampleRate)
		n.phase -= math.Floor(n.phase)
	}
}

func (n *oscillatorNode) sample() float32 {
	switch n.shape {
	case graph.WaveSine:
		return float32(math.Sin(2 * math.Pi * n.phase))
	case graph.WaveSquare:
		if n.phase < 0.5 {
			return 1
		}
		return -1
	case graph.WaveSawtooth:
		return float32(2*n.phase - 1)
	case graph.WaveTriangle:
		if n.phase < 0.5 {
			return float32(4*n.phase - 1)
		}
		return float32(3 - 4*n.phase)
	case graph.WaveCustom:
		m := len(n.table)
		if m == 0 {
			return 0
		}
		pos := n.phase * float64(m)
		i := int(pos) % m
		frac := float32(pos - math.Floor(pos))
		next := n.table[(i+1)%m]
		return (n.table[i] + frac*(next-n.table[i])) * n.tableGain
	}
	return 0
}

func (n *oscillatorNode) Output(int) *bus.Bus { return n.out }
func (n *oscillatorNode) OutputCount() int    { return 1 }

func (n *oscillatorNode) ApplyDescription(desc graph.NodeDescription) {
	if d, ok := desc.(graph.OscillatorNode); ok {
		n.sched = scheduleFrom(d.Schedule)
	}
}

func (n *oscillatorNode) ScheduleStart(frame int64) { n.sched.start = frame }
func (n *oscillatorNode) ScheduleStop(frame int64)  { n.sched.stop = frame }

// bufferSourceNode plays a sample buffer resolved from the resource
// registry at build time. An unresolved or empty buffer renders
// silence; playback position is in source frames from the schedule
// start.
type bufferSourceNode struct {
	out    *bus.Bus
	buffer *graph.SampleBuffer
	loop   bool
	sched  schedule
}

func newBufferSourceNode(desc graph.BufferSourceNode, res graph.ResourceResolver, quantum int) *bufferSourceNode {
	n := &bufferSourceNode{
		out:   bus.NewWithCapacity(1, bus.MaxChannels, quantum),
		loop:  desc.Loop,
		sched: scheduleFrom(desc.Schedule),
	}
	if res != nil && desc.BufferID != 0 {
		n.buffer = res.ResolveSampleBuffer(desc.BufferID)
	}
	return n
}

func (n *bufferSourceNode) Process(ctx *Context, _ graph.NodeID, _ []*bus.Bus, _ []*bus.Bus) {
	if n.buffer == nil || n.buffer.Frames() == 0 || len(n.buffer.Channels) == 0 {
		n.out.SetChannelCount(1)
		n.out.Zero()
		return
	}
	// Registered buffers are not width-checked, only decoded ones are;
	// the output bus caps what can actually play.
	channels := len(n.buffer.Channels)
	if channels > bus.MaxChannels {
		channels = bus.MaxChannels
	}
	n.out.SetChannelCount(channels)
	total := int64(n.buffer.Frames())

	for c := 0; c < channels; c++ {
		src := n.buffer.Channels[c]
		dst := n.out.Channel(c)
		for i := range dst {
			frame := ctx.CurrentFrame + uint64(i)
			if !n.sched.activeAt(frame) {
				dst[i] = 0
				continue
			}
			pos := int64(frame) - n.sched.start
			if n.loop {
				pos %= total
			} else if pos >= total {
				dst[i] = 0
				continue
			}
			dst[i] = src[pos]
		}
	}
}

func (n *bufferSourceNode) Output(int) *bus.Bus { return n.out }
func (n *bufferSourceNode) OutputCount() int    { return 1 }

func (n *bufferSourceNode) ApplyDescription(desc graph.NodeDescription) {
	if d, ok := desc.(graph.BufferSourceNode); ok {
		n.loop = d.Loop
		n.sched = scheduleFrom(d.Schedule)
	}
}

func (n *bufferSourceNode) ScheduleStart(frame int64) { n.sched.start = frame }
func (n *bufferSourceNode) ScheduleStop(frame int64)  { n.sched.stop = frame }
