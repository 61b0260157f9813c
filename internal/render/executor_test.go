// SPDX-License-Identifier: MIT
package render

import (
	"testing"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
	"audiograph/internal/wire"
)

func newTestExecutor(t *testing.T, desc *graph.Description, opts Options) *Executor {
	t.Helper()
	if opts.SampleRate == 0 {
		opts.SampleRate = 48000
	}
	ex, err := New(desc, nil, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ex
}

// constChain builds: constant source 1 -> gain 2 -> destination 3.
func constChain(gain float32) *graph.Description {
	d := graph.NewDescription(3)
	d.Nodes[1] = graph.ConstantSourceNode{Offset: 1, Schedule: graph.FrameSchedule{StartFrame: 0, StopFrame: graph.NoFrame}}
	d.Nodes[2] = graph.GainNode{Gain: gain}
	d.Nodes[3] = graph.DestinationNode{Layout: graph.ChannelLayout{Count: 2}}
	d.Connections = []graph.Connection{
		{Source: 1, Destination: 2},
		{Source: 2, Destination: 3},
	}
	return d
}

// oscChain builds: oscillator 1 -> gain 2 -> destination 3.
func oscChain() *graph.Description {
	d := graph.NewDescription(3)
	d.Nodes[1] = graph.OscillatorNode{
		Frequency: 440,
		Shape:     graph.WaveSine,
		Schedule:  graph.FrameSchedule{StartFrame: 0, StopFrame: graph.NoFrame},
	}
	d.Nodes[2] = graph.GainNode{Gain: 0.5}
	d.Nodes[3] = graph.DestinationNode{Layout: graph.ChannelLayout{Count: 2}}
	d.Connections = []graph.Connection{
		{Source: 1, Destination: 2},
		{Source: 2, Destination: 3},
	}
	return d
}

func TestRenderEmptyGraphIsSilent(t *testing.T) {
	d := graph.NewDescription(1)
	d.Nodes[1] = graph.DestinationNode{Layout: graph.ChannelLayout{Count: 2}}
	ex := newTestExecutor(t, d, Options{})

	out := ex.RenderQuantum()
	if out.ChannelCount() != 2 {
		t.Fatalf("channel count: got %d, want 2", out.ChannelCount())
	}
	for c := 0; c < out.ChannelCount(); c++ {
		for i, v := range out.Channel(c) {
			if v != 0 {
				t.Fatalf("channel %d frame %d: got %v, want silence", c, i, v)
			}
		}
	}
}

func TestRenderConstantChain(t *testing.T) {
	ex := newTestExecutor(t, constChain(0.5), Options{})

	out := ex.RenderQuantum()
	if out.ChannelCount() != 2 {
		t.Fatalf("channel count: got %d, want 2", out.ChannelCount())
	}
	// A mono constant up-mixes to both destination channels unchanged.
	for c := 0; c < 2; c++ {
		for i, v := range out.Channel(c) {
			if v != 0.5 {
				t.Fatalf("channel %d frame %d: got %v, want 0.5", c, i, v)
			}
		}
	}
	if ex.CurrentFrame() != uint64(ex.Quantum()) {
		t.Fatalf("frame position: got %d, want %d", ex.CurrentFrame(), ex.Quantum())
	}
}

func TestRenderOscillatorChain(t *testing.T) {
	ex := newTestExecutor(t, oscChain(), Options{})

	out := ex.RenderQuantum()
	var energy float64
	for i, v := range out.Channel(0) {
		if v > 0.5001 || v < -0.5001 {
			t.Fatalf("frame %d exceeds gain bound: %v", i, v)
		}
		if v != out.Channel(1)[i] {
			t.Fatalf("frame %d: channels diverge (%v vs %v)", i, v, out.Channel(1)[i])
		}
		energy += float64(v * v)
	}
	if energy == 0 {
		t.Fatal("oscillator produced no energy")
	}
}

func TestWireRoundTripRendersIdentically(t *testing.T) {
	direct := newTestExecutor(t, oscChain(), Options{})

	payload := wire.EncodeGraph(oscChain(), 48000, nil)
	decoded, err := wire.DecodeGraph(payload)
	if err != nil {
		t.Fatalf("DecodeGraph: %v", err)
	}
	roundTripped := newTestExecutor(t, decoded.Description, Options{})

	for q := 0; q < 4; q++ {
		a := direct.RenderQuantum()
		b := roundTripped.RenderQuantum()
		for c := 0; c < a.ChannelCount(); c++ {
			for i := range a.Channel(c) {
				if a.Channel(c)[i] != b.Channel(c)[i] {
					t.Fatalf("quantum %d channel %d frame %d: %v != %v",
						q, c, i, a.Channel(c)[i], b.Channel(c)[i])
				}
			}
		}
	}
}

func TestParameterUpdateAppliesAtQuantumBoundary(t *testing.T) {
	ex := newTestExecutor(t, constChain(0.5), Options{})

	out := ex.RenderQuantum()
	if out.Channel(0)[0] != 0.5 {
		t.Fatalf("initial gain: got %v, want 0.5", out.Channel(0)[0])
	}

	kind, err := ex.SubmitUpdate(constChain(0.25), nil)
	if err != nil {
		t.Fatalf("SubmitUpdate: %v", err)
	}
	if kind != graph.UpdateParameterOnly {
		t.Fatalf("classification: got %v, want ParameterOnly", kind)
	}

	out = ex.RenderQuantum()
	for i, v := range out.Channel(0) {
		if v != 0.25 {
			t.Fatalf("frame %d after update: got %v, want 0.25", i, v)
		}
	}
	if ex.ReleaseRetired() == 0 {
		t.Fatal("consumed update slot was not retired")
	}
}

func TestResubmittingSameGraphIsNoOp(t *testing.T) {
	ex := newTestExecutor(t, constChain(0.5), Options{})
	kind, err := ex.SubmitUpdate(constChain(0.5), nil)
	if err != nil {
		t.Fatalf("SubmitUpdate: %v", err)
	}
	if kind != graph.UpdateNone {
		t.Fatalf("classification: got %v, want None", kind)
	}
}

func TestTopologyUpdatePreservesOscillatorPhase(t *testing.T) {
	reference := newTestExecutor(t, oscChain(), Options{})
	updated := newTestExecutor(t, oscChain(), Options{})

	reference.RenderQuantum()
	updated.RenderQuantum()

	// Adding an unrelated node is a topology change, but the oscillator
	// survives it and must not restart.
	d := oscChain()
	d.Nodes[9] = graph.UnsupportedNode{}
	kind, err := updated.SubmitUpdate(d, nil)
	if err != nil {
		t.Fatalf("SubmitUpdate: %v", err)
	}
	if kind != graph.UpdateTopology {
		t.Fatalf("classification: got %v, want Topology", kind)
	}

	a := reference.RenderQuantum()
	b := updated.RenderQuantum()
	for i := range a.Channel(0) {
		if a.Channel(0)[i] != b.Channel(0)[i] {
			t.Fatalf("frame %d: phase discontinuity (%v != %v)", i, a.Channel(0)[i], b.Channel(0)[i])
		}
	}
}

func TestUnbreakableCycleIsMuted(t *testing.T) {
	// A gain loop with no delay on it cannot be ordered; everything on
	// it renders silence while the rest of the graph keeps playing.
	d := constChain(1)
	d.Nodes[4] = graph.GainNode{Gain: 1}
	d.Nodes[5] = graph.GainNode{Gain: 1}
	d.Connections = append(d.Connections,
		graph.Connection{Source: 4, Destination: 5},
		graph.Connection{Source: 5, Destination: 4},
	)
	ex := newTestExecutor(t, d, Options{})

	out := ex.RenderQuantum()
	for i, v := range out.Channel(0) {
		if v != 1 {
			t.Fatalf("frame %d: got %v, want the live branch unaffected", i, v)
		}
	}

	// When the cycle feeds the destination, the destination goes silent
	// rather than the executor rejecting the graph.
	d2 := graph.NewDescription(3)
	d2.Nodes[3] = graph.DestinationNode{Layout: graph.ChannelLayout{Count: 2}}
	d2.Nodes[4] = graph.GainNode{Gain: 1}
	d2.Nodes[5] = graph.GainNode{Gain: 1}
	d2.Connections = []graph.Connection{
		{Source: 4, Destination: 5},
		{Source: 5, Destination: 4},
		{Source: 5, Destination: 3},
	}
	ex2 := newTestExecutor(t, d2, Options{})
	out2 := ex2.RenderQuantum()
	for i, v := range out2.Channel(0) {
		if v != 0 {
			t.Fatalf("frame %d: got %v, want silence downstream of cycle", i, v)
		}
	}
}

func TestDelayFeedbackCycle(t *testing.T) {
	// Sample rate 128 with the default quantum of 128 frames makes a
	// one second delay exactly one quantum, so the feedback sum is easy
	// to predict: 0, then 1, then 1 + 0.5.
	d := graph.NewDescription(4)
	d.Nodes[1] = graph.ConstantSourceNode{Offset: 1, Schedule: graph.FrameSchedule{StartFrame: 0, StopFrame: graph.NoFrame}}
	d.Nodes[2] = graph.DelayNode{DelaySeconds: 1, MaxDelaySeconds: 2}
	d.Nodes[3] = graph.GainNode{Gain: 0.5}
	d.Nodes[4] = graph.DestinationNode{Layout: graph.ChannelLayout{Count: 2}}
	d.Connections = []graph.Connection{
		{Source: 1, Destination: 2},
		{Source: 2, Destination: 3},
		{Source: 3, Destination: 2}, // feedback
		{Source: 2, Destination: 4},
	}
	ex := newTestExecutor(t, d, Options{SampleRate: 128})

	for q, want := range []float32{0, 1, 1.5} {
		out := ex.RenderQuantum()
		for i, v := range out.Channel(0) {
			if v != want {
				t.Fatalf("quantum %d frame %d: got %v, want %v", q, i, v, want)
			}
		}
	}
}

func TestScheduleSourceStartStop(t *testing.T) {
	d := constChain(1)
	d.Nodes[1] = graph.ConstantSourceNode{Offset: 1, Schedule: graph.Unscheduled()}
	ex := newTestExecutor(t, d, Options{})
	quantum := int64(ex.Quantum())

	out := ex.RenderQuantum()
	if out.Channel(0)[0] != 0 {
		t.Fatal("unscheduled source should be silent")
	}

	ex.ScheduleSourceStart(1, 0)
	out = ex.RenderQuantum()
	for i, v := range out.Channel(0) {
		if v != 1 {
			t.Fatalf("frame %d after start: got %v, want 1", i, v)
		}
	}

	ex.ScheduleSourceStop(1, 2*quantum)
	out = ex.RenderQuantum()
	for i, v := range out.Channel(0) {
		if v != 0 {
			t.Fatalf("frame %d after stop: got %v, want silence", i, v)
		}
	}
}

func TestAnalyserAccessors(t *testing.T) {
	d := graph.NewDescription(3)
	d.Nodes[1] = graph.ConstantSourceNode{Offset: 1, Schedule: graph.FrameSchedule{StartFrame: 0, StopFrame: graph.NoFrame}}
	d.Nodes[2] = graph.AnalyserNode{FFTSize: 256, SmoothingTimeConstant: 0, MinDecibels: -100, MaxDecibels: -30}
	d.Nodes[3] = graph.DestinationNode{Layout: graph.ChannelLayout{Count: 2}}
	d.Connections = []graph.Connection{
		{Source: 1, Destination: 2},
		{Source: 2, Destination: 3},
	}
	ex := newTestExecutor(t, d, Options{})

	// Fill the analyser ring.
	var out0 float32
	for q := 0; q < 4; q++ {
		out := ex.RenderQuantum()
		out0 = out.Channel(0)[0]
	}
	if out0 != 1 {
		t.Fatalf("analyser must pass audio through, got %v", out0)
	}

	freq := make([]float32, 128)
	n, ok := ex.AnalyserFrequencyData(2, freq)
	if !ok || n != 128 {
		t.Fatalf("frequency data: got n=%d ok=%v", n, ok)
	}
	// A DC signal concentrates its energy in bin zero.
	for i := 1; i < n; i++ {
		if freq[i] > freq[0] {
			t.Fatalf("bin %d louder than DC bin: %v > %v", i, freq[i], freq[0])
		}
	}

	td := make([]float32, 64)
	n, ok = ex.AnalyserTimeDomainData(2, td)
	if !ok || n != 64 {
		t.Fatalf("time domain data: got n=%d ok=%v", n, ok)
	}
	for i, v := range td {
		if v != 1 {
			t.Fatalf("time domain frame %d: got %v, want 1", i, v)
		}
	}

	if _, ok := ex.AnalyserFrequencyData(1, freq); ok {
		t.Fatal("non-analyser id must report false")
	}
}

func TestBufferSourceClampsOverwideBuffer(t *testing.T) {
	// Registered buffers bypass the decode-side width check; playback
	// must cap at the bus capacity instead of indexing past it.
	res := graph.NewResourceRegistry()
	over := &graph.SampleBuffer{SampleRate: 48000}
	over.Channels = make([][]float32, bus.MaxChannels+2)
	for c := range over.Channels {
		over.Channels[c] = []float32{0.5, 0.5}
	}
	id := res.Register(over)

	d := graph.NewDescription(2)
	d.Nodes[1] = graph.BufferSourceNode{BufferID: id, Loop: true, Schedule: graph.FrameSchedule{StartFrame: 0, StopFrame: graph.NoFrame}}
	d.Nodes[2] = graph.DestinationNode{Layout: graph.ChannelLayout{Count: 2}}
	d.Connections = []graph.Connection{{Source: 1, Destination: 2}}

	ex, err := New(d, res, Options{SampleRate: 48000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out := ex.RenderQuantum()
	if out.ChannelCount() != 2 {
		t.Fatalf("destination channels: got %d, want 2", out.ChannelCount())
	}
	src := ex.compiled.Load().states[1].node
	if got := src.Output(0).ChannelCount(); got != bus.MaxChannels {
		t.Fatalf("source channels: got %d, want %d", got, bus.MaxChannels)
	}
}
