// SPDX-License-Identifier: MIT
package graph

// NodeKind tags a NodeDescription's concrete payload. Values are
// wire-stable; never renumber.
type NodeKind uint8

const (
	KindUnsupported NodeKind = iota
	KindDestination
	KindGain
	KindDelay
	KindStereoPanner
	KindConstantSource
	KindOscillator
	KindIIRFilter
	KindBufferSource
	KindAnalyser
	KindAudioWorklet
	KindScriptProcessor
	KindTap
)

func (k NodeKind) String() string {
	switch k {
	case KindUnsupported:
		return "Unsupported"
	case KindDestination:
		return "Destination"
	case KindGain:
		return "Gain"
	case KindDelay:
		return "Delay"
	case KindStereoPanner:
		return "StereoPanner"
	case KindConstantSource:
		return "ConstantSource"
	case KindOscillator:
		return "Oscillator"
	case KindIIRFilter:
		return "IIRFilter"
	case KindBufferSource:
		return "BufferSource"
	case KindAnalyser:
		return "Analyser"
	case KindAudioWorklet:
		return "AudioWorklet"
	case KindScriptProcessor:
		return "ScriptProcessor"
	case KindTap:
		return "Tap"
	default:
		return "Unknown"
	}
}

// NodeDescription is one entry of a graph snapshot: plain data describing
// a render node, carrying no references to control-thread-owned memory.
type NodeDescription interface {
	Kind() NodeKind
	// ClassifyUpdate compares against another description of the same
	// kind. Callers go through ClassifyNodeUpdate, which handles kind
	// mismatches.
	ClassifyUpdate(other NodeDescription) UpdateKind
}

// Waveform selects an oscillator's basic wave shape.
type Waveform uint8

const (
	WaveSine Waveform = iota
	WaveSquare
	WaveSawtooth
	WaveTriangle
	WaveCustom
)

// UnsupportedNode is the inert stand-in the builder emits for live nodes
// it cannot describe. It renders silence and never changes.
type UnsupportedNode struct{}

func (UnsupportedNode) Kind() NodeKind { return KindUnsupported }
func (UnsupportedNode) ClassifyUpdate(NodeDescription) UpdateKind {
	return UpdateNone
}

// DestinationNode is the graph sink: it clamps the first input to its
// configured channel count.
type DestinationNode struct {
	Layout ChannelLayout
}

func (DestinationNode) Kind() NodeKind { return KindDestination }
func (d DestinationNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(DestinationNode)
	return classifyLayout(d.Layout, o.Layout, UpdateNone)
}

// GainNode multiplies its input by a scalar (optionally audio-rate via a
// parameter connection).
type GainNode struct {
	Layout ChannelLayout
	Gain   float32
}

// Gain node parameter indices.
const GainParamGain = 0

func (GainNode) Kind() NodeKind { return KindGain }
func (g GainNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(GainNode)
	param := UpdateNone
	if g.Gain != o.Gain {
		param = UpdateParameterOnly
	}
	return classifyLayout(g.Layout, o.Layout, param)
}

// DelayNode delays its input by DelaySeconds, bounded by MaxDelaySeconds.
// A delay node may legally close a feedback cycle.
type DelayNode struct {
	Layout          ChannelLayout
	DelaySeconds    float64
	MaxDelaySeconds float64
}

// Delay node parameter indices.
const DelayParamTime = 0

func (DelayNode) Kind() NodeKind { return KindDelay }
func (d DelayNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(DelayNode)
	if d.MaxDelaySeconds != o.MaxDelaySeconds {
		// Ring capacity changes force a rebuild of the node.
		return UpdateTopology
	}
	param := UpdateNone
	if d.DelaySeconds != o.DelaySeconds {
		param = UpdateParameterOnly
	}
	return classifyLayout(d.Layout, o.Layout, param)
}

// StereoPannerNode applies an equal-power pan; output is always stereo.
type StereoPannerNode struct {
	Layout ChannelLayout
	Pan    float32
}

// StereoPanner node parameter indices.
const StereoPannerParamPan = 0

func (StereoPannerNode) Kind() NodeKind { return KindStereoPanner }
func (p StereoPannerNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(StereoPannerNode)
	param := UpdateNone
	if p.Pan != o.Pan {
		param = UpdateParameterOnly
	}
	return classifyLayout(p.Layout, o.Layout, param)
}

// ConstantSourceNode emits a constant offset, gated by its schedule.
type ConstantSourceNode struct {
	Offset   float32
	Schedule FrameSchedule
}

// ConstantSource node parameter indices.
const ConstantSourceParamOffset = 0

func (ConstantSourceNode) Kind() NodeKind { return KindConstantSource }
func (c ConstantSourceNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(ConstantSourceNode)
	if c.Offset != o.Offset || c.Schedule != o.Schedule {
		return UpdateParameterOnly
	}
	return UpdateNone
}

// OscillatorNode generates a periodic waveform from an internal phase.
// For WaveCustom, WaveTable holds one precomputed period and
// WaveTableGain the normalization factor applied to it.
type OscillatorNode struct {
	Frequency     float32
	Detune        float32
	Shape         Waveform
	WaveTable     []float32
	WaveTableGain float32
	Schedule      FrameSchedule
}

// Oscillator node parameter indices.
const (
	OscillatorParamFrequency = 0
	OscillatorParamDetune    = 1
)

func (OscillatorNode) Kind() NodeKind { return KindOscillator }
func (n OscillatorNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(OscillatorNode)
	if n.Shape != o.Shape || !float32SlicesEqual(n.WaveTable, o.WaveTable) {
		return UpdateTopology
	}
	if n.Frequency != o.Frequency || n.Detune != o.Detune ||
		n.WaveTableGain != o.WaveTableGain || n.Schedule != o.Schedule {
		return UpdateParameterOnly
	}
	return UpdateNone
}

// IIRFilterNode applies a fixed-coefficient IIR filter. History length is
// sized to the coefficient counts; channel growth extends history.
type IIRFilterNode struct {
	Layout      ChannelLayout
	Feedforward []float64
	Feedback    []float64
}

func (IIRFilterNode) Kind() NodeKind { return KindIIRFilter }
func (f IIRFilterNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(IIRFilterNode)
	if !float64SlicesEqual(f.Feedforward, o.Feedforward) ||
		!float64SlicesEqual(f.Feedback, o.Feedback) {
		// Coefficient changes invalidate filter history.
		return UpdateTopology
	}
	return classifyLayout(f.Layout, o.Layout, UpdateNone)
}

// BufferSourceNode plays a PCM buffer held in the resource registry,
// referenced by id rather than embedded inline.
type BufferSourceNode struct {
	BufferID uint64
	Loop     bool
	Schedule FrameSchedule
}

func (BufferSourceNode) Kind() NodeKind { return KindBufferSource }
func (b BufferSourceNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(BufferSourceNode)
	if b.BufferID != o.BufferID {
		return UpdateTopology
	}
	if b.Loop != o.Loop || b.Schedule != o.Schedule {
		return UpdateParameterOnly
	}
	return UpdateNone
}

// AnalyserNode passes audio through while capturing time-domain data for
// FFT analysis readback.
type AnalyserNode struct {
	Layout                ChannelLayout
	FFTSize               int
	SmoothingTimeConstant float64
	MinDecibels           float64
	MaxDecibels           float64
}

func (AnalyserNode) Kind() NodeKind { return KindAnalyser }
func (a AnalyserNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(AnalyserNode)
	if a.FFTSize != o.FFTSize {
		return UpdateTopology
	}
	param := UpdateNone
	if a.SmoothingTimeConstant != o.SmoothingTimeConstant ||
		a.MinDecibels != o.MinDecibels || a.MaxDecibels != o.MaxDecibels {
		param = UpdateParameterOnly
	}
	return classifyLayout(a.Layout, o.Layout, param)
}

// AudioWorkletNode delegates processing to user-supplied worklet code
// identified by processor name. ParameterNames orders the worklet's
// custom parameters; their indices follow the slice order.
type AudioWorkletNode struct {
	Layout              ChannelLayout
	ProcessorName       string
	NumberOfInputs      int
	NumberOfOutputs     int
	OutputChannelCounts []int
	ParameterNames      []string
}

func (AudioWorkletNode) Kind() NodeKind { return KindAudioWorklet }
func (w AudioWorkletNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(AudioWorkletNode)
	if w.ProcessorName != o.ProcessorName ||
		w.NumberOfInputs != o.NumberOfInputs ||
		w.NumberOfOutputs != o.NumberOfOutputs ||
		!intSlicesEqual(w.OutputChannelCounts, o.OutputChannelCounts) ||
		!stringSlicesEqual(w.ParameterNames, o.ParameterNames) {
		return UpdateTopology
	}
	return classifyLayout(w.Layout, o.Layout, UpdateNone)
}

// ScriptProcessorNode is the deprecated synchronous callback node. Its
// buffer size and channel counts are fixed at construction.
type ScriptProcessorNode struct {
	Layout         ChannelLayout
	BufferSize     int
	InputChannels  int
	OutputChannels int
}

func (ScriptProcessorNode) Kind() NodeKind { return KindScriptProcessor }
func (s ScriptProcessorNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(ScriptProcessorNode)
	if s.BufferSize != o.BufferSize || s.InputChannels != o.InputChannels ||
		s.OutputChannels != o.OutputChannels {
		return UpdateTopology
	}
	return classifyLayout(s.Layout, o.Layout, UpdateNone)
}

// TapNode passes audio through while optionally recording raw channel
// data via an injected sink (used for engine test fixtures).
type TapNode struct {
	Layout ChannelLayout
	Label  string
}

func (TapNode) Kind() NodeKind { return KindTap }
func (t TapNode) ClassifyUpdate(other NodeDescription) UpdateKind {
	o := other.(TapNode)
	if t.Label != o.Label {
		return UpdateParameterOnly
	}
	return classifyLayout(t.Layout, o.Layout, UpdateNone)
}

// ParamCount returns the number of automatable parameters a node
// exposes. Worklet nodes expose one per entry of ParameterNames, in
// slice order; every other kind has a fixed count.
func ParamCount(desc NodeDescription) int {
	if w, ok := desc.(AudioWorkletNode); ok {
		return len(w.ParameterNames)
	}
	switch desc.Kind() {
	case KindGain, KindDelay, KindStereoPanner, KindConstantSource:
		return 1
	case KindOscillator:
		return 2
	default:
		return 0
	}
}

func classifyLayout(a, b ChannelLayout, fallback UpdateKind) UpdateKind {
	if a != b {
		return UpdateTopology
	}
	return fallback
}

func float32SlicesEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func float64SlicesEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intSlicesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
