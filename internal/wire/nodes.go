// SPDX-License-Identifier: MIT
package wire

import (
	"fmt"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// encodeNodePayload writes one node's kind-specific payload. Kinds that
// depend on external sample data raise the external-resources flag.
func encodeNodePayload(e *Encoder, node graph.NodeDescription, flags *uint32) {
	switch n := node.(type) {
	case graph.UnsupportedNode:
	case graph.DestinationNode:
		encodeLayout(e, n.Layout)
	case graph.GainNode:
		encodeLayout(e, n.Layout)
		e.F32(n.Gain)
	case graph.DelayNode:
		encodeLayout(e, n.Layout)
		e.F64(n.DelaySeconds)
		e.F64(n.MaxDelaySeconds)
	case graph.StereoPannerNode:
		encodeLayout(e, n.Layout)
		e.F32(n.Pan)
	case graph.ConstantSourceNode:
		e.F32(n.Offset)
		encodeSchedule(e, n.Schedule)
	case graph.OscillatorNode:
		e.F32(n.Frequency)
		e.F32(n.Detune)
		e.U8(uint8(n.Shape))
		e.F32(n.WaveTableGain)
		e.U32(uint32(len(n.WaveTable)))
		for _, v := range n.WaveTable {
			e.F32(v)
		}
		encodeSchedule(e, n.Schedule)
	case graph.IIRFilterNode:
		encodeLayout(e, n.Layout)
		e.U32(uint32(len(n.Feedforward)))
		for _, v := range n.Feedforward {
			e.F64(v)
		}
		e.U32(uint32(len(n.Feedback)))
		for _, v := range n.Feedback {
			e.F64(v)
		}
	case graph.BufferSourceNode:
		// Buffer sources always depend on external data, even when the
		// buffer payload itself travels out of band.
		*flags |= FlagExternalResources
		e.U64(n.BufferID)
		if n.Loop {
			e.U8(1)
		} else {
			e.U8(0)
		}
		encodeSchedule(e, n.Schedule)
	case graph.AnalyserNode:
		encodeLayout(e, n.Layout)
		e.U32(uint32(n.FFTSize))
		e.F64(n.SmoothingTimeConstant)
		e.F64(n.MinDecibels)
		e.F64(n.MaxDecibels)
	case graph.AudioWorkletNode:
		encodeLayout(e, n.Layout)
		e.String(n.ProcessorName)
		e.U32(uint32(n.NumberOfInputs))
		e.U32(uint32(n.NumberOfOutputs))
		e.U32(uint32(len(n.OutputChannelCounts)))
		for _, c := range n.OutputChannelCounts {
			e.U32(uint32(c))
		}
		e.U32(uint32(len(n.ParameterNames)))
		for _, name := range n.ParameterNames {
			e.String(name)
		}
	case graph.ScriptProcessorNode:
		encodeLayout(e, n.Layout)
		e.U32(uint32(n.BufferSize))
		e.U32(uint32(n.InputChannels))
		e.U32(uint32(n.OutputChannels))
	case graph.TapNode:
		encodeLayout(e, n.Layout)
		e.String(n.Label)
	}
}

// decodeNodePayload parses one node's payload. Kinds this decoder does
// not know are rejected explicitly rather than silently dropped.
func decodeNodePayload(kind graph.NodeKind, d *Decoder) (graph.NodeDescription, error) {
	var node graph.NodeDescription
	switch kind {
	case graph.KindUnsupported:
		node = graph.UnsupportedNode{}
	case graph.KindDestination:
		node = graph.DestinationNode{Layout: decodeLayout(d)}
	case graph.KindGain:
		node = graph.GainNode{Layout: decodeLayout(d), Gain: d.F32()}
	case graph.KindDelay:
		node = graph.DelayNode{
			Layout:          decodeLayout(d),
			DelaySeconds:    d.F64(),
			MaxDelaySeconds: d.F64(),
		}
	case graph.KindStereoPanner:
		node = graph.StereoPannerNode{Layout: decodeLayout(d), Pan: d.F32()}
	case graph.KindConstantSource:
		node = graph.ConstantSourceNode{Offset: d.F32(), Schedule: decodeSchedule(d)}
	case graph.KindOscillator:
		n := graph.OscillatorNode{
			Frequency:     d.F32(),
			Detune:        d.F32(),
			Shape:         graph.Waveform(d.U8()),
			WaveTableGain: d.F32(),
		}
		tableLen := d.Count(4)
		if tableLen > 0 {
			n.WaveTable = make([]float32, tableLen)
			for i := 0; i < tableLen; i++ {
				n.WaveTable[i] = d.F32()
			}
		}
		n.Schedule = decodeSchedule(d)
		node = n
	case graph.KindIIRFilter:
		n := graph.IIRFilterNode{Layout: decodeLayout(d)}
		ffCount := d.U32()
		for i := uint32(0); i < ffCount && d.Err() == nil; i++ {
			n.Feedforward = append(n.Feedforward, d.F64())
		}
		fbCount := d.U32()
		for i := uint32(0); i < fbCount && d.Err() == nil; i++ {
			n.Feedback = append(n.Feedback, d.F64())
		}
		node = n
	case graph.KindBufferSource:
		node = graph.BufferSourceNode{
			BufferID: d.U64(),
			Loop:     d.U8() != 0,
			Schedule: decodeSchedule(d),
		}
	case graph.KindAnalyser:
		node = graph.AnalyserNode{
			Layout:                decodeLayout(d),
			FFTSize:               int(d.U32()),
			SmoothingTimeConstant: d.F64(),
			MinDecibels:           d.F64(),
			MaxDecibels:           d.F64(),
		}
	case graph.KindAudioWorklet:
		n := graph.AudioWorkletNode{
			Layout:          decodeLayout(d),
			ProcessorName:   d.String(),
			NumberOfInputs:  int(d.U32()),
			NumberOfOutputs: int(d.U32()),
		}
		countOutputs := d.U32()
		for i := uint32(0); i < countOutputs && d.Err() == nil; i++ {
			n.OutputChannelCounts = append(n.OutputChannelCounts, int(d.U32()))
		}
		countParams := d.U32()
		for i := uint32(0); i < countParams && d.Err() == nil; i++ {
			n.ParameterNames = append(n.ParameterNames, d.String())
		}
		node = n
	case graph.KindScriptProcessor:
		node = graph.ScriptProcessorNode{
			Layout:         decodeLayout(d),
			BufferSize:     int(d.U32()),
			InputChannels:  int(d.U32()),
			OutputChannels: int(d.U32()),
		}
	case graph.KindTap:
		node = graph.TapNode{Layout: decodeLayout(d), Label: d.String()}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownNodeKind, kind)
	}
	if d.Err() != nil {
		return nil, d.Err()
	}
	return node, nil
}

func encodeLayout(e *Encoder, l graph.ChannelLayout) {
	e.U32(uint32(l.Count))
	e.U8(uint8(l.Mode))
	e.U8(uint8(l.Interpretation))
}

func decodeLayout(d *Decoder) graph.ChannelLayout {
	return graph.ChannelLayout{
		Count:          int(d.U32()),
		Mode:           bus.ChannelCountMode(d.U8()),
		Interpretation: bus.ChannelInterpretation(d.U8()),
	}
}

func encodeSchedule(e *Encoder, s graph.FrameSchedule) {
	e.I64(s.StartFrame)
	e.I64(s.StopFrame)
}

func decodeSchedule(d *Decoder) graph.FrameSchedule {
	return graph.FrameSchedule{StartFrame: d.I64(), StopFrame: d.I64()}
}
