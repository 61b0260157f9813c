// SPDX-License-Identifier: MIT
package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiograph/internal/graph"
)

// fullGraph exercises every node kind and every table the codec emits.
func fullGraph() (*graph.Description, *graph.ResourceRegistry) {
	res := graph.NewResourceRegistry()
	bufID := res.Register(&graph.SampleBuffer{
		SampleRate: 44100,
		Channels:   [][]float32{{0.1, 0.2, 0.3}, {-0.1, -0.2, -0.3}},
	})

	d := graph.NewDescription(1)
	d.Nodes[1] = graph.DestinationNode{Layout: graph.ChannelLayout{Count: 2}}
	d.Nodes[2] = graph.GainNode{Gain: 0.5, Layout: graph.ChannelLayout{Count: 2}}
	d.Nodes[3] = graph.DelayNode{DelaySeconds: 0.25, MaxDelaySeconds: 2}
	d.Nodes[4] = graph.StereoPannerNode{Pan: -0.5}
	d.Nodes[5] = graph.ConstantSourceNode{Offset: 1, Schedule: graph.FrameSchedule{StartFrame: 0, StopFrame: graph.NoFrame}}
	d.Nodes[6] = graph.OscillatorNode{
		Frequency:     440,
		Detune:        12.5,
		Shape:         graph.WaveCustom,
		WaveTable:     []float32{0, 1, 0, -1},
		WaveTableGain: 0.9,
		Schedule:      graph.Unscheduled(),
	}
	d.Nodes[7] = graph.IIRFilterNode{Feedforward: []float64{0.2, 0.2}, Feedback: []float64{1, -0.5}}
	d.Nodes[8] = graph.BufferSourceNode{BufferID: bufID, Loop: true, Schedule: graph.FrameSchedule{StartFrame: 128, StopFrame: 4096}}
	d.Nodes[9] = graph.AnalyserNode{FFTSize: 1024, SmoothingTimeConstant: 0.8, MinDecibels: -100, MaxDecibels: -30}
	d.Nodes[10] = graph.AudioWorkletNode{
		ProcessorName:       "crusher",
		NumberOfInputs:      1,
		NumberOfOutputs:     2,
		OutputChannelCounts: []int{2, 1},
		ParameterNames:      []string{"drive", "mix"},
	}
	d.Nodes[11] = graph.ScriptProcessorNode{BufferSize: 512, InputChannels: 2, OutputChannels: 2}
	d.Nodes[12] = graph.TapNode{Label: "premix"}
	d.Nodes[13] = graph.UnsupportedNode{}

	d.Connections = []graph.Connection{
		{Source: 6, Destination: 2},
		{Source: 2, Destination: 3},
		{Source: 3, Destination: 1},
		{Source: 8, Destination: 4, SourceOutput: 0, DestinationInput: 0},
		{Source: 4, Destination: 1},
	}
	d.ParamConnections = []graph.ParamConnection{
		{Source: 5, Destination: 2, DestinationParam: graph.GainParamGain},
	}
	d.Automations = []graph.ParamAutomation{{
		Destination:  2,
		ParamIndex:   graph.GainParamGain,
		InitialValue: 0.5,
		DefaultValue: 1,
		MinValue:     0,
		MaxValue:     2,
		Rate:         graph.ARate,
		Segments: []graph.AutomationSegment{
			{Type: graph.SegmentLinearRamp, StartTime: 0, EndTime: 1, EndFrame: 48000, StartValue: 0.5, EndValue: 1},
			{Type: graph.SegmentTarget, StartTime: 1, StartFrame: 48000, StartValue: 1, Target: 0, TimeConstant: 0.5},
			{Type: graph.SegmentValueCurve, CurveStartTime: 2, CurveDuration: 1, StartFrame: 96000, Curve: []float32{0, 0.5, 1}},
		},
	}}
	return d, res
}

func TestGraphRoundTrip(t *testing.T) {
	desc, res := fullGraph()

	payload := EncodeGraph(desc, 48000, res)
	decoded, err := DecodeGraph(payload)
	require.NoError(t, err)

	// A decoded snapshot must be indistinguishable from the original.
	assert.Equal(t, graph.UpdateNone, graph.ClassifyUpdate(desc, decoded.Description))
	assert.Equal(t, desc.DestinationID, decoded.Description.DestinationID)
	assert.Equal(t, float32(48000), decoded.SampleRate)
	assert.NotZero(t, decoded.Flags&FlagExternalResources)

	buf := decoded.Resources.ResolveSampleBuffer(1)
	require.NotNil(t, buf)
	assert.Equal(t, float32(44100), buf.SampleRate)
	require.Len(t, buf.Channels, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, buf.Channels[0])
	assert.Equal(t, []float32{-0.1, -0.2, -0.3}, buf.Channels[1])
}

func TestGraphRoundTripWithoutResources(t *testing.T) {
	d := graph.NewDescription(1)
	d.Nodes[1] = graph.DestinationNode{}
	d.Nodes[2] = graph.OscillatorNode{Frequency: 220, Shape: graph.WaveSawtooth, Schedule: graph.Unscheduled()}
	d.Connections = []graph.Connection{{Source: 2, Destination: 1}}

	payload := EncodeGraph(d, 44100, nil)
	decoded, err := DecodeGraph(payload)
	require.NoError(t, err)

	assert.Zero(t, decoded.Flags&FlagExternalResources)
	assert.Equal(t, graph.UpdateNone, graph.ClassifyUpdate(d, decoded.Description))
}

func TestDecodeRejectsMissingBuffer(t *testing.T) {
	d := graph.NewDescription(1)
	d.Nodes[1] = graph.DestinationNode{}
	d.Nodes[2] = graph.BufferSourceNode{BufferID: 7, Schedule: graph.Unscheduled()}
	d.Connections = []graph.Connection{{Source: 2, Destination: 1}}

	// Encoding without a resolver omits the buffer table entirely.
	payload := EncodeGraph(d, 48000, nil)

	decoded, err := DecodeGraph(payload)
	assert.ErrorIs(t, err, ErrMissingBuffer)
	assert.Nil(t, decoded, "no partial graph on error")
}

func TestDecodeRejectsUnknownNodeKind(t *testing.T) {
	var e Encoder
	e.U32(GraphMagic)
	e.U16(GraphVersion)
	e.U16(0)
	e.U32(0)
	e.F32(48000)
	e.U64(1)
	// Node table with a single node of an unknown kind.
	e.U32(1) // section tag
	e.U32(17)
	e.U32(1)   // node count
	e.U64(1)   // node id
	e.U8(200)  // unknown kind
	e.U32(0)   // empty payload

	decoded, err := DecodeGraph(e.Bytes())
	assert.ErrorIs(t, err, ErrUnknownNodeKind)
	assert.Nil(t, decoded)
}

func TestDecodeSkipsUnknownSection(t *testing.T) {
	d := graph.NewDescription(1)
	d.Nodes[1] = graph.DestinationNode{}

	payload := EncodeGraph(d, 48000, nil)

	// Append a section from a hypothetical newer encoder.
	var extra Encoder
	extra.U32(999)
	extra.U32(4)
	extra.U32(0xdeadbeef)
	payload = append(payload, extra.Bytes()...)

	decoded, err := DecodeGraph(payload)
	require.NoError(t, err)
	assert.Equal(t, graph.UpdateNone, graph.ClassifyUpdate(d, decoded.Description))
}

func TestDecodeRejectsBadHeader(t *testing.T) {
	d := graph.NewDescription(1)
	d.Nodes[1] = graph.DestinationNode{}
	payload := EncodeGraph(d, 48000, nil)

	t.Run("bad magic", func(t *testing.T) {
		p := append([]byte(nil), payload...)
		p[0] ^= 0xff
		_, err := DecodeGraph(p)
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("bad version", func(t *testing.T) {
		p := append([]byte(nil), payload...)
		p[4] = 0xee
		_, err := DecodeGraph(p)
		assert.ErrorIs(t, err, ErrBadVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		for _, cut := range []int{1, 7, len(payload) / 2, len(payload) - 1} {
			_, err := DecodeGraph(payload[:cut])
			assert.Error(t, err, "cut at %d", cut)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeGraph(nil)
		assert.ErrorIs(t, err, ErrShortPayload)
	})
}

func TestDecodeRejectsDanglingConnection(t *testing.T) {
	d := graph.NewDescription(1)
	d.Nodes[1] = graph.DestinationNode{}
	d.Nodes[2] = graph.GainNode{Gain: 1}
	d.Connections = []graph.Connection{{Source: 2, Destination: 1}}

	payload := EncodeGraph(d, 48000, nil)

	// Encode a second snapshot whose connection references a node that
	// was dropped, and verify the decoder rejects it outright.
	bad := graph.NewDescription(1)
	bad.Nodes[1] = graph.DestinationNode{}
	bad.Connections = []graph.Connection{{Source: 2, Destination: 1}}
	badPayload := EncodeGraph(bad, 48000, nil)

	_, err := DecodeGraph(payload)
	require.NoError(t, err)
	_, err = DecodeGraph(badPayload)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsOversizedDeclaredLengths(t *testing.T) {
	// A declared length must never size an allocation beyond what the
	// payload actually carries.
	t.Run("buffer frames", func(t *testing.T) {
		var e Encoder
		e.U32(GraphMagic)
		e.U16(GraphVersion)
		e.U16(0)
		e.U32(FlagExternalResources)
		e.F32(48000)
		e.U64(1)
		e.U32(5)  // buffer table section
		e.U32(28) // section size
		e.U32(1)  // buffer count
		e.U64(9)  // buffer id
		e.F32(48000)
		e.U32(1)       // channels
		e.U64(1 << 61) // frames, with no sample data behind them

		decoded, err := DecodeGraph(e.Bytes())
		assert.ErrorIs(t, err, ErrShortPayload)
		assert.Nil(t, decoded)
	})

	t.Run("oscillator wave table", func(t *testing.T) {
		var e Encoder
		e.U32(GraphMagic)
		e.U16(GraphVersion)
		e.U16(0)
		e.U32(0)
		e.F32(48000)
		e.U64(1)
		e.U32(1)  // node table section
		e.U32(34) // section size
		e.U32(1)  // node count
		e.U64(2)  // node id
		e.U8(uint8(graph.KindOscillator))
		e.U32(17) // node payload size
		e.F32(440)
		e.F32(0)
		e.U8(uint8(graph.WaveCustom))
		e.F32(1)
		e.U32(0xf0000000) // table length, with no samples behind it

		decoded, err := DecodeGraph(e.Bytes())
		assert.ErrorIs(t, err, ErrShortPayload)
		assert.Nil(t, decoded)
	})
}

func TestScriptFrameRoundTrip(t *testing.T) {
	h := ScriptHeader{
		Magic:          ScriptRequestMagic,
		Version:        ScriptVersion,
		NodeID:         42,
		PlaybackTime:   1.5,
		BufferSize:     4,
		InputChannels:  2,
		OutputChannels: 1,
	}
	samples := []float32{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}

	frame := EncodeScriptFrame(h, samples)
	assert.Equal(t, ScriptHeaderSize+len(samples)*4, len(frame))

	got, gotSamples, err := DecodeScriptFrame(frame, ScriptRequestMagic)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, samples, gotSamples)
}

func TestScriptFrameRejectsWrongMagic(t *testing.T) {
	h := ScriptHeader{Magic: ScriptRequestMagic, Version: ScriptVersion, BufferSize: 1, InputChannels: 1, OutputChannels: 1}
	frame := EncodeScriptFrame(h, []float32{1})

	_, _, err := DecodeScriptFrame(frame, ScriptResponseMagic)
	assert.ErrorIs(t, err, ErrBadMagic)

	_, _, err = DecodeScriptFrame(frame[:10], ScriptRequestMagic)
	assert.Error(t, err)
}

func TestScriptFrameRejectsShortBody(t *testing.T) {
	h := ScriptHeader{
		Magic:          ScriptResponseMagic,
		Version:        ScriptVersion,
		NodeID:         3,
		BufferSize:     128,
		InputChannels:  2,
		OutputChannels: 2,
	}
	// Header promises 256 samples; the body carries none.
	frame := EncodeScriptFrame(h, nil)

	_, samples, err := DecodeScriptFrame(frame, ScriptResponseMagic)
	assert.ErrorIs(t, err, ErrShortPayload)
	assert.Nil(t, samples)
}

func TestEncoderDecoderPrimitives(t *testing.T) {
	var e Encoder
	e.U8(7)
	e.U16(300)
	e.U32(70000)
	e.U64(1 << 40)
	e.I64(-5)
	e.F32(1.5)
	e.F64(-2.25)
	e.String("hello")

	d := NewDecoder(e.Bytes())
	assert.Equal(t, uint8(7), d.U8())
	assert.Equal(t, uint16(300), d.U16())
	assert.Equal(t, uint32(70000), d.U32())
	assert.Equal(t, uint64(1)<<40, d.U64())
	assert.Equal(t, int64(-5), d.I64())
	assert.Equal(t, float32(1.5), d.F32())
	assert.Equal(t, -2.25, d.F64())
	assert.Equal(t, "hello", d.String())
	assert.NoError(t, d.Err())
	assert.True(t, d.AtEnd())

	// Reads past the end stick as an error and return zero values.
	assert.Equal(t, uint32(0), d.U32())
	assert.ErrorIs(t, d.Err(), ErrShortPayload)
}
