// SPDX-License-Identifier: MIT
package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainGraph() *Description {
	d := NewDescription(3)
	d.Nodes[1] = OscillatorNode{Frequency: 440, Shape: WaveSine, Schedule: Unscheduled()}
	d.Nodes[2] = GainNode{Gain: 0.5}
	d.Nodes[3] = DestinationNode{Layout: ChannelLayout{Count: 2}}
	d.Connections = []Connection{
		{Source: 1, Destination: 2},
		{Source: 2, Destination: 3},
	}
	return d
}

func TestValidateAcceptsChain(t *testing.T) {
	require.NoError(t, chainGraph().Validate())
}

func TestValidateAcceptsCycle(t *testing.T) {
	d := chainGraph()
	d.Nodes[4] = DelayNode{DelaySeconds: 0.1, MaxDelaySeconds: 1}
	d.Connections = append(d.Connections,
		Connection{Source: 2, Destination: 4},
		Connection{Source: 4, Destination: 2},
	)
	assert.NoError(t, d.Validate(), "feedback cycles are legal graphs")
}

func TestValidateRejectsDanglingEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Description)
	}{
		{"missing destination node", func(d *Description) { delete(d.Nodes, 3) }},
		{"connection from unknown node", func(d *Description) {
			d.Connections = append(d.Connections, Connection{Source: 99, Destination: 2})
		}},
		{"connection to unknown node", func(d *Description) {
			d.Connections = append(d.Connections, Connection{Source: 1, Destination: 99})
		}},
		{"param connection to unknown node", func(d *Description) {
			d.ParamConnections = append(d.ParamConnections, ParamConnection{Source: 1, Destination: 42})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := chainGraph()
			tt.mutate(d)
			assert.Error(t, d.Validate())
		})
	}
}

func TestClassifyIdenticalIsNone(t *testing.T) {
	a := chainGraph()
	b := chainGraph()
	assert.Equal(t, UpdateNone, ClassifyUpdate(a, b))
	assert.Equal(t, UpdateNone, ClassifyUpdate(a, a))
}

func TestClassifyParameterOnly(t *testing.T) {
	a := chainGraph()
	b := chainGraph()
	b.Nodes[2] = GainNode{Gain: 0.9}
	assert.Equal(t, UpdateParameterOnly, ClassifyUpdate(a, b))
}

func TestClassifyAutomationChangeIsParameterOnly(t *testing.T) {
	a := chainGraph()
	b := chainGraph()
	b.Automations = []ParamAutomation{{
		Destination:  2,
		ParamIndex:   GainParamGain,
		InitialValue: 0.5,
		DefaultValue: 1,
		Rate:         ARate,
		Segments: []AutomationSegment{{
			Type:       SegmentLinearRamp,
			StartTime:  0,
			EndTime:    1,
			EndFrame:   48000,
			StartValue: 0.5,
			EndValue:   0,
		}},
	}}
	assert.Equal(t, UpdateParameterOnly, ClassifyUpdate(a, b))
}

func TestClassifyTopology(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Description)
	}{
		{"node added", func(d *Description) {
			d.Nodes[4] = GainNode{Gain: 1}
			d.Connections = append(d.Connections, Connection{Source: 4, Destination: 3})
		}},
		{"node removed", func(d *Description) {
			delete(d.Nodes, 1)
			d.Connections = d.Connections[1:]
		}},
		{"connection rerouted", func(d *Description) {
			d.Connections[0].Destination = 3
		}},
		{"kind changed", func(d *Description) {
			d.Nodes[2] = StereoPannerNode{Pan: 0}
		}},
		{"destination changed", func(d *Description) {
			d.Nodes[4] = DestinationNode{}
			d.DestinationID = 4
		}},
		{"source kind swapped", func(d *Description) {
			d.Nodes[1] = ConstantSourceNode{Offset: 1, Schedule: Unscheduled()}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := chainGraph()
			b := chainGraph()
			tt.mutate(b)
			assert.Equal(t, UpdateTopology, ClassifyUpdate(a, b))
		})
	}
}

func TestClassifyNilOld(t *testing.T) {
	assert.Equal(t, UpdateTopology, ClassifyUpdate(nil, chainGraph()))
}

func TestClassifyNodeUpdate(t *testing.T) {
	tests := []struct {
		name     string
		old, new NodeDescription
		want     UpdateKind
	}{
		{"same gain", GainNode{Gain: 1}, GainNode{Gain: 1}, UpdateNone},
		{"gain value", GainNode{Gain: 1}, GainNode{Gain: 2}, UpdateParameterOnly},
		{"gain layout", GainNode{Layout: ChannelLayout{Count: 1}}, GainNode{Layout: ChannelLayout{Count: 2}}, UpdateTopology},
		{"kind mismatch", GainNode{}, DelayNode{}, UpdateTopology},
		{"delay time", DelayNode{DelaySeconds: 0.1, MaxDelaySeconds: 1}, DelayNode{DelaySeconds: 0.2, MaxDelaySeconds: 1}, UpdateParameterOnly},
		{"delay capacity", DelayNode{MaxDelaySeconds: 1}, DelayNode{MaxDelaySeconds: 2}, UpdateTopology},
		{"oscillator frequency", OscillatorNode{Frequency: 440}, OscillatorNode{Frequency: 880}, UpdateParameterOnly},
		{"oscillator shape", OscillatorNode{Shape: WaveSine}, OscillatorNode{Shape: WaveSquare}, UpdateTopology},
		{"iir coefficients", IIRFilterNode{Feedforward: []float64{1}, Feedback: []float64{1}}, IIRFilterNode{Feedforward: []float64{0.5}, Feedback: []float64{1}}, UpdateTopology},
		{"buffer source id", BufferSourceNode{BufferID: 1}, BufferSourceNode{BufferID: 2}, UpdateTopology},
		{"buffer source loop", BufferSourceNode{BufferID: 1, Loop: false}, BufferSourceNode{BufferID: 1, Loop: true}, UpdateParameterOnly},
		{"analyser smoothing", AnalyserNode{FFTSize: 2048, SmoothingTimeConstant: 0.8}, AnalyserNode{FFTSize: 2048, SmoothingTimeConstant: 0.5}, UpdateParameterOnly},
		{"analyser fft size", AnalyserNode{FFTSize: 1024}, AnalyserNode{FFTSize: 2048}, UpdateTopology},
		{"tap label", TapNode{Label: "a"}, TapNode{Label: "b"}, UpdateParameterOnly},
		{"script processor buffer", ScriptProcessorNode{BufferSize: 256}, ScriptProcessorNode{BufferSize: 512}, UpdateTopology},
		{"nil old", nil, GainNode{}, UpdateTopology},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyNodeUpdate(tt.old, tt.new))
		})
	}
}
