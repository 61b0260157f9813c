// SPDX-License-Identifier: MIT
package render

import (
	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// workletNode delegates its processing to a named processor through
// the executor's ProcessorHost. The node itself only owns the buses
// and the liveness flag; everything else, including how long to wait
// for a result, is host policy.
type workletNode struct {
	name    string
	inputs  int
	outputs []*bus.Bus
	// paramNames orders the named map; index i of the computed parameter
	// buses is the value of paramNames[i].
	paramNames []string
	params     map[string][]float32
	// finished is set when the processor returns keepAlive=false. The
	// node stays in the graph and renders silence from then on.
	finished bool
}

func newWorkletNode(desc graph.AudioWorkletNode, quantum int) *workletNode {
	n := &workletNode{
		name:       desc.ProcessorName,
		inputs:     desc.NumberOfInputs,
		paramNames: desc.ParameterNames,
		params:     make(map[string][]float32, len(desc.ParameterNames)),
	}
	outs := desc.NumberOfOutputs
	if outs < 1 {
		outs = 1
	}
	n.outputs = make([]*bus.Bus, outs)
	for i := range n.outputs {
		ch := 1
		if i < len(desc.OutputChannelCounts) && desc.OutputChannelCounts[i] > 0 {
			ch = desc.OutputChannelCounts[i]
		}
		n.outputs[i] = bus.New(ch, quantum)
	}
	for _, name := range desc.ParameterNames {
		n.params[name] = make([]float32, quantum)
	}
	return n
}

func (n *workletNode) Process(ctx *Context, id graph.NodeID, inputs []*bus.Bus, params []*bus.Bus) {
	if n.finished || ctx.Host == nil {
		n.silence()
		return
	}
	for i, name := range n.paramNames {
		if i < len(params) {
			copy(n.params[name], params[i].Channel(0))
		}
	}
	keepAlive, err := ctx.Host.ProcessAudioWorklet(id, ctx, n.name, inputs, n.outputs, n.params)
	if err != nil {
		n.silence()
		return
	}
	if !keepAlive {
		n.finished = true
		n.silence()
	}
}

func (n *workletNode) silence() {
	for _, out := range n.outputs {
		silenceInto(out)
	}
}

func (n *workletNode) Output(i int) *bus.Bus {
	if i < 0 || i >= len(n.outputs) {
		return n.outputs[0]
	}
	return n.outputs[i]
}

func (n *workletNode) OutputCount() int                  { return len(n.outputs) }
func (n *workletNode) ApplyDescription(graph.NodeDescription) {}

// scriptProcessorNode services the legacy buffer-exchange interface.
// Each quantum it hands the host an input copy and expects the output
// filled in return; a host error (including a bounded-wait timeout)
// renders the quantum silent.
type scriptProcessorNode struct {
	out        *bus.Bus
	bufferSize int
	inputCopy  *bus.Bus
}

func newScriptProcessorNode(desc graph.ScriptProcessorNode, quantum int) *scriptProcessorNode {
	outCh := desc.OutputChannels
	if outCh < 1 {
		outCh = 1
	}
	inCh := desc.InputChannels
	if inCh < 1 {
		inCh = 1
	}
	return &scriptProcessorNode{
		out:        bus.New(outCh, quantum),
		bufferSize: desc.BufferSize,
		inputCopy:  bus.New(inCh, quantum),
	}
}

func (n *scriptProcessorNode) Process(ctx *Context, id graph.NodeID, inputs []*bus.Bus, _ []*bus.Bus) {
	if ctx.Host == nil {
		n.out.Zero()
		return
	}
	in := inputs[0]
	for c := 0; c < n.inputCopy.ChannelCount(); c++ {
		dst := n.inputCopy.Channel(c)
		if c < in.ChannelCount() {
			copy(dst, in.Channel(c))
		} else {
			for i := range dst {
				dst[i] = 0
			}
		}
	}
	if err := ctx.Host.ProcessScriptProcessor(id, ctx, n.inputCopy, n.out); err != nil {
		n.out.Zero()
	}
}

func (n *scriptProcessorNode) Output(int) *bus.Bus               { return n.out }
func (n *scriptProcessorNode) OutputCount() int                  { return 1 }
func (n *scriptProcessorNode) ApplyDescription(graph.NodeDescription) {}
