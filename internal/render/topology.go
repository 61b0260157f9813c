// SPDX-License-Identifier: MIT
package render

import (
	"fmt"
	"math"
	"sort"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

type stepPhase uint8

const (
	phaseProcess stepPhase = iota
	// Delay halves, used when a delay node sits on a feedback cycle.
	// The reader runs early in the order and the writer late; the ring
	// buffer between them is what carries audio across the cycle.
	phaseDelayReader
	phaseDelayWriter
)

type renderStep struct {
	state *nodeState
	phase stepPhase
}

// nodeState binds one description node to its render node plus all the
// pre-allocated per-quantum scratch the executor needs for it.
type nodeState struct {
	id   graph.NodeID
	desc graph.NodeDescription
	node Node
	mix  bus.MixSettings

	// Audio and parameter connections grouped by destination index.
	audioInputs [][]graph.Connection
	paramInputs [][]graph.ParamConnection

	// Mixed input scratch, one bus per input index.
	inputBuses []*bus.Bus
	// Computed parameter buses, always mono.
	paramBuses []*bus.Bus
	params     []*paramState

	// Source bus collection scratch, reused every quantum.
	gather []*bus.Bus

	// muted marks nodes on unbreakable cycles; they emit silence.
	muted bool
	split bool
}

// compiledGraph is the render-side form of one description snapshot.
type compiledGraph struct {
	states      map[graph.NodeID]*nodeState
	order       []renderStep
	destination *nodeState
}

// compile builds render nodes and a processing order from a validated
// description. Delay nodes found on cycles are split into reader and
// writer halves; any cycle with no delay on it is muted rather than
// rejected, matching the live-update contract that a running graph
// never stops rendering.
func compile(desc *graph.Description, res graph.ResourceResolver, sampleRate float32, quantum int, sink Sink) (*compiledGraph, error) {
	if _, ok := desc.Nodes[desc.DestinationID]; !ok {
		return nil, fmt.Errorf("compile graph: destination node %d missing", desc.DestinationID)
	}

	cg := &compiledGraph{states: make(map[graph.NodeID]*nodeState, len(desc.Nodes))}
	for id, nd := range desc.Nodes {
		st := &nodeState{
			id:   id,
			desc: nd,
			node: instantiate(nd, res, sampleRate, quantum, sink),
			mix:  mixSettingsFor(nd),
		}
		st.buildParams(desc, quantum)
		cg.states[id] = st
	}
	cg.destination = cg.states[desc.DestinationID]

	for _, conn := range desc.Connections {
		st := cg.states[conn.Destination]
		for len(st.audioInputs) <= conn.DestinationInput {
			st.audioInputs = append(st.audioInputs, nil)
		}
		st.audioInputs[conn.DestinationInput] = append(st.audioInputs[conn.DestinationInput], conn)
	}
	for _, pc := range desc.ParamConnections {
		st := cg.states[pc.Destination]
		if pc.DestinationParam >= len(st.params) {
			continue
		}
		for len(st.paramInputs) <= pc.DestinationParam {
			st.paramInputs = append(st.paramInputs, nil)
		}
		st.paramInputs[pc.DestinationParam] = append(st.paramInputs[pc.DestinationParam], pc)
	}

	for _, st := range cg.states {
		inputCount := requiredInputCount(st)
		for i := 0; i < inputCount; i++ {
			st.inputBuses = append(st.inputBuses, bus.NewWithCapacity(1, bus.MaxChannels, quantum))
		}
	}

	cg.order = computeOrder(cg.states, desc)
	return cg, nil
}

// buildParams sets up the parameter states and buses for one node,
// folding in any automation track the description carries for it.
func (st *nodeState) buildParams(desc *graph.Description, quantum int) {
	count := graph.ParamCount(st.desc)
	if count == 0 {
		return
	}
	st.params = make([]*paramState, count)
	st.paramBuses = make([]*bus.Bus, count)
	defaults := paramDefaults(st.desc)
	for i := 0; i < count; i++ {
		p := newParamState(defaults[i].def)
		p.initial = defaults[i].def
		p.min = defaults[i].min
		p.max = defaults[i].max
		st.params[i] = p
		st.paramBuses[i] = bus.New(1, quantum)
	}
	st.applyAutomations(desc)
}

func (st *nodeState) applyAutomations(desc *graph.Description) {
	for i := range st.params {
		st.params[i].segments = nil
	}
	for i := range desc.Automations {
		a := &desc.Automations[i]
		if a.Destination != st.id || a.ParamIndex >= len(st.params) {
			continue
		}
		st.params[a.ParamIndex].applyAutomation(a)
	}
}

type paramBounds struct {
	def, min, max float32
}

func unbounded(def float32) paramBounds {
	return paramBounds{def: def, min: float32(math.Inf(-1)), max: float32(math.Inf(1))}
}

func paramDefaults(desc graph.NodeDescription) []paramBounds {
	switch d := desc.(type) {
	case graph.GainNode:
		return []paramBounds{unbounded(d.Gain)}
	case graph.DelayNode:
		return []paramBounds{{def: float32(d.DelaySeconds), min: 0, max: float32(d.MaxDelaySeconds)}}
	case graph.StereoPannerNode:
		return []paramBounds{{def: d.Pan, min: -1, max: 1}}
	case graph.ConstantSourceNode:
		return []paramBounds{unbounded(d.Offset)}
	case graph.OscillatorNode:
		return []paramBounds{unbounded(d.Frequency), unbounded(d.Detune)}
	case graph.AudioWorkletNode:
		bounds := make([]paramBounds, len(d.ParameterNames))
		for i := range bounds {
			bounds[i] = unbounded(0)
		}
		return bounds
	}
	return nil
}

func instantiate(desc graph.NodeDescription, res graph.ResourceResolver, sampleRate float32, quantum int, sink Sink) Node {
	switch d := desc.(type) {
	case graph.DestinationNode:
		return newDestinationNode(d, quantum)
	case graph.GainNode:
		return newGainNode(quantum)
	case graph.DelayNode:
		return newDelayNode(d, sampleRate, quantum)
	case graph.StereoPannerNode:
		return newStereoPannerNode(quantum)
	case graph.ConstantSourceNode:
		return newConstantSourceNode(d, quantum)
	case graph.OscillatorNode:
		return newOscillatorNode(d, quantum)
	case graph.IIRFilterNode:
		return newIIRNode(d, quantum)
	case graph.BufferSourceNode:
		return newBufferSourceNode(d, res, quantum)
	case graph.AnalyserNode:
		return newAnalyserNode(d, quantum)
	case graph.AudioWorkletNode:
		return newWorkletNode(d, quantum)
	case graph.ScriptProcessorNode:
		return newScriptProcessorNode(d, quantum)
	case graph.TapNode:
		return newTapNode(d, sink, quantum)
	}
	return newUnsupportedNode(quantum)
}

func mixSettingsFor(desc graph.NodeDescription) bus.MixSettings {
	// The destination always mixes at its own channel count; hardware
	// does not follow the width of whatever feeds it.
	if d, ok := desc.(graph.DestinationNode); ok {
		count := d.Layout.Count
		if count <= 0 {
			count = 2
		}
		return bus.MixSettings{ChannelCount: count, Mode: bus.ChannelCountExplicit, Interpretation: d.Layout.Interpretation}
	}

	layout, ok := layoutOf(desc)
	if !ok || layout.Count == 0 {
		return bus.MixSettings{ChannelCount: 2, Mode: bus.ChannelCountMax, Interpretation: bus.InterpretationSpeakers}
	}
	return bus.MixSettings{ChannelCount: layout.Count, Mode: layout.Mode, Interpretation: layout.Interpretation}
}

func layoutOf(desc graph.NodeDescription) (graph.ChannelLayout, bool) {
	switch d := desc.(type) {
	case graph.DestinationNode:
		return d.Layout, true
	case graph.GainNode:
		return d.Layout, true
	case graph.DelayNode:
		return d.Layout, true
	case graph.StereoPannerNode:
		return d.Layout, true
	case graph.IIRFilterNode:
		return d.Layout, true
	case graph.AnalyserNode:
		return d.Layout, true
	case graph.AudioWorkletNode:
		return d.Layout, true
	case graph.ScriptProcessorNode:
		return d.Layout, true
	case graph.TapNode:
		return d.Layout, true
	}
	return graph.ChannelLayout{}, false
}

// requiredInputCount is the number of input buses a node needs: at
// least one for every kind that consumes audio, more if connections
// address higher input indices.
func requiredInputCount(st *nodeState) int {
	count := len(st.audioInputs)
	switch st.desc.Kind() {
	case graph.KindDestination, graph.KindGain, graph.KindDelay,
		graph.KindStereoPanner, graph.KindIIRFilter, graph.KindAnalyser,
		graph.KindScriptProcessor, graph.KindTap:
		if count < 1 {
			count = 1
		}
	case graph.KindAudioWorklet:
		if d, ok := st.desc.(graph.AudioWorkletNode); ok && count < d.NumberOfInputs {
			count = d.NumberOfInputs
		}
	}
	return count
}

// computeOrder produces the processing order. It is Kahn's algorithm
// with two escape hatches when no ready node remains: first split any
// delay node still blocked (its reader becomes a source, its writer a
// sink), and if that frees nothing, mute whatever is left.
func computeOrder(states map[graph.NodeID]*nodeState, desc *graph.Description) []renderStep {
	indegree := make(map[graph.NodeID]int, len(states))
	successors := make(map[graph.NodeID][]graph.NodeID, len(states))
	for id := range states {
		indegree[id] = 0
	}
	addEdge := func(src, dst graph.NodeID) {
		if src == dst {
			// Self loops never resolve; count them so the node is
			// handled by the cycle path below.
			indegree[dst]++
			successors[src] = append(successors[src], dst)
			return
		}
		successors[src] = append(successors[src], dst)
		indegree[dst]++
	}
	for _, c := range desc.Connections {
		addEdge(c.Source, c.Destination)
	}
	for _, pc := range desc.ParamConnections {
		addEdge(pc.Source, pc.Destination)
	}

	order := make([]renderStep, 0, len(states)+2)
	emitted := make(map[graph.NodeID]bool, len(states))

	ready := make([]graph.NodeID, 0, len(states))
	collectReady := func() {
		ready = ready[:0]
		for id, deg := range indegree {
			if deg == 0 && !emitted[id] {
				ready = append(ready, id)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
	}

	release := func(id graph.NodeID) {
		for _, succ := range successors[id] {
			indegree[succ]--
		}
	}

	remaining := len(states)
	for remaining > 0 {
		collectReady()
		if len(ready) == 0 {
			if !splitBlockedDelays(states, indegree, &order, release) {
				muteRemaining(states, emitted, &order)
				break
			}
			continue
		}
		for _, id := range ready {
			st := states[id]
			if st.split {
				// The reader half already released the successors.
				order = append(order, renderStep{state: st, phase: phaseDelayWriter})
			} else {
				order = append(order, renderStep{state: st, phase: phaseProcess})
				release(id)
			}
			emitted[id] = true
			remaining--
		}
	}
	return order
}

// splitBlockedDelays finds delay nodes still waiting on a cycle and
// emits their reader halves, releasing their successors. Returns true
// if it made progress.
func splitBlockedDelays(states map[graph.NodeID]*nodeState,
	indegree map[graph.NodeID]int, order *[]renderStep,
	release func(graph.NodeID)) bool {

	var ids []graph.NodeID
	for id, st := range states {
		if !st.split && indegree[id] > 0 && st.desc.Kind() == graph.KindDelay {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		st := states[id]
		st.split = true
		*order = append(*order, renderStep{state: st, phase: phaseDelayReader})
		// The reader satisfies downstream consumers; the writer half is
		// emitted later through the normal path once its inputs resolve.
		release(id)
	}
	return true
}

// muteRemaining marks every un-emitted node silent and emits it so its
// output buses are zeroed each quantum.
func muteRemaining(states map[graph.NodeID]*nodeState, emitted map[graph.NodeID]bool, order *[]renderStep) {
	var ids []graph.NodeID
	for id := range states {
		if !emitted[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		st := states[id]
		st.muted = true
		*order = append(*order, renderStep{state: st, phase: phaseProcess})
		emitted[id] = true
	}
}
