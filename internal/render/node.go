// SPDX-License-Identifier: MIT
/*
Package render executes audio graph snapshots one quantum at a time.

The package is split along the realtime boundary. Executor and the node
implementations run on the render thread and never allocate, lock, or
block once processing has started. Everything that mutates a running
executor crosses over through atomic pending-update slots or the
lock-free control queue, both of which are drained at the top of each
quantum.

Thread Safety:
  - Executor.RenderQuantum must be called from exactly one goroutine.
  - EnqueueParameterUpdate, EnqueueTopologyUpdate and the schedule
    methods are safe from any goroutine.
  - ReleaseRetired must run off the render thread; it reclaims update
    slots the render thread has finished with.
*/
package render

import (
	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// Context carries the per-quantum rendering state shared by all nodes.
type Context struct {
	SampleRate   float32
	QuantumSize  int
	CurrentFrame uint64

	// Host services worklet and script-processor nodes. A nil Host
	// renders those nodes silent.
	Host ProcessorHost
}

// CurrentTime returns the position of the quantum start in seconds.
func (c *Context) CurrentTime() float64 {
	return float64(c.CurrentFrame) / float64(c.SampleRate)
}

// ProcessorHost runs user-defined processing on behalf of worklet and
// script-processor nodes. Implementations decide how long the render
// thread may wait; a bounded-wait host returns ok=false when the result
// did not arrive in time and the node renders silence for that quantum.
type ProcessorHost interface {
	// ProcessAudioWorklet invokes the named processor. keepAlive=false
	// means the processor has finished and the node should go silent
	// permanently while remaining in the graph.
	ProcessAudioWorklet(nodeID graph.NodeID, ctx *Context, name string,
		inputs, outputs []*bus.Bus, params map[string][]float32) (keepAlive bool, err error)

	// ProcessScriptProcessor runs one buffer exchange for a legacy
	// script-processor node.
	ProcessScriptProcessor(nodeID graph.NodeID, ctx *Context, input, output *bus.Bus) error
}

// Node is one render unit in the compiled graph. Process reads the
// pre-mixed input buses and the computed parameter buses and fills the
// node's own output buses. Implementations must not allocate.
type Node interface {
	Process(ctx *Context, id graph.NodeID, inputs []*bus.Bus, params []*bus.Bus)
	Output(index int) *bus.Bus
	OutputCount() int

	// ApplyDescription absorbs a parameter-only update. The executor
	// guarantees the description has the same concrete type as the one
	// the node was built from.
	ApplyDescription(desc graph.NodeDescription)
}

// Source is implemented by nodes with a start/stop schedule.
type Source interface {
	Node
	ScheduleStart(frame int64)
	ScheduleStop(frame int64)
}

// silenceInto zeroes every channel of b.
func silenceInto(b *bus.Bus) {
	if b != nil {
		b.Zero()
	}
}
