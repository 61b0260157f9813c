// SPDX-License-Identifier: MIT
/*
Package worklet hosts user-defined processors for audio worklet and
script-processor nodes.

Two hosts share one processor registry. OfflineHost runs processors
synchronously, which is correct when nothing is racing a hardware
deadline. RealtimeHost moves them to a worker goroutine and gives the
render thread a bounded wait: a processor that misses the deadline
costs one silent quantum and a single diagnostic, never a glitch loop.
*/
package worklet

import (
	"fmt"
	"sync"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
	"audiograph/internal/render"
)

// Processor is one instantiated worklet processor. Process fills the
// output buses from the inputs; returning false retires the processor
// and its node goes silent permanently.
type Processor interface {
	Process(ctx *render.Context, inputs, outputs []*bus.Bus, params map[string][]float32) (keepAlive bool, err error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx *render.Context, inputs, outputs []*bus.Bus, params map[string][]float32) (bool, error)

func (f ProcessorFunc) Process(ctx *render.Context, inputs, outputs []*bus.Bus, params map[string][]float32) (bool, error) {
	return f(ctx, inputs, outputs, params)
}

// Factory builds a fresh Processor instance for one node.
type Factory func() Processor

// ScriptRunner services script-processor buffer exchanges. The engine
// wires a transport-backed runner here; a nil runner renders those
// nodes silent.
type ScriptRunner interface {
	RunScript(nodeID graph.NodeID, playbackTime float64, input, output *bus.Bus) error
}

// Registry maps processor names to factories and owns the per-node
// instances. Registration happens at setup time; lookup is on the
// processing path and takes only a read lock.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[graph.NodeID]Processor
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[graph.NodeID]Processor),
	}
}

// Register adds or replaces a named processor factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// instance returns the node's processor, creating it on first use.
func (r *Registry) instance(nodeID graph.NodeID, name string) (Processor, error) {
	r.mu.RLock()
	p, ok := r.instances[nodeID]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.instances[nodeID]; ok {
		return p, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("worklet processor %q not registered", name)
	}
	p = f()
	r.instances[nodeID] = p
	return p, nil
}

// Forget drops the processor instance for a node, typically after a
// topology update removed it.
func (r *Registry) Forget(nodeID graph.NodeID) {
	r.mu.Lock()
	delete(r.instances, nodeID)
	r.mu.Unlock()
}
