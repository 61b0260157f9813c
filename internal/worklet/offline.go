// SPDX-License-Identifier: MIT
package worklet

import (
	"errors"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
	"audiograph/internal/render"
)

// ErrNoScriptRunner is returned when a script-processor node renders
// without a runner attached.
var ErrNoScriptRunner = errors.New("worklet: no script runner attached")

// OfflineHost runs processors synchronously on the calling goroutine.
// Offline rendering has no deadline, so a slow processor just makes the
// render take longer.
type OfflineHost struct {
	Registry *Registry
	Scripts  ScriptRunner
}

func NewOfflineHost(reg *Registry, scripts ScriptRunner) *OfflineHost {
	return &OfflineHost{Registry: reg, Scripts: scripts}
}

func (h *OfflineHost) ProcessAudioWorklet(nodeID graph.NodeID, ctx *render.Context, name string,
	inputs, outputs []*bus.Bus, params map[string][]float32) (bool, error) {

	p, err := h.Registry.instance(nodeID, name)
	if err != nil {
		return true, err
	}
	return p.Process(ctx, inputs, outputs, params)
}

func (h *OfflineHost) ProcessScriptProcessor(nodeID graph.NodeID, ctx *render.Context, input, output *bus.Bus) error {
	if h.Scripts == nil {
		return ErrNoScriptRunner
	}
	return h.Scripts.RunScript(nodeID, ctx.CurrentTime(), input, output)
}
