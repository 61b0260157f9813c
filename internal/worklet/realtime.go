// SPDX-License-Identifier: MIT
package worklet

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"audiograph/internal/bus"
	"audiograph/internal/config"
	"audiograph/internal/graph"
	"audiograph/internal/render"
)

// ErrDeadline is returned to the render thread when a processor did not
// produce its result within the host's wait budget. The node renders
// one silent quantum and tries again next quantum.
var ErrDeadline = errors.New("worklet: processor missed the render deadline")

type callResult struct {
	keepAlive bool
	err       error
}

// call is one processor invocation in flight. It owns copies of all
// audio it touches, so a call abandoned on timeout can keep running on
// the worker without racing the render thread's buses.
type call struct {
	ctx    render.Context
	nodeID graph.NodeID

	script bool
	name   string

	inputs  []*bus.Bus
	outputs []*bus.Bus
	params  map[string][]float32

	scriptIn  *bus.Bus
	scriptOut *bus.Bus

	abandoned atomic.Bool
	result    chan callResult
}

// RealtimeHost runs processors on a dedicated worker goroutine and
// bounds how long the render thread waits for each result. Late
// results are discarded; the worker finishes them into call-private
// buffers and moves on.
type RealtimeHost struct {
	registry *Registry
	scripts  ScriptRunner
	timeout  time.Duration
	log      logrus.FieldLogger

	requests chan *call
	quit     chan struct{}
	wg       sync.WaitGroup

	// timer is owned by the render thread and reused across calls.
	timer *time.Timer

	// One deadline diagnostic per node; the map never shrinks, which is
	// fine for the node counts real graphs have.
	deadlineLogged sync.Map
}

func NewRealtimeHost(reg *Registry, scripts ScriptRunner, log logrus.FieldLogger) *RealtimeHost {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &RealtimeHost{
		registry: reg,
		scripts:  scripts,
		timeout:  config.ScriptProcessorWaitTimeout,
		log:      log,
		requests: make(chan *call, 1),
		quit:     make(chan struct{}),
	}
	h.wg.Add(1)
	go h.worker()
	return h
}

// SetTimeout overrides the wait budget. Call before rendering starts.
func (h *RealtimeHost) SetTimeout(d time.Duration) { h.timeout = d }

// Close stops the worker. Pending calls finish into their private
// buffers and are discarded.
func (h *RealtimeHost) Close() {
	close(h.quit)
	h.wg.Wait()
}

func (h *RealtimeHost) worker() {
	defer h.wg.Done()
	for {
		select {
		case <-h.quit:
			return
		case c := <-h.requests:
			h.serve(c)
		}
	}
}

func (h *RealtimeHost) serve(c *call) {
	var r callResult
	if c.script {
		if h.scripts == nil {
			r.err = ErrNoScriptRunner
		} else {
			r.err = h.scripts.RunScript(c.nodeID, c.ctx.CurrentTime(), c.scriptIn, c.scriptOut)
		}
		r.keepAlive = true
	} else {
		p, err := h.registry.instance(c.nodeID, c.name)
		if err != nil {
			r.err = err
			r.keepAlive = true
		} else {
			r.keepAlive, r.err = p.Process(&c.ctx, c.inputs, c.outputs, c.params)
		}
	}
	// Buffered channel; the send never blocks even if the render thread
	// already gave up on this call.
	c.result <- r
}

func (h *RealtimeHost) ProcessAudioWorklet(nodeID graph.NodeID, ctx *render.Context, name string,
	inputs, outputs []*bus.Bus, params map[string][]float32) (bool, error) {

	c := &call{
		ctx:     *ctx,
		nodeID:  nodeID,
		name:    name,
		inputs:  copyBuses(inputs),
		outputs: shapeBuses(outputs),
		params:  copyParams(params),
		result:  make(chan callResult, 1),
	}
	r, err := h.dispatch(c)
	if err != nil {
		return true, err
	}
	if r.err != nil {
		return true, r.err
	}
	for i, out := range outputs {
		out.CopyFrom(c.outputs[i])
	}
	return r.keepAlive, nil
}

func (h *RealtimeHost) ProcessScriptProcessor(nodeID graph.NodeID, ctx *render.Context, input, output *bus.Bus) error {
	c := &call{
		ctx:       *ctx,
		nodeID:    nodeID,
		script:    true,
		scriptIn:  copyBus(input),
		scriptOut: shapeBus(output),
		result:    make(chan callResult, 1),
	}
	r, err := h.dispatch(c)
	if err != nil {
		return err
	}
	if r.err != nil {
		return r.err
	}
	output.CopyFrom(c.scriptOut)
	return nil
}

// dispatch hands a call to the worker and waits up to the budget. A
// worker still busy with an abandoned call counts as a miss too.
func (h *RealtimeHost) dispatch(c *call) (callResult, error) {
	select {
	case h.requests <- c:
	default:
		h.logDeadline(c.nodeID)
		return callResult{}, ErrDeadline
	}

	if h.timer == nil {
		h.timer = time.NewTimer(h.timeout)
	} else {
		h.timer.Reset(h.timeout)
	}

	select {
	case r := <-c.result:
		if !h.timer.Stop() {
			<-h.timer.C
		}
		return r, nil
	case <-h.timer.C:
		c.abandoned.Store(true)
		h.logDeadline(c.nodeID)
		return callResult{}, ErrDeadline
	}
}

func (h *RealtimeHost) logDeadline(nodeID graph.NodeID) {
	if _, loaded := h.deadlineLogged.LoadOrStore(nodeID, struct{}{}); !loaded {
		h.log.WithFields(logrus.Fields{
			"node":    nodeID,
			"timeout": h.timeout,
		}).Warn("processor missed the render deadline, rendering silence")
	}
}

func copyBuses(src []*bus.Bus) []*bus.Bus {
	out := make([]*bus.Bus, len(src))
	for i, b := range src {
		out[i] = copyBus(b)
	}
	return out
}

func copyBus(src *bus.Bus) *bus.Bus {
	dst := bus.New(src.ChannelCount(), src.Frames())
	dst.CopyFrom(src)
	return dst
}

func copyParams(src map[string][]float32) map[string][]float32 {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]float32, len(src))
	for name, values := range src {
		out[name] = append([]float32(nil), values...)
	}
	return out
}

func shapeBuses(src []*bus.Bus) []*bus.Bus {
	out := make([]*bus.Bus, len(src))
	for i, b := range src {
		out[i] = shapeBus(b)
	}
	return out
}

func shapeBus(src *bus.Bus) *bus.Bus {
	return bus.New(src.ChannelCount(), src.Frames())
}
