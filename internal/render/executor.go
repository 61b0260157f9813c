// SPDX-License-Identifier: MIT
package render

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"audiograph/internal/bus"
	"audiograph/internal/config"
	"audiograph/internal/graph"
	"audiograph/internal/rtq"
)

// pendingUpdate is one snapshot waiting for the render thread. The
// slots hold at most one update each; a newer submission displaces the
// older one, which is retired unseen.
type pendingUpdate struct {
	desc *graph.Description
	res  *graph.ResourceRegistry
}

// Options configures an Executor.
type Options struct {
	SampleRate float32
	// Quantum defaults to config.RenderQuantumFrames.
	Quantum int
	Host    ProcessorHost
	Sink    Sink
	Logger  logrus.FieldLogger
}

// Executor renders a compiled graph quantum by quantum. One goroutine
// owns RenderQuantum; updates and schedules arrive from any goroutine
// and are committed at quantum boundaries.
type Executor struct {
	sampleRate float32
	quantum    int
	tapSink    Sink
	log        logrus.FieldLogger

	ctx   Context
	frame atomic.Uint64

	compiled atomic.Pointer[compiledGraph]

	pendingParam    atomic.Pointer[pendingUpdate]
	pendingTopology atomic.Pointer[pendingUpdate]

	// control carries tasks onto the render thread; retired carries
	// consumed and displaced update slots off it for reclamation.
	control *rtq.LockFreeQueue
	retired *rtq.LockFreeQueue

	submitMu      sync.Mutex
	lastSubmitted *graph.Description
	lastStallLog  time.Time
}

// New compiles the initial snapshot and returns a ready executor. The
// description must validate; the resource registry may be nil when the
// graph references no sample buffers.
func New(desc *graph.Description, res *graph.ResourceRegistry, opts Options) (*Executor, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	quantum := opts.Quantum
	if quantum <= 0 {
		quantum = config.RenderQuantumFrames
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}

	e := &Executor{
		sampleRate: opts.SampleRate,
		quantum:    quantum,
		tapSink:    opts.Sink,
		log:        log,
		control:    rtq.NewLockFree(nil),
		retired:    rtq.NewLockFree(nil),
	}
	e.ctx = Context{
		SampleRate:  opts.SampleRate,
		QuantumSize: quantum,
		Host:        opts.Host,
	}

	var resolver graph.ResourceResolver
	if res != nil {
		resolver = res
	}
	cg, err := compile(desc, resolver, opts.SampleRate, quantum, opts.Sink)
	if err != nil {
		return nil, err
	}
	e.compiled.Store(cg)
	e.lastSubmitted = desc
	return e, nil
}

// SampleRate returns the rate the executor renders at.
func (e *Executor) SampleRate() float32 { return e.sampleRate }

// Quantum returns the render quantum size in frames.
func (e *Executor) Quantum() int { return e.quantum }

// CurrentFrame returns the absolute frame position of the next quantum.
func (e *Executor) CurrentFrame() uint64 { return e.frame.Load() }

// SubmitUpdate validates and classifies a new snapshot against the
// previously submitted one and hands it to the render thread. The
// returned kind tells the caller what the render thread will do with
// it: nothing, absorb parameters in place, or rebuild the topology.
func (e *Executor) SubmitUpdate(desc *graph.Description, res *graph.ResourceRegistry) (graph.UpdateKind, error) {
	if err := desc.Validate(); err != nil {
		return graph.UpdateNone, err
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	kind := graph.ClassifyUpdate(e.lastSubmitted, desc)
	switch kind {
	case graph.UpdateNone:
		return kind, nil
	case graph.UpdateParameterOnly:
		e.publish(&e.pendingParam, &pendingUpdate{desc: desc, res: res})
	case graph.UpdateTopology:
		e.publish(&e.pendingTopology, &pendingUpdate{desc: desc, res: res})
		// A queued parameter update is superseded by the full rebuild.
		if old := e.pendingParam.Swap(nil); old != nil {
			e.retire(old)
		}
	}
	e.lastSubmitted = desc
	return kind, nil
}

func (e *Executor) publish(slot *atomic.Pointer[pendingUpdate], upd *pendingUpdate) {
	if old := slot.Swap(upd); old != nil {
		e.retire(old)
		now := time.Now()
		if now.Sub(e.lastStallLog) > time.Second {
			e.lastStallLog = now
			e.log.Debug("render thread has not committed the previous update; displacing it")
		}
	}
}

// retire hands a dead update slot to the control thread. The render
// thread never frees snapshots itself.
func (e *Executor) retire(upd *pendingUpdate) {
	e.retired.Enqueue(func() { upd.desc = nil; upd.res = nil })
}

// ReleaseRetired reclaims update slots the render thread is done with.
// Call it periodically from a control goroutine.
func (e *Executor) ReleaseRetired() int {
	return e.retired.Drain()
}

// ScheduleSourceStart sets the start frame of a source node at the next
// quantum boundary. Unknown or non-source ids are ignored.
func (e *Executor) ScheduleSourceStart(id graph.NodeID, frame int64) {
	e.control.Enqueue(func() {
		if src, ok := e.sourceNode(id); ok {
			src.ScheduleStart(frame)
		}
	})
}

// ScheduleSourceStop sets the stop frame of a source node at the next
// quantum boundary.
func (e *Executor) ScheduleSourceStop(id graph.NodeID, frame int64) {
	e.control.Enqueue(func() {
		if src, ok := e.sourceNode(id); ok {
			src.ScheduleStop(frame)
		}
	})
}

func (e *Executor) sourceNode(id graph.NodeID) (Source, bool) {
	st, ok := e.compiled.Load().states[id]
	if !ok {
		return nil, false
	}
	src, ok := st.node.(Source)
	return src, ok
}

// AnalyserFrequencyData copies the named analyser's frequency bins into
// dst. The second return is false when the id is not an analyser.
func (e *Executor) AnalyserFrequencyData(id graph.NodeID, dst []float32) (int, bool) {
	if a, ok := e.analyser(id); ok {
		return a.FrequencyData(dst), true
	}
	return 0, false
}

// AnalyserTimeDomainData copies the analyser's most recent time-domain
// capture into dst.
func (e *Executor) AnalyserTimeDomainData(id graph.NodeID, dst []float32) (int, bool) {
	if a, ok := e.analyser(id); ok {
		return a.TimeDomainData(dst), true
	}
	return 0, false
}

func (e *Executor) analyser(id graph.NodeID) (*analyserNode, bool) {
	st, ok := e.compiled.Load().states[id]
	if !ok {
		return nil, false
	}
	a, ok := st.node.(*analyserNode)
	return a, ok
}

// RenderQuantum commits pending work and renders one quantum, returning
// the destination's output bus. The bus is owned by the executor and
// valid until the next call.
func (e *Executor) RenderQuantum() *bus.Bus {
	e.beginQuantum()

	cg := e.compiled.Load()
	ctx := &e.ctx
	ctx.CurrentFrame = e.frame.Load()

	for _, step := range cg.order {
		e.runStep(cg, step, ctx)
	}

	e.frame.Add(uint64(e.quantum))
	return cg.destination.node.Output(0)
}

// beginQuantum is the commit point. Control tasks run first, then the
// newest pending snapshot is absorbed, topology before parameters.
func (e *Executor) beginQuantum() {
	e.control.Drain()

	if upd := e.pendingTopology.Swap(nil); upd != nil {
		e.rebuild(upd)
		e.retire(upd)
		return
	}
	if upd := e.pendingParam.Swap(nil); upd != nil {
		e.absorbParameters(upd.desc)
		e.retire(upd)
	}
}

// rebuild compiles the new snapshot and carries over node state where
// the node survived the change, so oscillator phase and delay history
// do not reset on unrelated topology edits.
func (e *Executor) rebuild(upd *pendingUpdate) {
	var resolver graph.ResourceResolver
	if upd.res != nil {
		resolver = upd.res
	}
	old := e.compiled.Load()
	cg, err := compile(upd.desc, resolver, e.sampleRate, e.quantum, e.tapSink)
	if err != nil {
		e.log.WithError(err).Warn("topology update rejected, keeping previous graph")
		return
	}
	for id, st := range cg.states {
		prev, ok := old.states[id]
		if !ok {
			continue
		}
		if graph.ClassifyNodeUpdate(prev.desc, st.desc) != graph.UpdateTopology {
			st.node = prev.node
			st.node.ApplyDescription(st.desc)
		}
	}
	e.compiled.Store(cg)
}

// absorbParameters applies a parameter-only snapshot in place: node
// payloads, parameter defaults and automation tracks, no rebuild.
func (e *Executor) absorbParameters(desc *graph.Description) {
	cg := e.compiled.Load()
	for id, nd := range desc.Nodes {
		st, ok := cg.states[id]
		if !ok {
			continue
		}
		st.desc = nd
		st.node.ApplyDescription(nd)
		defaults := paramDefaults(nd)
		for i := range st.params {
			if i < len(defaults) {
				st.params[i].def = defaults[i].def
				st.params[i].initial = defaults[i].def
				st.params[i].min = defaults[i].min
				st.params[i].max = defaults[i].max
			}
		}
		st.applyAutomations(desc)
	}
}

func (e *Executor) runStep(cg *compiledGraph, step renderStep, ctx *Context) {
	st := step.state
	if st.muted {
		for i := 0; i < st.node.OutputCount(); i++ {
			silenceInto(st.node.Output(i))
		}
		return
	}

	switch step.phase {
	case phaseDelayReader:
		e.computeParams(cg, st, ctx)
		st.node.(*delayNode).ProcessReader(ctx, st.id, st.paramBuses)
	case phaseDelayWriter:
		e.mixAudioInputs(cg, st)
		d := st.node.(*delayNode)
		d.ProcessWriter(ctx, st.id, st.inputBuses)
		d.Advance(ctx.QuantumSize)
	default:
		e.mixAudioInputs(cg, st)
		e.computeParams(cg, st, ctx)
		st.node.Process(ctx, st.id, st.inputBuses, st.paramBuses)
	}
}

// mixAudioInputs fills every input bus of a node from its connected
// sources, applying the node's channel count mode and interpretation.
func (e *Executor) mixAudioInputs(cg *compiledGraph, st *nodeState) {
	for i, dst := range st.inputBuses {
		st.gather = st.gather[:0]
		maxCh := 0
		if i < len(st.audioInputs) {
			for _, c := range st.audioInputs[i] {
				src, ok := cg.states[c.Source]
				if !ok || c.SourceOutput >= src.node.OutputCount() || c.SourceOutput < 0 {
					continue
				}
				out := src.node.Output(c.SourceOutput)
				st.gather = append(st.gather, out)
				if out.ChannelCount() > maxCh {
					maxCh = out.ChannelCount()
				}
			}
		}
		dst.SetChannelCount(bus.ComputedChannelCount(st.mix, maxCh))
		if st.mix.Interpretation == bus.InterpretationSpeakers {
			bus.MixInputs(dst, st.gather)
		} else {
			bus.MixInputsDiscrete(dst, st.gather)
		}
	}
}

// computeParams fills the node's parameter buses from automation plus
// any parameter connections.
func (e *Executor) computeParams(cg *compiledGraph, st *nodeState, ctx *Context) {
	for i, p := range st.params {
		st.gather = st.gather[:0]
		if i < len(st.paramInputs) {
			for _, pc := range st.paramInputs[i] {
				src, ok := cg.states[pc.Source]
				if !ok || pc.SourceOutput >= src.node.OutputCount() || pc.SourceOutput < 0 {
					continue
				}
				st.gather = append(st.gather, src.node.Output(pc.SourceOutput))
			}
		}
		p.computeInto(st.paramBuses[i], ctx, st.gather)
	}
}
