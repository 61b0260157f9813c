// SPDX-License-Identifier: MIT
package render

import (
	"math"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// paramState evaluates one parameter's automation track and folds in
// its audio-rate inputs. The computed bus it fills is always mono.
type paramState struct {
	def, min, max float32
	rate          graph.AutomationRate
	initial       float32
	segments      []graph.AutomationSegment
}

func newParamState(def float32) *paramState {
	return &paramState{
		def:     def,
		min:     float32(math.Inf(-1)),
		max:     float32(math.Inf(1)),
		initial: def,
		rate:    graph.ARate,
	}
}

func (p *paramState) applyAutomation(a *graph.ParamAutomation) {
	if a == nil {
		p.segments = nil
		return
	}
	p.initial = a.InitialValue
	p.def = a.DefaultValue
	p.min = a.MinValue
	p.max = a.MaxValue
	p.rate = a.Rate
	p.segments = a.Segments
}

// intrinsicAt returns the automation value at an absolute frame, before
// parameter inputs are summed in.
func (p *paramState) intrinsicAt(frame uint64, sampleRate float32) float32 {
	seg := p.segmentFor(frame)
	if seg == nil {
		return p.initial
	}
	t := float64(frame) / float64(sampleRate)
	return evalSegment(seg, t, frame)
}

// segmentFor picks the last segment whose start frame is at or before
// the given frame. Tracks are short, so a linear scan is fine.
func (p *paramState) segmentFor(frame uint64) *graph.AutomationSegment {
	var found *graph.AutomationSegment
	for i := range p.segments {
		if p.segments[i].StartFrame <= frame {
			found = &p.segments[i]
		} else {
			break
		}
	}
	return found
}

func evalSegment(seg *graph.AutomationSegment, t float64, frame uint64) float32 {
	switch seg.Type {
	case graph.SegmentConstant:
		return seg.StartValue

	case graph.SegmentLinearRamp:
		if frame >= seg.EndFrame || seg.EndTime <= seg.StartTime {
			return seg.EndValue
		}
		u := (t - seg.StartTime) / (seg.EndTime - seg.StartTime)
		return seg.StartValue + float32(u)*(seg.EndValue-seg.StartValue)

	case graph.SegmentExponentialRamp:
		if frame >= seg.EndFrame || seg.EndTime <= seg.StartTime {
			return seg.EndValue
		}
		// Degenerates to the end value when the endpoints straddle
		// zero; exponential ramps are only defined for same-sign pairs.
		if seg.StartValue == 0 || (seg.StartValue < 0) != (seg.EndValue < 0) {
			return seg.EndValue
		}
		u := (t - seg.StartTime) / (seg.EndTime - seg.StartTime)
		ratio := float64(seg.EndValue) / float64(seg.StartValue)
		return seg.StartValue * float32(math.Pow(ratio, u))

	case graph.SegmentTarget:
		if t <= seg.StartTime {
			return seg.StartValue
		}
		dt := t - seg.StartTime
		if seg.TimeConstant <= 0 {
			return seg.Target
		}
		decay := math.Exp(-dt / float64(seg.TimeConstant))
		return seg.Target + (seg.StartValue-seg.Target)*float32(decay)

	case graph.SegmentValueCurve:
		n := len(seg.Curve)
		if n == 0 {
			return seg.StartValue
		}
		if n == 1 || seg.CurveDuration <= 0 {
			return seg.Curve[0]
		}
		u := (t - seg.CurveStartTime) / seg.CurveDuration
		if u <= 0 {
			return seg.Curve[0]
		}
		if u >= 1 {
			return seg.Curve[n-1]
		}
		pos := u * float64(n-1)
		i := int(pos)
		frac := float32(pos - float64(i))
		return seg.Curve[i] + frac*(seg.Curve[i+1]-seg.Curve[i])
	}
	return seg.StartValue
}

// computeInto fills the mono parameter bus for one quantum. The inputs
// slice holds the output buses of parameter connections; each is summed
// in after being collapsed to mono. NaN collapses to the default value
// and the result is clamped to the parameter's range.
//
// K-rate parameters evaluate at the first frame only and pin that value
// across the quantum; the pinned value is quantized so tiny automation
// drift does not defeat downstream identical-value short cuts.
func (p *paramState) computeInto(dst *bus.Bus, ctx *Context, inputs []*bus.Bus) {
	out := dst.Channel(0)

	if p.rate == graph.KRate {
		v := p.intrinsicAt(ctx.CurrentFrame, ctx.SampleRate)
		for _, in := range inputs {
			v += monoSample(in, 0)
		}
		v = p.sanitize(v)
		v = quantizeKRate(v)
		for i := range out {
			out[i] = v
		}
		return
	}

	for i := range out {
		out[i] = p.intrinsicAt(ctx.CurrentFrame+uint64(i), ctx.SampleRate)
	}
	for _, in := range inputs {
		ch := in.ChannelCount()
		if ch == 0 {
			continue
		}
		if ch == 1 {
			src := in.Channel(0)
			for i := range out {
				out[i] += src[i]
			}
			continue
		}
		scale := float32(1) / float32(ch)
		for c := 0; c < ch; c++ {
			src := in.Channel(c)
			for i := range out {
				out[i] += src[i] * scale
			}
		}
	}
	for i := range out {
		out[i] = p.sanitize(out[i])
	}
}

func (p *paramState) sanitize(v float32) float32 {
	if math.IsNaN(float64(v)) {
		v = p.def
	}
	if v < p.min {
		v = p.min
	}
	if v > p.max {
		v = p.max
	}
	return v
}

func monoSample(b *bus.Bus, frame int) float32 {
	ch := b.ChannelCount()
	if ch == 0 {
		return 0
	}
	var sum float32
	for c := 0; c < ch; c++ {
		sum += b.Channel(c)[frame]
	}
	return sum / float32(ch)
}

func quantizeKRate(v float32) float32 {
	return float32(math.Round(float64(v)*1e5) / 1e5)
}
