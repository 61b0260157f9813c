// SPDX-License-Identifier: MIT
package graph

// AutomationRate selects whether a parameter is evaluated per sample or
// once per quantum.
type AutomationRate uint8

const (
	ARate AutomationRate = iota
	KRate
)

// SegmentType tags one span of a parameter automation timeline.
type SegmentType uint8

const (
	SegmentConstant SegmentType = iota
	SegmentLinearRamp
	SegmentExponentialRamp
	SegmentTarget
	SegmentValueCurve
)

// AutomationSegment is one span of a parameter timeline. Frames bound the
// span on the render timeline; times are in context seconds.
type AutomationSegment struct {
	Type           SegmentType
	StartTime      float64
	EndTime        float64
	CurveStartTime float64
	CurveDuration  float64
	StartFrame     uint64
	EndFrame       uint64
	StartValue     float32
	EndValue       float32
	TimeConstant   float32
	Target         float32
	Curve          []float32
}

// ParamAutomation is the full automation track for one parameter of one
// node, including the clamping range the render side applies after
// summing audio-rate modulation inputs.
type ParamAutomation struct {
	Destination  NodeID
	ParamIndex   int
	InitialValue float32
	DefaultValue float32
	MinValue     float32
	MaxValue     float32
	Rate         AutomationRate
	Segments     []AutomationSegment
}

func automationsEqual(a, b []ParamAutomation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !automationEqual(&a[i], &b[i]) {
			return false
		}
	}
	return true
}

func automationEqual(a, b *ParamAutomation) bool {
	if a.Destination != b.Destination || a.ParamIndex != b.ParamIndex ||
		a.InitialValue != b.InitialValue || a.DefaultValue != b.DefaultValue ||
		a.MinValue != b.MinValue || a.MaxValue != b.MaxValue || a.Rate != b.Rate {
		return false
	}
	if len(a.Segments) != len(b.Segments) {
		return false
	}
	for i := range a.Segments {
		sa, sb := &a.Segments[i], &b.Segments[i]
		if sa.Type != sb.Type || sa.StartTime != sb.StartTime || sa.EndTime != sb.EndTime ||
			sa.CurveStartTime != sb.CurveStartTime || sa.CurveDuration != sb.CurveDuration ||
			sa.StartFrame != sb.StartFrame || sa.EndFrame != sb.EndFrame ||
			sa.StartValue != sb.StartValue || sa.EndValue != sb.EndValue ||
			sa.TimeConstant != sb.TimeConstant || sa.Target != sb.Target ||
			!float32SlicesEqual(sa.Curve, sb.Curve) {
			return false
		}
	}
	return true
}
