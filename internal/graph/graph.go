// SPDX-License-Identifier: MIT
/*
Package graph defines the immutable snapshot data model that crosses the
control/render boundary: node descriptions keyed by stable integer ids,
directed connections, parameter automation tracks, and the externalized
sample-buffer registry.

A snapshot never holds a reference back into control-thread-owned objects;
the render side can consume it without touching the live graph.
*/
package graph

import "audiograph/internal/bus"

// NodeID is the stable, opaque identifier nodes use to reference each
// other. It is the only cross-boundary node handle; no pointers cross the
// control/render boundary.
type NodeID uint64

// NoFrame marks an unscheduled start or stop frame.
const NoFrame int64 = -1

// Connection is a directed audio edge between a node output and a node
// input. Multiple connections into one input are mixed by the
// destination's mixing settings.
type Connection struct {
	Source           NodeID
	Destination      NodeID
	SourceOutput     int
	DestinationInput int
}

// ParamConnection is a directed audio edge into an audio parameter: the
// source output modulates the destination's parameter at audio rate.
type ParamConnection struct {
	Source           NodeID
	Destination      NodeID
	SourceOutput     int
	DestinationParam int
}

// ChannelLayout is the channel configuration shared by all node kinds
// that accept inputs.
type ChannelLayout struct {
	Count          int
	Mode           bus.ChannelCountMode
	Interpretation bus.ChannelInterpretation
}

// FrameSchedule carries a source node's scheduled start/stop frames.
// NoFrame means the boundary is not scheduled.
type FrameSchedule struct {
	StartFrame int64
	StopFrame  int64
}

// Unscheduled returns a schedule with neither boundary set.
func Unscheduled() FrameSchedule {
	return FrameSchedule{StartFrame: NoFrame, StopFrame: NoFrame}
}

// UpdateKind classifies the difference between two descriptions of the
// same node (or graph) and drives whether a live node can be patched in
// place or must be replaced.
type UpdateKind uint8

const (
	// UpdateNone: descriptions are equivalent; nothing to do.
	UpdateNone UpdateKind = iota
	// UpdateParameterOnly: base parameter values changed; the live node
	// can be mutated without destroying its state.
	UpdateParameterOnly
	// UpdateTopology: kind, channel configuration, or connections
	// changed; the node (and possibly the surrounding graph) must be
	// rebuilt.
	UpdateTopology
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateNone:
		return "None"
	case UpdateParameterOnly:
		return "ParameterOnly"
	case UpdateTopology:
		return "Topology"
	default:
		return "Unknown"
	}
}

// ClassifyNodeUpdate compares two node descriptions. A kind change is a
// topology change; otherwise the payloads decide.
func ClassifyNodeUpdate(oldDesc, newDesc NodeDescription) UpdateKind {
	if oldDesc == nil || newDesc == nil {
		return UpdateTopology
	}
	if oldDesc.Kind() != newDesc.Kind() {
		return UpdateTopology
	}
	return oldDesc.ClassifyUpdate(newDesc)
}
