// SPDX-License-Identifier: MIT
package graph

import (
	"github.com/sirupsen/logrus"

	"audiograph/internal/config"
)

// LiveNode is the boundary to the script-visible graph: the builder
// traverses a live node tree through this interface and never retains a
// reference past the snapshot.
type LiveNode interface {
	// AudioInputs returns the live edges feeding this node's inputs.
	AudioInputs() []LiveEdge
	// ParamInputs returns the live edges modulating this node's params.
	ParamInputs() []LiveParamEdge
	// Snapshot produces this node's plain-data description, registering
	// any bulk sample data with reg and referencing it by id. Returning
	// nil marks the node unsupported; the builder substitutes an inert
	// no-op description rather than aborting the snapshot.
	Snapshot(reg *ResourceRegistry) NodeDescription
}

// LiveEdge is a live audio connection into the node that returned it.
type LiveEdge struct {
	Source           LiveNode
	SourceOutput     int
	DestinationInput int
}

// LiveParamEdge is a live modulation connection into a parameter.
type LiveParamEdge struct {
	Source           LiveNode
	SourceOutput     int
	DestinationParam int
}

// LiveAutomations is implemented by live nodes that carry parameter
// automation timelines. Destination ids are filled in by the builder.
type LiveAutomations interface {
	ParamAutomations() []ParamAutomation
}

// Builder produces graph snapshots from a live node tree. It keeps a
// stable id per live node across builds, so successive snapshots of the
// same graph compare as parameter-only updates when only values changed.
type Builder struct {
	ids    map[LiveNode]NodeID
	nextID NodeID
}

// NewBuilder returns a builder with an empty id table.
func NewBuilder() *Builder {
	return &Builder{
		ids:    make(map[LiveNode]NodeID),
		nextID: 1,
	}
}

// Build traverses the live graph rooted at destination and produces one
// snapshot plus the registry of externalized sample buffers. The live
// graph is not modified. Build never fails: unsupported nodes become
// inert no-ops and out-of-range delay configurations are rejected into
// no-ops at build time, never at render time.
func (b *Builder) Build(destination LiveNode) (*Description, *ResourceRegistry) {
	reg := NewResourceRegistry()
	desc := NewDescription(b.idFor(destination))

	visited := make(map[LiveNode]bool)
	queue := []LiveNode{destination}
	visited[destination] = true

	for len(queue) > 0 {
		live := queue[0]
		queue = queue[1:]
		id := b.idFor(live)

		node := live.Snapshot(reg)
		if node == nil {
			logrus.WithField("node", id).Debug("snapshotting unsupported live node as no-op")
			node = UnsupportedNode{}
		}
		node = sanitizeNode(id, node)
		desc.Nodes[id] = node

		if auto, ok := live.(LiveAutomations); ok {
			for _, track := range auto.ParamAutomations() {
				track.Destination = id
				desc.Automations = append(desc.Automations, track)
			}
		}

		for _, edge := range live.AudioInputs() {
			desc.Connections = append(desc.Connections, Connection{
				Source:           b.idFor(edge.Source),
				Destination:      id,
				SourceOutput:     edge.SourceOutput,
				DestinationInput: edge.DestinationInput,
			})
			if !visited[edge.Source] {
				visited[edge.Source] = true
				queue = append(queue, edge.Source)
			}
		}
		for _, edge := range live.ParamInputs() {
			desc.ParamConnections = append(desc.ParamConnections, ParamConnection{
				Source:           b.idFor(edge.Source),
				Destination:      id,
				SourceOutput:     edge.SourceOutput,
				DestinationParam: edge.DestinationParam,
			})
			if !visited[edge.Source] {
				visited[edge.Source] = true
				queue = append(queue, edge.Source)
			}
		}
	}

	return desc, reg
}

func (b *Builder) idFor(live LiveNode) NodeID {
	if id, ok := b.ids[live]; ok {
		return id
	}
	id := b.nextID
	b.nextID++
	b.ids[live] = id
	return id
}

// sanitizeNode enforces build-time resource limits so render-time code
// never has to reject a description.
func sanitizeNode(id NodeID, node NodeDescription) NodeDescription {
	delay, ok := node.(DelayNode)
	if !ok {
		return node
	}
	if delay.MaxDelaySeconds > config.MaxDelaySeconds {
		logrus.WithFields(logrus.Fields{
			"node":      id,
			"max_delay": delay.MaxDelaySeconds,
		}).Warn("delay node exceeds supported maximum, snapshotting as no-op")
		return UnsupportedNode{}
	}
	if delay.DelaySeconds < 0 {
		delay.DelaySeconds = 0
	}
	if delay.DelaySeconds > delay.MaxDelaySeconds {
		delay.DelaySeconds = delay.MaxDelaySeconds
	}
	return delay
}
