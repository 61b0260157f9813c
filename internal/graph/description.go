// SPDX-License-Identifier: MIT
package graph

// Description is one complete graph snapshot. It is produced by the
// Builder on every structural edit, consumed exactly once (by an executor
// or the wire codec), and then discarded.
type Description struct {
	DestinationID    NodeID
	Nodes            map[NodeID]NodeDescription
	Connections      []Connection
	ParamConnections []ParamConnection
	Automations      []ParamAutomation
}

// NewDescription returns an empty snapshot rooted at destination.
func NewDescription(destination NodeID) *Description {
	return &Description{
		DestinationID: destination,
		Nodes:         make(map[NodeID]NodeDescription),
	}
}

// Validate checks the snapshot's structural invariants: every connection
// endpoint must exist in Nodes. Cycles are legal; delay nodes may close
// them.
func (d *Description) Validate() error {
	if _, ok := d.Nodes[d.DestinationID]; !ok {
		return &ValidationError{Reason: "destination node missing from node table"}
	}
	for _, c := range d.Connections {
		if _, ok := d.Nodes[c.Source]; !ok {
			return &ValidationError{Reason: "connection references unknown source node", Node: c.Source}
		}
		if _, ok := d.Nodes[c.Destination]; !ok {
			return &ValidationError{Reason: "connection references unknown destination node", Node: c.Destination}
		}
	}
	for _, c := range d.ParamConnections {
		if _, ok := d.Nodes[c.Source]; !ok {
			return &ValidationError{Reason: "param connection references unknown source node", Node: c.Source}
		}
		if _, ok := d.Nodes[c.Destination]; !ok {
			return &ValidationError{Reason: "param connection references unknown destination node", Node: c.Destination}
		}
	}
	return nil
}

// ValidationError reports a broken snapshot invariant.
type ValidationError struct {
	Reason string
	Node   NodeID
}

func (e *ValidationError) Error() string { return "invalid graph description: " + e.Reason }

// ClassifyUpdate compares two snapshots of the same graph. Node-set or
// connection changes are topology changes; otherwise the per-node
// classifications and automation tracks decide.
func ClassifyUpdate(oldDesc, newDesc *Description) UpdateKind {
	if oldDesc == nil || newDesc == nil {
		return UpdateTopology
	}
	if oldDesc.DestinationID != newDesc.DestinationID {
		return UpdateTopology
	}
	if len(oldDesc.Nodes) != len(newDesc.Nodes) {
		return UpdateTopology
	}
	if !connectionsEqual(oldDesc.Connections, newDesc.Connections) {
		return UpdateTopology
	}
	if !paramConnectionsEqual(oldDesc.ParamConnections, newDesc.ParamConnections) {
		return UpdateTopology
	}

	result := UpdateNone
	for id, oldNode := range oldDesc.Nodes {
		newNode, ok := newDesc.Nodes[id]
		if !ok {
			return UpdateTopology
		}
		switch ClassifyNodeUpdate(oldNode, newNode) {
		case UpdateTopology:
			return UpdateTopology
		case UpdateParameterOnly:
			result = UpdateParameterOnly
		}
	}

	if !automationsEqual(oldDesc.Automations, newDesc.Automations) && result == UpdateNone {
		result = UpdateParameterOnly
	}
	return result
}

func connectionsEqual(a, b []Connection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func paramConnectionsEqual(a, b []ParamConnection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
