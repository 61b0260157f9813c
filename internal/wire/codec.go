// SPDX-License-Identifier: MIT
package wire

import (
	"fmt"
	"sort"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// Graph payload framing.
const (
	GraphMagic   uint32 = 0x57414747 // "GGAW" little-endian
	GraphVersion uint16 = 2

	// FlagExternalResources marks a payload whose nodes depend on bulk
	// sample data; the decoder then expects an inline buffer table.
	FlagExternalResources uint32 = 1 << 0
)

// Section tags inside a graph payload. Unknown tags are skipped so newer
// encoders can add sections without breaking older decoders; unknown
// node kinds, by contrast, are a hard error.
const (
	sectionNodeTable       uint32 = 1
	sectionConnectionTable uint32 = 2
	sectionParamConnTable  uint32 = 3
	sectionAutomationTable uint32 = 4
	sectionBufferTable     uint32 = 5
)

// Header field offsets, used to patch the flags word after encoding.
const flagsOffset = 8

// DecodedGraph is the all-or-nothing result of DecodeGraph.
type DecodedGraph struct {
	Description          *graph.Description
	Resources            *graph.ResourceRegistry
	Flags                uint32
	SampleRate           float32
	AutomationEventCount int
}

// EncodeGraph serializes a snapshot for cross-process transfer. Sample
// buffers referenced by buffer-source nodes are resolved through res and
// embedded in an inline buffer table; ids the resolver cannot supply are
// omitted (the decoder rejects dangling references, so an encoder that
// omits a referenced buffer produces a payload that will not decode).
func EncodeGraph(desc *graph.Description, sampleRate float32, res graph.ResourceResolver) []byte {
	var e Encoder
	e.U32(GraphMagic)
	e.U16(GraphVersion)
	e.U16(0)
	e.U32(0) // flags, patched below
	e.F32(sampleRate)
	e.U64(uint64(desc.DestinationID))

	var flags uint32

	sortedIDs := make([]graph.NodeID, 0, len(desc.Nodes))
	for id := range desc.Nodes {
		sortedIDs = append(sortedIDs, id)
	}
	sort.Slice(sortedIDs, func(i, j int) bool { return sortedIDs[i] < sortedIDs[j] })

	// Node table.
	sizeOffset, payloadStart := beginSection(&e, sectionNodeTable)
	e.U32(uint32(len(sortedIDs)))
	for _, id := range sortedIDs {
		node := desc.Nodes[id]
		e.U64(uint64(id))
		e.U8(uint8(node.Kind()))

		nodeSizeOffset := e.Len()
		e.U32(0)
		nodeStart := e.Len()
		encodeNodePayload(&e, node, &flags)
		e.PatchU32(nodeSizeOffset, uint32(e.Len()-nodeStart))
	}
	endSection(&e, sizeOffset, payloadStart)

	encodeBufferTable(&e, desc, sortedIDs, res, &flags)

	// Connection table.
	sizeOffset, payloadStart = beginSection(&e, sectionConnectionTable)
	e.U32(uint32(len(desc.Connections)))
	for _, c := range desc.Connections {
		e.U64(uint64(c.Source))
		e.U64(uint64(c.Destination))
		e.U32(uint32(c.SourceOutput))
		e.U32(uint32(c.DestinationInput))
	}
	endSection(&e, sizeOffset, payloadStart)

	// Param connection table.
	sizeOffset, payloadStart = beginSection(&e, sectionParamConnTable)
	e.U32(uint32(len(desc.ParamConnections)))
	for _, c := range desc.ParamConnections {
		e.U64(uint64(c.Source))
		e.U64(uint64(c.Destination))
		e.U32(uint32(c.SourceOutput))
		e.U32(uint32(c.DestinationParam))
	}
	endSection(&e, sizeOffset, payloadStart)

	// Param automation table.
	sizeOffset, payloadStart = beginSection(&e, sectionAutomationTable)
	e.U32(uint32(len(desc.Automations)))
	for i := range desc.Automations {
		encodeAutomation(&e, &desc.Automations[i])
	}
	endSection(&e, sizeOffset, payloadStart)

	e.PatchU32(flagsOffset, flags)
	return e.Bytes()
}

// DecodeGraph parses a graph payload. On any error no partial graph is
// returned.
func DecodeGraph(payload []byte) (*DecodedGraph, error) {
	d := NewDecoder(payload)

	magic := d.U32()
	version := d.U16()
	d.U16() // reserved
	if d.Err() != nil {
		return nil, d.Err()
	}
	if magic != GraphMagic {
		return nil, fmt.Errorf("%w: got %#x", ErrBadMagic, magic)
	}
	if version != GraphVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, version, GraphVersion)
	}

	result := &DecodedGraph{
		Resources: graph.NewResourceRegistry(),
	}
	result.Flags = d.U32()
	result.SampleRate = d.F32()
	result.Description = graph.NewDescription(graph.NodeID(d.U64()))

	for !d.AtEnd() {
		tag := d.U32()
		size := d.U32()
		body := d.Bytes(int(size))
		if d.Err() != nil {
			return nil, d.Err()
		}
		section := NewDecoder(body)

		var err error
		switch tag {
		case sectionNodeTable:
			err = decodeNodeTable(section, result.Description)
		case sectionConnectionTable:
			err = decodeConnectionTable(section, result.Description)
		case sectionParamConnTable:
			err = decodeParamConnTable(section, result.Description)
		case sectionAutomationTable:
			err = decodeAutomationTable(section, result)
		case sectionBufferTable:
			err = decodeBufferTable(section, result.Resources)
		default:
			// Unknown section: skip for forward compatibility.
		}
		if err != nil {
			return nil, err
		}
	}

	if err := validateBufferReferences(result.Description, result.Resources); err != nil {
		return nil, err
	}
	if err := result.Description.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return result, nil
}

func beginSection(e *Encoder, tag uint32) (sizeOffset, payloadStart int) {
	e.U32(tag)
	sizeOffset = e.Len()
	e.U32(0)
	payloadStart = e.Len()
	return sizeOffset, payloadStart
}

func endSection(e *Encoder, sizeOffset, payloadStart int) {
	e.PatchU32(sizeOffset, uint32(e.Len()-payloadStart))
}

func encodeBufferTable(e *Encoder, desc *graph.Description, sortedIDs []graph.NodeID, res graph.ResourceResolver, flags *uint32) {
	var bufferIDs []uint64
	seen := make(map[uint64]bool)
	for _, id := range sortedIDs {
		src, ok := desc.Nodes[id].(graph.BufferSourceNode)
		if !ok || src.BufferID == 0 || seen[src.BufferID] {
			continue
		}
		seen[src.BufferID] = true
		bufferIDs = append(bufferIDs, src.BufferID)
	}
	if len(bufferIDs) == 0 {
		return
	}
	sort.Slice(bufferIDs, func(i, j int) bool { return bufferIDs[i] < bufferIDs[j] })

	var present []uint64
	for _, id := range bufferIDs {
		if res != nil && res.ResolveSampleBuffer(id) != nil {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return
	}

	*flags |= FlagExternalResources

	sizeOffset, payloadStart := beginSection(e, sectionBufferTable)
	e.U32(uint32(len(present)))
	for _, id := range present {
		buf := res.ResolveSampleBuffer(id)
		e.U64(id)
		e.F32(buf.SampleRate)
		e.U32(uint32(len(buf.Channels)))
		e.U64(uint64(buf.Frames()))
		// Planar f32 samples, channel-major.
		for _, ch := range buf.Channels {
			for _, s := range ch {
				e.F32(s)
			}
		}
	}
	endSection(e, sizeOffset, payloadStart)
}

func decodeNodeTable(d *Decoder, desc *graph.Description) error {
	count := d.U32()
	for i := uint32(0); i < count; i++ {
		id := graph.NodeID(d.U64())
		kind := graph.NodeKind(d.U8())
		size := d.U32()
		body := d.Bytes(int(size))
		if d.Err() != nil {
			return d.Err()
		}
		node, err := decodeNodePayload(kind, NewDecoder(body))
		if err != nil {
			return err
		}
		desc.Nodes[id] = node
	}
	return d.Err()
}

func decodeConnectionTable(d *Decoder, desc *graph.Description) error {
	count := d.U32()
	for i := uint32(0); i < count; i++ {
		c := graph.Connection{
			Source:           graph.NodeID(d.U64()),
			Destination:      graph.NodeID(d.U64()),
			SourceOutput:     int(d.U32()),
			DestinationInput: int(d.U32()),
		}
		if d.Err() != nil {
			return d.Err()
		}
		desc.Connections = append(desc.Connections, c)
	}
	return d.Err()
}

func decodeParamConnTable(d *Decoder, desc *graph.Description) error {
	count := d.U32()
	for i := uint32(0); i < count; i++ {
		c := graph.ParamConnection{
			Source:           graph.NodeID(d.U64()),
			Destination:      graph.NodeID(d.U64()),
			SourceOutput:     int(d.U32()),
			DestinationParam: int(d.U32()),
		}
		if d.Err() != nil {
			return d.Err()
		}
		desc.ParamConnections = append(desc.ParamConnections, c)
	}
	return d.Err()
}

func decodeAutomationTable(d *Decoder, result *DecodedGraph) error {
	count := d.U32()
	for i := uint32(0); i < count; i++ {
		track, err := decodeAutomation(d)
		if err != nil {
			return err
		}
		result.AutomationEventCount += len(track.Segments)
		result.Description.Automations = append(result.Description.Automations, track)
	}
	return d.Err()
}

func decodeBufferTable(d *Decoder, reg *graph.ResourceRegistry) error {
	count := d.U32()
	for i := uint32(0); i < count; i++ {
		id := d.U64()
		sampleRate := d.F32()
		channelCount := d.U32()
		frames := d.U64()
		if d.Err() != nil {
			return d.Err()
		}
		if channelCount > bus.MaxChannels {
			return fmt.Errorf("%w: buffer %d has %d channels", ErrMalformed, id, channelCount)
		}
		// Declared frame counts size an allocation, so they must fit in
		// what the payload actually carries.
		if channelCount > 0 && frames > uint64(d.Remaining())/4/uint64(channelCount) {
			return fmt.Errorf("%w: buffer %d declares %d frames", ErrShortPayload, id, frames)
		}
		buf := &graph.SampleBuffer{
			SampleRate: sampleRate,
			Channels:   make([][]float32, channelCount),
		}
		for ch := uint32(0); ch < channelCount; ch++ {
			samples := make([]float32, frames)
			for f := uint64(0); f < frames; f++ {
				samples[f] = d.F32()
			}
			buf.Channels[ch] = samples
		}
		if d.Err() != nil {
			return d.Err()
		}
		reg.Set(id, buf)
	}
	return d.Err()
}

func encodeAutomation(e *Encoder, a *graph.ParamAutomation) {
	e.U64(uint64(a.Destination))
	e.U32(uint32(a.ParamIndex))
	e.F32(a.InitialValue)
	e.F32(a.DefaultValue)
	e.F32(a.MinValue)
	e.F32(a.MaxValue)
	e.U8(uint8(a.Rate))
	e.U32(uint32(len(a.Segments)))
	for i := range a.Segments {
		s := &a.Segments[i]
		e.U8(uint8(s.Type))
		e.F64(s.StartTime)
		e.F64(s.EndTime)
		e.F64(s.CurveStartTime)
		e.F64(s.CurveDuration)
		e.U64(s.StartFrame)
		e.U64(s.EndFrame)
		e.F32(s.StartValue)
		e.F32(s.EndValue)
		e.F32(s.TimeConstant)
		e.F32(s.Target)
		e.U32(uint32(len(s.Curve)))
		for _, v := range s.Curve {
			e.F32(v)
		}
	}
}

func decodeAutomation(d *Decoder) (graph.ParamAutomation, error) {
	a := graph.ParamAutomation{
		Destination:  graph.NodeID(d.U64()),
		ParamIndex:   int(d.U32()),
		InitialValue: d.F32(),
		DefaultValue: d.F32(),
		MinValue:     d.F32(),
		MaxValue:     d.F32(),
		Rate:         graph.AutomationRate(d.U8()),
	}
	segmentCount := d.U32()
	for i := uint32(0); i < segmentCount; i++ {
		s := graph.AutomationSegment{
			Type:           graph.SegmentType(d.U8()),
			StartTime:      d.F64(),
			EndTime:        d.F64(),
			CurveStartTime: d.F64(),
			CurveDuration:  d.F64(),
			StartFrame:     d.U64(),
			EndFrame:       d.U64(),
			StartValue:     d.F32(),
			EndValue:       d.F32(),
			TimeConstant:   d.F32(),
			Target:         d.F32(),
		}
		curveCount := d.Count(4)
		if curveCount > 0 {
			s.Curve = make([]float32, curveCount)
			for c := 0; c < curveCount; c++ {
				s.Curve[c] = d.F32()
			}
		}
		if d.Err() != nil {
			return a, d.Err()
		}
		a.Segments = append(a.Segments, s)
	}
	return a, d.Err()
}

// validateBufferReferences rejects payloads whose nodes reference buffer
// ids absent from the resource table. There is no partial success: one
// dangling reference fails the whole decode.
func validateBufferReferences(desc *graph.Description, reg *graph.ResourceRegistry) error {
	for id, node := range desc.Nodes {
		src, ok := node.(graph.BufferSourceNode)
		if !ok || src.BufferID == 0 {
			continue
		}
		if reg.ResolveSampleBuffer(src.BufferID) == nil {
			return fmt.Errorf("%w: node %d references buffer %d", ErrMissingBuffer, id, src.BufferID)
		}
	}
	return nil
}
