// SPDX-License-Identifier: MIT
package wire

import "fmt"

// Legacy script-processor round-trip framing. The request carries one
// buffer of interleaved input samples to the scripting side; the
// mirrored response carries the processed output back. Both directions
// use the same fixed-size header so the round trip works identically in
// and out of process.
const (
	ScriptRequestMagic  uint32 = 0x53505251 // "QRPS" little-endian
	ScriptResponseMagic uint32 = 0x53505253 // "SRPS" little-endian
	ScriptVersion       uint16 = 1

	// ScriptHeaderSize is the encoded size of either header.
	ScriptHeaderSize = 36
)

// ScriptHeader is the fixed header of a script-processor request or
// response frame. Interleaved f32 samples follow the header:
// BufferSize*InputChannels for requests, BufferSize*OutputChannels for
// responses.
type ScriptHeader struct {
	Magic          uint32
	Version        uint16
	NodeID         uint64
	PlaybackTime   float64
	BufferSize     uint32
	InputChannels  uint32
	OutputChannels uint32
}

// EncodeScriptFrame serializes a header plus its interleaved samples.
func EncodeScriptFrame(h ScriptHeader, samples []float32) []byte {
	var e Encoder
	e.U32(h.Magic)
	e.U16(h.Version)
	e.U16(0)
	e.U64(h.NodeID)
	e.F64(h.PlaybackTime)
	e.U32(h.BufferSize)
	e.U32(h.InputChannels)
	e.U32(h.OutputChannels)
	for _, s := range samples {
		e.F32(s)
	}
	return e.Bytes()
}

// DecodeScriptFrame parses a frame, checking the magic against
// wantMagic, and returns the header plus the trailing samples.
func DecodeScriptFrame(payload []byte, wantMagic uint32) (ScriptHeader, []float32, error) {
	d := NewDecoder(payload)
	h := ScriptHeader{
		Magic:   d.U32(),
		Version: d.U16(),
	}
	d.U16() // reserved
	h.NodeID = d.U64()
	h.PlaybackTime = d.F64()
	h.BufferSize = d.U32()
	h.InputChannels = d.U32()
	h.OutputChannels = d.U32()
	if d.Err() != nil {
		return h, nil, d.Err()
	}
	if h.Magic != wantMagic {
		return h, nil, fmt.Errorf("%w: got %#x, want %#x", ErrBadMagic, h.Magic, wantMagic)
	}
	if h.Version != ScriptVersion {
		return h, nil, fmt.Errorf("%w: got %d", ErrBadVersion, h.Version)
	}

	// The header promises a sample count; the body must actually carry
	// it, or every consumer indexing frame*channel would run off the end.
	channels := uint64(h.OutputChannels)
	if wantMagic == ScriptRequestMagic {
		channels = uint64(h.InputChannels)
	}
	want := uint64(h.BufferSize) * channels
	sampleCount := uint64(len(payload)-ScriptHeaderSize) / 4
	if sampleCount < want {
		return h, nil, fmt.Errorf("%w: frame carries %d samples, header promises %d",
			ErrShortPayload, sampleCount, want)
	}

	samples := make([]float32, want)
	for i := range samples {
		samples[i] = d.F32()
	}
	if d.Err() != nil {
		return h, nil, d.Err()
	}
	return h, samples, nil
}
