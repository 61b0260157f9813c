// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
	"audiograph/internal/wire"
)

// ScriptClient forwards script-processor buffer exchanges to an
// external scripting host over a websocket. One exchange is one
// request/response frame pair; the connection is serialized, which is
// fine because the worklet host already serializes calls per engine.
type ScriptClient struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	log     logrus.FieldLogger

	// Interleave scratch reused across calls.
	samples []float32
}

// DialScript connects to a scripting host. The timeout bounds each
// round trip, not the dial.
func DialScript(url string, timeout time.Duration, log logrus.FieldLogger) (*ScriptClient, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial script host: %w", err)
	}
	return &ScriptClient{conn: conn, timeout: timeout, log: log}, nil
}

// RunScript implements the worklet script runner over the wire framing.
func (c *ScriptClient) RunScript(nodeID graph.NodeID, playbackTime float64, input, output *bus.Bus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := input.Frames()
	inCh := input.ChannelCount()
	outCh := output.ChannelCount()

	need := frames * inCh
	if cap(c.samples) < need {
		c.samples = make([]float32, need)
	}
	c.samples = c.samples[:need]
	for ch := 0; ch < inCh; ch++ {
		src := input.Channel(ch)
		for i := 0; i < frames; i++ {
			c.samples[i*inCh+ch] = src[i]
		}
	}

	req := wire.EncodeScriptFrame(wire.ScriptHeader{
		Magic:          wire.ScriptRequestMagic,
		Version:        wire.ScriptVersion,
		NodeID:         uint64(nodeID),
		PlaybackTime:   playbackTime,
		BufferSize:     uint32(frames),
		InputChannels:  uint32(inCh),
		OutputChannels: uint32(outCh),
	}, c.samples)

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, req); err != nil {
		return fmt.Errorf("send script request: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read script response: %w", err)
	}

	h, samples, err := wire.DecodeScriptFrame(payload, wire.ScriptResponseMagic)
	if err != nil {
		return err
	}
	if h.NodeID != uint64(nodeID) {
		return fmt.Errorf("script response for node %d, want %d", h.NodeID, nodeID)
	}
	if int(h.BufferSize) != frames || int(h.OutputChannels) != outCh {
		return fmt.Errorf("script response shape %dx%d, want %dx%d",
			h.BufferSize, h.OutputChannels, frames, outCh)
	}

	for ch := 0; ch < outCh; ch++ {
		dst := output.Channel(ch)
		for i := 0; i < frames; i++ {
			dst[i] = samples[i*outCh+ch]
		}
	}
	return nil
}

func (c *ScriptClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
