// SPDX-License-Identifier: MIT
package render

import (
	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// iirNode runs a direct form I IIR filter per channel. Coefficients
// are fixed for the node's lifetime; changing them rebuilds the node,
// which also resets the filter history.
type iirNode struct {
	out         *bus.Bus
	feedforward []float64
	feedback    []float64
	// history[c] holds past inputs then past outputs for channel c.
	histIn  [][]float64
	histOut [][]float64
}

func newIIRNode(desc graph.IIRFilterNode, quantum int) *iirNode {
	n := &iirNode{
		out:         bus.NewWithCapacity(1, bus.MaxChannels, quantum),
		feedforward: desc.Feedforward,
		feedback:    desc.Feedback,
		histIn:      make([][]float64, bus.MaxChannels),
		histOut:     make([][]float64, bus.MaxChannels),
	}
	for c := 0; c < bus.MaxChannels; c++ {
		n.histIn[c] = make([]float64, len(desc.Feedforward))
		n.histOut[c] = make([]float64, len(desc.Feedback))
	}
	return n
}

func (n *iirNode) Process(_ *Context, _ graph.NodeID, inputs []*bus.Bus, _ []*bus.Bus) {
	in := inputs[0]
	n.out.SetChannelCount(in.ChannelCount())
	if len(n.feedforward) == 0 || len(n.feedback) == 0 || n.feedback[0] == 0 {
		n.out.Zero()
		return
	}
	a0 := n.feedback[0]

	for c := 0; c < in.ChannelCount(); c++ {
		src := in.Channel(c)
		dst := n.out.Channel(c)
		hin := n.histIn[c]
		hout := n.histOut[c]

		for i := range src {
			// Shift histories by one sample.
			copy(hin[1:], hin)
			hin[0] = float64(src[i])

			acc := 0.0
			for k, b := range n.feedforward {
				acc += b * hin[k]
			}
			for k := 1; k < len(n.feedback); k++ {
				acc -= n.feedback[k] * hout[k-1]
			}
			acc /= a0

			copy(hout[1:], hout)
			hout[0] = acc
			dst[i] = float32(acc)
		}
	}
}

func (n *iirNode) Output(int) *bus.Bus               { return n.out }
func (n *iirNode) OutputCount() int                  { return 1 }
func (n *iirNode) ApplyDescription(graph.NodeDescription) {}
