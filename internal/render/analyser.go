// SPDX-License-Identifier: MIT
package render

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// analyserNode is a transparent pass-through that captures the most
// recent fftSize frames of its input, down-mixed to mono, for
// frequency and time-domain inspection from the control thread.
//
// The ring is guarded by a mutex held only for short copies, so the
// render thread never blocks on an in-progress analysis.
type analyserNode struct {
	out *bus.Bus

	mu        sync.Mutex
	ring      []float32
	writePos  int
	fftSize   int
	smoothing float32
	minDB     float32
	maxDB     float32

	fft      *fourier.FFT
	window   []float64
	timeBuf  []float64
	coeffs   []complex128
	smoothed []float64
}

func newAnalyserNode(desc graph.AnalyserNode, quantum int) *analyserNode {
	size := desc.FFTSize
	if size < 32 {
		size = 2048
	}
	n := &analyserNode{
		out:       bus.NewWithCapacity(1, bus.MaxChannels, quantum),
		ring:      make([]float32, size),
		fftSize:   size,
		smoothing: float32(desc.SmoothingTimeConstant),
		minDB:     float32(desc.MinDecibels),
		maxDB:     float32(desc.MaxDecibels),
		fft:       fourier.NewFFT(size),
		window:    make([]float64, size),
		timeBuf:   make([]float64, size),
		coeffs:    make([]complex128, size/2+1),
		smoothed:  make([]float64, size/2),
	}
	// Blackman window, the shape the analysis surface is defined with.
	for i := range n.window {
		x := 2 * math.Pi * float64(i) / float64(size-1)
		n.window[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return n
}

func (n *analyserNode) Process(_ *Context, _ graph.NodeID, inputs []*bus.Bus, _ []*bus.Bus) {
	in := inputs[0]
	n.out.SetChannelCount(in.ChannelCount())
	n.out.CopyFrom(in)

	n.mu.Lock()
	frames := in.Frames()
	ch := in.ChannelCount()
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += in.Channel(c)[i]
		}
		if ch > 1 {
			sum /= float32(ch)
		}
		n.ring[n.writePos] = sum
		n.writePos = (n.writePos + 1) % n.fftSize
	}
	n.mu.Unlock()
}

// FrequencyBinCount returns the number of bins FrequencyData fills.
func (n *analyserNode) FrequencyBinCount() int { return n.fftSize / 2 }

// TimeDomainData copies the newest captured samples into dst, oldest
// first. It fills at most fftSize values.
func (n *analyserNode) TimeDomainData(dst []float32) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := len(dst)
	if count > n.fftSize {
		count = n.fftSize
	}
	start := n.writePos - count
	for i := 0; i < count; i++ {
		dst[i] = n.ring[(start+i+n.fftSize)%n.fftSize]
	}
	return count
}

// FrequencyData fills dst with smoothed magnitudes in decibels, one
// per frequency bin. Smoothing blends each new analysis with the
// previous one by the node's smoothing time constant.
func (n *analyserNode) FrequencyData(dst []float32) int {
	n.mu.Lock()
	start := n.writePos
	for i := 0; i < n.fftSize; i++ {
		n.timeBuf[i] = float64(n.ring[(start+i)%n.fftSize]) * n.window[i]
	}
	n.mu.Unlock()

	n.fft.Coefficients(n.coeffs, n.timeBuf)

	bins := n.FrequencyBinCount()
	if len(dst) < bins {
		bins = len(dst)
	}
	scale := 1 / float64(n.fftSize)
	s := float64(n.smoothing)
	for i := 0; i < bins; i++ {
		mag := cmplxAbs(n.coeffs[i]) * scale
		n.smoothed[i] = s*n.smoothed[i] + (1-s)*mag
		db := 20 * math.Log10(math.Max(n.smoothed[i], 1e-40))
		dst[i] = float32(db)
	}
	return bins
}

// ByteFrequencyData maps FrequencyData onto 0..255 using the node's
// decibel range.
func (n *analyserNode) ByteFrequencyData(dst []byte, scratch []float32) int {
	bins := n.FrequencyData(scratch)
	if len(dst) < bins {
		bins = len(dst)
	}
	span := n.maxDB - n.minDB
	if span <= 0 {
		span = 1
	}
	for i := 0; i < bins; i++ {
		u := (scratch[i] - n.minDB) / span
		if u < 0 {
			u = 0
		}
		if u > 1 {
			u = 1
		}
		dst[i] = byte(u * 255)
	}
	return bins
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func (n *analyserNode) Output(int) *bus.Bus { return n.out }
func (n *analyserNode) OutputCount() int    { return 1 }

func (n *analyserNode) ApplyDescription(desc graph.NodeDescription) {
	if d, ok := desc.(graph.AnalyserNode); ok {
		n.mu.Lock()
		n.smoothing = float32(d.SmoothingTimeConstant)
		n.minDB = float32(d.MinDecibels)
		n.maxDB = float32(d.MaxDecibels)
		n.mu.Unlock()
	}
}
