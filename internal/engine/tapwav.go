package engine

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
	"audiograph/internal/render"
)

const pcmScale = 2147483647

// WavTapSink captures tap node quanta to a WAV file. It serves every
// tap label in the graph; Start gates capture with an atomic flag the
// same way the rest of the engine gates its streams.
type WavTapSink struct {
	isRecording int32
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer
	channels    int
	sampleRate  int
}

// NewWavTapSink prepares a sink for the given shape. Nothing touches
// the filesystem until Start.
func NewWavTapSink(channels int, sampleRate float64, quantum int) *WavTapSink {
	return &WavTapSink{
		channels:   channels,
		sampleRate: int(sampleRate),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  int(sampleRate),
			},
			Data: make([]int, quantum*channels),
		},
	}
}

func (s *WavTapSink) Start(filename string) error {
	if atomic.LoadInt32(&s.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	s.outputFile = file
	s.wavEncoder = wav.NewEncoder(file, s.sampleRate, 32, s.channels, 1)

	atomic.StoreInt32(&s.isRecording, 1)
	return nil
}

func (s *WavTapSink) Stop() error {
	if atomic.LoadInt32(&s.isRecording) == 0 {
		return nil
	}
	atomic.StoreInt32(&s.isRecording, 0)

	if s.wavEncoder != nil {
		if err := s.wavEncoder.Close(); err != nil {
			return err
		}
		s.wavEncoder = nil
	}
	if s.outputFile != nil {
		if err := s.outputFile.Close(); err != nil {
			return err
		}
		s.outputFile = nil
	}
	return nil
}

// WriteQuantum implements render.Sink. Samples are interleaved and
// clamped to 32-bit PCM with the reusable conversion buffer.
func (s *WavTapSink) WriteQuantum(_ string, ctx *render.Context, b *bus.Bus) error {
	if atomic.LoadInt32(&s.isRecording) == 0 || s.wavEncoder == nil {
		return nil
	}

	frames := ctx.QuantumSize
	s.sampleBuf.Data = s.sampleBuf.Data[:frames*s.channels]
	for c := 0; c < s.channels; c++ {
		var src []float32
		if c < b.ChannelCount() {
			src = b.Channel(c)
		}
		for i := 0; i < frames; i++ {
			v := float32(0)
			if src != nil {
				v = src[i]
			}
			s.sampleBuf.Data[i*s.channels+c] = pcmSample(v)
		}
	}

	return s.wavEncoder.Write(s.sampleBuf)
}

func pcmSample(v float32) int {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	// float64 keeps full-scale samples inside the 32-bit range; float32
	// rounds the scale up to 2^31 and overflows.
	return int(float64(v) * pcmScale)
}

// WriteWAV saves a rendered sample buffer, typically an offline render
// result, to a WAV file.
func WriteWAV(filename string, buf *graph.SampleBuffer) error {
	channels := len(buf.Channels)
	if channels == 0 {
		return fmt.Errorf("empty buffer")
	}
	frames := buf.Frames()

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := wav.NewEncoder(file, int(buf.SampleRate), 32, channels, 1)
	intBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  int(buf.SampleRate),
		},
		Data: make([]int, frames*channels),
	}
	for c := 0; c < channels; c++ {
		src := buf.Channels[c]
		for i := 0; i < frames; i++ {
			intBuf.Data[i*channels+c] = pcmSample(src[i])
		}
	}
	if err := enc.Write(intBuf); err != nil {
		return err
	}
	return enc.Close()
}
