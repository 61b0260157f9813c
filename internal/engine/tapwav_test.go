package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
	"audiograph/internal/render"
)

func TestPcmSampleClamps(t *testing.T) {
	tests := []struct {
		in   float32
		want int
	}{
		{0, 0},
		{1, pcmScale},
		{-1, -pcmScale},
		{2.5, pcmScale},
		{-3, -pcmScale},
		{0.5, pcmScale / 2},
	}
	for _, tt := range tests {
		if got := pcmSample(tt.in); got != tt.want {
			t.Errorf("pcmSample(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	buf := &graph.SampleBuffer{
		SampleRate: 48000,
		Channels: [][]float32{
			{0, 0.5, -0.5, 1},
			{1, -1, 0.25, 0},
		},
	}
	require.NoError(t, WriteWAV(path, buf))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	pcm, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 2, pcm.Format.NumChannels)
	assert.Equal(t, 48000, pcm.Format.SampleRate)
	require.Len(t, pcm.Data, 8)
	assert.Equal(t, pcmScale, pcm.Data[1], "right channel of frame 0")
	assert.Equal(t, pcmScale/2, pcm.Data[2], "left channel of frame 1")
}

func TestWriteWAVRejectsEmptyBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	err := WriteWAV(path, &graph.SampleBuffer{SampleRate: 48000})
	assert.Error(t, err)
}

func TestWavTapSinkCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tap.wav")
	sink := NewWavTapSink(2, 48000, 4)

	ctx := &render.Context{SampleRate: 48000, QuantumSize: 4}
	b := bus.New(2, 4)
	copy(b.Channel(0), []float32{0.5, 0.5, 0.5, 0.5})
	copy(b.Channel(1), []float32{-0.5, -0.5, -0.5, -0.5})

	// Before Start nothing is recorded and nothing fails.
	require.NoError(t, sink.WriteQuantum("premix", ctx, b))

	require.NoError(t, sink.Start(path))
	assert.Error(t, sink.Start(path), "double start must be rejected")
	require.NoError(t, sink.WriteQuantum("premix", ctx, b))
	require.NoError(t, sink.WriteQuantum("premix", ctx, b))
	require.NoError(t, sink.Stop())
	require.NoError(t, sink.Stop(), "stop is idempotent")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	pcm, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, pcm.Data, 16, "two quanta of four stereo frames")
	assert.Equal(t, pcmScale/2, pcm.Data[0])
	assert.Equal(t, -pcmScale/2, pcm.Data[1])
}
