// SPDX-License-Identifier: MIT
/*
Package engine drives a render executor against real audio hardware.

Thread Safety:
- Uses atomic operations for state management
- Pre-allocates the interleave buffer to avoid GC in the callback
- Locks the OS thread during audio processing
*/
package engine

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"audiograph/internal/config"
	"audiograph/internal/render"
)

type Engine struct {
	config *config.Config
	log    logrus.FieldLogger

	executor *render.Executor

	// Audio output handling.
	outputDevice  *portaudio.DeviceInfo
	outputLatency time.Duration
	outputStream  *portaudio.Stream

	// Interleave scratch, sized frames x channels up front.
	interleaved []float32

	// Atomic flag for thread-safe state.
	isRunning int32
}

// NewEngine binds an executor to an output device. The executor's
// quantum becomes the stream's frames-per-buffer, so every callback is
// exactly one render quantum.
func NewEngine(cfg *config.Config, ex *render.Executor, log logrus.FieldLogger) (*Engine, error) {
	outputDevice, err := OutputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	engine := &Engine{
		config:       cfg,
		log:          log,
		executor:     ex,
		outputDevice: outputDevice,
		interleaved:  make([]float32, ex.Quantum()*cfg.Channels),
	}

	if cfg.LowLatency {
		engine.outputLatency = outputDevice.DefaultLowOutputLatency
	} else {
		engine.outputLatency = outputDevice.DefaultHighOutputLatency
	}

	return engine, nil
}

func (e *Engine) StartOutputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: e.config.Channels,
			Device:   e.outputDevice,
			Latency:  e.outputLatency,
		},
		FramesPerBuffer: e.executor.Quantum(),
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processOutputStream)
	if err != nil {
		return err
	}
	e.outputStream = stream

	if err := e.outputStream.Start(); err != nil {
		e.outputStream.Close()
		return err
	}

	atomic.StoreInt32(&e.isRunning, 1)
	return nil
}

func (e *Engine) StopOutputStream() error {
	atomic.StoreInt32(&e.isRunning, 0)

	if e.outputStream != nil {
		if err := e.outputStream.Stop(); err != nil {
			return err
		}
		if err := e.outputStream.Close(); err != nil {
			return err
		}
		e.outputStream = nil
	}

	return nil
}

// processOutputStream is the core audio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processOutputStream(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if atomic.LoadInt32(&e.isRunning) == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}

	rendered := e.executor.RenderQuantum()
	channels := e.config.Channels
	frames := e.executor.Quantum()

	for c := 0; c < channels; c++ {
		var src []float32
		if c < rendered.ChannelCount() {
			src = rendered.Channel(c)
		}
		for i := 0; i < frames; i++ {
			v := float32(0)
			if src != nil {
				v = src[i]
			}
			e.interleaved[i*channels+c] = v
		}
	}

	copy(out, e.interleaved)
}

// Executor exposes the engine's executor for update submission.
func (e *Engine) Executor() *render.Executor { return e.executor }

// Close stops the stream if it is still running.
func (e *Engine) Close() error {
	if atomic.LoadInt32(&e.isRunning) == 1 {
		return e.StopOutputStream()
	}
	return nil
}
