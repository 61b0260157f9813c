// SPDX-License-Identifier: MIT
/*
Package offline renders a graph to a buffer as fast as the CPU allows.

The render runs on its own goroutine. Completion is observable two
ways: Wait blocks in-process, and ReadFD exposes a pollable descriptor
for callers that multiplex the render alongside sockets. The finished
buffer is handed over exactly once through TakeResult.
*/
package offline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"audiograph/internal/graph"
	"audiograph/internal/render"
)

var (
	ErrAlreadyStarted = errors.New("offline: render already started")
	ErrNotFinished    = errors.New("offline: render not finished")
	ErrResultTaken    = errors.New("offline: result already taken")
)

// Result is the outcome of one offline render.
type Result struct {
	// Buffer holds the rendered audio, planar, at the executor's rate.
	Buffer *graph.SampleBuffer
	// Frames actually rendered; equals the requested length on success.
	Frames int
	Err    error
}

// Renderer drives an executor for a fixed number of frames.
type Renderer struct {
	ex     *render.Executor
	frames int
	log    logrus.FieldLogger

	notifier *Notifier
	done     chan struct{}
	started  atomic.Bool
	result   atomic.Pointer[Result]
}

// NewRenderer prepares an offline render of totalFrames frames. The
// executor must not be driven by anyone else.
func NewRenderer(ex *render.Executor, totalFrames int, log logrus.FieldLogger) (*Renderer, error) {
	if totalFrames <= 0 {
		return nil, errors.New("offline: render length must be positive")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	n, err := NewNotifier()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		ex:       ex,
		frames:   totalFrames,
		log:      log,
		notifier: n,
		done:     make(chan struct{}),
	}, nil
}

// ReadFD is a descriptor that becomes readable when the render is done.
func (r *Renderer) ReadFD() int { return r.notifier.ReadFD() }

// Start launches the render goroutine. It may be called once.
func (r *Renderer) Start() error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go r.run()
	return nil
}

func (r *Renderer) run() {
	res := &Result{
		Buffer: &graph.SampleBuffer{SampleRate: r.ex.SampleRate()},
	}

	quantum := r.ex.Quantum()
	for res.Frames < r.frames {
		out := r.ex.RenderQuantum()

		take := quantum
		if remaining := r.frames - res.Frames; remaining < take {
			take = remaining
		}
		for len(res.Buffer.Channels) < out.ChannelCount() {
			res.Buffer.Channels = append(res.Buffer.Channels, make([]float32, 0, r.frames))
		}
		for c := range res.Buffer.Channels {
			if c < out.ChannelCount() {
				res.Buffer.Channels[c] = append(res.Buffer.Channels[c], out.Channel(c)[:take]...)
			} else {
				// Channel appeared mid-render; keep earlier channels
				// aligned by padding with silence.
				res.Buffer.Channels[c] = append(res.Buffer.Channels[c], make([]float32, take)...)
			}
		}
		res.Frames += take

		// Updates and retirements still flow while rendering offline.
		r.ex.ReleaseRetired()
	}

	r.result.Store(res)
	close(r.done)
	r.notifier.Signal()
	r.log.WithFields(logrus.Fields{
		"frames":   res.Frames,
		"channels": len(res.Buffer.Channels),
	}).Debug("offline render complete")
}

// Wait blocks until the render finishes or the context is cancelled.
func (r *Renderer) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TakeResult transfers ownership of the finished buffer to the caller.
// It succeeds exactly once; later calls return ErrResultTaken and an
// early call returns ErrNotFinished.
func (r *Renderer) TakeResult() (*Result, error) {
	select {
	case <-r.done:
	default:
		return nil, ErrNotFinished
	}
	res := r.result.Swap(nil)
	if res == nil {
		return nil, ErrResultTaken
	}
	return res, nil
}

// Close releases the notifier. Call after the result has been taken.
func (r *Renderer) Close() error {
	return r.notifier.Close()
}
