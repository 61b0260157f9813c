// SPDX-License-Identifier: MIT
package render

import (
	"testing"

	"audiograph/internal/bus"
	"audiograph/internal/graph"
)

// delayFixture uses sample rate 128 and quantum 128 so one second of
// delay is exactly one quantum.
func delayFixture(maxDelay float64) (*delayNode, *Context) {
	n := newDelayNode(graph.DelayNode{MaxDelaySeconds: maxDelay}, 128, 128)
	ctx := &Context{SampleRate: 128, QuantumSize: 128}
	return n, ctx
}

func delayParam(seconds float32) []*bus.Bus {
	p := bus.New(1, 128)
	ch := p.Channel(0)
	for i := range ch {
		ch[i] = seconds
	}
	return []*bus.Bus{p}
}

func TestDelayImpulseWithinQuantum(t *testing.T) {
	n, ctx := delayFixture(1)

	in := bus.New(1, 128)
	in.Channel(0)[0] = 1
	// Quarter second is 32 frames.
	n.Process(ctx, 0, []*bus.Bus{in}, delayParam(0.25))

	out := n.Output(0).Channel(0)
	for i, v := range out {
		want := float32(0)
		if i == 32 {
			want = 1
		}
		if v != want {
			t.Fatalf("frame %d: got %v, want %v", i, v, want)
		}
	}

	// The impulse has passed; the next quantum is silent.
	in.Channel(0)[0] = 0
	n.Process(ctx, 0, []*bus.Bus{in}, delayParam(0.25))
	for i, v := range n.Output(0).Channel(0) {
		if v != 0 {
			t.Fatalf("frame %d after impulse: got %v, want 0", i, v)
		}
	}
}

func TestDelayImpulseAcrossQuantum(t *testing.T) {
	n, ctx := delayFixture(2)

	in := bus.New(1, 128)
	in.Channel(0)[0] = 1
	n.Process(ctx, 0, []*bus.Bus{in}, delayParam(1))

	// A full-quantum delay means the first quantum is still silent.
	for i, v := range n.Output(0).Channel(0) {
		if v != 0 {
			t.Fatalf("first quantum frame %d: got %v, want 0", i, v)
		}
	}

	in.Channel(0)[0] = 0
	n.Process(ctx, 0, []*bus.Bus{in}, delayParam(1))
	out := n.Output(0).Channel(0)
	if out[0] != 1 {
		t.Fatalf("delayed impulse: got %v at frame 0, want 1", out[0])
	}
	for i, v := range out[1:] {
		if v != 0 {
			t.Fatalf("second quantum frame %d: got %v, want 0", i+1, v)
		}
	}
}

func TestDelayClampsToMax(t *testing.T) {
	n, ctx := delayFixture(1)

	in := bus.New(1, 128)
	in.Channel(0)[0] = 1
	// Requests beyond the declared maximum behave as the maximum; a
	// negative request behaves as zero.
	n.Process(ctx, 0, []*bus.Bus{in}, delayParam(50))

	in.Channel(0)[0] = 0
	n.Process(ctx, 0, []*bus.Bus{in}, delayParam(50))
	if got := n.Output(0).Channel(0)[0]; got != 1 {
		t.Fatalf("clamped delay: got %v, want impulse after max delay", got)
	}

	n2, _ := delayFixture(1)
	in2 := bus.New(1, 128)
	in2.Channel(0)[5] = 1
	n2.Process(ctx, 0, []*bus.Bus{in2}, delayParam(-3))
	if got := n2.Output(0).Channel(0)[5]; got != 1 {
		t.Fatalf("negative delay: got %v, want passthrough", got)
	}
}

func TestDelayInterpolatesFractionalDelay(t *testing.T) {
	n, ctx := delayFixture(1)

	in := bus.New(1, 128)
	in.Channel(0)[0] = 1
	// 10.5 frames of delay splits the impulse across two output frames.
	n.Process(ctx, 0, []*bus.Bus{in}, delayParam(10.5/128))

	out := n.Output(0).Channel(0)
	if out[10] != 0.5 || out[11] != 0.5 {
		t.Fatalf("fractional delay: got out[10]=%v out[11]=%v, want 0.5 each", out[10], out[11])
	}
}

func TestDelayReaderBeforeWriter(t *testing.T) {
	// The split form used on feedback cycles: the reader produces last
	// quantum's audio before the writer stores this quantum's input.
	n, ctx := delayFixture(2)

	in := bus.New(1, 128)
	in.Channel(0)[0] = 1

	n.ProcessReader(ctx, 0, delayParam(1))
	for i, v := range n.Output(0).Channel(0) {
		if v != 0 {
			t.Fatalf("reader before any write, frame %d: got %v, want 0", i, v)
		}
	}
	n.ProcessWriter(ctx, 0, []*bus.Bus{in})
	n.Advance(ctx.QuantumSize)

	n.ProcessReader(ctx, 0, delayParam(1))
	if got := n.Output(0).Channel(0)[0]; got != 1 {
		t.Fatalf("reader after one quantum: got %v, want 1", got)
	}
}
