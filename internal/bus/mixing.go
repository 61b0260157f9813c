// SPDX-License-Identifier: MIT
package bus

// ChannelCountMode selects how a node's computed channel count is derived
// from its inputs.
type ChannelCountMode uint8

const (
	ChannelCountMax ChannelCountMode = iota
	ChannelCountClampedMax
	ChannelCountExplicit
)

// ChannelInterpretation selects the matrixing rule used when an input's
// channel count differs from the computed count.
type ChannelInterpretation uint8

const (
	InterpretationSpeakers ChannelInterpretation = iota
	InterpretationDiscrete
)

// MixSettings is the per-node channel mixing configuration. Every node
// with inputs carries one.
type MixSettings struct {
	ChannelCount   int
	Mode           ChannelCountMode
	Interpretation ChannelInterpretation
}

// ComputedChannelCount derives the channel count a node's mixed input bus
// adopts for one quantum, given the widest connected input.
func ComputedChannelCount(s MixSettings, maxInputChannels int) int {
	count := s.ChannelCount
	if count < 1 {
		count = 1
	}
	if maxInputChannels < 1 {
		maxInputChannels = 1
	}

	switch s.Mode {
	case ChannelCountMax:
		count = maxInputChannels
	case ChannelCountClampedMax:
		if maxInputChannels < count {
			count = maxInputChannels
		}
	case ChannelCountExplicit:
		// Keep the explicit count.
	}

	if count > MaxChannels {
		count = MaxChannels
	}
	return count
}

// MixInputs sums every input into dst using the speakers matrixing rules
// for mono/stereo/quad/5.1 layouts and discrete fill for anything else.
// dst must already have its channel count set; it is zeroed first.
func MixInputs(dst *Bus, inputs []*Bus) {
	dst.Zero()
	for _, in := range inputs {
		if in == nil || in.ChannelCount() == 0 {
			continue
		}
		sumSpeakers(dst, in)
	}
}

// MixInputsDiscrete sums inputs channel-for-channel, dropping extra source
// channels and leaving extra destination channels untouched by that input.
func MixInputsDiscrete(dst *Bus, inputs []*Bus) {
	dst.Zero()
	for _, in := range inputs {
		if in == nil || in.ChannelCount() == 0 {
			continue
		}
		sumDiscrete(dst, in)
	}
}

func sumDiscrete(dst, src *Bus) {
	count := src.ChannelCount()
	if dst.ChannelCount() < count {
		count = dst.ChannelCount()
	}
	for ch := 0; ch < count; ch++ {
		out := dst.Channel(ch)
		in := src.Channel(ch)
		for i := range out {
			out[i] += in[i]
		}
	}
}

// sumSpeakers implements the standard up/down-mix matrix between the
// layouts it defines (1, 2, 4, 6 channels). Pairs without a defined
// matrix fall back to discrete summing.
func sumSpeakers(dst, src *Bus) {
	sc := src.ChannelCount()
	dc := dst.ChannelCount()
	if sc == dc {
		sumDiscrete(dst, src)
		return
	}

	switch {
	case sc == 1 && (dc == 2 || dc == 4):
		// Mono to stereo/quad front pair.
		in := src.Channel(0)
		l, r := dst.Channel(0), dst.Channel(1)
		for i := range in {
			l[i] += in[i]
			r[i] += in[i]
		}
	case sc == 1 && dc == 6:
		// Mono feeds the center channel.
		in := src.Channel(0)
		c := dst.Channel(2)
		for i := range in {
			c[i] += in[i]
		}
	case sc == 2 && dc == 1:
		// Stereo down-mix: 0.5 * (L + R).
		l, r := src.Channel(0), src.Channel(1)
		out := dst.Channel(0)
		for i := range out {
			out[i] += 0.5 * (l[i] + r[i])
		}
	case sc == 2 && (dc == 4 || dc == 6):
		sumDiscrete(dst, src)
	case sc == 4 && dc == 1:
		// Quad down-mix: 0.25 * (L + R + SL + SR).
		a, b, c, d := src.Channel(0), src.Channel(1), src.Channel(2), src.Channel(3)
		out := dst.Channel(0)
		for i := range out {
			out[i] += 0.25 * (a[i] + b[i] + c[i] + d[i])
		}
	case sc == 4 && dc == 2:
		// Quad to stereo: L = 0.5*(L+SL), R = 0.5*(R+SR).
		fl, fr, sl, sr := src.Channel(0), src.Channel(1), src.Channel(2), src.Channel(3)
		l, r := dst.Channel(0), dst.Channel(1)
		for i := range l {
			l[i] += 0.5 * (fl[i] + sl[i])
			r[i] += 0.5 * (fr[i] + sr[i])
		}
	case sc == 6 && dc == 1:
		// 5.1 down-mix: sqrt(1/2)*(L+R) + C + 0.5*(SL+SR).
		const sqrtHalf = 0.7071067811865476
		l, r, c := src.Channel(0), src.Channel(1), src.Channel(2)
		sl, sr := src.Channel(4), src.Channel(5)
		out := dst.Channel(0)
		for i := range out {
			out[i] += sqrtHalf*(l[i]+r[i]) + c[i] + 0.5*(sl[i]+sr[i])
		}
	case sc == 6 && dc == 2:
		const sqrtHalf = 0.7071067811865476
		l, r, c := src.Channel(0), src.Channel(1), src.Channel(2)
		sl, sr := src.Channel(4), src.Channel(5)
		outL, outR := dst.Channel(0), dst.Channel(1)
		for i := range outL {
			outL[i] += l[i] + sqrtHalf*(c[i]+sl[i])
			outR[i] += r[i] + sqrtHalf*(c[i]+sr[i])
		}
	case sc == 6 && dc == 4:
		const sqrtHalf = 0.7071067811865476
		l, r, c := src.Channel(0), src.Channel(1), src.Channel(2)
		sl, sr := src.Channel(4), src.Channel(5)
		outL, outR := dst.Channel(0), dst.Channel(1)
		outSL, outSR := dst.Channel(2), dst.Channel(3)
		for i := range outL {
			outL[i] += l[i] + sqrtHalf*c[i]
			outR[i] += r[i] + sqrtHalf*c[i]
			outSL[i] += sl[i]
			outSR[i] += sr[i]
		}
	default:
		sumDiscrete(dst, src)
	}
}
