// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers the engine uses to
size ring buffers and FFT windows. A power-of-two capacity lets the
render path wrap indices with a mask instead of a modulo, which keeps
the per-sample cost constant.

All operations are O(1), allocation free and real-time safe.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Inputs at or
// below zero return 1.
//
// The size-1 before the bit length matters: without it an exact power
// of 2 would be doubled, since bits.Len of 0b1000 is one more than
// bits.Len of 0b0111.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of 2
// has exactly one bit set, so n & (n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
