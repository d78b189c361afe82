// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size transform
blocks and shared-memory sub-regions.

Design Principles:
- Zero Allocations: all operations use stack memory only
- Predictable Performance: O(1) constant time operations
- Safe on every platform int width

Usage:

	// Reject a block size before any recursion starts
	if !bitint.IsPowerOfTwo(n) { ... }

	// Recursion depth of a radix-2 transform of 1024 points
	depth := bitint.Log2(1024) // Returns 10

	// Round a requested capture length up to a transformable size
	n := bitint.NextPowerOfTwo(1000) // Returns 1024

----------------------------------------------------------------------

NextPowerOfTwo subtracts one before taking the bit length so that an exact
power of two maps to itself:

	size = 8:  bits.Len(7) = 3, 1 << 3 = 8
	size = 9:  bits.Len(8) = 4, 1 << 4 = 16

Without the subtraction every power of two would be doubled.
*/
package bitint

import "math/bits"

// IsPowerOfTwo reports whether n is a positive power of two.
// Powers of two have exactly one bit set, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
//	-8     false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// NextPowerOfTwo returns the smallest power of two >= size.
// Zero and negative inputs return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// Log2 returns the base-2 logarithm of a power of two, or -1 when n is not
// a power of two.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}

// AlignUp rounds offs up to the next multiple of align, which must be a
// power of two. Used to round flush and invalidate ranges to cache lines.
func AlignUp(offs, align uint32) uint32 {
	return (offs + align - 1) &^ (align - 1)
}

// AlignDown rounds offs down to a multiple of align, which must be a power
// of two.
func AlignDown(offs, align uint32) uint32 {
	return offs &^ (align - 1)
}
