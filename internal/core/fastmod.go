package core

import (
	"math/bits"
)

// M64 is the 128-bit magic constant for 64-bit fast modulus
// (lemire/fastmod). [0] is the low word, [1] the high word.
type M64 [2]uint64

// ComputeM64 computes the magic number for a 64-bit fast modulus:
// M = floor((2^128 - 1) / d) + 1, d > 0.
func ComputeM64(d uint64) M64 {
	if d == 0 {
		panic("ComputeM64: division by zero")
	}
	// Schoolbook division of 2^128-1 by d: quotient high word first,
	// then the remainder carried into a 128/64 divide for the low word.
	qh := ^uint64(0) / d
	rh := ^uint64(0) - qh*d
	ql, _ := bits.Div64(rh, ^uint64(0), d)

	var m M64
	var carry uint64
	m[0], carry = bits.Add64(ql, 1, 0)
	m[1], _ = bits.Add64(qh, carry, 0)
	return m
}

// FastModU64 computes a % d given M precomputed for d. The result is
// identical to the native modulus for every input.
func FastModU64(a uint64, m M64, d uint64) uint64 {
	// lowbits = low 128 bits of M * a. The wrapping product m[1]*a is
	// exactly the low half of the high-word partial product.
	lowHi, lowLo := bits.Mul64(m[0], a)
	lowHi += m[1] * a
	return mul128High(lowHi, lowLo, d)
}

// mul128High returns the high 64 bits of (hi·2^64 + lo) * d.
func mul128High(hi, lo, d uint64) uint64 {
	phh, phl := bits.Mul64(hi, d)
	plh, _ := bits.Mul64(lo, d)
	_, carry := bits.Add64(phl, plh, 0)
	res, _ := bits.Add64(phh, 0, carry)
	return res
}
