package core

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Alphabet ranks text symbols into [0, Sigma). Bytes outside the
// alphabet rank 0; the core assumes pre-sanitized input.
type Alphabet struct {
	ranks [256]uint8
	sigma uint64
}

// NewAlphabet builds an alphabet from its ordered symbols. Ranking is
// case-insensitive for ASCII letters.
func NewAlphabet(symbols string) *Alphabet {
	if len(symbols) < 2 || len(symbols) > 255 {
		panic("NewAlphabet: alphabet size must be in [2, 255]")
	}
	a := &Alphabet{sigma: uint64(len(symbols))}
	for i := 0; i < len(symbols); i++ {
		c := symbols[i]
		a.ranks[c] = uint8(i)
		if c >= 'A' && c <= 'Z' {
			a.ranks[c+'a'-'A'] = uint8(i)
		}
		if c >= 'a' && c <= 'z' {
			a.ranks[c-'a'+'A'] = uint8(i)
		}
	}
	return a
}

// Dna is the default 4-symbol alphabet.
var Dna = NewAlphabet("ACGT")

// Sigma returns the alphabet size.
func (a *Alphabet) Sigma() uint64 { return a.sigma }

// Rank returns the rank of a symbol.
func (a *Alphabet) Rank(c byte) uint64 { return uint64(a.ranks[c]) }

// Shape streams the 64-bit k-mer fingerprints of a text. The sequence is
// finite, ordered and restartable: every ForEach call re-derives it.
type Shape interface {
	// KmerSize returns k.
	KmerSize() uint64
	// ForEach invokes fn once per fingerprint, in text order. Texts
	// shorter than k yield no fingerprints.
	ForEach(text []byte, fn func(h uint64))
}

// RollingShape produces polynomial fingerprints over a small alphabet:
// the fingerprint of position p is
// sigma^(k-1)*t[p] + sigma^(k-2)*t[p+1] + ... + t[p+k-1],
// updated in O(1) per position.
type RollingShape struct {
	k     uint64
	alpha *Alphabet
	msb   uint64 // sigma^(k-1), the weight rolled out per step
}

// NewRollingShape validates k against the alphabet. k must lie in
// [2, 32] and sigma^k must fit a 64-bit fingerprint.
func NewRollingShape(k uint64, alpha *Alphabet) (*RollingShape, error) {
	if k < 2 || k > 32 {
		return nil, fmt.Errorf("kmer size %d outside [2, 32]", k)
	}
	msb := uint64(1)
	for i := uint64(1); i < k; i++ {
		next := msb * alpha.sigma
		if next/alpha.sigma != msb {
			return nil, fmt.Errorf("kmer space sigma=%d k=%d overflows 64 bits", alpha.sigma, k)
		}
		msb = next
	}
	// Fingerprints range over [0, sigma^k); sigma^k may equal exactly
	// 2^64 (sigma=4, k=32) and still fit, so only a strict overflow of
	// the k-mer space is rejected.
	if msb > ^uint64(0)/alpha.sigma && msb*alpha.sigma != 0 {
		return nil, fmt.Errorf("kmer space sigma=%d k=%d overflows 64 bits", alpha.sigma, k)
	}
	return &RollingShape{k: k, alpha: alpha, msb: msb}, nil
}

// KmerSize returns k.
func (s *RollingShape) KmerSize() uint64 { return s.k }

// ForEach computes the first fingerprint directly and rolls the rest.
func (s *RollingShape) ForEach(text []byte, fn func(h uint64)) {
	n := uint64(len(text))
	if n < s.k {
		return
	}
	var h uint64
	for j := uint64(0); j < s.k; j++ {
		h = h*s.alpha.sigma + s.alpha.Rank(text[j])
	}
	fn(h)
	for p := uint64(0); p+s.k < n; p++ {
		h = (h-s.alpha.Rank(text[p])*s.msb)*s.alpha.sigma + s.alpha.Rank(text[p+s.k])
		fn(h)
	}
}

// WindowShape fingerprints each k-mer window with xxhash. It serves
// alphabets whose k-mer space does not fit 64 bits; the filter layers
// above are fingerprint-agnostic.
type WindowShape struct {
	k uint64
}

// NewWindowShape validates k.
func NewWindowShape(k uint64) (*WindowShape, error) {
	if k < 2 || k > 32 {
		return nil, fmt.Errorf("kmer size %d outside [2, 32]", k)
	}
	return &WindowShape{k: k}, nil
}

// KmerSize returns k.
func (s *WindowShape) KmerSize() uint64 { return s.k }

// ForEach hashes every window of length k.
func (s *WindowShape) ForEach(text []byte, fn func(h uint64)) {
	n := uint64(len(text))
	if n < s.k {
		return
	}
	for p := uint64(0); p+s.k <= n; p++ {
		fn(xxhash.Sum64(text[p : p+s.k]))
	}
}
