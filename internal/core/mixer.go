package core

// Constants of the interleaved layout and its hash mixing.
const (
	// SeedValue seeds the per-hash-function multipliers.
	SeedValue = uint64(0x90b45d39fb6da1fa)
	// ShiftValue folds the top bits of the multiplicative hash into the
	// low bits before the block modulus.
	ShiftValue = 27
	// IntSize is the machine word width in bits.
	IntSize = 64
	// FilterMetadataSize is the size in bits of the persisted metadata.
	FilterMetadataSize = 256
)

// Mixer expands a fingerprint into block-aligned base positions, one per
// hash function. The same fingerprint always yields the same bases.
type Mixer struct {
	preCalc      []uint64
	noOfBlocks   uint64
	blockBitSize uint64
	mBlocks      M64
}

// NewMixer derives the multipliers for noOfHashFuncs hash functions:
// preCalc[i] = i XOR (kmerSize * SeedValue).
func NewMixer(noOfHashFuncs, kmerSize, noOfBlocks, blockBitSize uint64) *Mixer {
	pre := make([]uint64, noOfHashFuncs)
	for i := range pre {
		pre[i] = uint64(i) ^ (kmerSize * SeedValue)
	}
	return &Mixer{
		preCalc:      pre,
		noOfBlocks:   noOfBlocks,
		blockBitSize: blockBitSize,
		mBlocks:      ComputeM64(noOfBlocks),
	}
}

// NumHashFuncs returns the number of derived hash functions.
func (m *Mixer) NumHashFuncs() int { return len(m.preCalc) }

// PreCalc returns the multiplier for hash function i.
func (m *Mixer) PreCalc(i int) uint64 { return m.preCalc[i] }

// Block returns the base bit position of the block tested or set for
// fingerprint h under hash function i. The result is always a multiple
// of the block bit size.
func (m *Mixer) Block(h uint64, i int) uint64 {
	v := h * m.preCalc[i]
	v ^= v >> ShiftValue
	v = FastModU64(v, m.mBlocks, m.noOfBlocks)
	return v * m.blockBitSize
}
