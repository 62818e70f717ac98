// Package ibf implements an interleaved bloom filter for approximate
// k-mer membership queries across many sequence bins.
//
// The filter multiplexes one bloom filter per bin into a shared bit
// vector. Instead of concatenating the per-bin filters, the layout
// interleaves them: each hash slot owns a block holding one bit per bin,
// padded to a multiple of 64 bits, so a single aligned word read tests
// one hash position across 64 bins at once. The layout is also what
// makes growing the bin count possible without rehashing: a block only
// widens, every existing bit keeps its in-block offset.
package ibf

import (
	"fmt"
	"math/bits"
	"sync"

	"ibfgo/internal/core"
)

// Params bundles the primary construction parameters.
type Params struct {
	NoOfBins      uint64 // number of logical partitions
	NoOfHashFuncs uint64 // derived hash functions per fingerprint
	KmerSize      uint64 // k, in [2, 32]
	NoOfBits      uint64 // total bit-vector size; multiple of the block size
}

// Validate checks the parameter bounds. The block-size divisibility of
// NoOfBits is checked against the bin count's derived block width.
func (p Params) Validate() error {
	if p.NoOfBins == 0 {
		return fmt.Errorf("%w: need at least one bin", ErrBadParams)
	}
	if p.NoOfHashFuncs == 0 {
		return fmt.Errorf("%w: need at least one hash function", ErrBadParams)
	}
	if p.KmerSize < 2 || p.KmerSize > 32 {
		return fmt.Errorf("%w: kmer size %d outside [2, 32]", ErrBadParams, p.KmerSize)
	}
	blockBitSize := ((p.NoOfBins + core.IntSize - 1) / core.IntSize) * core.IntSize
	if p.NoOfBits == 0 || p.NoOfBits%blockBitSize != 0 {
		return fmt.Errorf("%w: %d bits is not a multiple of the %d bit block size",
			ErrBadParams, p.NoOfBits, blockBitSize)
	}
	return nil
}

// Filter is an interleaved bloom filter. The zero value is unusable;
// construct with New or load from a file.
//
// Concurrent InsertKmer calls are safe; insertion relies on an atomic
// bit-level OR. Count and Select are read-only and safe with each other
// but must not race with writers: callers put a happens-before fence
// (a join) between the build phase and the query phase.
type Filter struct {
	noOfBins      uint64
	noOfHashFuncs uint64
	kmerSize      uint64
	noOfBits      uint64

	// derived, invariant between rebuildDerived calls
	binWidth     uint64 // words per block
	blockBitSize uint64 // bits per block, multiple of 64
	noOfBlocks   uint64 // distinct hash slots

	shape  core.Shape
	mixer  *core.Mixer
	router *core.ChunkRouter
	vec    core.Backing
}

// New constructs a zeroed filter with the packed (mutable) backing.
func New(noOfBins, noOfHashFuncs, kmerSize, noOfBits uint64) (*Filter, error) {
	p := Params{NoOfBins: noOfBins, NoOfHashFuncs: noOfHashFuncs, KmerSize: kmerSize, NoOfBits: noOfBits}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f := &Filter{
		noOfBins:      noOfBins,
		noOfHashFuncs: noOfHashFuncs,
		kmerSize:      kmerSize,
		noOfBits:      noOfBits,
		router:        core.NewChunkRouter(),
		vec:           core.NewPackedVector(noOfBits),
	}
	if err := f.rebuildDerived(); err != nil {
		return nil, err
	}
	return f, nil
}

// rebuildDerived recomputes the geometry and hash state from the primary
// fields. It never touches the bit vector; resizing and loading install
// the backing first and rebuild afterwards.
func (f *Filter) rebuildDerived() error {
	f.binWidth = (f.noOfBins + core.IntSize - 1) / core.IntSize
	f.blockBitSize = f.binWidth * core.IntSize
	if f.noOfBits%f.blockBitSize != 0 {
		return fmt.Errorf("%w: %d bits is not a multiple of the %d bit block size",
			ErrBadParams, f.noOfBits, f.blockBitSize)
	}
	f.noOfBlocks = f.noOfBits / f.blockBitSize
	f.mixer = core.NewMixer(f.noOfHashFuncs, f.kmerSize, f.noOfBlocks, f.blockBitSize)
	f.router.SetChunkOffset(f.noOfBits / (f.router.Chunks() * f.blockBitSize))
	if f.shape == nil || f.shape.KmerSize() != f.kmerSize {
		shape, err := core.NewRollingShape(f.kmerSize, core.Dna)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadParams, err)
		}
		f.shape = shape
	}
	return nil
}

// NoOfBins returns the bin count.
func (f *Filter) NoOfBins() uint64 { return f.noOfBins }

// NoOfHashFuncs returns the number of hash functions.
func (f *Filter) NoOfHashFuncs() uint64 { return f.noOfHashFuncs }

// KmerSize returns k.
func (f *Filter) KmerSize() uint64 { return f.kmerSize }

// NoOfBits returns the bit-vector size.
func (f *Filter) NoOfBits() uint64 { return f.noOfBits }

// BlockBitSize returns the bits per block.
func (f *Filter) BlockBitSize() uint64 { return f.blockBitSize }

// NoOfBlocks returns the number of hash slots.
func (f *Filter) NoOfBlocks() uint64 { return f.noOfBlocks }

// Mutable reports whether the backing supports insertion, clearing and
// resizing.
func (f *Filter) Mutable() bool { return f.vec.Mutable() }

// SetShape swaps the fingerprint stream. The shape's k must match the
// filter's; fingerprints from different shapes are not interchangeable.
func (f *Filter) SetShape(s core.Shape) error {
	if s.KmerSize() != f.kmerSize {
		return fmt.Errorf("%w: shape kmer size %d, filter %d", ErrBadParams, s.KmerSize(), f.kmerSize)
	}
	f.shape = s
	return nil
}

// SetChunking installs the sharded-build routing. chunkMap must hold one
// physical chunk id per logical chunk, 1<<significantBits entries; the
// logical id of a fingerprint is its significantBits-wide field starting
// at bit significantPositions, low bit first.
func (f *Filter) SetChunking(chunkMap []uint8, significantPositions, significantBits uint8) error {
	if err := f.router.Configure(chunkMap, significantPositions, significantBits); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	f.router.SetChunkOffset(f.noOfBits / (f.router.Chunks() * f.blockBitSize))
	return nil
}

const allChunks = -1

// InsertKmer adds every k-mer of text to the given bin. Safe to call
// concurrently, also for the same bin (idempotent, but contended).
func (f *Filter) InsertKmer(text []byte, binNo uint64) error {
	return f.insert(text, binNo, allChunks)
}

// InsertKmerChunk adds only the k-mers routed to chunkID. Used by
// sharded builders; each builder owns one active chunk.
func (f *Filter) InsertKmerChunk(text []byte, binNo uint64, chunkID uint8) error {
	return f.insert(text, binNo, int(chunkID))
}

func (f *Filter) insert(text []byte, binNo uint64, chunk int) error {
	if !f.vec.Mutable() {
		return ErrImmutableBacking
	}
	if binNo >= f.noOfBins {
		return fmt.Errorf("%w: bin %d of %d", ErrBinOutOfRange, binNo, f.noOfBins)
	}
	f.shape.ForEach(text, func(h uint64) {
		if chunk != allChunks && f.router.Route(h) != uint8(chunk) {
			return
		}
		for i := 0; i < int(f.noOfHashFuncs); i++ {
			f.vec.SetAtomic(f.mixer.Block(h, i) + binNo)
		}
	})
	return nil
}

// Record pairs a bin with a text, the unit yielded by sequence sources.
type Record struct {
	Bin  uint64
	Text []byte
}

// InsertFrom drains records with the given number of workers. Safety
// follows from the atomic bit-set; records for the same bin may be
// processed by different workers. The first error stops nothing but is
// reported after the channel closes.
func (f *Filter) InsertFrom(records <-chan Record, threads int) error {
	if !f.vec.Mutable() {
		return ErrImmutableBacking
	}
	if threads < 1 {
		threads = 1
	}
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	wg.Add(threads)
	for t := 0; t < threads; t++ {
		go func() {
			defer wg.Done()
			for rec := range records {
				if err := f.InsertKmer(rec.Text, rec.Bin); err != nil {
					once.Do(func() { firstErr = err })
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// CountInto fills counts with the number of k-mers of text approximately
// present in each bin. counts must have length NoOfBins. The count type
// holds short-read texts; texts longer than 65535+k-1 symbols need
// batching by the caller.
func (f *Filter) CountInto(counts []uint16, text []byte) {
	if uint64(len(counts)) != f.noOfBins {
		panic(fmt.Sprintf("CountInto: counts length %d, want %d", len(counts), f.noOfBins))
	}
	vecIndices := make([]uint64, f.noOfHashFuncs)
	f.shape.ForEach(text, func(h uint64) {
		for i := range vecIndices {
			vecIndices[i] = f.mixer.Block(h, i)
		}
		for batchNo := uint64(0); batchNo < f.binWidth; batchNo++ {
			binNo := batchNo * core.IntSize

			// One aligned word per hash function; the AND leaves bit j
			// set iff bin binNo+j tests positive under every function.
			tmp := f.vec.GetWord(vecIndices[0], core.IntSize)
			for i := 1; i < len(vecIndices); i++ {
				tmp &= f.vec.GetWord(vecIndices[i], core.IntSize)
			}

			// Decode by repeated lowest-set-bit. The lone top bit is
			// handled directly: stepping past it would shift by the full
			// word width.
			if tmp^(1<<(core.IntSize-1)) != 0 {
				for tmp > 0 {
					step := uint64(bits.TrailingZeros64(tmp))
					binNo += step
					tmp >>= step + 1
					counts[binNo]++
					binNo++
				}
			} else {
				counts[binNo+core.IntSize-1]++
			}

			for i := range vecIndices {
				vecIndices[i] += core.IntSize
			}
		}
	})
}

// Count returns the per-bin counts for text.
func (f *Filter) Count(text []byte) []uint16 {
	counts := make([]uint16, f.noOfBins)
	f.CountInto(counts, text)
	return counts
}

// Select reports, per bin, whether the count for text meets threshold.
func (f *Filter) Select(text []byte, threshold uint16) []bool {
	counts := f.Count(text)
	selected := make([]bool, f.noOfBins)
	for binNo, c := range counts {
		selected[binNo] = c >= threshold
	}
	return selected
}

// Clear zeroes the given bins across every hash slot. Blocks are
// partitioned into disjoint stripes, one batch per worker, so no
// synchronization is needed beyond the final join.
func (f *Filter) Clear(binNos []uint64, threads int) error {
	if !f.vec.Mutable() {
		return ErrImmutableBacking
	}
	for _, b := range binNos {
		if b >= f.noOfBins {
			return fmt.Errorf("%w: bin %d of %d", ErrBinOutOfRange, b, f.noOfBins)
		}
	}
	if threads < 1 {
		threads = 1
	}
	batchSize := f.noOfBlocks / uint64(threads)
	if batchSize*uint64(threads) < f.noOfBlocks {
		batchSize++
	}
	var wg sync.WaitGroup
	wg.Add(threads)
	for taskNo := 0; taskNo < threads; taskNo++ {
		go func(taskNo uint64) {
			defer wg.Done()
			for hashBlock := taskNo * batchSize; hashBlock < f.noOfBlocks && hashBlock < (taskNo+1)*batchSize; hashBlock++ {
				vecPos := hashBlock * f.blockBitSize
				for _, binNo := range binNos {
					f.vec.Unset(vecPos + binNo)
				}
			}
		}(uint64(taskNo))
	}
	wg.Wait()
	return nil
}

// ResizeBins grows the filter to the given bin count without rehashing.
// Every block widens to the new block size with existing bits kept at
// their in-block offsets, so all previously computed hash positions stay
// valid; the bit vector grows in proportion to the block width. Only the
// packed backing resizes.
func (f *Filter) ResizeBins(noOfBins uint64) error {
	if !f.vec.Mutable() {
		return ErrImmutableBacking
	}
	if noOfBins < f.noOfBins {
		return fmt.Errorf("%w: %d -> %d", ErrShrink, f.noOfBins, noOfBins)
	}
	newBinWidth := (noOfBins + core.IntSize - 1) / core.IntSize
	newBlockBitSize := newBinWidth * core.IntSize
	newNoOfBits := f.noOfBlocks * newBlockBitSize

	f.vec.(*core.PackedVector).Resize(newNoOfBits, f.blockBitSize, newBlockBitSize)

	f.noOfBins = noOfBins
	f.noOfBits = newNoOfBits
	return f.rebuildDerived()
}

// MergeChunks combines shard filters built with disjoint active chunks
// into one. All parts must share the filter geometry; bits are combined
// by word-wise OR, which is exact for the set-only build phase.
func MergeChunks(parts ...*Filter) (*Filter, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no parts", ErrBadParams)
	}
	first := parts[0]
	merged, err := New(first.noOfBins, first.noOfHashFuncs, first.kmerSize, first.noOfBits)
	if err != nil {
		return nil, err
	}
	dst := merged.vec.Words()
	for _, p := range parts {
		if p.noOfBins != first.noOfBins || p.noOfHashFuncs != first.noOfHashFuncs ||
			p.kmerSize != first.kmerSize || p.noOfBits != first.noOfBits {
			return nil, ErrGeometryMismatch
		}
		for i, w := range p.vec.Words() {
			dst[i] |= w
		}
	}
	return merged, nil
}
