package core

import (
	"fmt"
)

// ChunkRouter partitions the fingerprint space for sharded construction.
// A fingerprint's logical chunk id is the significantBits-wide field of
// the fingerprint starting at bit significantPositions (low bit first);
// chunkMap translates it to a physical chunk id. The default router has
// a single chunk and every fingerprint routes to it.
type ChunkRouter struct {
	chunks               uint64
	chunkMap             []uint8
	significantPositions uint8
	significantBits      uint8
	effectiveChunks      uint64
	chunkOffset          uint64
}

// NewChunkRouter returns the identity single-chunk router.
func NewChunkRouter() *ChunkRouter {
	return &ChunkRouter{
		chunks:          1,
		chunkMap:        []uint8{0},
		effectiveChunks: 1,
	}
}

// Configure installs a chunk map. chunkMap must have 1<<significantBits
// entries, one per logical chunk id.
func (r *ChunkRouter) Configure(chunkMap []uint8, significantPositions, significantBits uint8) error {
	if significantBits > 8 {
		return fmt.Errorf("significantBits %d exceeds 8", significantBits)
	}
	chunks := uint64(1) << significantBits
	if uint64(len(chunkMap)) != chunks {
		return fmt.Errorf("chunk map has %d entries, want %d", len(chunkMap), chunks)
	}
	seen := make(map[uint8]struct{}, len(chunkMap))
	for _, c := range chunkMap {
		seen[c] = struct{}{}
	}
	r.chunks = chunks
	r.chunkMap = append([]uint8(nil), chunkMap...)
	r.significantPositions = significantPositions
	r.significantBits = significantBits
	r.effectiveChunks = uint64(len(seen))
	return nil
}

// SetChunkOffset records the per-chunk block count derived from the
// filter geometry.
func (r *ChunkRouter) SetChunkOffset(off uint64) { r.chunkOffset = off }

// Route returns the physical chunk id for a fingerprint.
func (r *ChunkRouter) Route(h uint64) uint8 {
	if r.significantBits == 0 {
		return r.chunkMap[0]
	}
	id := (h >> r.significantPositions) & (1<<r.significantBits - 1)
	return r.chunkMap[id]
}

// Chunks returns the number of logical chunks.
func (r *ChunkRouter) Chunks() uint64 { return r.chunks }

// EffectiveChunks returns the number of distinct physical chunks.
func (r *ChunkRouter) EffectiveChunks() uint64 { return r.effectiveChunks }

// ChunkOffset returns the per-chunk block count.
func (r *ChunkRouter) ChunkOffset() uint64 { return r.chunkOffset }
