package ibf

import (
	"encoding/binary"
	"fmt"
	"os"

	"ibfgo/internal/core"
	"ibfgo/internal/serial"
)

// On-disk layout: ceil(noOfBits/8) payload bytes of little-endian packed
// words, then a 256-bit metadata tail of four little-endian u64 fields:
// noOfBins, noOfHashFuncs, kmerSize, noOfBits.
const metadataBytes = core.FilterMetadataSize / 8

// MarshalBinary implements encoding.BinaryMarshaler with the on-disk
// layout.
func (f *Filter) MarshalBinary() ([]byte, error) {
	payloadBytes := int(f.noOfBits / 8)
	buf := make([]byte, payloadBytes+metadataBytes)
	for i, w := range f.vec.Words() {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	tail := buf[payloadBytes:]
	binary.LittleEndian.PutUint64(tail[0:8], f.noOfBins)
	binary.LittleEndian.PutUint64(tail[8:16], f.noOfHashFuncs)
	binary.LittleEndian.PutUint64(tail[16:24], f.kmerSize)
	binary.LittleEndian.PutUint64(tail[24:32], f.noOfBits)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The loaded
// filter gets the packed backing; see LoadCompressedFromFile for the
// query-only variant.
func (f *Filter) UnmarshalBinary(data []byte) error {
	return f.unmarshal(data, false)
}

func (f *Filter) unmarshal(data []byte, frozen bool) error {
	if len(data) < metadataBytes {
		return ErrTruncatedFile
	}
	tail := data[len(data)-metadataBytes:]
	noOfBins := binary.LittleEndian.Uint64(tail[0:8])
	noOfHashFuncs := binary.LittleEndian.Uint64(tail[8:16])
	kmerSize := binary.LittleEndian.Uint64(tail[16:24])
	noOfBits := binary.LittleEndian.Uint64(tail[24:32])

	p := Params{NoOfBins: noOfBins, NoOfHashFuncs: noOfHashFuncs, KmerSize: kmerSize, NoOfBits: noOfBits}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	payloadBytes := noOfBits / 8
	if uint64(len(data)-metadataBytes) != payloadBytes {
		return fmt.Errorf("%w: declared %d payload bytes, file holds %d",
			ErrCorruptMetadata, payloadBytes, len(data)-metadataBytes)
	}

	words := make([]uint64, payloadBytes/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(data[i*8:])
	}

	f.noOfBins = noOfBins
	f.noOfHashFuncs = noOfHashFuncs
	f.kmerSize = kmerSize
	f.noOfBits = noOfBits
	if f.router == nil {
		f.router = core.NewChunkRouter()
	}
	if frozen {
		f.vec = core.FrozenFromWords(words, noOfBits)
	} else {
		f.vec = core.PackedFromWords(words, noOfBits)
	}
	f.shape = nil
	if err := f.rebuildDerived(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	return nil
}

// SaveToFile writes the filter to path.
func (f *Filter) SaveToFile(path string) error {
	data, err := serial.TryMarshal(f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("saving filter to %s: %w", path, err)
	}
	return nil
}

// LoadFromFile reads a filter with the packed (mutable) backing.
func LoadFromFile(path string) (*Filter, error) {
	return loadFile(path, false)
}

// LoadCompressedFromFile reads a filter with the frozen backing. The
// result answers Count and Select; InsertKmer, Clear and ResizeBins
// report ErrImmutableBacking.
func LoadCompressedFromFile(path string) (*Filter, error) {
	return loadFile(path, true)
}

func loadFile(path string, frozen bool) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading filter from %s: %w", path, err)
	}
	f := &Filter{}
	if err := f.unmarshal(data, frozen); err != nil {
		return nil, fmt.Errorf("loading filter from %s: %w", path, err)
	}
	return f, nil
}

// ReadMetadata decodes only the metadata tail of a filter file.
func ReadMetadata(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("reading metadata from %s: %w", path, err)
	}
	if len(data) < metadataBytes {
		return Params{}, ErrTruncatedFile
	}
	tail := data[len(data)-metadataBytes:]
	return Params{
		NoOfBins:      binary.LittleEndian.Uint64(tail[0:8]),
		NoOfHashFuncs: binary.LittleEndian.Uint64(tail[8:16]),
		KmerSize:      binary.LittleEndian.Uint64(tail[16:24]),
		NoOfBits:      binary.LittleEndian.Uint64(tail[24:32]),
	}, nil
}
