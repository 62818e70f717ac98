package ibf

import "errors"

// Error kinds surfaced by the filter. I/O failures from load and save
// are wrapped os errors carrying the path.
var (
	// ErrImmutableBacking reports a write, clear or resize on a filter
	// loaded with the compressed (frozen) backing.
	ErrImmutableBacking = errors.New("ibf: mutation of compressed backing")

	// ErrShrink reports an attempt to reduce the bin count.
	ErrShrink = errors.New("ibf: bin count may only grow")

	// ErrBadParams reports invalid construction parameters.
	ErrBadParams = errors.New("ibf: invalid parameters")

	// ErrBinOutOfRange reports a bin id at or above the bin count.
	ErrBinOutOfRange = errors.New("ibf: bin out of range")

	// ErrTruncatedFile reports a filter file too short to hold its
	// metadata tail.
	ErrTruncatedFile = errors.New("ibf: truncated filter file")

	// ErrCorruptMetadata reports a metadata tail whose declared geometry
	// disagrees with the payload.
	ErrCorruptMetadata = errors.New("ibf: metadata disagrees with payload")

	// ErrGeometryMismatch reports filters that cannot be merged because
	// their parameters differ.
	ErrGeometryMismatch = errors.New("ibf: filters have different geometry")
)
