package malloc

import "errors"

// Sentinel errors surfaced by Arena.LastError. The hot paths
// (Alloc/Free/Reallocate) never return an error value themselves -- per
// the facade contract they signal failure with nil -- but the engine
// records which of these sentinels caused the most recent failure, so
// tests (and other introspection) can assert on the failure kind
// without the facade itself growing an error return. abortoncorruption
// still escalates ErrCorruption to a Fatalf that terminates the process
// instead of just recording it.
var (
	// ErrOutOfMemory: the page source refused both heap extension and
	// mapping, or the request size overflowed the address space.
	ErrOutOfMemory = errors.New("malloc: out of memory")

	// ErrInvalidArgument: zero or negative size, non-power-of-two
	// alignment, a count*elemsize overflow, or an out-of-range tuning
	// value.
	ErrInvalidArgument = errors.New("malloc: invalid argument")

	// ErrCorruption: a regular free found its successor's PREV_INUSE
	// bit already clear (which also catches a repeated free of a chunk
	// too large for the fast bins), or was asked to free the top chunk.
	// Footers, bin cycles and fast-bin heads are not checked.
	ErrCorruption = errors.New("malloc: heap corruption detected")

	// ErrHostFailure: the page source refused an extend_heap or
	// map_pages call, e.g. extend_heap returned a base discontiguous
	// with the previous break. It is recorded while the engine falls
	// back to another source; the public operation then records nil on
	// success or ErrOutOfMemory on failure, so LastError does not
	// report it once that operation returns.
	ErrHostFailure = errors.New("malloc: page source failure")
)
