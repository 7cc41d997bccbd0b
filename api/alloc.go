// Package api declares the facade contract that sits in front of the
// allocation engine, and the adapter contract a host runtime would
// implement against it. Neither is part of the core: the core is
// consumed through these interfaces, not through package-level C-ABI
// symbols. A process-wide malloc/free/calloc/realloc/memalign/valloc/
// pvalloc facade, and a runtime-specific adapter, are expected to be
// thin wrappers that dispatch to a Mallocer singleton.
package api

import "unsafe"

// Mallocer is the facade contract for the allocation engine. Sizes and
// counters are int64 throughout, matching how the rest of this codebase
// sizes memory (never a native "int", which is 32-bit on some ports).
type Mallocer interface {
	// Alloc a chunk of n bytes. Returns nil on out-of-memory or n <= 0.
	Alloc(n int64) (ptr unsafe.Pointer)

	// AllocZeroed allocates a zeroed chunk sized count*elemsize. Returns
	// nil if count*elemsize overflows or on out-of-memory.
	AllocZeroed(count, elemsize int64) (ptr unsafe.Pointer)

	// AllocAligned allocates n bytes aligned to `alignment`, which must
	// be a power of two. Returns nil if alignment is not a power of two
	// or on out-of-memory.
	AllocAligned(alignment, n int64) (ptr unsafe.Pointer)

	// AllocPageAligned allocates n bytes aligned to the host page size.
	// Returns nil on out-of-memory.
	AllocPageAligned(n int64) (ptr unsafe.Pointer)

	// Reallocate resizes the chunk at ptr to n bytes, possibly moving
	// it. ptr may be nil (behaves as Alloc); n may be 0 (behaves as
	// Free, returns nil). Returns nil without freeing ptr when the
	// resize itself fails, so the caller still owns the original block.
	Reallocate(ptr unsafe.Pointer, n int64) (newptr unsafe.Pointer)

	// Free releases ptr back to the engine. A nil ptr is a silent no-op.
	Free(ptr unsafe.Pointer)

	// UsableSize returns the number of bytes actually usable at ptr,
	// which is >= the size originally requested. 0 for a nil pointer.
	UsableSize(ptr unsafe.Pointer) (size int64)

	// Tune sets a runtime tunable. Returns true if accepted.
	Tune(param string, value int64) bool

	// Stats returns a read-only snapshot of engine counters.
	Stats() Stats

	// Release the arena. Live allocations are not reclaimed by it. The
	// Mallocer must not be used after Release.
	Release()
}

// Stats is a read-only snapshot of allocator bookkeeping, matching the
// statistics surface of the spec: bytes obtained from each of the two
// memory sources, their high-water marks, live/maximum mmap region
// count, and the current tunable thresholds.
type Stats struct {
	BytesViaHeapExtend    int64
	BytesViaMapping       int64
	MaxBytesViaHeapExtend int64
	MaxBytesViaMapping    int64
	NMmaps                int64
	MaxMmaps              int64
	MaxFast               int64
	TrimThreshold         int64
	TopPad                int64
	MmapThreshold         int64
	MmapMax               int64
	Capacity              int64
}

// HostAdapter is the contract a host runtime's own allocator interface
// would be mapped onto. It is specified here as an interface only: no
// implementation ships in this module, per the out-of-core boundary
// around facades and adapters.
type HostAdapter interface {
	// Allocate n bytes, returning a handle meaningful to the host.
	Allocate(n int64) (handle unsafe.Pointer, err error)

	// Resize a previously allocated handle to n bytes.
	Resize(handle unsafe.Pointer, n int64) (newhandle unsafe.Pointer, err error)

	// Deallocate a previously allocated handle.
	Deallocate(handle unsafe.Pointer)

	// Realign reallocates handle so it satisfies alignment.
	Realign(handle unsafe.Pointer, alignment, n int64) (newhandle unsafe.Pointer, err error)
}
