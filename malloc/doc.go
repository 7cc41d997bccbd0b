// Package malloc implements a process-level memory allocator in the
// lineage of Doug Lea's dlmalloc, with in-band boundary-tag chunks,
// size-indexed free lists, and coalescing on free.
//
//  * Types and Functions exported by this package are not thread safe
//    unless the "lock" setting is enabled.
//  * Metadata is self-describing and in-band: every chunk carries its
//    own size and neighbor-liveness bits, so the engine never needs a
//    side table to know what it owns.
//  * Memory obtained from the OS is not given back eagerly. A heap
//    segment is only trimmed once a free pushes the top chunk's size
//    past trim_threshold; standalone mapped chunks are unmapped as
//    soon as they are freed.
//  * There is no pointer re-write: if a copying garbage collector is
//    ever wanted on top of this allocator, it must be layered
//    externally.
//  * Memory-chunks allocated by this package are always Alignment
//    bytes aligned (2 machine words); allocate_aligned additionally
//    honors a caller-supplied power-of-two alignment.
//
// Arena owns one contiguous heap segment (the "top" chunk grows it on
// demand) plus whatever standalone mapped chunks it has handed out for
// large requests. There is no bulk reset and no multi-arena
// concurrency inside the engine; that is left to an outer wrapper.
package malloc

// TODO: heap segments are never unmapped back to the OS piecemeal below
// the top chunk; only the top chunk's own trim path gives memory back.
