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
//    bytes aligned (2 machine words); AllocAligned additionally honors
//    a caller-supplied power-of-two alignment.
//
// Arena owns one contiguous heap segment (the "top" chunk grows it on
// demand) plus whatever standalone mapped chunks it has handed out for
// large requests. There is no bulk reset and no multi-arena
// concurrency inside the engine; that is left to an outer wrapper.
package malloc

import "sync"

import s "github.com/prataprc/gosettings"

import "github.com/prataprc/dlmalloc/api"

// maxDrain bounds the unsorted-bin drain during a single allocate call,
// capping worst-case latency.
const maxDrain = 10000

// Arena is the single-arena, single-threaded (unless locked) allocation
// engine. It owns the top chunk, every bin, the page source, and the
// runtime tunables.
type Arena struct {
	mu     sync.Mutex
	locked bool

	pages pageSource

	// heap segment
	segBase uintptr // 0 until the first successful extend_heap
	top     uintptr // address of the top chunk, 0 if no segment yet

	fastbins  [NFastbins]fastbin
	smallbins [NSmallbins]binHead
	largebins [NLargebins]binHead
	unsorted  binHead
	bm        binmap

	// tunables
	maxFast           int64
	trimThreshold     int64
	topPad            int64
	mmapThreshold     int64
	mmapMax           int64
	abortOnCorruption bool
	capacity          int64

	// counters
	bytesHeap    int64
	bytesMap     int64
	maxBytesHeap int64
	maxBytesMap  int64
	nMmaps       int64
	maxMmaps     int64

	// lastErr records the failure kind behind the most recent nil/zero
	// the public facade returned, so tests can assert on it even though
	// the facade methods themselves never return an error.
	lastErr error

	released bool
}

// NewArena creates an arena with settings mixed over Defaultsettings.
func NewArena(setts s.Settings) *Arena {
	setts = Defaultsettings().Mixin(setts)
	arena := &Arena{
		pages:             newPageSource(),
		maxFast:           setts.Int64("maxfast"),
		trimThreshold:     setts.Int64("trimthreshold"),
		topPad:            setts.Int64("toppad"),
		mmapThreshold:     setts.Int64("mmapthreshold"),
		mmapMax:           setts.Int64("mmapmax"),
		abortOnCorruption: setts.Bool("abortoncorruption"),
		capacity:          setts.Int64("capacity"),
		locked:            setts.Bool("lock"),
	}
	arena.unsorted.init()
	for i := range arena.smallbins {
		arena.smallbins[i].init()
	}
	for i := range arena.largebins {
		arena.largebins[i].init()
	}
	debugf("malloc: new arena maxfast=%v trimthreshold=%v toppad=%v",
		arena.maxFast, arena.trimThreshold, arena.topPad)
	return arena
}

func (arena *Arena) lock() {
	if arena.locked {
		arena.mu.Lock()
	}
}

func (arena *Arena) unlock() {
	if arena.locked {
		arena.mu.Unlock()
	}
}

// Release marks the arena released and drops its top chunk. It does
// not unmap standalone mapped chunks that are still live; those are
// unmapped only by Free. The heap segment itself, if any, is left to
// the OS to reclaim at process exit -- there is no portable "un-sbrk"
// once other allocators may have grown the break past it. The Arena
// must not be used after Release.
func (arena *Arena) Release() {
	arena.lock()
	defer arena.unlock()

	arena.released = true
	arena.top = 0
	debugf("malloc: arena released")
}

// Stats returns a read-only snapshot of engine counters.
func (arena *Arena) Stats() api.Stats {
	arena.lock()
	defer arena.unlock()

	return api.Stats{
		BytesViaHeapExtend:    arena.bytesHeap,
		BytesViaMapping:       arena.bytesMap,
		MaxBytesViaHeapExtend: arena.maxBytesHeap,
		MaxBytesViaMapping:    arena.maxBytesMap,
		NMmaps:                arena.nMmaps,
		MaxMmaps:              arena.maxMmaps,
		MaxFast:               arena.maxFast,
		TrimThreshold:         arena.trimThreshold,
		TopPad:                arena.topPad,
		MmapThreshold:         arena.mmapThreshold,
		MmapMax:               arena.mmapMax,
		Capacity:              arena.capacity,
	}
}

// LastError returns the failure kind (one of the Err* sentinels) behind
// the most recent nil/zero the public facade returned, or nil if the
// most recent operation succeeded. The facade methods themselves never
// return an error -- this exists purely so tests and other
// introspection can tell OOM, invalid-argument, and corruption failures
// apart.
func (arena *Arena) LastError() error {
	arena.lock()
	defer arena.unlock()

	return arena.lastErr
}

// Tune sets a runtime tunable. Returns true if accepted.
func (arena *Arena) Tune(param string, value int64) bool {
	arena.lock()
	defer arena.unlock()

	ok, known := tunableRange(param, value)
	if !known || !ok {
		arena.lastErr = ErrInvalidArgument
		return false
	}
	arena.lastErr = nil
	switch param {
	case "maxfast":
		arena.maxFast = value
	case "trimthreshold":
		arena.trimThreshold = value
	case "toppad":
		arena.topPad = value
	case "mmapthreshold":
		arena.mmapThreshold = value
	case "mmapmax":
		arena.mmapMax = value
	case "capacity":
		arena.capacity = value
	}
	return true
}

// checkCapacity logs once live bytes cross the advisory "capacity"
// ceiling; the arena never refuses a request because of it, the OS
// remains the real backstop.
func (arena *Arena) checkCapacity() {
	if arena.capacity <= 0 {
		return
	}
	live := arena.bytesHeap + arena.bytesMap
	if live > arena.capacity {
		warnf("malloc: live bytes %v exceed advisory capacity %v", live, arena.capacity)
	}
}

func (arena *Arena) recordHeapGrowth(n int64) {
	arena.bytesHeap += n
	if arena.bytesHeap > arena.maxBytesHeap {
		arena.maxBytesHeap = arena.bytesHeap
	}
	arena.checkCapacity()
}

func (arena *Arena) recordMap(n int64) {
	arena.bytesMap += n
	arena.nMmaps++
	if arena.bytesMap > arena.maxBytesMap {
		arena.maxBytesMap = arena.bytesMap
	}
	if arena.nMmaps > arena.maxMmaps {
		arena.maxMmaps = arena.nMmaps
	}
	arena.checkCapacity()
}

func (arena *Arena) recordUnmap(n int64) {
	arena.bytesMap -= n
	arena.nMmaps--
}
