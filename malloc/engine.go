package malloc

import "reflect"
import "unsafe"

import "github.com/prataprc/dlmalloc/lib"

// normalize converts a user-requested byte count into a canonical,
// A-aligned chunk size, or reports that the request cannot be served.
func (arena *Arena) normalize(r int64) (uintptr, bool) {
	if r <= 0 {
		return 0, false
	}
	// Guard the alignment arithmetic below against overflow; no real
	// request approaches this size.
	if r > int64(1)<<56 {
		return 0, false
	}
	nb := alignUp(uintptr(r)+headerSize, Alignment)
	if nb < minChunkSize {
		nb = minChunkSize
	}
	return nb, true
}

// allocate is the priority chain of section 4.2.2: fast bin, small bin,
// unsorted drain, large bin, top split, consolidate-and-retry, mapping,
// heap growth.
func (arena *Arena) allocate(nb uintptr) chunk {
	if arena.maxFast > 0 && nb <= uintptr(arena.maxFast) {
		if c, ok := arena.tryFastbin(nb); ok {
			return c
		}
	}
	if nb < smallbinCutoff {
		if c, ok := arena.trySmallbin(nb); ok {
			return c
		}
	}
	if c, ok := arena.drainUnsorted(nb); ok {
		return c
	}
	if c, ok := arena.tryLargeBin(nb); ok {
		return c
	}
	if c, ok := arena.trySplitTop(nb); ok {
		return c
	}

	arena.consolidateFastbins()

	if c, ok := arena.drainUnsorted(nb); ok {
		return c
	}
	if c, ok := arena.tryLargeBin(nb); ok {
		return c
	}
	if c, ok := arena.trySplitTop(nb); ok {
		return c
	}

	if nb >= uintptr(arena.mmapThreshold) && arena.nMmaps < arena.mmapMax {
		if c, ok := arena.tryMmap(nb); ok {
			return c
		}
	}

	if arena.growHeap(nb) {
		if c, ok := arena.trySplitTop(nb); ok {
			return c
		}
	}

	// Last resort: mapping, even below the usual threshold.
	if arena.nMmaps < arena.mmapMax {
		if c, ok := arena.tryMmap(nb); ok {
			return c
		}
	}
	return 0
}

func (arena *Arena) tryFastbin(nb uintptr) (chunk, bool) {
	idx := fastbinIndex(nb)
	if idx < 0 || idx >= NFastbins {
		return 0, false
	}
	c, ok := arena.fastbins[idx].pop()
	if !ok {
		return 0, false
	}
	return c, true
}

func (arena *Arena) trySmallbin(nb uintptr) (chunk, bool) {
	idx := smallbinIndex(nb)
	if idx < 0 || idx >= NSmallbins {
		return 0, false
	}
	h := &arena.smallbins[idx]
	if h.empty() {
		return 0, false
	}
	mem := h.tail()
	c := chunkAtMem(mem)
	unlinkChunk(c)
	if h.empty() {
		arena.bm.clear(idx)
	}
	arena.markServed(c)
	return c, true
}

// drainUnsorted repeatedly pulls the head of the unsorted bin. An exact
// size match is served immediately; everything else is classified into
// its permanent small/large bin. Bounded to cap worst-case latency.
func (arena *Arena) drainUnsorted(nb uintptr) (chunk, bool) {
	for i := 0; i < maxDrain; i++ {
		if arena.unsorted.empty() {
			return 0, false
		}
		mem := arena.unsorted.fd
		u := chunkAtMem(mem)
		unlinkChunk(u)
		if u.size() == nb {
			arena.markServed(u)
			return u, true
		}
		arena.insertToPermanentBin(u)
	}
	return 0, false
}

func (arena *Arena) insertToPermanentBin(u chunk) {
	sz := u.size()
	if sz < smallbinCutoff {
		idx := smallbinIndex(sz)
		arena.smallbins[idx].insertHead(u)
		arena.bm.mark(idx)
		return
	}
	idx := largeBinIndex(sz)
	arena.largebins[idx].insertLarge(u)
	arena.bm.mark(NSmallbins + idx)
}

// tryLargeBin walks the bitmap from the first large-bin class covering
// nb upward, and within each non-empty bin walks the fd_nextsize ring
// (sorted descending) to find the smallest representative >= nb.
func (arena *Arena) tryLargeBin(nb uintptr) (chunk, bool) {
	start := NSmallbins + largeBinIndex(nb)
	for idx := arena.bm.nextSet(start); idx >= 0 && idx < NSmallbins+NLargebins; idx = arena.bm.nextSet(idx + 1) {
		binIdx := idx - NSmallbins
		h := &arena.largebins[binIdx]
		if h.empty() {
			arena.bm.clear(idx)
			continue
		}
		best := uintptr(0)
		rep := h.fdNextsize
		s := h.self()
		for rep != s {
			rc := chunkAtMem(rep)
			if rc.size() < nb {
				break
			}
			best = rep
			rep = rc.fdNextsize()
		}
		if best == 0 {
			continue
		}
		bc := chunkAtMem(best)
		h.unlinkLarge(bc)
		if h.empty() {
			arena.bm.clear(idx)
		}
		return arena.serveFree(bc, nb), true
	}
	return 0, false
}

func (arena *Arena) trySplitTop(nb uintptr) (chunk, bool) {
	if arena.top == 0 {
		return 0, false
	}
	t := chunk(arena.top)
	tsz := t.size()
	if tsz >= nb+minChunkSize {
		prevInuseBit := t.flags() & flagPrevInuse
		newTop := chunk(uintptr(t) + nb)
		newTopSize := tsz - nb
		t.setHead(nb, prevInuseBit)
		newTop.setHead(newTopSize, flagPrevInuse)
		arena.top = uintptr(newTop)
		return t, true
	}
	if tsz >= nb {
		arena.top = 0
		return t, true
	}
	return 0, false
}

// serveFree prepares a free chunk c, not currently a member of any bin,
// to be handed to a caller requesting nb bytes: splitting off a
// trailing remainder when large enough, else serving the whole chunk.
// A remainder that borders the top chunk is merged into top directly
// (matching regularFree and coalesceAndUnsort) rather than binned next
// to it, which would otherwise leave a free chunk permanently
// unmerged with top and wrongly mark top's PREV_INUSE bit.
func (arena *Arena) serveFree(c chunk, nb uintptr) chunk {
	sz := c.size()
	prevInuseBit := c.flags() & flagPrevInuse
	if sz-nb >= minChunkSize {
		rem := chunk(uintptr(c) + nb)
		remSize := sz - nb
		c.setHead(nb, prevInuseBit)
		rem.setHead(remSize, flagPrevInuse)
		nxt := rem.nextChunk()
		if uintptr(nxt) == arena.top {
			merged := remSize + nxt.size()
			rem.setHead(merged, flagPrevInuse)
			arena.top = uintptr(rem)
		} else {
			rem.setFooter()
			nxt.clearPrevInuse()
			nxt.setPrevSize(remSize)
			arena.unsorted.insertHead(rem)
		}
		return c
	}
	arena.markServed(c)
	return c
}

// markServed sets the PREV_INUSE bit of c's immediate successor,
// reflecting that c itself just became (or remains) in-use.
func (arena *Arena) markServed(c chunk) {
	if c.isMmapped() {
		return
	}
	nxt := c.nextChunk()
	nxt.setPrevInuse()
}

// consolidateFastbins walks every fast bin, coalescing each chunk with
// its address-neighbors and parking the result in the unsorted bin.
func (arena *Arena) consolidateFastbins() {
	for i := range arena.fastbins {
		for {
			c, ok := arena.fastbins[i].pop()
			if !ok {
				break
			}
			arena.coalesceAndUnsort(c)
		}
	}
}

// coalesceAndUnsort merges c with any free address-neighbors (reading
// the predecessor via prev_size, the successor via its own successor's
// PREV_INUSE bit) and inserts the result at the head of the unsorted
// bin, or merges it into top directly when the successor is top.
func (arena *Arena) coalesceAndUnsort(c chunk) {
	if !c.prevInuse() {
		prevSz := c.prevSize()
		p := chunk(uintptr(c) - prevSz)
		arena.unlinkFromBin(p)
		c = p
	}
	sz := c.size()
	s := chunk(uintptr(c) + sz)
	if uintptr(s) == arena.top {
		newSize := sz + s.size()
		c.setHead(newSize, flagPrevInuse)
		arena.top = uintptr(c)
		return
	}
	ssucc := chunk(uintptr(s) + s.size())
	if !ssucc.prevInuse() {
		arena.unlinkFromBin(s)
		sz += s.size()
	}
	c.setHead(sz, flagPrevInuse)
	c.setFooter()
	nxt := chunk(uintptr(c) + sz)
	if uintptr(nxt) != arena.top {
		nxt.clearPrevInuse()
		nxt.setPrevSize(sz)
	} else {
		nxt.setPrevInuse()
	}
	arena.unsorted.insertHead(c)
}

// unlinkFromBin removes c from whichever structure currently holds it.
// A chunk of large-bin size sitting in the unsorted bin always carries
// a zeroed fd_nextsize (insertHead clears it for such chunks), and the
// nextsize words of a smaller chunk are never read; a large-bin
// member -- representative or duplicate -- always carries a non-zero
// fd_nextsize on the representative, and unlinkLarge already degrades
// to a plain unlink for duplicates, so branching on fd_nextsize alone
// is sufficient without separately tracking bin identity.
func (arena *Arena) unlinkFromBin(c chunk) {
	sz := c.size()
	if sz >= smallbinCutoff && c.fdNextsize() != 0 {
		idx := largeBinIndex(sz)
		h := &arena.largebins[idx]
		h.unlinkLarge(c)
		if h.empty() {
			arena.bm.clear(NSmallbins + idx)
		}
		return
	}
	unlinkChunk(c)
	if sz < smallbinCutoff {
		idx := smallbinIndex(sz)
		if arena.smallbins[idx].empty() {
			arena.bm.clear(idx)
		}
	}
}

func (arena *Arena) growHeap(nb uintptr) bool {
	want := int64(alignUp(nb+uintptr(arena.topPad), uintptr(arena.pages.pageSize())))
	base, ok := arena.pages.extendHeap(want)
	if !ok {
		arena.lastErr = ErrHostFailure
		warnf("malloc: extend_heap(%v) failed", want)
		return false
	}
	arena.recordHeapGrowth(want)
	if arena.top != 0 && base == uintptr(arena.top)+chunk(arena.top).size() {
		t := chunk(arena.top)
		newSize := t.size() + uintptr(want)
		t.setHead(newSize, t.flags()&flagPrevInuse)
		return true
	}
	// Fresh, discontiguous segment. The previous top (if any) is simply
	// abandoned: this single-arena design does not track more than one
	// live segment at a time.
	if arena.segBase == 0 {
		arena.segBase = base
	}
	newTop := chunk(base)
	newTop.setHead(uintptr(want), flagPrevInuse)
	arena.top = uintptr(newTop)
	return true
}

func (arena *Arena) tryMmap(nb uintptr) (chunk, bool) {
	maplen := int64(alignUp(nb+headerSize, uintptr(arena.pages.pageSize())))
	base, ok := arena.pages.mapPages(maplen)
	if !ok {
		arena.lastErr = ErrHostFailure
		return 0, false
	}
	c := chunk(base)
	c.setHead(uintptr(maplen), flagPrevInuse|flagMmapped)
	arena.recordMap(maplen)
	return c, true
}

// releaseChunk is the non-mmapped half of Free: park in a fast bin when
// small enough, else run the full regular-free algorithm.
func (arena *Arena) releaseChunk(c chunk) {
	sz := c.size()
	if arena.maxFast > 0 && sz <= uintptr(arena.maxFast) {
		arena.fastbins[fastbinIndex(sz)].push(c)
		return
	}
	arena.regularFree(c)
}

// regularFree implements section 4.2.3's full algorithm: validate,
// coalesce with both neighbors, insert into the unsorted bin, and
// opportunistically trim the top.
func (arena *Arena) regularFree(c chunk) {
	sz := c.size()
	s := chunk(uintptr(c) + sz)
	isTop := uintptr(s) == arena.top
	if !isTop && !s.prevInuse() {
		arena.corrupt("successor reports chunk already free")
		return
	}
	if !c.prevInuse() {
		prevSz := c.prevSize()
		p := chunk(uintptr(c) - prevSz)
		arena.unlinkFromBin(p)
		c = p
		sz = c.size() + sz
	}
	if isTop {
		newSize := sz + s.size()
		c.setHead(newSize, flagPrevInuse)
		arena.top = uintptr(c)
		arena.maybeTrim()
		return
	}
	ssucc := chunk(uintptr(s) + s.size())
	if !ssucc.prevInuse() {
		arena.unlinkFromBin(s)
		sz += s.size()
	}
	c.setHead(sz, flagPrevInuse)
	c.setFooter()
	nxt := chunk(uintptr(c) + sz)
	if uintptr(nxt) != arena.top {
		nxt.clearPrevInuse()
		nxt.setPrevSize(sz)
	} else {
		nxt.setPrevInuse()
	}
	arena.unsorted.insertHead(c)
	arena.maybeTrim()
}

// maybeTrim shrinks the heap via a negative extend_heap call once the
// top chunk carries more than trim_threshold bytes of slack past
// top_pad. Only whole pages are released, so top keeps top_pad bytes
// plus whatever part of the excess does not fill a page.
func (arena *Arena) maybeTrim() {
	if arena.top == 0 {
		return
	}
	t := chunk(arena.top)
	tsz := int64(t.size())
	if tsz <= arena.trimThreshold+arena.topPad {
		return
	}
	extra := tsz - arena.topPad
	extra -= extra % arena.pages.pageSize()
	if extra <= 0 {
		return
	}
	if _, ok := arena.pages.extendHeap(-extra); ok {
		newSize := uintptr(tsz - extra)
		t.setHead(newSize, flagPrevInuse)
		arena.recordHeapGrowth(-extra)
		debugf("malloc: trimmed %v bytes off top", extra)
	}
}

func (arena *Arena) corrupt(msg string) {
	arena.lastErr = ErrCorruption
	errorf("malloc: %s", msg)
	if arena.abortOnCorruption {
		fatalf("malloc: %s", msg)
	}
}

func (arena *Arena) freeLocked(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	c := memToChunk(ptr)
	if c.isMmapped() {
		sz := c.size()
		arena.pages.unmapPages(uintptr(c), int64(sz))
		arena.recordUnmap(int64(sz))
		return
	}
	if uintptr(c) == arena.top {
		arena.corrupt("free of top chunk")
		return
	}
	arena.releaseChunk(c)
}

//---- public operations

// Alloc implements api.Mallocer.
func (arena *Arena) Alloc(n int64) unsafe.Pointer {
	arena.lock()
	defer arena.unlock()

	if n <= 0 {
		arena.lastErr = ErrInvalidArgument
		return nil
	}
	nb, ok := arena.normalize(n)
	if !ok {
		arena.lastErr = ErrInvalidArgument
		return nil
	}
	c := arena.allocate(nb)
	if c == 0 {
		arena.lastErr = ErrOutOfMemory
		return nil
	}
	arena.lastErr = nil
	fillblock(uintptr(c.mem()), int64(c.size()-headerSize))
	return c.mem()
}

// AllocZeroed implements api.Mallocer: allocate_zeroed(count, elemsize).
func (arena *Arena) AllocZeroed(count, elemsize int64) unsafe.Pointer {
	if count <= 0 || elemsize <= 0 {
		arena.lastErr = ErrInvalidArgument
		return nil
	}
	total := count * elemsize
	if total/elemsize != count {
		arena.lastErr = ErrInvalidArgument
		return nil // overflow
	}

	arena.lock()
	defer arena.unlock()

	nb, ok := arena.normalize(total)
	if !ok {
		arena.lastErr = ErrInvalidArgument
		return nil
	}
	c := arena.allocate(nb)
	if c == 0 {
		arena.lastErr = ErrOutOfMemory
		return nil
	}
	arena.lastErr = nil
	n := int64(c.size() - headerSize)
	if c.isMmapped() {
		n -= int64(wordSize) // no successor lends its prev_size word
	}
	zerofill(c.mem(), n)
	return c.mem()
}

// AllocAligned implements api.Mallocer: allocate_aligned(alignment, n).
func (arena *Arena) AllocAligned(alignment, n int64) unsafe.Pointer {
	if alignment <= 0 || (alignment&(alignment-1)) != 0 || n <= 0 {
		arena.lastErr = ErrInvalidArgument
		return nil
	}

	arena.lock()
	defer arena.unlock()

	nb, ok := arena.normalize(n)
	if !ok {
		arena.lastErr = ErrInvalidArgument
		return nil
	}

	if uintptr(alignment) <= Alignment {
		c := arena.allocate(nb)
		if c == 0 {
			arena.lastErr = ErrOutOfMemory
			return nil
		}
		arena.lastErr = nil
		fillblock(uintptr(c.mem()), int64(c.size()-headerSize))
		return c.mem()
	}

	c := arena.allocate(nb + uintptr(alignment) + minChunkSize)
	if c == 0 {
		arena.lastErr = ErrOutOfMemory
		return nil
	}
	arena.lastErr = nil

	memAddr := uintptr(c.mem())
	aligned := alignUp(memAddr, uintptr(alignment))
	if aligned == memAddr {
		served := arena.shrinkTrailing(c, nb)
		fillblock(uintptr(served.mem()), int64(served.size()-headerSize))
		return served.mem()
	}

	chunkBase := uintptr(c)
	newChunkBase := aligned - chunkLinkWords*wordSize
	leadSize := newChunkBase - chunkBase
	if leadSize < minChunkSize {
		newChunkBase += uintptr(alignment)
		leadSize += uintptr(alignment)
	}

	totalSize := c.size()
	newChunk := chunk(newChunkBase)
	newSize := totalSize - leadSize
	prevInuseBit := c.flags() & flagPrevInuse

	lead := c
	lead.setHead(leadSize, prevInuseBit)
	newChunk.setHead(newSize, flagPrevInuse)
	if !newChunk.isMmapped() {
		newChunk.nextChunk().setPrevInuse()
	}

	arena.regularFree(lead)

	served := arena.shrinkTrailing(newChunk, nb)
	fillblock(uintptr(served.mem()), int64(served.size()-headerSize))
	return served.mem()
}

func (arena *Arena) shrinkTrailing(c chunk, nb uintptr) chunk {
	if c.size()-nb >= minChunkSize {
		return arena.serveFree(c, nb)
	}
	arena.markServed(c)
	return c
}

// Reallocate implements api.Mallocer.
func (arena *Arena) Reallocate(ptr unsafe.Pointer, n int64) unsafe.Pointer {
	arena.lock()
	defer arena.unlock()

	if ptr == nil {
		if n <= 0 {
			arena.lastErr = ErrInvalidArgument
			return nil
		}
		nb, ok := arena.normalize(n)
		if !ok {
			arena.lastErr = ErrInvalidArgument
			return nil
		}
		c := arena.allocate(nb)
		if c == 0 {
			arena.lastErr = ErrOutOfMemory
			return nil
		}
		arena.lastErr = nil
		fillblock(uintptr(c.mem()), int64(c.size()-headerSize))
		return c.mem()
	}
	if n <= 0 {
		arena.freeLocked(ptr)
		return nil
	}

	nb, ok := arena.normalize(n)
	if !ok {
		arena.lastErr = ErrInvalidArgument
		return nil
	}

	c := memToChunk(ptr)
	if c.isMmapped() {
		return arena.reallocMmapped(c, ptr, n, nb)
	}

	sz := c.size()
	if nb <= sz {
		arena.lastErr = nil
		if sz-nb >= minChunkSize {
			return arena.serveFree(c, nb).mem()
		}
		return ptr
	}

	if uintptr(c) != arena.top {
		s := chunk(uintptr(c) + sz)
		if uintptr(s) != arena.top && !chunk(uintptr(s)+s.size()).prevInuse() {
			ssz := s.size()
			if sz+ssz >= nb {
				arena.unlinkFromBin(s)
				merged := sz + ssz
				prevInuseBit := c.flags() & flagPrevInuse
				c.setHead(merged, prevInuseBit)
				nxt := c.nextChunk()
				if uintptr(nxt) != arena.top {
					nxt.setPrevInuse()
				}
				arena.lastErr = nil
				return arena.shrinkTrailing(c, nb).mem()
			}
		}
	}

	newc := arena.allocate(nb)
	if newc == 0 {
		arena.lastErr = ErrOutOfMemory
		return nil
	}
	arena.lastErr = nil
	copyLen := sz - headerSize
	if int64(copyLen) > n {
		copyLen = uintptr(n)
	}
	lib.Memcpy(newc.mem(), ptr, int(copyLen))
	arena.releaseChunk(c)
	return newc.mem()
}

func (arena *Arena) reallocMmapped(c chunk, ptr unsafe.Pointer, n int64, nb uintptr) unsafe.Pointer {
	newc := arena.allocate(nb)
	if newc == 0 {
		arena.lastErr = ErrOutOfMemory
		return nil
	}
	arena.lastErr = nil
	oldSize := c.size() - chunkLinkWords*wordSize
	copyLen := oldSize
	if int64(copyLen) > n {
		copyLen = uintptr(n)
	}
	lib.Memcpy(newc.mem(), ptr, int(copyLen))
	arena.pages.unmapPages(uintptr(c), int64(c.size()))
	arena.recordUnmap(int64(c.size()))
	return newc.mem()
}

// Free implements api.Mallocer.
func (arena *Arena) Free(ptr unsafe.Pointer) {
	arena.lock()
	defer arena.unlock()

	arena.freeLocked(ptr)
}

// UsableSize implements api.Mallocer.
func (arena *Arena) UsableSize(ptr unsafe.Pointer) int64 {
	arena.lock()
	defer arena.unlock()

	if ptr == nil {
		return 0
	}
	c := memToChunk(ptr)
	if c.isMmapped() {
		// No successor lends its prev_size word: the payload ends
		// where the mapping ends.
		return int64(c.size() - chunkLinkWords*wordSize)
	}
	return int64(c.size() - headerSize)
}

// AllocPageAligned allocates size bytes aligned to the page size,
// matching the allocate_page_aligned op of the external facade
// contract.
func (arena *Arena) AllocPageAligned(n int64) unsafe.Pointer {
	return arena.AllocAligned(arena.pages.pageSize(), n)
}

func zerofill(ptr unsafe.Pointer, n int64) {
	var dst []byte
	sl := (*reflect.SliceHeader)(unsafe.Pointer(&dst))
	sl.Data, sl.Len, sl.Cap = uintptr(ptr), int(n), int(n)
	for i := range dst {
		dst[i] = 0
	}
}
