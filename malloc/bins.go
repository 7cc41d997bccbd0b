package malloc

import "unsafe"
import "sort"

import "github.com/prataprc/dlmalloc/lib"

// NFastbins is the count of fast-bin slots, stepping by one word.
const NFastbins = 10

// NSmallbins is the count of small-bin slots; bin i holds chunks of
// exactly size i<<3, so only the even slots that are multiples of
// Alignment are ever populated, matching the spec's `nb >> 3` mapping.
const NSmallbins = 64

// smallbinCutoff: chunks below this size use a small bin; at or above,
// a large bin.
const smallbinCutoff = uintptr(512)

// NLargebins is the count of large-bin size classes above smallbinCutoff.
const NLargebins = 32

// fastbinIndex maps a normalized size to its fast-bin slot. Valid only
// when nb <= maxFast.
func fastbinIndex(nb uintptr) int {
	return int(nb>>3) - 2
}

// fastbinSize is the inverse of fastbinIndex: the exact chunk size
// served by slot i.
func fastbinSize(i int) uintptr {
	return uintptr(i+2) << 3
}

// smallbinIndex maps a normalized size to its small-bin slot. Valid
// only when nb < smallbinCutoff.
func smallbinIndex(nb uintptr) int {
	return int(nb >> 3)
}

func smallbinSize(i int) uintptr {
	return uintptr(i) << 3
}

// largeBinBounds is a sorted table of the minimum chunk size that maps
// to each large-bin class. Boundaries grow geometrically, widening the
// spacing every few classes, the same shape the teacher's SuitableSize
// slab-size ladder used for its own fixed-size pools, adapted here to
// variable free-list classes instead of fixed slab sizes.
var largeBinBounds = buildLargeBinBounds()

func buildLargeBinBounds() [NLargebins]uintptr {
	var bounds [NLargebins]uintptr
	size := smallbinCutoff
	step := uintptr(64)
	for i := 0; i < NLargebins; i++ {
		bounds[i] = size
		size = alignUp(size+step, Alignment)
		if (i+1)%4 == 0 {
			step += step / 2
		}
	}
	return bounds
}

// largeBinIndex returns the class whose range covers nb: the largest
// index whose bound is <= nb.
func largeBinIndex(nb uintptr) int {
	idx := sort.Search(NLargebins, func(i int) bool {
		return largeBinBounds[i] > nb
	}) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= NLargebins {
		idx = NLargebins - 1
	}
	return idx
}

//---- binmap: O(1) "next non-empty bin" scan over small+large bins.

const binmapWords = (NSmallbins + NLargebins + 31) / 32

type binmap [binmapWords]uint32

func (bm *binmap) mark(i int) {
	w, b := i/32, uint8(i%32)
	bm[w] = lib.Bit32(bm[w]).Setbit(b)
}

func (bm *binmap) clear(i int) {
	w, b := i/32, uint8(i%32)
	bm[w] = lib.Bit32(bm[w]).Clearbit(b)
}

func (bm *binmap) test(i int) bool {
	w, b := i/32, uint(i%32)
	return (bm[w]>>b)&1 != 0
}

// nextSet returns the smallest set bit index >= from, or -1 when none
// of the remaining bins are non-empty.
func (bm *binmap) nextSet(from int) int {
	w, b := from/32, from%32
	for ; w < binmapWords; w++ {
		word := bm[w]
		if b > 0 {
			word &^= (uint32(1) << uint(b)) - 1
		}
		if word != 0 {
			return w*32 + int(lib.Bit32(word).Findfirstset())
		}
		b = 0
	}
	return -1
}

//---- fast bins: singly linked, LIFO, no coalescing on insert.

type fastbin struct {
	head uintptr // address of the top chunk on this slot's stack, 0 if empty
}

func (fb *fastbin) push(c chunk) {
	setLinkFd(uintptr(c.mem()), fb.head)
	fb.head = uintptr(c)
}

func (fb *fastbin) pop() (chunk, bool) {
	if fb.head == 0 {
		return 0, false
	}
	c := chunk(fb.head)
	fb.head = linkFd(uintptr(c.mem()))
	return c, true
}

func (fb *fastbin) empty() bool { return fb.head == 0 }

//---- sentinel-headed circular doubly linked bin. Used for small bins,
// the unsorted bin, and (with the nextsize fields) large bins.

type binHead struct {
	fd, bk                 uintptr // main list: every chunk in the bin
	fdNextsize, bkNextsize uintptr // large bins only: size-representative ring
}

func (h *binHead) self() uintptr { return uintptr(unsafe.Pointer(h)) }

func (h *binHead) init() {
	s := h.self()
	h.fd, h.bk = s, s
	h.fdNextsize, h.bkNextsize = s, s
}

func (h *binHead) empty() bool { return h.fd == h.self() }

// insertHead links c in as the new first (head) element. Used by the
// unsorted bin and by small bins; never by large bins. Clearing the
// nextsize words of a chunk of large-bin size here is what lets
// unlinkFromBin tell a large-bin representative (always non-zero
// fd_nextsize) apart from a chunk sitting in any other bin, without a
// separate bin-identity tag. Smaller chunks are left alone: a
// minimum-size chunk has no room for those words.
func (h *binHead) insertHead(c chunk) {
	mem := uintptr(c.mem())
	s := h.self()
	oldFirst := h.fd
	setLinkFd(mem, oldFirst)
	setLinkBk(mem, s)
	setLinkBk(oldFirst, mem)
	h.fd = mem
	if c.size() >= smallbinCutoff {
		c.setFdNextsize(0)
		c.setBkNextsize(0)
	}
}

// tail returns the last (tail) chunk in the bin, or 0 if empty.
func (h *binHead) tail() uintptr {
	if h.empty() {
		return 0
	}
	return h.bk
}

// unlinkChunk removes c from whatever doubly linked bin currently
// holds it, using only the fd/bk words already stored in c. Works
// uniformly whether c's neighbors are other chunks or a bin sentinel,
// since both expose the same fd/bk word layout.
func unlinkChunk(c chunk) {
	mem := uintptr(c.mem())
	fd := linkFd(mem)
	bk := linkBk(mem)
	setLinkBk(fd, bk)
	setLinkFd(bk, fd)
}

// chunkAtMem recovers the owning chunk from a raw fd/bk link value.
func chunkAtMem(mem uintptr) chunk { return memToChunk(unsafe.Pointer(mem)) }

//---- large bin insert/search with the fd_nextsize/bk_nextsize
// representative ring, so the smallest qualifying chunk can be found
// by walking distinct sizes only instead of every chunk in the bin.

// insertLarge inserts c (already known to belong to this bin) keeping
// the main list sorted by size, descending from h.fd to h.bk, and
// maintains the nextsize ring of one representative per distinct size.
func (h *binHead) insertLarge(c chunk) {
	mem := uintptr(c.mem())
	sz := c.size()
	s := h.self()

	if h.empty() {
		setLinkFd(mem, s)
		setLinkBk(mem, s)
		h.fd, h.bk = mem, mem
		c.setFdNextsize(s)
		c.setBkNextsize(s)
		h.fdNextsize, h.bkNextsize = mem, mem
		return
	}

	// Walk the main list (descending size) to find where sz belongs.
	cur := h.fd
	for cur != s && chunkAtMem(cur).size() > sz {
		cur = linkFd(cur)
	}

	if cur != s && chunkAtMem(cur).size() == sz {
		// Duplicate size: splice in right after the representative,
		// as a non-representative (nextsize pointers left at zero).
		next := linkFd(cur)
		setLinkFd(cur, mem)
		setLinkBk(mem, cur)
		setLinkFd(mem, next)
		setLinkBk(next, mem)
		c.setFdNextsize(0)
		c.setBkNextsize(0)
		return
	}

	// cur is either the sentinel or the first chunk smaller than sz:
	// insert c as a new representative immediately before cur.
	prev := linkBk(cur)
	setLinkFd(prev, mem)
	setLinkBk(mem, prev)
	setLinkFd(mem, cur)
	setLinkBk(cur, mem)

	// Because the main list is kept sorted and every distinct size run
	// begins with its representative, `cur` (the first node whose size
	// is strictly less than sz, or the sentinel) is always itself
	// either the sentinel or a representative: nothing to walk.
	nextRep := cur

	// `prev` may be a duplicate of a larger size; walk backward along
	// the main list until its run's representative is found.
	prevRep := prev
	for prevRep != s && chunkAtMem(prevRep).fdNextsize() == 0 {
		prevRep = linkBk(prevRep)
	}

	c.setFdNextsize(nextRep)
	c.setBkNextsize(prevRep)
	if prevRep == s {
		h.fdNextsize = mem
	} else {
		chunkAtMem(prevRep).setFdNextsize(mem)
	}
	if nextRep == s {
		h.bkNextsize = mem
	} else {
		chunkAtMem(nextRep).setBkNextsize(mem)
	}
}

// unlinkLarge removes c from this large bin, repairing the nextsize
// ring if c was a size representative.
func (h *binHead) unlinkLarge(c chunk) {
	s := h.self()
	if c.fdNextsize() != 0 {
		// c is a representative.
		fn, bn := c.fdNextsize(), c.bkNextsize()
		if mem := linkFd(uintptr(c.mem())); mem != s && chunkAtMem(mem).size() == c.size() {
			// Another chunk of the same size follows in the main
			// list: promote it to representative in c's place.
			promoted := chunkAtMem(mem)
			promoted.setFdNextsize(fn)
			promoted.setBkNextsize(bn)
			if fn == s {
				h.bkNextsize = mem
			} else {
				chunkAtMem(fn).setBkNextsize(mem)
			}
			if bn == s {
				h.fdNextsize = mem
			} else {
				chunkAtMem(bn).setFdNextsize(mem)
			}
		} else {
			if fn == s {
				h.bkNextsize = bn
			} else {
				chunkAtMem(fn).setBkNextsize(bn)
			}
			if bn == s {
				h.fdNextsize = fn
			} else {
				chunkAtMem(bn).setFdNextsize(fn)
			}
		}
	}
	unlinkChunk(c)
}
