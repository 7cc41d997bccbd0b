package malloc

import "unsafe"

// wordSize is the machine word, the unit boundary-tag fields are
// measured in.
const wordSize = unsafe.Sizeof(uintptr(0))

// Alignment is the malloc alignment A = 2*word_size, as required by
// the spec (A >= 8). Every user pointer returned by an allocate
// variant is a multiple of Alignment.
const Alignment = uintptr(2 * wordSize)

// headerSize is the overhead charged against a request. Two header
// words sit in front of a chunk's user region: prev_size and size. For an in-use chunk,
// prev_size is only "real" overhead when the predecessor is free;
// when the predecessor is in use, that word is the predecessor's own
// trailing payload (the classic dlmalloc overlap optimization), so the
// overhead actually charged against a request is a single word.
const headerSize = wordSize

// chunkLinkWords is the offset, in words, from a chunk's base to its
// user region (and thus to its fd/bk free-list pointers when free).
const chunkLinkWords = 2

// minChunkSize is the smallest legal chunk: header words (prev_size +
// size) plus room for fd and bk when free.
const minChunkSize = uintptr(4 * wordSize)

// Chunk size-word flag bits, packed into the low 3 bits of the stored
// size; masked out on every read.
const (
	flagPrevInuse uintptr = 1 << 0
	flagMmapped   uintptr = 1 << 1
	flagNonMain   uintptr = 1 << 2
	flagMask      uintptr = flagPrevInuse | flagMmapped | flagNonMain
)

func alignUp(n, a uintptr) uintptr {
	return (n + a - 1) &^ (a - 1)
}

func loadWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func storeWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

// chunk addresses the first byte of a chunk's header (the prev_size
// slot). All chunk bookkeeping is done through accessor methods so the
// "size and flags share a word" layout decision never leaks out as a
// typed field.
type chunk uintptr

// memToChunk converts a user pointer back to its owning chunk.
func memToChunk(mem unsafe.Pointer) chunk {
	return chunk(uintptr(mem) - chunkLinkWords*wordSize)
}

// mem returns the user pointer for this chunk.
func (c chunk) mem() unsafe.Pointer {
	return unsafe.Pointer(uintptr(c) + chunkLinkWords*wordSize)
}

func (c chunk) addr() uintptr { return uintptr(c) }

func (c chunk) sizeAddr() uintptr { return uintptr(c) + wordSize }

func (c chunk) rawSize() uintptr { return loadWord(c.sizeAddr()) }

// size is the total chunk length, flag bits masked out.
func (c chunk) size() uintptr { return c.rawSize() &^ flagMask }

func (c chunk) flags() uintptr { return c.rawSize() & flagMask }

func (c chunk) prevInuse() bool { return c.rawSize()&flagPrevInuse != 0 }
func (c chunk) isMmapped() bool { return c.rawSize()&flagMmapped != 0 }

// setHead writes size (already a multiple of Alignment) and flags into
// the size word in one shot.
func (c chunk) setHead(size, flags uintptr) {
	storeWord(c.sizeAddr(), size|flags)
}

func (c chunk) setPrevInuse() {
	storeWord(c.sizeAddr(), c.rawSize()|flagPrevInuse)
}

func (c chunk) clearPrevInuse() {
	storeWord(c.sizeAddr(), c.rawSize()&^flagPrevInuse)
}

func (c chunk) setMmapped() {
	storeWord(c.sizeAddr(), c.rawSize()|flagMmapped)
}

// prevSize is only meaningful when the predecessor chunk is free; a
// reimplementation must never write this word while the predecessor
// is in use, since that word is owned by the predecessor's payload.
func (c chunk) prevSize() uintptr { return loadWord(c.addr()) }

func (c chunk) setPrevSize(sz uintptr) { storeWord(c.addr(), sz) }

// footerAddr is the trailing size word of a free chunk, the last word
// in the chunk's byte range.
func (c chunk) footerAddr() uintptr {
	return uintptr(c) + c.size() - wordSize
}

func (c chunk) setFooter() {
	storeWord(c.footerAddr(), c.size())
}

func (c chunk) footer() uintptr { return loadWord(c.footerAddr()) }

// nextChunk returns the chunk immediately following this one in
// address order (valid for in-heap, non-top chunks only).
func (c chunk) nextChunk() chunk {
	return chunk(uintptr(c) + c.size())
}

// prevChunk locates the address-predecessor using the overlap word;
// only valid when prevInuse() is false on c.
func (c chunk) prevChunk() chunk {
	return chunk(uintptr(c) - c.prevSize())
}

// fd/bk: the first two words of a free chunk's user region, forming
// the doubly linked bin membership. Shared in representation with the
// bin sentinel (see bins.go), which is why these operate on a raw
// address rather than a *chunk receiver.
func linkFd(addr uintptr) uintptr       { return loadWord(addr) }
func setLinkFd(addr, v uintptr)         { storeWord(addr, v) }
func linkBk(addr uintptr) uintptr       { return loadWord(addr + wordSize) }
func setLinkBk(addr, v uintptr)         { storeWord(addr+wordSize, v) }

// nextsize chain words, large bins only: two more words following
// fd/bk, chaining together the first chunk of each distinct size so a
// best-fit search can skip runs of same-size chunks in O(1).
func (c chunk) fdNextsize() uintptr  { return loadWord(uintptr(c.mem()) + 2*wordSize) }
func (c chunk) setFdNextsize(v uintptr) { storeWord(uintptr(c.mem())+2*wordSize, v) }
func (c chunk) bkNextsize() uintptr  { return loadWord(uintptr(c.mem()) + 3*wordSize) }
func (c chunk) setBkNextsize(v uintptr) { storeWord(uintptr(c.mem())+3*wordSize, v) }
