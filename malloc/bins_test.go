package malloc

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func makeChunk(size uintptr) chunk {
	base := rawBuf(int(size) + 64)
	c := chunk(alignUp(base, Alignment))
	c.setHead(size, flagPrevInuse)
	return c
}

func TestFastbinPushPop(t *testing.T) {
	var fb fastbin
	assert.True(t, fb.empty())

	c1 := makeChunk(32)
	c2 := makeChunk(32)
	fb.push(c1)
	fb.push(c2)
	assert.False(t, fb.empty())

	got, ok := fb.pop()
	require.True(t, ok)
	assert.Equal(t, c2, got)

	got, ok = fb.pop()
	require.True(t, ok)
	assert.Equal(t, c1, got)

	_, ok = fb.pop()
	assert.False(t, ok)
}

func TestBinHeadInsertUnlink(t *testing.T) {
	var h binHead
	h.init()
	assert.True(t, h.empty())

	c1 := makeChunk(64)
	c2 := makeChunk(64)
	h.insertHead(c1)
	h.insertHead(c2)
	assert.False(t, h.empty())
	assert.Equal(t, uintptr(c2.mem()), h.fd)

	unlinkChunk(c2)
	assert.Equal(t, uintptr(c1.mem()), h.fd)

	unlinkChunk(c1)
	assert.True(t, h.empty())
}

func TestBinmapMarkClearScan(t *testing.T) {
	var bm binmap
	assert.Equal(t, -1, bm.nextSet(0))

	bm.mark(5)
	bm.mark(40)
	assert.True(t, bm.test(5))
	assert.Equal(t, 5, bm.nextSet(0))
	assert.Equal(t, 40, bm.nextSet(6))

	bm.clear(5)
	assert.False(t, bm.test(5))
	assert.Equal(t, 40, bm.nextSet(0))
}

func TestLargeBinInsertSortedDescending(t *testing.T) {
	var h binHead
	h.init()

	sizes := []uintptr{4096, 1024, 2048, 1024, 8192}
	for _, sz := range sizes {
		c := makeChunk(sz)
		h.insertLarge(c)
	}

	// Walk the main list head to tail: must be non-increasing.
	prev := uintptr(1) << 40
	for mem := h.fd; mem != h.self(); mem = linkFd(mem) {
		c := chunkAtMem(mem)
		assert.True(t, c.size() <= prev)
		prev = c.size()
	}

	// The fd_nextsize ring must visit strictly decreasing distinct
	// sizes only.
	prevRep := uintptr(1) << 40
	for rep := h.fdNextsize; rep != h.self(); rep = chunkAtMem(rep).fdNextsize() {
		sz := chunkAtMem(rep).size()
		assert.True(t, sz < prevRep)
		prevRep = sz
	}
}

func TestLargeBinUnlinkRepresentative(t *testing.T) {
	var h binHead
	h.init()

	a := makeChunk(4096)
	b := makeChunk(4096) // duplicate size, non-representative
	c := makeChunk(2048)
	h.insertLarge(a)
	h.insertLarge(b)
	h.insertLarge(c)

	// a is the representative for size 4096; unlinking it must promote
	// b in its place rather than collapsing the 4096 size class.
	h.unlinkLarge(a)

	found4096 := false
	for rep := h.fdNextsize; rep != h.self(); rep = chunkAtMem(rep).fdNextsize() {
		if chunkAtMem(rep).size() == 4096 {
			found4096 = true
		}
	}
	assert.True(t, found4096)
}
