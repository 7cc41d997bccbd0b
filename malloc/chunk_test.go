package malloc

import "testing"
import "unsafe"

import "github.com/stretchr/testify/assert"

func rawBuf(n int) uintptr {
	buf := make([]byte, n)
	return uintptr(unsafe.Pointer(&buf[0]))
}

func TestChunkHeaderRoundtrip(t *testing.T) {
	base := rawBuf(256)
	c := chunk(base)
	c.setHead(128, flagPrevInuse)

	assert.Equal(t, uintptr(128), c.size())
	assert.True(t, c.prevInuse())
	assert.False(t, c.isMmapped())

	c.setMmapped()
	assert.True(t, c.isMmapped())
	assert.Equal(t, uintptr(128), c.size())

	c.clearPrevInuse()
	assert.False(t, c.prevInuse())
}

func TestChunkFooterRoundtrip(t *testing.T) {
	base := rawBuf(256)
	c := chunk(base)
	c.setHead(64, 0)
	c.setFooter()
	assert.Equal(t, uintptr(64), c.footer())
}

func TestChunkMemRoundtrip(t *testing.T) {
	base := rawBuf(256)
	c := chunk(base)
	c.setHead(64, flagPrevInuse)
	mem := c.mem()
	assert.Equal(t, c, memToChunk(mem))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uintptr(16), alignUp(1, 16))
	assert.Equal(t, uintptr(16), alignUp(16, 16))
	assert.Equal(t, uintptr(32), alignUp(17, 16))
}
