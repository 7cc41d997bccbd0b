package malloc

import "math/rand"
import "reflect"
import "testing"
import "unsafe"

import s "github.com/prataprc/gosettings"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

// TestRandomSizesNoOverlap allocates a batch of random-sized chunks and
// checks that every live allocation's byte range is disjoint from every
// other -- the no-overlap property.
func TestRandomSizesNoOverlap(t *testing.T) {
	arena := NewArena(s.Settings{})
	defer arena.Release()

	rng := rand.New(rand.NewSource(1))
	const n = 1000

	type span struct{ lo, hi uintptr }
	ptrs := make([]unsafe.Pointer, n)
	spans := make([]span, n)

	for i := 0; i < n; i++ {
		sz := int64(rng.Intn(4096) + 1)
		p := arena.Alloc(sz)
		require.NotNil(t, p)
		usable := arena.UsableSize(p)
		lo := uintptr(p)
		spans[i] = span{lo, lo + uintptr(usable)}
		ptrs[i] = p
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			overlap := spans[i].lo < spans[j].hi && spans[j].lo < spans[i].hi
			assert.False(t, overlap, "allocations %d and %d overlap", i, j)
		}
	}

	order := rng.Perm(n)
	for _, i := range order {
		arena.Free(ptrs[i])
	}
}

// TestAllocateFreeShuffleInvariants is scenario 6: allocate 1000 random
// chunks, shuffle, free all, and check the top chunk's boundary-tag
// invariant (chunk invariant 7: top, if present, always carries
// PREV_INUSE) holds
// afterwards.
func TestAllocateFreeShuffleInvariants(t *testing.T) {
	arena := NewArena(s.Settings{})
	defer arena.Release()

	rng := rand.New(rand.NewSource(42))
	const n = 1000

	ptrs := make([]unsafe.Pointer, 0, n)
	for i := 0; i < n; i++ {
		sz := int64(rng.Intn(4096) + 1)
		p := arena.Alloc(sz)
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
	}

	rng.Shuffle(len(ptrs), func(i, j int) { ptrs[i], ptrs[j] = ptrs[j], ptrs[i] })

	for _, p := range ptrs {
		arena.Free(p)
	}

	if arena.top != 0 {
		assert.True(t, chunk(arena.top).prevInuse())
	}
}

// TestCallocZeroing is I7: every byte of an AllocZeroed region reads 0.
func TestCallocZeroing(t *testing.T) {
	arena := NewArena(s.Settings{})
	defer arena.Release()

	var dst []byte
	p := arena.AllocZeroed(300, 7)
	require.NotNil(t, p)
	n := int(arena.UsableSize(p))
	sl := (*reflect.SliceHeader)(unsafe.Pointer(&dst))
	sl.Data, sl.Len, sl.Cap = uintptr(p), n, n
	for _, b := range dst {
		assert.Equal(t, byte(0), b)
	}
	arena.Free(p)
}
