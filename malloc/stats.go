package malloc

import "fmt"

import "github.com/dustin/go-humanize"
import "github.com/cloudfoundry/gosigar"

// String renders a human-readable diagnostic of the arena's current
// bookkeeping, the out-of-core counterpart to the statistics surface:
// bytes obtained from each memory source, their high-water marks, and
// the live/max mapping counts, alongside a snapshot of free system RAM
// for scale.
func (arena *Arena) String() string {
	arena.lock()
	defer arena.unlock()

	mem := sigar.Mem{}
	mem.Get()

	return fmt.Sprintf(
		"heap %s (peak %s), mapped %s (peak %s) across %v/%v mmaps, "+
			"maxfast %v, free system RAM %s",
		humanize.Bytes(uint64(arena.bytesHeap)), humanize.Bytes(uint64(arena.maxBytesHeap)),
		humanize.Bytes(uint64(arena.bytesMap)), humanize.Bytes(uint64(arena.maxBytesMap)),
		arena.nMmaps, arena.maxMmaps,
		arena.maxFast,
		humanize.Bytes(mem.Free),
	)
}

// Utilization reports, for each populated small/large bin size class,
// the count of chunks currently parked there -- a coarse fragmentation
// picture, mirroring the teacher pool allocator's own Utilization
// diagnostic but over free-list bins instead of slab pools.
func (arena *Arena) Utilization() (sizes []int64, counts []int64) {
	arena.lock()
	defer arena.unlock()

	for i := range arena.smallbins {
		h := &arena.smallbins[i]
		n := int64(0)
		for mem := h.fd; mem != h.self(); mem = linkFd(mem) {
			n++
		}
		if n > 0 {
			sizes = append(sizes, int64(smallbinSize(i)))
			counts = append(counts, n)
		}
	}
	for i := range arena.largebins {
		h := &arena.largebins[i]
		n := int64(0)
		for mem := h.fd; mem != h.self(); mem = linkFd(mem) {
			n++
		}
		if n > 0 {
			sizes = append(sizes, int64(largeBinBounds[i]))
			counts = append(counts, n)
		}
	}
	return sizes, counts
}
