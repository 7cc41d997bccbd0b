// +build debug

package malloc

import "reflect"
import "unsafe"

// poisonPattern is written across a chunk's payload when an allocation
// hands it out, in debug builds only, so that a read of memory the
// caller never wrote returns an unmistakable, non-zero value. Freed
// payloads are not poisoned.
var poisonPattern = make([]byte, 1024)

func init() {
	for i := range poisonPattern {
		poisonPattern[i] = 0xff
	}
}

func fillblock(block uintptr, size int64) {
	var dst []byte
	initsz := len(poisonPattern)
	sl := (*reflect.SliceHeader)(unsafe.Pointer(&dst))
	sl.Data, sl.Len = block, initsz
	for i := int64(0); i < size/int64(initsz); i++ {
		copy(dst, poisonPattern)
		sl.Data = (uintptr)(uint64(sl.Data) + uint64(initsz))
	}
	if sl.Len = int(size) % len(poisonPattern); sl.Len > 0 {
		copy(dst, poisonPattern)
	}
}
