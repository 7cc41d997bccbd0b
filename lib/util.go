package lib

import "reflect"
import "unsafe"

// Memcpy copy memory block of length `ln` from `src` to `dst`. Useful
// when the memory block was obtained outside the Go heap (mmap'd or
// sbrk'd pages), where a plain []byte conversion would be unsafe.
func Memcpy(dst, src unsafe.Pointer, ln int) int {
	var srcnd, dstnd []byte
	srcsl := (*reflect.SliceHeader)(unsafe.Pointer(&srcnd))
	srcsl.Len, srcsl.Cap = ln, ln
	srcsl.Data = (uintptr)(src)
	dstsl := (*reflect.SliceHeader)(unsafe.Pointer(&dstnd))
	dstsl.Len, dstsl.Cap = ln, ln
	dstsl.Data = (uintptr)(dst)
	return copy(dstnd, srcnd)
}
