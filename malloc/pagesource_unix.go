// +build linux darwin

package malloc

/*
#include <unistd.h>
#include <sys/mman.h>
#include <stdint.h>
#include <errno.h>

static void *do_sbrk(intptr_t delta) {
	void *old = sbrk(delta);
	if (old == (void *)-1) {
		return (void *)0;
	}
	return old;
}

static void *do_mmap(size_t length) {
	void *p = mmap(NULL, length, PROT_READ|PROT_WRITE,
		MAP_PRIVATE|MAP_ANONYMOUS, -1, 0);
	if (p == MAP_FAILED) {
		return (void *)0;
	}
	return p;
}

static int do_munmap(void *addr, size_t length) {
	return munmap(addr, length);
}

static long do_pagesize() {
	return sysconf(_SC_PAGESIZE);
}
*/
import "C"

import "unsafe"

// unixPages is the cgo-backed pageSource for linux/darwin: sbrk(2) for
// heap extension, mmap(2)/munmap(2) for standalone mappings, called
// directly through libc instead of re-deriving them through the runtime.
type unixPages struct {
	brkKnown  bool
	lastBrk   uintptr
	pageBytes int64
}

func newUnixPages() *unixPages {
	return &unixPages{pageBytes: int64(C.do_pagesize())}
}

func (u *unixPages) extendHeap(delta int64) (uintptr, bool) {
	base := C.do_sbrk(C.intptr_t(delta))
	if base == nil {
		return 0, false
	}
	addr := uintptr(unsafe.Pointer(base))
	if u.brkKnown && delta > 0 && addr != u.lastBrk {
		// Another actor moved the break between calls; report a
		// discontinuity so the engine falls back to mapping.
		return 0, false
	}
	u.brkKnown = true
	u.lastBrk = uintptr(int64(addr) + delta)
	return addr, true
}

func (u *unixPages) mapPages(length int64) (uintptr, bool) {
	p := C.do_mmap(C.size_t(length))
	if p == nil {
		return 0, false
	}
	return uintptr(unsafe.Pointer(p)), true
}

func (u *unixPages) unmapPages(base uintptr, length int64) {
	C.do_munmap(unsafe.Pointer(base), C.size_t(length))
}

func (u *unixPages) pageSize() int64 { return u.pageBytes }

func newPageSource() pageSource { return newUnixPages() }
