package malloc

import "syscall"
import "unsafe"

const (
	memCommit  = 0x1000
	memReserve = 0x2000
	memRelease = 0x8000
	pageRdwr   = 0x04
)

var (
	modkernel32       = syscall.NewLazyDLL("kernel32.dll")
	procVirtualAlloc  = modkernel32.NewProc("VirtualAlloc")
	procVirtualFree   = modkernel32.NewProc("VirtualFree")
	procGetSystemInfo = modkernel32.NewProc("GetSystemInfo")
)

func virtualAlloc(addr uintptr, size uintptr, allocType, protect uint32) uintptr {
	r1, _, _ := procVirtualAlloc.Call(
		addr, size, uintptr(allocType), uintptr(protect))
	return r1
}

func virtualFree(addr uintptr, size uintptr, freeType uint32) bool {
	r1, _, _ := procVirtualFree.Call(addr, size, uintptr(freeType))
	return r1 != 0
}

// windowsPages is the VirtualAlloc-backed pageSource. Windows has no
// sbrk equivalent, so heap extension is emulated: a single large region
// is reserved once and committed page by page as extendHeap asks for
// more, keeping the base stable and contiguous the way the engine
// assumes a real brk-backed segment to be.
type windowsPages struct {
	reserveBase uintptr
	reserveSize uintptr
	committed   uintptr
	pageBytes   int64
}

// reserveSpan is the address space reserved up front for heap growth;
// only touched pages actually consume physical memory.
const reserveSpan = uintptr(1) << 34 // 16GB

func newWindowsPages() *windowsPages {
	var sysinfo struct {
		anon0                     [4]byte
		dwPageSize                uint32
		lpMinimumApplicationAddr  uintptr
		lpMaximumApplicationAddr  uintptr
		dwActiveProcessorMask     uintptr
		dwNumberOfProcessors      uint32
		dwProcessorType           uint32
		dwAllocationGranularity   uint32
		wProcessorLevel           uint16
		wProcessorRevision        uint16
	}
	procGetSystemInfo.Call(uintptr(unsafe.Pointer(&sysinfo)))
	pagesz := int64(sysinfo.dwPageSize)
	if pagesz == 0 {
		pagesz = 4096
	}
	base := virtualAlloc(0, reserveSpan, memReserve, pageRdwr)
	return &windowsPages{
		reserveBase: base,
		reserveSize: reserveSpan,
		pageBytes:   pagesz,
	}
}

func (w *windowsPages) extendHeap(delta int64) (uintptr, bool) {
	if w.reserveBase == 0 {
		return 0, false
	}
	if delta <= 0 {
		// Shrinking only moves the committed mark back; the pages stay
		// committed and are reused by the next extension. The base
		// never moves.
		shrink := uintptr(-delta)
		if shrink > w.committed {
			return 0, false
		}
		base := w.reserveBase + w.committed
		w.committed -= shrink
		return base, true
	}
	old := w.committed
	want := uintptr(delta)
	if old+want > w.reserveSize {
		return 0, false
	}
	at := w.reserveBase + old
	if virtualAlloc(at, want, memCommit, pageRdwr) == 0 {
		return 0, false
	}
	w.committed += want
	return at, true
}

func (w *windowsPages) mapPages(length int64) (uintptr, bool) {
	p := virtualAlloc(0, uintptr(length), memReserve|memCommit, pageRdwr)
	if p == 0 {
		return 0, false
	}
	return p, true
}

func (w *windowsPages) unmapPages(base uintptr, length int64) {
	virtualFree(base, 0, memRelease)
}

func (w *windowsPages) pageSize() int64 { return w.pageBytes }

func newPageSource() pageSource { return newWindowsPages() }
