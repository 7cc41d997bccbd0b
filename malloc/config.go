package malloc

import s "github.com/prataprc/gosettings"
import "github.com/cloudfoundry/gosigar"

// Defaultsettings for a new Arena.
//
// "maxfast" (int64, default: 80)
//		Upper bound, in bytes, on chunk sizes served out of fast bins.
//		Accepts 0..80; 0 disables fast bins entirely.
//
// "trimthreshold" (int64, default: 128*1024)
//		Minimum slack, in bytes, the top chunk must carry past
//		top_pad before a free triggers giving pages back to the OS.
//
// "toppad" (int64, default: 128*1024)
//		Extra bytes requested from extend_heap beyond what a request
//		strictly needs, and the slack left behind on trim.
//
// "mmapthreshold" (int64, default: 128*1024)
//		Requests normalized at or above this size that no bin and no
//		top split can serve get a standalone anonymous mapping instead
//		of growing the heap segment.
//
// "mmapmax" (int64, default: 65536)
//		Maximum number of live standalone mappings.
//
// "abortoncorruption" (bool, default: false)
//		When true, a detected corruption (see ErrCorruption)
//		terminates the process with a diagnostic instead of turning
//		the offending operation into a silent no-op.
//
// "capacity" (int64, default: derived from free system RAM)
//		Advisory ceiling the arena's own bookkeeping compares live
//		bytes against on every heap-extend or mmap, logging a warning
//		past it; the arena never refuses a request because of it and
//		the OS remains the real backstop.
//
// "lock" (bool, default: false)
//		When true, every public Arena entry point is serialized behind
//		the arena's own mutex. Off by default: the core is
//		single-threaded by contract and fine-grained concurrency is
//		explicitly out of scope.
func Defaultsettings() s.Settings {
	_, _, free := getsysmem()
	return s.Settings{
		"maxfast":           int64(80),
		"trimthreshold":     int64(128 * 1024),
		"toppad":            int64(128 * 1024),
		"mmapthreshold":     int64(128 * 1024),
		"mmapmax":           int64(65536),
		"abortoncorruption": false,
		"capacity":          int64(free),
		"lock":              false,
	}
}

func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}

// tunableRange reports whether param is a recognized tunable and, if so,
// whether value falls within its accepted range. Mirrors the MAX_FAST /
// TRIM_THRESHOLD / TOP_PAD / MMAP_THRESHOLD / MMAP_MAX tune ids.
func tunableRange(param string, value int64) (ok, known bool) {
	switch param {
	case "maxfast":
		return value >= 0 && value <= 80, true
	case "trimthreshold", "toppad", "mmapthreshold", "mmapmax", "capacity":
		return value >= 0, true
	}
	return false, false
}
