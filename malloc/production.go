// +build !debug

package malloc

// fillblock is a no-op in production builds: a newly allocated chunk's
// payload is left untouched, matching the usual malloc contract that
// memory is never implicitly zeroed or poisoned. See debug.go for the
// poisoning variant.
func fillblock(block uintptr, size int64) {}
