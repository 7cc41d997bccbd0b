package malloc

import "sync/atomic"

import "github.com/prataprc/golog"

var logok = int64(0)

// LogComponents enables logging for this package. By default logging is
// disabled; callers that want diagnostics from the allocation engine call
// this once, typically at process start, with "self" or "all" or
// "malloc" as argument.
func LogComponents(components ...string) {
	for _, comp := range components {
		switch comp {
		case "malloc", "self", "all":
			atomic.StoreInt64(&logok, 1)
		}
	}
}

func debugf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Debugf(format, v...)
	}
}

func infof(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Infof(format, v...)
	}
}

func warnf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Warnf(format, v...)
	}
}

func errorf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Errorf(format, v...)
	}
}

// fatalf always logs regardless of the logok gate, since it precedes a
// process termination on detected corruption and must never be silent.
func fatalf(format string, v ...interface{}) {
	log.Fatalf(format, v...)
}
