// Package caller deduplicates repeated diagnostic logging from the same
// call path, modeled on biscuit's Distinct_caller_t. A misbehaving
// environment that is about to be destroyed (a bad cputs pointer, an
// sbrk overflow) may hit the same kill site many times across many
// short-lived environments in a test or a fuzzer; logging a full stack
// trace every single time drowns out everything else, so this package
// remembers which call paths have already been reported.
package caller

import (
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"
	"sync"
)

// Distinct_t tracks which call paths have already been reported.
type Distinct_t struct {
	mu  sync.Mutex
	Enabled bool
	seen    map[uint64]bool
}

func (d *Distinct_t) hash(pcs []uintptr) uint64 {
	h := fnv.New64a()
	for _, pc := range pcs {
		var b [8]byte
		for i := range b {
			b[i] = byte(pc >> (8 * i))
		}
		h.Write(b[:])
	}
	return h.Sum64()
}

// Distinct reports whether the caller's current stack (starting two
// frames up, i.e. the caller of the function that called Distinct) is
// new. When it is, it also returns a formatted stack trace to log.
func (d *Distinct_t) Distinct() (bool, string) {
	if !d.Enabled {
		return false, ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[uint64]bool)
	}

	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	pcs = pcs[:n]
	h := d.hash(pcs)
	if d.seen[h] {
		return false, ""
	}
	d.seen[h] = true

	frames := runtime.CallersFrames(pcs)
	var lines []string
	for {
		fr, more := frames.Next()
		lines = append(lines, fmt.Sprintf("%s (%s:%d)", fr.Function, fr.File, fr.Line))
		if !more {
			break
		}
	}
	return true, strings.Join(lines, "\n\t<-")
}
