// Package stats provides cheap, runtime-gated counters for the
// dispatcher and IPC engine, in the same style as biscuit's stats
// package: the counters cost one flag check when disabled (Inc then
// leaves the value untouched) and are summed into a printable report
// when enabled for debugging a live kernel.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
)

// Enabled gates whether Counter_t.Inc does any work. It is a plain
// package variable rather than a build-tag const so tests can flip it
// on to assert dispatcher call counts without a separate build.
var Enabled = false

// Counter_t is a statistical counter embedded in a larger stats struct.
type Counter_t int64

// Inc increments the counter when stats are enabled.
func (c *Counter_t) Inc() {
	if Enabled {
		atomic.AddInt64((*int64)(c), 1)
	}
}

// Get reads the counter's current value regardless of Enabled, so tests
// can assert on it after flipping Enabled on for the duration of a run.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Report renders every Counter_t field of st as "\n\tName: value" lines,
// for a quick human-readable dump of a stats struct.
func Report(st interface{}) string {
	v := reflect.ValueOf(st)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	var b strings.Builder
	for i := 0; i < v.NumField(); i++ {
		if !strings.HasSuffix(v.Field(i).Type().String(), "Counter_t") {
			continue
		}
		n := v.Field(i).Interface().(Counter_t)
		b.WriteString("\n\t")
		b.WriteString(v.Type().Field(i).Name)
		b.WriteString(": ")
		b.WriteString(strconv.FormatInt(int64(n), 10))
	}
	return b.String()
}
