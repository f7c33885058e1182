// Package kdebug builds a pprof-compatible profile describing physical
// page residency per environment — "who is holding how much physical
// memory, right now" — so it can be inspected offline with any
// standard pprof viewer (`go tool pprof -http=:0 pages.pb.gz`). This is
// the same profiling format biscuit links against for its own runtime
// heap/cpu profiles, repurposed here for kernel-level memory
// accounting instead of userland allocation profiling.
package kdebug

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"
)

// EnvPages is one environment's physical-page residency at the moment
// the profile was taken.
type EnvPages struct {
	EnvID uint64
	Pages int
}

// PageProfile builds a profile with one sample per environment, valued
// in pages, labeled with the owning environment's id.
func PageProfile(records []EnvPages) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "pages", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "snapshot", Unit: "count"},
		Period:     1,
	}
	for _, r := range records {
		p.Sample = append(p.Sample, &profile.Sample{
			Value: []int64{int64(r.Pages)},
			Label: map[string][]string{
				"env": {fmt.Sprintf("0x%08x", r.EnvID)},
			},
		})
	}
	return p
}

// WritePageProfile builds and writes a page-residency profile to w in
// the standard gzip-compressed pprof wire format.
func WritePageProfile(w io.Writer, records []EnvPages) error {
	return PageProfile(records).Write(w)
}
