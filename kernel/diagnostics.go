// diagnostics.go wires the disasm and kdebug domain packages into the
// kernel: destroy's kill-diagnostic log line decodes the destroyed
// environment's faulting instruction, and PageProfile/WritePageProfile
// expose a live physical-page-residency snapshot across the whole
// environment table for offline inspection with pprof.
package kernel

import (
	"io"

	"exoknl/disasm"
	"exoknl/kdebug"
	"exoknl/memlayout"
)

// diagCodeBytes is how many bytes starting at a destroyed environment's
// RIP are decoded for the kill-diagnostic log line — enough for a few
// instructions of context without risking a multi-page read.
const diagCodeBytes = 16

// killDiagnostic decodes the instruction e was executing when it was
// destroyed, for the benefit of whoever reads the kill log afterward.
// e's own RIP may not be readable at all (it may have jumped into
// unmapped memory, which is often exactly why it's being destroyed), so
// an unreadable RIP degrades to a placeholder rather than recursing
// into another destroy.
func (k *Kernel) killDiagnostic(e *Env) string {
	code, ok := k.checkUserMem(e, e.Tf.RIP, diagCodeBytes, memlayout.PTE_U|memlayout.PTE_P)
	if !ok {
		return disasm.AtRIP(e.Tf.RIP, nil)
	}
	return disasm.AtRIP(e.Tf.RIP, code)
}

// PageProfile snapshots every live environment's physical-page count,
// keyed by environment id, for a pprof-format residency report.
func (k *Kernel) PageProfile() []kdebug.EnvPages {
	var records []kdebug.EnvPages
	for _, e := range k.table {
		if e.Status == StatusFree {
			continue
		}
		records = append(records, kdebug.EnvPages{EnvID: uint64(e.ID), Pages: e.Pgdir.Len()})
	}
	return records
}

// WritePageProfile writes the current page-residency snapshot to w in
// pprof's gzip-compressed wire format.
func (k *Kernel) WritePageProfile(w io.Writer) error {
	return kdebug.WritePageProfile(w, k.PageProfile())
}
