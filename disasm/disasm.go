// Package disasm decodes a handful of bytes at a destroyed
// environment's faulting instruction pointer, purely for the
// kill-diagnostic log line env_destroy and the bad-pointer policy
// (§7) emit. It is not on any success path; a real kernel panic
// handler prints the same kind of "what was it doing" line when it
// puts a process down.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// AtRIP decodes the instruction found in code (the bytes the kernel was
// able to read starting at the environment's saved RIP) and renders it
// in GNU (AT&T) syntax. If code can't be decoded as valid x86-64 — quite
// possible, since the environment may have jumped into data — it
// returns a best-effort placeholder instead of an error, because this
// is diagnostic output, not something a caller should have to branch
// on.
func AtRIP(rip uint64, code []byte) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("0x%x: <undecodable: %v>", rip, err)
	}
	return fmt.Sprintf("0x%x: %s", rip, x86asm.GNUSyntax(inst, rip, nil))
}
