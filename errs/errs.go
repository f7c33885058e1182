// Package errs defines the small set of recoverable error codes the
// exokernel syscall core returns to callers. A negative Err_t crossing
// back into user space is the only error-reporting channel; anything
// that is not a recoverable argument-validation failure is either a
// destructive policy action (see the kernel's destroy call sites) or a
// kernel invariant violation reported with panic.
package errs

import "strconv"

// Err_t is a signed kernel error code. Zero means success; a nonzero
// value is always negative, matching the syscall ABI's single
// accumulator-register return value.
type Err_t int32

const (
	// BadEnv reports that an envid did not resolve to a live
	// environment, or the caller lacked permission to name it.
	BadEnv Err_t = -1
	// Invalid reports a malformed argument: an unaligned or
	// out-of-range virtual address, a disallowed permission bit, an
	// unmapped source page, or a write-privilege escalation attempt.
	Invalid Err_t = -2
	// NoMem reports that the physical page allocator or a page-table
	// insertion ran out of memory.
	NoMem Err_t = -3
	// NoFreeEnv reports that the environment table has no free slot.
	NoFreeEnv Err_t = -4
	// IpcNotRecv is the code for an ipc_try_send whose target is not
	// blocked receiving. kernel.IPCTrySend never returns it: a sender
	// whose target is not ready parks its message and blocks instead.
	IpcNotRecv Err_t = -5
)

// String renders an error code for log lines; unrecognized codes print
// as their numeric value so a new code is never silently swallowed.
func (e Err_t) String() string {
	switch e {
	case 0:
		return "ok"
	case BadEnv:
		return "bad-env"
	case Invalid:
		return "invalid"
	case NoMem:
		return "no-mem"
	case NoFreeEnv:
		return "no-free-env"
	case IpcNotRecv:
		return "ipc-not-recv"
	default:
		return "err(" + strconv.FormatInt(int64(e), 10) + ")"
	}
}
