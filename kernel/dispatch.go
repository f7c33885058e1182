// dispatch.go implements component E: the syscall number table and the
// single entry point every trap handler calls into. Arguments arrive as
// an untyped fixed-size register array, the same shape gVisor's sentry
// decodes syscall arguments from (arch.SyscallArguments) before handing
// typed values to an individual syscall's Go implementation; SyscallArgs
// here plays that same typed-accessor role for this core's five-register
// ABI.
package kernel

import (
	"exoknl/errs"
	"exoknl/memlayout"
	"exoknl/physmem"
	"exoknl/trapframe"
)

// Syscall numbers, in the fixed order the dispatch table below switches
// on. This ABI never changes shape once assigned — that's the point of
// a syscall table.
const (
	SysCputs Num = iota
	SysCgetc
	SysGetEnvID
	SysEnvDestroy
	SysMapKernelPage
	SysYield
	SysExofork
	SysEnvSetStatus
	SysEnvSetTrapframe
	SysEnvSetPgfaultUpcall
	SysExecCommit
	SysPageAlloc
	SysPageMap
	SysPageUnmap
	SysIPCTrySend
	SysIPCRecv
	SysSbrk
	SysTimeMsec
)

// Num identifies a syscall by number.
type Num uint32

// SyscallArgs is the fixed five-register argument vector every syscall
// is invoked with; individual handlers below pick out only the
// registers their ABI entry actually uses.
type SyscallArgs [5]uint64

func (a SyscallArgs) envid(i int) EnvID       { return EnvID(a[i]) }
func (a SyscallArgs) uintptrAt(i int) uintptr { return uintptr(a[i]) }
func (a SyscallArgs) uint32At(i int) uint32   { return uint32(a[i]) }
func (a SyscallArgs) int(i int) int           { return int(a[i]) }
func (a SyscallArgs) perm(i int) memlayout.Perm {
	return memlayout.Perm(a[i])
}
func (a SyscallArgs) pa(i int) physmem.Pa_t {
	return physmem.Pa_t(a[i])
}

// Dispatch is the single point of entry from a trap: it acquires the
// big kernel lock, snapshots the caller's incoming trap frame into
// cur.Tf (§2, §4.E, §6 — the entry point receives "a pointer to the
// caller's saved trap frame"), runs cur's per-syscall accounting,
// switches on no, and returns the accumulator value (or a negative
// errs.Err_t) the caller's trap frame should resume with (§5).
func (k *Kernel) Dispatch(cur *Env, tf *trapframe.TrapFrame, no Num, args SyscallArgs) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	cur.Tf = *tf

	k.Stats.Total.Inc()
	start := cur.Acct.Enter()
	defer cur.Acct.Leave(start)

	ret := k.dispatch(cur, no, args)
	if ret < 0 {
		k.Stats.Errors.Inc()
	}
	return ret
}

func (k *Kernel) dispatch(cur *Env, no Num, args SyscallArgs) int64 {
	switch no {
	case SysCputs:
		return int64(k.Cputs(cur, args.uintptrAt(0), args.int(1)))
	case SysCgetc:
		return int64(k.Cgetc())
	case SysGetEnvID:
		return int64(k.GetEnvID(cur))
	case SysEnvDestroy:
		return int64(k.EnvDestroy(cur, args.envid(0)))
	case SysMapKernelPage:
		return int64(k.MapKernelPage(cur, PhysPage(args.pa(0)), args.uintptrAt(1)))
	case SysYield:
		return int64(k.Yield(cur))
	case SysExofork:
		id, err := k.Exofork(cur)
		if err != 0 {
			return int64(err)
		}
		return int64(id)
	case SysEnvSetStatus:
		return int64(k.EnvSetStatus(cur, args.envid(0), Status(args.int(1))))
	case SysEnvSetTrapframe:
		return int64(k.EnvSetTrapframe(cur, args.envid(0), cur, args.uintptrAt(1)))
	case SysEnvSetPgfaultUpcall:
		return int64(k.EnvSetPgfaultUpcall(cur, args.envid(0), args.uintptrAt(1)))
	case SysExecCommit:
		return int64(k.ExecCommit(cur, args.envid(0)))
	case SysPageAlloc:
		return int64(k.PageAlloc(cur, args.envid(0), args.uintptrAt(1), args.perm(2)))
	case SysPageMap:
		return int64(k.PageMap(cur, args.envid(0), args.uintptrAt(1), args.envid(2), args.uintptrAt(3), args.perm(4)))
	case SysPageUnmap:
		return int64(k.PageUnmap(cur, args.envid(0), args.uintptrAt(1)))
	case SysIPCTrySend:
		return int64(k.IPCTrySend(cur, args.envid(0), args.uint32At(1), args.uintptrAt(2), args.perm(3)))
	case SysIPCRecv:
		return int64(k.IPCRecv(cur, args.uintptrAt(0)))
	case SysSbrk:
		brk, err := k.Sbrk(cur, args.uintptrAt(0))
		if err != 0 {
			return int64(err)
		}
		return int64(brk)
	case SysTimeMsec:
		return k.TimeMsec()
	default:
		return int64(errs.Invalid)
	}
}
