// Package kernel is the exokernel syscall core: the dispatcher and the
// handlers that expose capability primitives to user environments
// (spec.md §1). Every exported method here assumes it runs under the
// kernel's single big lock (§5) unless documented otherwise — Dispatch
// and NewRootEnv are the only entry points that acquire it.
package kernel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"exoknl/accnt"
	"exoknl/caller"
	"exoknl/console"
	"exoknl/errs"
	"exoknl/memlayout"
	"exoknl/physmem"
	"exoknl/pgdir"
	"exoknl/stats"
	"exoknl/trapframe"
)

// slotBits sizes the environment-table arena: envid = (generation <<
// slotBits) | slot, per §9's arena-with-generation guidance — it
// replaces a raw pointer-into-array with a value that can be checked
// for staleness without risking a use-after-free.
const slotBits = 12
const maxSlots = 1 << slotBits

// EnvID is a stable, opaque environment identifier. The zero value is
// never assigned to a live environment and is reserved as the
// "current environment" sentinel accepted by lookupEnv.
type EnvID uint64

func (id EnvID) slot() uint32 { return uint32(id) & (maxSlots - 1) }

// Status is an environment's scheduling state (§3).
type Status int

const (
	StatusFree Status = iota
	StatusRunnable
	StatusNotRunnable
	StatusRunning
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusFree:
		return "free"
	case StatusRunnable:
		return "runnable"
	case StatusNotRunnable:
		return "not-runnable"
	case StatusRunning:
		return "running"
	case StatusDying:
		return "dying"
	default:
		return "status?"
	}
}

// Env is the fundamental unit of isolation (§3).
type Env struct {
	ID       EnvID
	ParentID EnvID
	Status   Status

	Tf            trapframe.TrapFrame
	Pgdir         *pgdir.Dir
	PgFaultUpcall uintptr
	Break         uintptr

	// IPC receive-side fields.
	IPCRecving bool
	IPCDstVA   uintptr
	IPCFrom    EnvID
	IPCValue   uint32
	IPCPerm    uint32

	// Buffered-send fields: this environment is the sender, parked in
	// its own Env rather than the receiver's, per §4.D.
	IPCPendingEnvID   EnvID
	IPCPendingValue   uint32
	IPCPendingHasPage bool
	IPCPendingPage    physmem.Pa_t
	IPCPendingPerm    uint32

	Acct accnt.Accnt_t

	wake chan struct{}
}

// Scheduler is the external collaborator sys_yield delegates to
// (explicit non-goal, §1). Production code would plug in a real
// multi-environment scheduler; this core only needs to hand off to one.
type Scheduler interface {
	// Yield is invoked with the kernel lock held and must return with
	// it still held; blocking (if any) is this implementation's
	// business, not the dispatcher's.
	Yield(e *Env)
}

// Runner resumes an environment on the hardware (explicit non-goal,
// §1 "the trap entry path"). exec_commit calls it last and, in a real
// kernel, it never returns; this interface exists purely so exec_commit
// is expressible and testable without a real trap-return mechanism.
type Runner interface {
	Run(e *Env)
}

// Limits holds the kernel's tunable configuration, mirroring biscuit's
// limits.Syslimit pattern: a small struct of knobs built once at boot
// rather than parsed from a config file (there is no boot-time config
// file in this domain).
type Limits struct {
	MaxEnvs         int
	ConsolePages    int
	PhysPages       int
}

// DefaultLimits returns a reasonably small arena suitable for tests and
// small simulated systems.
func DefaultLimits() Limits {
	return Limits{MaxEnvs: 256, ConsolePages: 1, PhysPages: 4096}
}

// DispatchStats counts syscalls processed, gated by stats.Enabled.
type DispatchStats struct {
	Total       stats.Counter_t
	Errors      stats.Counter_t
	IPCBlocked  stats.Counter_t
	IPCDelivered stats.Counter_t
	Destroyed   stats.Counter_t
}

// Kernel owns the environment table and every piece of state the
// syscall handlers touch. All access is serialized by mu, the big
// kernel lock (§5) — no finer-grained locking is used anywhere below,
// by design.
type Kernel struct {
	mu sync.Mutex

	phys  *physmem.Allocator
	table []*Env
	free  []uint32

	sched  Scheduler
	runner Runner

	Console *console.Console

	distinct caller.Distinct_t
	Stats    DispatchStats
	Log      io.Writer
}

// New constructs a kernel with its own physical allocator and console,
// ready to accept syscalls.
func New(lim Limits, sched Scheduler, runner Runner, log io.Writer) (*Kernel, error) {
	if lim.MaxEnvs <= 0 || lim.MaxEnvs > maxSlots {
		return nil, fmt.Errorf("kernel: MaxEnvs must be in (0, %d]", maxSlots)
	}
	phys, err := physmem.New(lim.PhysPages)
	if err != nil {
		return nil, err
	}
	con, err := console.New(phys, log)
	if err != nil {
		return nil, err
	}
	k := &Kernel{
		phys:   phys,
		table:  make([]*Env, lim.MaxEnvs),
		sched:  sched,
		runner: runner,
		Console: con,
		Log:    log,
	}
	for i := range k.table {
		k.table[i] = &Env{ID: EnvID(i), Status: StatusFree}
		k.free = append(k.free, uint32(i))
	}
	k.distinct.Enabled = true
	return k, nil
}

func (k *Kernel) logf(format string, args ...interface{}) {
	if k.Log != nil {
		fmt.Fprintf(k.Log, format, args...)
	}
}

// lookupEnv resolves envid per §4.A: 0 means cur, otherwise the table
// is consulted and, when needPerm is set, the caller must either be the
// target itself or an ancestor along the parent chain.
func (k *Kernel) lookupEnv(cur *Env, envid EnvID, needPerm bool) (*Env, errs.Err_t) {
	if envid == 0 {
		return cur, 0
	}
	slot := envid.slot()
	if int(slot) >= len(k.table) {
		return nil, errs.BadEnv
	}
	e := k.table[slot]
	if e.Status == StatusFree || e.ID != envid {
		return nil, errs.BadEnv
	}
	if needPerm {
		for chk := e; ; {
			if chk == cur {
				break
			}
			if chk.ParentID == 0 {
				return nil, errs.BadEnv
			}
			pslot := chk.ParentID.slot()
			if int(pslot) >= len(k.table) || k.table[pslot].ID != chk.ParentID {
				return nil, errs.BadEnv
			}
			chk = k.table[pslot]
		}
	}
	return e, 0
}

// allocEnv pulls a free slot, bumps its generation, and returns a
// freshly-initialized environment with the given parent. It returns
// errs.NoFreeEnv when the table is exhausted.
func (k *Kernel) allocEnv(parent EnvID) (*Env, errs.Err_t) {
	if len(k.free) == 0 {
		return nil, errs.NoFreeEnv
	}
	slot := k.free[len(k.free)-1]
	k.free = k.free[:len(k.free)-1]

	e := k.table[slot]
	gen := (uint64(e.ID) >> slotBits) + 1
	*e = Env{
		ID:       EnvID(gen<<slotBits | uint64(slot)),
		ParentID: parent,
		Status:   StatusNotRunnable,
		Pgdir:    pgdir.New(),
		wake:     make(chan struct{}, 1),
	}
	return e, 0
}

// freeEnv drops every mapping owned by e and returns its slot to the
// free list. It does not touch other environments' pending-IPC fields
// that might reference e — per §4.D's open question, a parked sender
// whose target dies simply never gets harvested, which is consistent
// with "ordering among simultaneous senders is unspecified".
func (k *Kernel) freeEnv(e *Env) {
	e.Pgdir.Clear(k.phys)
	e.Status = StatusFree
	slot := e.ID.slot()
	k.free = append(k.free, slot)
}

// GetEnvID returns cur's own identifier (getenvid, no failure mode).
func (k *Kernel) GetEnvID(cur *Env) EnvID {
	return cur.ID
}

// Yield deschedules cur via the injected Scheduler and always succeeds
// (matching the ABI table: yield returns 0 after reschedule).
func (k *Kernel) Yield(cur *Env) errs.Err_t {
	k.sched.Yield(cur)
	return 0
}

// EnvDestroy releases envid, logging a graceful-exit or destroy notice
// depending on whether the caller is destroying itself (§4.C).
func (k *Kernel) EnvDestroy(cur *Env, envid EnvID) errs.Err_t {
	e, err := k.lookupEnv(cur, envid, true)
	if err != 0 {
		return err
	}
	k.destroy(cur, e, "")
	return 0
}

// destroy is the single release path used by EnvDestroy, sbrk overflow,
// and the bad-pointer kill policy (§7). reason, if non-empty, names the
// destructive policy that triggered this rather than a plain
// env_destroy syscall.
func (k *Kernel) destroy(cur, e *Env, reason string) {
	k.Stats.Destroyed.Inc()
	if reason != "" {
		diag := k.killDiagnostic(e)
		if first, trace := k.distinct.Distinct(); first {
			k.logf("[%08x] destroyed %08x: %s\n\tat %s\n%s\n", cur.ID, e.ID, reason, diag, trace)
		} else {
			k.logf("[%08x] destroyed %08x: %s\n\tat %s\n", cur.ID, e.ID, reason, diag)
		}
	} else if e == cur {
		k.logf("[%08x] exiting gracefully\n", cur.ID)
	} else {
		k.logf("[%08x] destroying %08x\n", cur.ID, e.ID)
	}
	k.freeEnv(e)
}

// NewRootEnv allocates an environment with no parent, for bootstrapping
// the very first environment a freshly built Kernel runs — every other
// environment comes from Exofork, which needs an existing cur to fork
// from, so this is the one allocation path that doesn't. It acquires the
// big lock itself.
func (k *Kernel) NewRootEnv() (*Env, errs.Err_t) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.allocEnv(0)
}

// Exofork allocates a new environment as a copy of cur's register frame
// and break, with a fresh, empty address space (§4.C). The parent's
// return value is the child's id; the child's own saved accumulator is
// forced to 0 so a single syscall observably returns two different
// values in two environments once the child is scheduled.
func (k *Kernel) Exofork(cur *Env) (EnvID, errs.Err_t) {
	child, err := k.allocEnv(cur.ID)
	if err != 0 {
		return 0, err
	}
	child.Tf = cur.Tf
	child.Break = cur.Break
	child.Tf.SetEax(0)
	return child.ID, 0
}

// EnvSetStatus installs s on envid, rejecting anything but the two
// externally-settable states (§4.C) — FREE and the other internal
// states can only be reached through EnvDestroy/allocEnv.
func (k *Kernel) EnvSetStatus(cur *Env, envid EnvID, s Status) errs.Err_t {
	e, err := k.lookupEnv(cur, envid, true)
	if err != 0 {
		return err
	}
	if s != StatusRunnable && s != StatusNotRunnable {
		return errs.Invalid
	}
	e.Status = s
	return 0
}

// EnvSetPgfaultUpcall records envid's user-space page-fault entry
// point. A null upcall is rejected with errs.Invalid: it arrives as a
// raw syscall argument straight from user space (§7), so it is a
// malformed-argument case any environment can trigger, not a kernel
// invariant violation.
func (k *Kernel) EnvSetPgfaultUpcall(cur *Env, envid EnvID, fn uintptr) errs.Err_t {
	e, err := k.lookupEnv(cur, envid, true)
	if err != 0 {
		return err
	}
	if fn == 0 {
		return errs.Invalid
	}
	e.PgFaultUpcall = fn
	return 0
}

// trapFrameSize is the wire size of a trapframe.TrapFrame: 8 eight-byte
// general registers, 4 two-byte segment selectors, and 3 eight-byte
// fields (EFlags, RIP, RSP).
const trapFrameSize = 8*8 + 4*2 + 3*8

// EnvSetTrapframe copies a caller-supplied trap frame out of src's
// address space at srcVA, sanitizes it, and installs it on envid
// (§4.C). A bad source pointer destroys src via the checkUserMemOrDestroy
// policy, since by the time the kernel is asked to read the frame the
// pointer has already been accepted as a syscall argument; the call then
// returns errs.Invalid.
func (k *Kernel) EnvSetTrapframe(cur *Env, envid EnvID, src *Env, srcVA uintptr) errs.Err_t {
	e, err := k.lookupEnv(cur, envid, true)
	if err != 0 {
		return err
	}
	raw, ok := k.checkUserMemOrDestroy(cur, src, srcVA, trapFrameSize, memlayout.PTE_U|memlayout.PTE_P)
	if !ok {
		return errs.Invalid
	}
	var tf trapframe.TrapFrame
	r := bytes.NewReader(raw)
	for i := range tf.GPRegs {
		binary.Read(r, binary.LittleEndian, &tf.GPRegs[i])
	}
	binary.Read(r, binary.LittleEndian, &tf.CS)
	binary.Read(r, binary.LittleEndian, &tf.DS)
	binary.Read(r, binary.LittleEndian, &tf.ES)
	binary.Read(r, binary.LittleEndian, &tf.SS)
	binary.Read(r, binary.LittleEndian, &tf.EFlags)
	binary.Read(r, binary.LittleEndian, &tf.RIP)
	binary.Read(r, binary.LittleEndian, &tf.RSP)

	tf.Sanitize()
	e.Tf = tf
	return 0
}

// ExecCommit performs the atomic address-space swap backing exec(): it
// steals donor's trap frame, upcall, break and page directory (swapping
// cur's old directory onto the donor), destroys the donor, and resumes
// cur via the injected Runner (§4.C). A donorID that does not resolve is
// reported as an error with nothing changed; otherwise ExecCommit returns
// 0 only if Runner.Run returns.
func (k *Kernel) ExecCommit(cur *Env, donorID EnvID) errs.Err_t {
	donor, err := k.lookupEnv(cur, donorID, true)
	if err != 0 {
		return err
	}

	cur.Tf = donor.Tf
	cur.PgFaultUpcall = donor.PgFaultUpcall
	cur.Break = donor.Break

	cur.Pgdir, donor.Pgdir = donor.Pgdir, cur.Pgdir

	k.destroy(cur, donor, "")
	k.runner.Run(cur)
	return 0
}
