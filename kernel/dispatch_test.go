package kernel

import (
	"testing"

	"exoknl/errs"
	"exoknl/trapframe"
)

func TestDispatchGetEnvID(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	got := k.Dispatch(root, &trapframe.TrapFrame{}, SysGetEnvID, SyscallArgs{})
	if got != int64(root.ID) {
		t.Fatalf("Dispatch(SysGetEnvID) = %d, want %d", got, root.ID)
	}
}

func TestDispatchYieldCallsScheduler(t *testing.T) {
	k, sched, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	if got := k.Dispatch(root, &trapframe.TrapFrame{}, SysYield, SyscallArgs{}); got != 0 {
		t.Fatalf("Dispatch(SysYield) = %d, want 0", got)
	}
	if sched.yields != 1 {
		t.Fatalf("scheduler.yields = %d, want 1", sched.yields)
	}
}

func TestDispatchUnknownSyscall(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	got := k.Dispatch(root, &trapframe.TrapFrame{}, Num(9999), SyscallArgs{})
	if got != int64(errs.Invalid) {
		t.Fatalf("Dispatch(unknown) = %d, want %d", got, errs.Invalid)
	}
}

func TestDispatchExoforkThenGetEnvIDFromChild(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	childRaw := k.Dispatch(root, &trapframe.TrapFrame{}, SysExofork, SyscallArgs{})
	if childRaw < 0 {
		t.Fatalf("Dispatch(SysExofork) = %d, want >= 0", childRaw)
	}
	childID := EnvID(childRaw)
	child, err := k.lookupEnv(root, childID, true)
	if err != 0 {
		t.Fatalf("lookupEnv(child): %v", err)
	}
	if got := k.Dispatch(child, &trapframe.TrapFrame{}, SysGetEnvID, SyscallArgs{}); got != int64(childID) {
		t.Fatalf("child Dispatch(SysGetEnvID) = %d, want %d", got, childID)
	}
	if child.Tf.Eax() != 0 {
		t.Fatalf("forked child's saved accumulator = %d, want 0", child.Tf.Eax())
	}
}

// TestDispatchSnapshotsCallerTrapFrameBeforeExofork pins down §8's
// testable property directly through Dispatch, the only production
// entry point: a forked child's saved frame must equal the parent's
// frame at syscall entry, not whatever cur.Tf happened to hold before
// this particular trap.
func TestDispatchSnapshotsCallerTrapFrameBeforeExofork(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	entryTf := trapframe.TrapFrame{RIP: 0x401000}
	entryTf.SetEax(0x77)

	childRaw := k.Dispatch(root, &entryTf, SysExofork, SyscallArgs{})
	if childRaw < 0 {
		t.Fatalf("Dispatch(SysExofork) = %d, want >= 0", childRaw)
	}
	if root.Tf.RIP != entryTf.RIP {
		t.Fatalf("root.Tf.RIP = %#x, want %#x (Dispatch must snapshot the caller's trap frame)", root.Tf.RIP, entryTf.RIP)
	}

	child, err := k.lookupEnv(root, EnvID(childRaw), true)
	if err != 0 {
		t.Fatalf("lookupEnv(child): %v", err)
	}
	if child.Tf.RIP != entryTf.RIP {
		t.Fatalf("child.Tf.RIP = %#x, want %#x (copied from the parent's entry frame)", child.Tf.RIP, entryTf.RIP)
	}
	if child.Tf.Eax() != 0 {
		t.Fatalf("child.Tf.Eax() = %#x, want 0 (forced to 0 even though the parent's was 0x77)", child.Tf.Eax())
	}
}

func TestDispatchSbrkRoundTrip(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	var args SyscallArgs
	args[0] = 4096
	brk := k.Dispatch(root, &trapframe.TrapFrame{}, SysSbrk, args)
	if brk != 4096 {
		t.Fatalf("Dispatch(SysSbrk, 4096) = %d, want 4096", brk)
	}
}
