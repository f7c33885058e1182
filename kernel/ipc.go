// ipc.go implements component D: rendezvous IPC with buffering, so a
// sender and a receiver may arrive in either order (§4.D). Unlike every
// other handler, these two block: there is no real scheduler to return
// control to, so blocking is modeled by releasing the big lock and
// waiting on the env's own wake channel, the same way a real kernel
// would context-switch away and resume this goroutine only once another
// one calls sched_yield's equivalent — waking it back up.
package kernel

import (
	"exoknl/errs"
	"exoknl/memlayout"
)

// wakeOne signals e's wake channel without blocking if nobody is
// listening yet — e.g. IPCTrySend delivering to a receiver that hasn't
// called IPCRecv's blocking path yet this tick is impossible by
// construction (IPCRecv sets IPCRecving before anyone else acts), but a
// buffered send of 1 keeps this safe even so.
func (k *Kernel) wakeOne(e *Env) {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// blockSelf parks the calling goroutine on cur's wake channel, releasing
// the kernel lock for the duration so some other simulated environment's
// goroutine can make progress, and reacquiring it before returning.
func (k *Kernel) blockSelf(cur *Env) {
	k.mu.Unlock()
	<-cur.wake
	k.mu.Lock()
}

// IPCTrySend attempts to deliver value (and, if srcva names a mapped
// page, that page) to envid. If envid is already parked in IPCRecv, the
// message is delivered immediately and the receiver is woken; otherwise
// the value is parked on cur's own pending-send fields and cur blocks
// until some call to IPCRecv harvests it (§4.D's "sender-sees-the-
// receiver-status" ordering).
func (k *Kernel) IPCTrySend(cur *Env, envid EnvID, value uint32, srcva uintptr, perm memlayout.Perm) errs.Err_t {
	env, err := k.lookupEnv(cur, envid, false)
	if err != 0 {
		return err
	}

	sendPage := srcva < memlayout.UTOP && (env.IPCDstVA < memlayout.UTOP || !env.IPCRecving)
	pa, srcPerm, mapped := cur.Pgdir.Lookup(srcva)
	if sendPage {
		if !memlayout.PageAligned(srcva) {
			return errs.Invalid
		}
		if err := checkPerm(perm); err != 0 {
			return err
		}
		if !mapped {
			return errs.Invalid
		}
		if perm&memlayout.PTE_W != 0 && srcPerm&memlayout.PTE_W == 0 {
			return errs.Invalid
		}
	}

	if env.IPCRecving {
		env.IPCPerm = 0
	} else {
		cur.IPCPendingHasPage = false
	}

	if sendPage {
		if env.IPCRecving {
			env.Pgdir.Insert(k.phys, env.IPCDstVA, pa, perm)
			env.IPCPerm = uint32(perm)
		} else {
			cur.IPCPendingHasPage = true
			cur.IPCPendingPage = pa
			cur.IPCPendingPerm = uint32(perm)
		}
	}

	if env.IPCRecving {
		env.IPCRecving = false
		env.IPCFrom = cur.ID
		env.IPCValue = value
		env.Status = StatusRunnable
		env.Tf.SetEax(0)
		k.wakeOne(env)
		k.Stats.IPCDelivered.Inc()
		return 0
	}

	cur.IPCPendingEnvID = envid
	cur.IPCPendingValue = value
	cur.Status = StatusNotRunnable
	k.Stats.IPCBlocked.Inc()
	k.blockSelf(cur)
	return 0
}

// IPCRecv scans for an environment already parked with a pending send
// addressed to cur; if none is found, it records cur's own
// receive-readiness and blocks until IPCTrySend delivers one.
func (k *Kernel) IPCRecv(cur *Env, dstva uintptr) errs.Err_t {
	if dstva < memlayout.UTOP {
		if !memlayout.PageAligned(dstva) {
			return errs.Invalid
		}
	}
	cur.IPCDstVA = dstva

	for _, e := range k.table {
		if e.Status != StatusFree && e.IPCPendingEnvID == cur.ID {
			cur.IPCPerm = 0
			if e.IPCPendingHasPage && dstva < memlayout.UTOP {
				cur.Pgdir.Insert(k.phys, dstva, e.IPCPendingPage, memlayout.Perm(e.IPCPendingPerm))
				cur.IPCPerm = e.IPCPendingPerm
			}
			cur.IPCValue = e.IPCPendingValue
			cur.IPCFrom = e.ID
			e.IPCPendingEnvID = 0
			e.Status = StatusRunnable
			e.Tf.SetEax(0)
			k.wakeOne(e)
			k.Stats.IPCDelivered.Inc()
			return 0
		}
	}

	cur.IPCRecving = true
	cur.Status = StatusNotRunnable
	k.Stats.IPCBlocked.Inc()
	k.blockSelf(cur)
	return 0
}
