// Package kern is the scheduling core of the kernel: the policy-independent
// main loop, the process-execution engine, and the policy contract.
//
// Execution model: single core, single kernel stack. The kernel runs to
// completion; user processes run on their own stacks and are preempted only
// by hardware interrupts. Scheduler state therefore needs no locking — every
// mutation happens from kernel context.
package kern

import (
	"github.com/edirooss/mcukern/internal/defercall"
	"github.com/edirooss/mcukern/internal/hw"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kernel owns the statically sized process table and drives scheduling.
// The table is fixed at construction; there is no dynamic process creation.
type Kernel struct {
	log    *zap.Logger
	bootID uuid.UUID

	procs []Process

	syscalls SyscallDispatcher
	faults   FaultHandler
}

// Option configures a Kernel at construction.
type Option func(*Kernel)

// WithSyscallDispatcher installs the external system-call dispatcher.
func WithSyscallDispatcher(d SyscallDispatcher) Option {
	return func(k *Kernel) { k.syscalls = d }
}

// WithFaultHandler installs the external fault handler.
func WithFaultHandler(h FaultHandler) Option {
	return func(k *Kernel) { k.faults = h }
}

// New constructs a kernel over a fixed process table. procs may contain nil
// entries for unloaded slots. A nil logger disables logging.
func New(log *zap.Logger, procs []Process, opts ...Option) *Kernel {
	if log == nil {
		log = zap.NewNop()
	}
	k := &Kernel{
		log:    log.Named("kern"),
		bootID: uuid.New(),
		procs:  procs,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// BootID identifies this kernel instance.
func (k *Kernel) BootID() uuid.UUID { return k.bootID }

// Processes returns the process table. Slots may be nil.
func (k *Kernel) Processes() []Process { return k.procs }

// Process returns the table entry for appID, or nil for an out-of-range or
// unloaded slot.
func (k *Kernel) Process(appID int) Process {
	if appID < 0 || appID >= len(k.procs) {
		return nil
	}
	return k.procs[appID]
}

// ProcessesBlocked reports whether no process in the table is ready to use
// the CPU.
func (k *Kernel) ProcessesBlocked() bool {
	for _, p := range k.procs {
		if p != nil && p.Ready() {
			return false
		}
	}
	return true
}

// Loop is the kernel's top-level control loop. It never returns.
//
// Each outer iteration:
//
//  1. Service pending hardware interrupts (bottom halves run here).
//  2. Drain deferred calls, halting the moment a new interrupt appears —
//     hardware interrupts have strict priority over deferred work.
//  3. Inner loop: while nothing is pending and a process is runnable, ask
//     the policy for a decision, run the process through the engine, and
//     feed the outcome back to the policy.
//  4. Atomically with respect to interrupt arrival: if still quiescent,
//     sleep until the next interrupt.
//
// Bottom halves run before deferred calls, and both before processes, so a
// freshly completed I/O is always observable before a process resumes.
func (k *Kernel) Loop(chip hw.Chip, policy Policy) {
	policy.Setup(chip)

	strict := policy.BottomHalfStrict()
	k.log.Info("entering kernel loop",
		zap.String("boot_id", k.bootID.String()),
		zap.Bool("bottom_half_strict", strict),
		zap.Int("procs", len(k.procs)))

	for {
		chip.ServicePendingInterrupts()
		defercall.CallGlobalWhile(func() bool { return !chip.HasPendingInterrupts() })

		for {
			if chip.HasPendingInterrupts() || defercall.GlobalPending() || k.ProcessesBlocked() {
				break
			}

			d := policy.Next()
			if d.Proc == nil {
				break
			}

			reason, timeUsed := k.DoProcess(chip, d.Proc, d.TimesliceUS, strict)
			policy.Result(reason, timeUsed)
		}

		chip.Atomic(func() {
			if !chip.HasPendingInterrupts() && !defercall.GlobalPending() && k.ProcessesBlocked() {
				chip.Sleep()
			}
		})
	}
}
