package sched

import (
	"github.com/edirooss/mcukern/internal/hw"
	"github.com/edirooss/mcukern/internal/kern"
	"go.uber.org/zap"
)

// Priority schedules strictly by position in the process table: the first
// ready process wins. No explicit queue is needed. Quantum enforcement is
// unnecessary for correctness: runnability changes only through interrupts
// and upcalls, and the kernel loop drains both before consulting the policy,
// so a higher-priority process that becomes ready is picked up on the very
// next round.
type Priority struct {
	log  *zap.Logger
	kern *kern.Kernel
}

// NewPriority builds the policy. Priorities are fixed by table order at
// board construction.
func NewPriority(log *zap.Logger, k *kern.Kernel) *Priority {
	if log == nil {
		log = zap.NewNop()
	}
	return &Priority{log: log.Named("sched.prio"), kern: k}
}

// Setup is a no-op.
func (s *Priority) Setup(hw.Chip) {}

// Next returns the first ready process in table order. The quantum is
// defensive only; correctness does not depend on it.
func (s *Priority) Next() kern.Decision {
	for _, p := range s.kern.Processes() {
		if p != nil && p.Ready() {
			return kern.Decision{Proc: p, TimesliceUS: DefaultTimesliceUS}
		}
	}
	return kern.Decision{}
}

// Result is stateless; there is nothing to rotate.
func (s *Priority) Result(kern.StopReason, uint32) {}

// BottomHalfStrict: interrupts take the CPU away immediately.
func (s *Priority) BottomHalfStrict() bool { return true }
