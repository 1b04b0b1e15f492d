package sched

import (
	"github.com/edirooss/mcukern/internal/hw"
	"github.com/edirooss/mcukern/internal/kern"
	"go.uber.org/zap"
)

// Cooperative runs processes in insertion order until they voluntarily
// yield. No quantum is enforced; fairness is a matter of how soon each
// process yields, and the ready ring documents that risk. Hardware
// interrupts still preempt immediately because the system has real-time
// obligations.
type Cooperative struct {
	log  *zap.Logger
	kern *kern.Kernel

	// Procs is the single ready ring, in insertion order.
	Procs *List
}

// NewCooperative builds the policy over an already-populated ready ring.
func NewCooperative(log *zap.Logger, k *kern.Kernel, procs *List) *Cooperative {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cooperative{log: log.Named("sched.coop"), kern: k, Procs: procs}
}

// Setup is a no-op: the cooperative policy needs no timer.
func (s *Cooperative) Setup(hw.Chip) {}

// Next selects the head of the ring with no quantum.
func (s *Cooperative) Next() kern.Decision {
	head := s.Procs.Head()
	if head == nil {
		return kern.Decision{}
	}
	return kern.Decision{Proc: s.kern.Process(head.AppID())}
}

// Result rotates the ring unless the engine was preempted by the kernel, in
// which case the same process resumes after the bottom half runs.
func (s *Cooperative) Result(reason kern.StopReason, _ uint32) {
	if reason == kern.StopKernelPreemption {
		return
	}
	s.Procs.RotateHeadToTail()
}

// BottomHalfStrict: interrupts take the CPU away immediately.
func (s *Cooperative) BottomHalfStrict() bool { return true }
