package sched

import (
	"github.com/edirooss/mcukern/internal/hw"
	"github.com/edirooss/mcukern/internal/kern"
	"go.uber.org/zap"
)

// DefaultTimesliceUS is the round-robin quantum: how long a process may run
// before being rescheduled.
const DefaultTimesliceUS = 10000

// RoundRobin grants each ready process a fixed quantum in ring order. When a
// hardware interrupt takes the CPU mid-quantum, the unused remainder is
// preserved and the same process resumes with it after the bottom half —
// interrupt load does not erode a process's share.
type RoundRobin struct {
	log  *zap.Logger
	kern *kern.Kernel

	Procs *List

	// Carry cell: remainder of the quantum at the last kernel preemption.
	// Valid only while rescheduled is set.
	timeRemaining uint32
	rescheduled   bool

	lastSlice uint32
}

// NewRoundRobin builds the policy over an already-populated ready ring.
func NewRoundRobin(log *zap.Logger, k *kern.Kernel, procs *List) *RoundRobin {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoundRobin{log: log.Named("sched.rr"), kern: k, Procs: procs}
}

// Setup refuses to run on a stub timer: quantum enforcement is the whole
// point of this policy.
func (s *RoundRobin) Setup(chip hw.Chip) {
	if chip.SysTick().Dummy() {
		panic("sched: round-robin requires a functional systick")
	}
}

// Next selects the head of the ring. A preempted process gets its preserved
// remainder; everyone else gets the default quantum. A remainder below the
// minimum threshold is handed to the engine as-is and comes straight back as
// expired, which rotates the ring.
func (s *RoundRobin) Next() kern.Decision {
	head := s.Procs.Head()
	if head == nil {
		return kern.Decision{}
	}
	slice := uint32(DefaultTimesliceUS)
	if s.rescheduled {
		slice = s.timeRemaining
	}
	s.rescheduled = false
	s.lastSlice = slice
	return kern.Decision{Proc: s.kern.Process(head.AppID()), TimesliceUS: slice}
}

// Result preserves the remainder on kernel preemption and otherwise rotates
// the ring, discarding any carry.
func (s *RoundRobin) Result(reason kern.StopReason, timeUsedUS uint32) {
	if reason == kern.StopKernelPreemption {
		rem := uint32(0)
		if timeUsedUS < s.lastSlice {
			rem = s.lastSlice - timeUsedUS
		}
		s.timeRemaining = rem
		s.rescheduled = true
		return
	}
	s.timeRemaining = 0
	s.Procs.RotateHeadToTail()
}

// BottomHalfStrict: interrupts take the CPU away immediately.
func (s *RoundRobin) BottomHalfStrict() bool { return true }
