package sched

import (
	"fmt"

	"github.com/edirooss/mcukern/internal/hw"
	"github.com/edirooss/mcukern/internal/kern"
	"go.uber.org/zap"
)

// Multilevel feedback queue, after the rules in "Operating Systems: Three
// Easy Pieces":
//
//	Rule 1: higher queue runs first.
//	Rule 2: within a queue, round-robin on the queue's quantum.
//	Rule 3: new processes enter the topmost queue.
//	Rule 4: a process that uses up its allotment at a level (no matter how
//	        many times it gave up the CPU meanwhile) moves down one queue.
//	Rule 5: every refresh period, move every process back to the top.
const (
	// NumQueues is the number of MLFQ priority levels.
	NumQueues = 3

	// PriorityRefreshPeriodMS is how often all processes are promoted back
	// to the top queue.
	PriorityRefreshPeriodMS = 5000
)

var mlfqQuantaUS = [NumQueues]uint32{10000, 20000, 50000}

// queueQuantumUS returns the full quantum of a queue level.
func queueQuantumUS(idx int) uint32 {
	if idx < 0 || idx >= NumQueues {
		panic(fmt.Sprintf("sched: invalid mlfq queue index %d", idx))
	}
	return mlfqQuantaUS[idx]
}

// MLFQ approximates shortest-job-first without foreknowledge: interactive
// processes that yield early stay in the high queues; CPU-bound processes
// sink to lower queues with longer quanta. A periodic refresh guards against
// starvation.
//
// The per-node counter spans multiple short executions punctuated by
// upcalls; only when the cumulative quantum at a level is fully consumed
// does the policy conclude the process is CPU-bound there and demote it.
type MLFQ struct {
	log   *zap.Logger
	kern  *kern.Kernel
	alarm hw.Alarm

	// Queues[0] is the highest priority.
	Queues [NumQueues]*List

	nextReset  uint32
	resetDelta uint32

	lastIdx int
}

// NewMLFQ builds the policy. Boards load every node into Queues[0] (Rule 3).
func NewMLFQ(log *zap.Logger, k *kern.Kernel, alarm hw.Alarm, queues [NumQueues]*List) *MLFQ {
	if log == nil {
		log = zap.NewNop()
	}
	return &MLFQ{log: log.Named("sched.mlfq"), kern: k, alarm: alarm, Queues: queues}
}

// Setup asserts a functional systick and schedules the first priority
// refresh.
func (s *MLFQ) Setup(chip hw.Chip) {
	if chip.SysTick().Dummy() {
		panic("sched: mlfq requires a functional systick")
	}
	s.resetDelta = uint32(uint64(PriorityRefreshPeriodMS) * uint64(s.alarm.Frequency()) / 1000)
	s.nextReset = s.alarm.Now() + s.resetDelta
}

// promoteAll splices every process from the lower queues into queue 0,
// clearing their level accounting (Rule 5). Processes already in queue 0
// are unaffected.
func (s *MLFQ) promoteAll() {
	moved := 0
	for idx := 1; idx < NumQueues; idx++ {
		for {
			n := s.Queues[idx].PopHead()
			if n == nil {
				break
			}
			n.usUsedThisQueue = 0
			s.Queues[0].PushTail(n)
			moved++
		}
	}
	if moved > 0 {
		s.log.Debug("priority refresh", zap.Int("promoted", moved))
	}
}

// Next scans queues top-down for the first ready node, rotates it to the
// head of its own queue (keeping intra-queue round-robin while skipping
// blocked processes), and grants the remaining level quantum, floored at the
// scheduling minimum.
func (s *MLFQ) Next() kern.Decision {
	if now := s.alarm.Now(); now >= s.nextReset {
		s.nextReset = now + s.resetDelta
		s.promoteAll()
	}

	for idx := 0; idx < NumQueues; idx++ {
		q := s.Queues[idx]
		var node *Node
		for i := 0; i < q.Len(); i++ {
			head := q.Head()
			if p := s.kern.Process(head.AppID()); p != nil && p.Ready() {
				node = head
				break
			}
			q.RotateHeadToTail()
		}
		if node == nil {
			continue
		}

		quantum := queueQuantumUS(idx)
		remaining := uint32(kern.MinTimesliceUS)
		if node.usUsedThisQueue < quantum && quantum-node.usUsedThisQueue > remaining {
			remaining = quantum - node.usUsedThisQueue
		}

		s.lastIdx = idx
		return kern.Decision{Proc: s.kern.Process(node.AppID()), TimesliceUS: remaining}
	}
	return kern.Decision{}
}

// Result accrues the level accounting and applies Rule 4: full-quantum use
// demotes the node one queue (or keeps it in the lowest) and resets the
// counter. Any other outcome rotates the node to the tail of its own queue.
func (s *MLFQ) Result(reason kern.StopReason, timeUsedUS uint32) {
	q := s.Queues[s.lastIdx]
	node := q.Head()
	if node == nil {
		panic("sched: mlfq result with empty queue")
	}
	node.usUsedThisQueue += timeUsedUS

	if reason == kern.StopTimesliceExpired {
		node.usUsedThisQueue = 0
		next := s.lastIdx
		if next < NumQueues-1 {
			next++
		}
		s.Queues[next].PushTail(q.PopHead())
		return
	}
	q.RotateHeadToTail()
}

// BottomHalfStrict is off: interrupt handling is batched until a quantum or
// yield boundary.
func (s *MLFQ) BottomHalfStrict() bool { return false }
