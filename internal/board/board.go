// Package board wires a scheduling policy at boot: it allocates the
// ready-set nodes (one per loaded process slot), builds exactly one policy
// instance around the kernel handle, and returns it ready for the kernel
// loop. No runtime reconfiguration.
package board

import (
	"fmt"

	"github.com/edirooss/mcukern/internal/hw"
	"github.com/edirooss/mcukern/internal/kern"
	"github.com/edirooss/mcukern/internal/kern/sched"
	"go.uber.org/zap"
)

// readyRing allocates one node per loaded slot, linked in table order.
func readyRing(k *kern.Kernel) *sched.List {
	ring := &sched.List{}
	for _, p := range k.Processes() {
		if p != nil {
			ring.PushTail(sched.NewNode(p.AppID()))
		}
	}
	return ring
}

// Cooperative finalizes a cooperative policy over the kernel's table.
func Cooperative(log *zap.Logger, k *kern.Kernel) *sched.Cooperative {
	return sched.NewCooperative(log, k, readyRing(k))
}

// RoundRobin finalizes a round-robin policy over the kernel's table.
func RoundRobin(log *zap.Logger, k *kern.Kernel) *sched.RoundRobin {
	return sched.NewRoundRobin(log, k, readyRing(k))
}

// Priority finalizes the table-order priority policy.
func Priority(log *zap.Logger, k *kern.Kernel) *sched.Priority {
	return sched.NewPriority(log, k)
}

// MLFQ finalizes a multilevel feedback queue policy. Every process starts in
// the topmost queue.
func MLFQ(log *zap.Logger, k *kern.Kernel, alarm hw.Alarm) *sched.MLFQ {
	queues := [sched.NumQueues]*sched.List{}
	for i := range queues {
		queues[i] = &sched.List{}
	}
	for _, p := range k.Processes() {
		if p != nil {
			queues[0].PushTail(sched.NewNode(p.AppID()))
		}
	}
	return sched.NewMLFQ(log, k, alarm, queues)
}

// Policy builds the named policy. Valid names: coop, rr, priority, mlfq.
func Policy(name string, log *zap.Logger, k *kern.Kernel, alarm hw.Alarm) (kern.Policy, error) {
	switch name {
	case "coop", "cooperative":
		return Cooperative(log, k), nil
	case "rr", "roundrobin":
		return RoundRobin(log, k), nil
	case "priority":
		return Priority(log, k), nil
	case "mlfq":
		return MLFQ(log, k, alarm), nil
	}
	return nil, fmt.Errorf("board: unknown policy %q", name)
}
