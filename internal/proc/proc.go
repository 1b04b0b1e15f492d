// Package proc provides the simulated process table: scripted workloads
// that implement the kernel's Process capability against the virtual chip.
// Programs consume virtual time step by step, so context switches, timeslice
// expiry and interrupt preemption are exact and reproducible.
package proc

import (
	"sync"

	"github.com/edirooss/mcukern/internal/hw/virtchip"
	"github.com/edirooss/mcukern/internal/kern"
	"go.uber.org/zap"
)

// taskRingSize bounds each process's pending-task queue. Overflow drops the
// task, mirroring static upcall queues on real hardware.
const taskRingSize = 8

// startTask is the implicit first upcall staged at load time; dequeuing it
// moves an unstarted process to Running at its entry point.
type startTask struct{}

// Proc is one simulated process slot.
//
// Kernel-context calls are single-threaded; the mutex exists for the
// inspection surface (snapshots read from the debug API goroutine).
type Proc struct {
	log  *zap.Logger
	chip *virtchip.Chip
	id   int
	name string

	mu    sync.Mutex
	state kern.State

	prog      Program
	pc        int
	stepRemUS uint32
	inStep    bool

	tasks    [taskRingSize]kern.Task
	taskHead int
	taskLen  int
	dropped  uint64

	cpuUS   uint64
	expired uint64
}

// AppID returns the table slot.
func (p *Proc) AppID() int { return p.id }

// Name returns the load-time name.
func (p *Proc) Name() string { return p.name }

// State returns the lifecycle state.
func (p *Proc) State() kern.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState transitions the lifecycle state. Used by external paths only:
// the fault handler and administrative stop/restart.
func (p *Proc) SetState(s kern.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Ready reports whether the process can use the CPU.
func (p *Proc) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case kern.StateRunning:
		return true
	case kern.StateYielded, kern.StateUnstarted:
		return p.taskLen > 0
	default:
		return false
	}
}

// SetupMPU configures protection regions. Regions are fixed at load time in
// the simulation; nothing to program.
func (p *Proc) SetupMPU() {}

// DebugTimesliceExpired counts quantum exhaustions.
func (p *Proc) DebugTimesliceExpired() {
	p.mu.Lock()
	p.expired++
	p.mu.Unlock()
}

// EnqueueTask queues an upcall, waking the process if it is waiting. Called
// from interrupt bottom halves. Reports false and drops when the ring is
// full.
func (p *Proc) EnqueueTask(t kern.Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.taskLen >= taskRingSize {
		p.dropped++
		p.log.Warn("task ring full, upcall dropped", zap.Int("app_id", p.id))
		return false
	}
	p.tasks[(p.taskHead+p.taskLen)%taskRingSize] = t
	p.taskLen++
	return true
}

// DequeueTask pops one pending upcall and stages it: the process transitions
// to Running and resumes at its program counter on the next context switch.
func (p *Proc) DequeueTask() (kern.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.taskLen == 0 {
		return nil, false
	}
	t := p.tasks[p.taskHead]
	p.tasks[p.taskHead] = nil
	p.taskHead = (p.taskHead + 1) % taskRingSize
	p.taskLen--
	p.state = kern.StateRunning
	return t, true
}

// SwitchTo transfers the CPU to the process. The workload consumes virtual
// time until it yields, exits, faults, the armed systick expires, or a
// scheduled interrupt fires — whichever comes first. Ties between systick
// expiry and a compute step ending resolve to the timer.
func (p *Proc) SwitchTo() (kern.ReturnReason, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != kern.StateRunning {
		return 0, false
	}

	for {
		if p.pc >= len(p.prog.Ops) {
			if p.prog.Loop && len(p.prog.Ops) > 0 {
				p.pc = 0
			} else {
				p.state = kern.StateStoppedRunning
				return kern.ReturnSyscall, true
			}
		}

		op := p.prog.Ops[p.pc]
		switch op.Kind {
		case OpCompute:
			if !p.inStep {
				if op.US == 0 {
					p.pc++
					continue
				}
				p.stepRemUS = op.US
				p.inStep = true
			}

			run := uint64(p.stepRemUS)
			tick := false
			if d, ok := p.chip.SysTickDeadline(); ok && uint64(d) <= run {
				run = uint64(d)
				tick = true
			}
			if e, ok := p.chip.NextEventIn(); ok && e < run {
				run = e
				tick = false
			}

			p.chip.Advance(run)
			p.cpuUS += run
			p.stepRemUS -= uint32(run)
			if p.stepRemUS == 0 {
				p.inStep = false
				p.pc++
			}

			if tick {
				return kern.ReturnTimeslice, true
			}
			if p.chip.HasPendingInterrupts() {
				return kern.ReturnInterrupted, true
			}

		case OpYield:
			p.pc++
			p.state = kern.StateYielded
			return kern.ReturnYield, true

		case OpExit:
			p.state = kern.StateStoppedRunning
			return kern.ReturnSyscall, true

		case OpFault:
			p.state = kern.StateFault
			return kern.ReturnFault, true

		default:
			p.state = kern.StateFault
			return kern.ReturnFault, true
		}
	}
}

// CPUMicros returns the total virtual CPU time consumed.
func (p *Proc) CPUMicros() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cpuUS
}

// Snapshot is a point-in-time view for the inspection surface.
type Snapshot struct {
	AppID                int    `json:"app_id"`
	Name                 string `json:"name"`
	State                string `json:"state"`
	CPUMicros            uint64 `json:"cpu_us"`
	TimesliceExpirations uint64 `json:"timeslice_expirations"`
	PendingTasks         int    `json:"pending_tasks"`
	DroppedTasks         uint64 `json:"dropped_tasks"`
}

// Snapshot captures the current bookkeeping.
func (p *Proc) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		AppID:                p.id,
		Name:                 p.name,
		State:                p.state.String(),
		CPUMicros:            p.cpuUS,
		TimesliceExpirations: p.expired,
		PendingTasks:         p.taskLen,
		DroppedTasks:         p.dropped,
	}
}
