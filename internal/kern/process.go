package kern

import "fmt"

// State is the lifecycle state of a process slot as observed by the
// scheduler. Transitions are driven by system calls, interrupt bottom halves
// and the fault handler; the scheduler treats the state as an input.
type State uint8

const (
	// StateUnstarted marks a process that is loaded but has never executed.
	StateUnstarted State = iota

	// StateRunning marks a process that expects to hold the CPU.
	StateRunning

	// StateYielded marks a process that gave up the CPU and waits for an
	// upcall.
	StateYielded

	// StateFault marks a crashed process. Must never be selected.
	StateFault

	// StateStoppedRunning, StateStoppedYielded and StateStoppedFaulted are
	// administratively halted variants. The scheduler skips them.
	StateStoppedRunning
	StateStoppedYielded
	StateStoppedFaulted
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRunning:
		return "running"
	case StateYielded:
		return "yielded"
	case StateFault:
		return "fault"
	case StateStoppedRunning:
		return "stopped(running)"
	case StateStoppedYielded:
		return "stopped(yielded)"
	case StateStoppedFaulted:
		return "stopped(faulted)"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Stopped reports whether the state is one of the administratively halted
// variants.
func (s State) Stopped() bool {
	return s == StateStoppedRunning || s == StateStoppedYielded || s == StateStoppedFaulted
}

// ReturnReason classifies why a context switch handed control back to the
// kernel.
type ReturnReason uint8

const (
	// ReturnYield: the process executed a yield system call.
	ReturnYield ReturnReason = iota

	// ReturnSyscall: the process executed a non-yield system call; the
	// kernel's syscall dispatcher must handle it before the process
	// continues.
	ReturnSyscall

	// ReturnTimeslice: the system timer expired while the process ran.
	ReturnTimeslice

	// ReturnInterrupted: a hardware interrupt preempted the process.
	ReturnInterrupted

	// ReturnFault: the process raised a hardware fault.
	ReturnFault
)

func (r ReturnReason) String() string {
	switch r {
	case ReturnYield:
		return "yield"
	case ReturnSyscall:
		return "syscall"
	case ReturnTimeslice:
		return "timeslice"
	case ReturnInterrupted:
		return "interrupted"
	case ReturnFault:
		return "fault"
	}
	return fmt.Sprintf("return(%d)", uint8(r))
}

// StopReason is the structured outcome the execution engine reports to the
// scheduling policy.
type StopReason uint8

const (
	// StopYieldedNoTask: the process yielded and has no pending upcall.
	StopYieldedNoTask StopReason = iota

	// StopTimesliceExpired: the quantum was consumed.
	StopTimesliceExpired

	// StopKernelPreemption: a hardware interrupt or deferred call arrived;
	// the engine stopped so the kernel loop can service it.
	StopKernelPreemption

	// StopStoppedOrFault: the process is in a non-runnable state.
	StopStoppedOrFault
)

func (r StopReason) String() string {
	switch r {
	case StopYieldedNoTask:
		return "yielded-no-task"
	case StopTimesliceExpired:
		return "timeslice-expired"
	case StopKernelPreemption:
		return "kernel-preemption"
	case StopStoppedOrFault:
		return "stopped-or-fault"
	}
	return fmt.Sprintf("stop(%d)", uint8(r))
}

// Task is an opaque unit of pending work (an upcall) queued to a process.
type Task any

// Process is the capability through which the scheduler drives one entry of
// the statically sized process table. The scheduler never mutates process
// memory directly; it invokes these operations.
//
// Contract notes:
//
//   - SwitchTo performs the context switch and returns the reason control
//     came back, or ok=false when the switch could not be performed (the
//     state machine is consulted again on the next engine iteration).
//   - DequeueTask pops one pending upcall. A successful dequeue stages the
//     upcall for delivery and transitions the process to StateRunning; the
//     engine only observes the result.
type Process interface {
	// AppID returns the slot identifier, unique within the process table.
	AppID() int

	// State returns the current lifecycle state.
	State() State

	// Ready reports whether the process can use the CPU: StateRunning, or
	// a pending task while in StateYielded or StateUnstarted.
	Ready() bool

	// SetupMPU configures the memory protection regions for this process.
	// The engine enables the MPU afterwards.
	SetupMPU()

	// SwitchTo transfers the CPU to the process.
	SwitchTo() (reason ReturnReason, ok bool)

	// DequeueTask pops and stages one pending upcall.
	DequeueTask() (Task, bool)

	// DebugTimesliceExpired is an observability hook invoked when the
	// process exhausts a quantum.
	DebugTimesliceExpired()
}

// SyscallDispatcher handles non-yield system calls on behalf of the kernel.
// Syscall semantics are outside the scheduling core; the engine only routes.
type SyscallDispatcher interface {
	Dispatch(p Process)
}

// FaultHandler reacts to a fault raised during process execution. The
// default implementation stops the process; boards may install restart
// policies instead.
type FaultHandler interface {
	HandleFault(p Process)
}
