package kern

import "github.com/edirooss/mcukern/internal/hw"

// Decision is a policy's answer to "who runs next, and for how long".
type Decision struct {
	// Proc is the process to run. nil means the policy considers every
	// process ineligible and the loop should fall through to the sleep
	// check.
	Proc Process

	// TimesliceUS is the requested quantum in microseconds. Zero means no
	// quantum: the process runs until it yields or is preempted by an
	// interrupt.
	TimesliceUS uint32
}

// Policy is the contract between the kernel loop and a concrete scheduling
// policy. The loop holds exactly one policy for the lifetime of the system;
// there is no runtime policy swap.
//
// All methods are invoked from kernel context only, never concurrently.
type Policy interface {
	// Setup runs exactly once before the first scheduling round. Policies
	// that rely on timer preemption must panic here if the chip's systick
	// is a stub.
	Setup(chip hw.Chip)

	// Next selects the next process and desired quantum.
	Next() Decision

	// Result receives the outcome of the last execution. timeUsedUS is
	// meaningful only when the decision carried a quantum.
	Result(reason StopReason, timeUsedUS uint32)

	// BottomHalfStrict reports whether the execution engine must hand
	// control back the moment an interrupt or deferred call is pending.
	BottomHalfStrict() bool
}
