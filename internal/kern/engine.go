package kern

import (
	"fmt"

	"github.com/edirooss/mcukern/internal/defercall"
	"github.com/edirooss/mcukern/internal/hw"
	"go.uber.org/zap"
)

// MinTimesliceUS is the smallest quantum worth a context switch. A remaining
// slice below this threshold is reported as expired without running the
// process.
const MinTimesliceUS = 500

// DoProcess runs p until a well-defined stop condition and reports the
// structured stop reason plus the microseconds consumed within the
// programmed timeslice (zero when no timeslice was requested).
//
// timesliceUS == 0 requests no quantum: the process runs until it yields or
// an interrupt preempts it. bottomHalfStrict makes the engine hand control
// back the moment an interrupt or deferred call is pending, instead of
// continuing the process to its next natural boundary.
//
// The engine owns the system timer and the MPU for the duration of the call;
// both are released on every return path.
func (k *Kernel) DoProcess(chip hw.Chip, p Process, timesliceUS uint32, bottomHalfStrict bool) (StopReason, uint32) {
	systick := chip.SysTick()
	hasSlice := timesliceUS > 0

	if hasSlice {
		systick.Reset()
		systick.SetTimer(timesliceUS)
		// Count from the start of the call, but fire no interrupt while
		// kernel code runs.
		systick.Enable(false)
	}

	// timeUsed = programmed − remaining, clamped to the programmed quantum.
	// Overflow counts as full consumption.
	timeUsed := func() uint32 {
		if !hasSlice {
			return 0
		}
		if systick.Overflowed() {
			return timesliceUS
		}
		rem := systick.Value()
		if rem > timesliceUS {
			rem = timesliceUS
		}
		return timesliceUS - rem
	}

	for {
		if bottomHalfStrict && (chip.HasPendingInterrupts() || defercall.GlobalPending()) {
			return StopKernelPreemption, timeUsed()
		}

		if hasSlice && (systick.Overflowed() || !systick.GreaterThan(MinTimesliceUS)) {
			p.DebugTimesliceExpired()
			return StopTimesliceExpired, timeUsed()
		}

		switch st := p.State(); st {
		case StateRunning:
			p.SetupMPU()
			chip.MPU().EnableMPU()
			if hasSlice {
				systick.Enable(true)
			}

			reason, ok := p.SwitchTo()

			if hasSlice {
				systick.Enable(false)
			}
			chip.MPU().DisableMPU()

			if !ok {
				// The switch did not execute the process; re-read the state
				// machine.
				continue
			}

			switch reason {
			case ReturnYield:
				// State machine is now Yielded (or Running again); next
				// iteration decides.
			case ReturnSyscall:
				if k.syscalls != nil {
					k.syscalls.Dispatch(p)
				}
			case ReturnTimeslice:
				p.DebugTimesliceExpired()
				return StopTimesliceExpired, timeUsed()
			case ReturnInterrupted:
				return StopKernelPreemption, timeUsed()
			case ReturnFault:
				k.log.Warn("process faulted during execution",
					zap.Int("app_id", p.AppID()))
				if k.faults != nil {
					k.faults.HandleFault(p)
				}
				return StopStoppedOrFault, timeUsed()
			default:
				panic(fmt.Sprintf("kern: unknown return reason %d", reason))
			}

		case StateYielded, StateUnstarted:
			if _, ok := p.DequeueTask(); !ok {
				return StopYieldedNoTask, timeUsed()
			}
			// Upcall staged and the process moved to Running; dispatch
			// happened, keep going.

		case StateFault:
			// A policy handed us a faulted process. That is a kernel bug,
			// not a process bug.
			panic(fmt.Sprintf("kern: attempted to schedule faulted process %d", p.AppID()))

		default:
			if !st.Stopped() {
				panic(fmt.Sprintf("kern: unknown process state %d", st))
			}
			return StopStoppedOrFault, timeUsed()
		}
	}
}
