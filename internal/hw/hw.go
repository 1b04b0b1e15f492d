// Package hw defines the hardware capability contracts the kernel core is
// written against. A chip implementation provides interrupt servicing, the
// system timer, the MPU and low-power sleep; the core never touches hardware
// directly.
package hw

// Chip is the chip-level capability handed to the kernel loop.
//
// ServicePendingInterrupts and the deferred-call drain both run with
// interrupts enabled and may themselves be interrupted; implementations must
// be re-entrant-safe.
type Chip interface {
	// ServicePendingInterrupts drains every pending hardware interrupt,
	// running the registered bottom halves.
	ServicePendingInterrupts()

	// HasPendingInterrupts reports whether any interrupt is awaiting service.
	HasPendingInterrupts() bool

	// Atomic runs fn with interrupt delivery masked. This is the primitive
	// behind the kernel's sleep bracket: the quiescence check and the entry
	// into sleep must be indivisible with respect to interrupt arrival.
	Atomic(fn func())

	// Sleep places the CPU into low-power wait until the next interrupt.
	// Only called from within Atomic.
	Sleep()

	// SysTick returns the chip's system timer capability.
	SysTick() SysTick

	// MPU returns the chip's memory protection capability.
	MPU() MPU
}

// SysTick is the countdown timer used to bound process timeslices.
//
// Preemptive scheduling policies must refuse to run on a stub timer; they
// check Dummy() at setup.
type SysTick interface {
	// Reset clears the countdown and any latched expiry.
	Reset()

	// SetTimer loads the countdown with us microseconds.
	SetTimer(us uint32)

	// Enable starts the countdown. With withInterrupt the timer fires an
	// interrupt on expiry; without, it counts silently (used to keep
	// accounting alive across returns to kernel code).
	Enable(withInterrupt bool)

	// Value returns the remaining microseconds.
	Value() uint32

	// Overflowed reports whether the countdown ran past zero.
	Overflowed() bool

	// GreaterThan reports whether more than us microseconds remain.
	GreaterThan(us uint32) bool

	// Dummy reports whether this timer is a non-functional stub.
	Dummy() bool
}

// MPU controls the memory protection unit. The unit is owned by whichever
// process is executing and must be disabled before control returns to
// kernel code.
type MPU interface {
	EnableMPU()
	DisableMPU()
}

// Alarm is a free-running wall-clock counter, used by policies that keep
// schedules across executions (MLFQ's periodic priority refresh).
type Alarm interface {
	// Now returns the current counter value in ticks. Wraps.
	Now() uint32

	// Frequency returns the tick rate in Hz.
	Frequency() uint32
}
