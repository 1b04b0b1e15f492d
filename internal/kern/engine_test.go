package kern_test

import (
	"testing"

	"github.com/edirooss/mcukern/internal/hw/virtchip"
	"github.com/edirooss/mcukern/internal/kern"
	"github.com/edirooss/mcukern/internal/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bench struct {
	chip  *virtchip.Chip
	table *proc.Table
	kern  *kern.Kernel
}

func newBench(t *testing.T, slots int) *bench {
	t.Helper()
	chip := virtchip.New(nil)
	table := proc.NewTable(nil, chip, slots)
	return &bench{chip: chip, table: table}
}

func (b *bench) build(opts ...kern.Option) *kern.Kernel {
	b.kern = kern.New(nil, b.table.Procs(), opts...)
	return b.kern
}

func (b *bench) mpu() *virtchip.MPU {
	return b.chip.MPU().(*virtchip.MPU)
}

func TestYieldWithoutTask(t *testing.T) {
	b := newBench(t, 1)
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Compute(2000), proc.Yield()}})
	k := b.build()

	reason, used := k.DoProcess(b.chip, p, 0, true)
	assert.Equal(t, kern.StopYieldedNoTask, reason)
	assert.Equal(t, uint32(0), used, "no quantum was programmed")
	assert.Equal(t, uint64(2000), b.chip.NowUS())
	assert.False(t, b.mpu().Enabled(), "MPU must be off on return to kernel")
}

func TestCallbackDispatchContinuesExecution(t *testing.T) {
	b := newBench(t, 1)
	p := b.table.Load("a", proc.Program{
		Ops:  []proc.Op{proc.Compute(1000), proc.Yield()},
		Loop: true,
	})
	k := b.build()

	// First run: start upcall is dispatched, one burst, then yield-no-task.
	reason, _ := k.DoProcess(b.chip, p, 0, true)
	assert.Equal(t, kern.StopYieldedNoTask, reason)
	assert.Equal(t, uint64(1000), p.CPUMicros())

	// A queued upcall is dispatched inside the engine and execution
	// continues through another full burst.
	p.EnqueueTask("wake")
	reason, _ = k.DoProcess(b.chip, p, 0, true)
	assert.Equal(t, kern.StopYieldedNoTask, reason)
	assert.Equal(t, uint64(2000), p.CPUMicros())
}

func TestTimesliceExpiry(t *testing.T) {
	b := newBench(t, 1)
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Compute(50000)}, Loop: true})
	k := b.build()

	reason, used := k.DoProcess(b.chip, p, 10000, true)
	assert.Equal(t, kern.StopTimesliceExpired, reason)
	assert.Equal(t, uint32(10000), used)
	assert.Equal(t, uint64(1), p.Snapshot().TimesliceExpirations)
	assert.False(t, b.mpu().Enabled())
}

func TestTimeUsedNeverExceedsProgrammedQuantum(t *testing.T) {
	b := newBench(t, 1)
	p := b.table.Load("a", proc.Program{
		Ops:  []proc.Op{proc.Compute(3000), proc.Yield()},
		Loop: true,
	})
	k := b.build()

	reason, used := k.DoProcess(b.chip, p, 10000, true)
	assert.Equal(t, kern.StopYieldedNoTask, reason)
	assert.LessOrEqual(t, used, uint32(10000))
	assert.Equal(t, uint32(3000), used)
}

func TestKernelPreemptionByInterrupt(t *testing.T) {
	b := newBench(t, 1)
	l := b.chip.AddLine("io", func() {})
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Compute(50000)}, Loop: true})
	k := b.build()

	b.chip.ScheduleIRQ(l, 3000)
	reason, used := k.DoProcess(b.chip, p, 10000, true)
	assert.Equal(t, kern.StopKernelPreemption, reason)
	assert.Equal(t, uint32(3000), used)
	assert.True(t, b.chip.HasPendingInterrupts())
	assert.False(t, b.mpu().Enabled())
}

func TestBottomHalfStrictReturnsBeforeSwitching(t *testing.T) {
	b := newBench(t, 1)
	l := b.chip.AddLine("io", func() {})
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Compute(50000)}, Loop: true})
	k := b.build()

	l.Assert()
	reason, used := k.DoProcess(b.chip, p, 10000, true)
	assert.Equal(t, kern.StopKernelPreemption, reason)
	assert.Equal(t, uint32(0), used)
	assert.Equal(t, uint64(0), p.CPUMicros(), "no context switch happened")
}

func TestNonStrictContinuesAcrossPendingWork(t *testing.T) {
	b := newBench(t, 1)
	l := b.chip.AddLine("io", func() {})
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Compute(2000), proc.Yield()}})
	k := b.build()

	l.Assert()
	// Pending interrupt, strictness off: the process still gets its burst.
	// The interrupt was already pending before the switch, so the process
	// observes it only when the burst completes and returns as interrupted.
	reason, _ := k.DoProcess(b.chip, p, 10000, false)
	assert.Equal(t, kern.StopKernelPreemption, reason)
	assert.Equal(t, uint64(2000), p.CPUMicros())
}

func TestMinimumThresholdExpiresWithoutSwitch(t *testing.T) {
	b := newBench(t, 1)
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Compute(50000)}, Loop: true})
	k := b.build()

	reason, used := k.DoProcess(b.chip, p, kern.MinTimesliceUS-100, true)
	assert.Equal(t, kern.StopTimesliceExpired, reason)
	assert.Equal(t, uint32(0), used)
	assert.Equal(t, uint64(0), p.CPUMicros(), "quantum below threshold: no context switch")
	assert.Equal(t, uint64(1), p.Snapshot().TimesliceExpirations)
}

func TestStoppedProcessIsRefused(t *testing.T) {
	b := newBench(t, 1)
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Yield()}})
	k := b.build()

	p.SetState(kern.StateStoppedRunning)
	reason, _ := k.DoProcess(b.chip, p, 0, true)
	assert.Equal(t, kern.StopStoppedOrFault, reason)
	assert.Equal(t, uint64(0), p.CPUMicros())
}

func TestSchedulingFaultedProcessPanics(t *testing.T) {
	b := newBench(t, 1)
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Yield()}})
	k := b.build()

	p.SetState(kern.StateFault)
	require.Panics(t, func() { k.DoProcess(b.chip, p, 0, true) })
}

func TestMidRunFaultRoutesToHandler(t *testing.T) {
	b := newBench(t, 1)
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Compute(100), proc.Fault()}})
	k := b.build(kern.WithFaultHandler(proc.StopOnFault{}))

	reason, _ := k.DoProcess(b.chip, p, 0, true)
	assert.Equal(t, kern.StopStoppedOrFault, reason)
	assert.Equal(t, kern.StateStoppedFaulted, p.State())
	assert.False(t, b.mpu().Enabled())
}

type countingSyscalls struct{ n int }

func (c *countingSyscalls) Dispatch(kern.Process) { c.n++ }

func TestNonYieldSyscallIsDispatched(t *testing.T) {
	b := newBench(t, 1)
	p := b.table.Load("a", proc.Program{Ops: []proc.Op{proc.Compute(100), proc.Exit()}})
	sys := &countingSyscalls{}
	k := b.build(kern.WithSyscallDispatcher(sys))

	reason, _ := k.DoProcess(b.chip, p, 0, true)
	assert.Equal(t, kern.StopStoppedOrFault, reason)
	assert.Equal(t, 1, sys.n)
}
