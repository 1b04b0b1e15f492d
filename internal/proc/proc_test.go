package proc

import (
	"testing"

	"github.com/edirooss/mcukern/internal/hw/virtchip"
	"github.com/edirooss/mcukern/internal/kern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStagesStartTask(t *testing.T) {
	chip := virtchip.New(nil)
	table := NewTable(nil, chip, 2)
	p := table.Load("a", Program{Ops: []Op{Yield()}})

	assert.Equal(t, kern.StateUnstarted, p.State())
	assert.True(t, p.Ready(), "unstarted process with staged start upcall is ready")

	_, ok := p.DequeueTask()
	require.True(t, ok)
	assert.Equal(t, kern.StateRunning, p.State())
}

func TestTableFullPanics(t *testing.T) {
	chip := virtchip.New(nil)
	table := NewTable(nil, chip, 1)
	table.Load("a", Program{})
	require.Panics(t, func() { table.Load("b", Program{}) })
}

func TestSwitchToComputeThenYield(t *testing.T) {
	chip := virtchip.New(nil)
	table := NewTable(nil, chip, 1)
	p := table.Load("a", Program{Ops: []Op{Compute(1500), Yield()}})
	p.DequeueTask()

	reason, ok := p.SwitchTo()
	require.True(t, ok)
	assert.Equal(t, kern.ReturnYield, reason)
	assert.Equal(t, kern.StateYielded, p.State())
	assert.Equal(t, uint64(1500), p.CPUMicros())
	assert.Equal(t, uint64(1500), chip.NowUS())
	assert.False(t, p.Ready())
}

func TestSwitchToHonorsSysTickDeadline(t *testing.T) {
	chip := virtchip.New(nil)
	table := NewTable(nil, chip, 1)
	p := table.Load("a", Program{Ops: []Op{Compute(50000)}, Loop: true})
	p.DequeueTask()

	st := chip.SysTick()
	st.Reset()
	st.SetTimer(10000)
	st.Enable(true)

	reason, ok := p.SwitchTo()
	require.True(t, ok)
	assert.Equal(t, kern.ReturnTimeslice, reason)
	assert.Equal(t, uint64(10000), p.CPUMicros())
	assert.Equal(t, uint32(0), st.Value())
	// Partial compute progress is preserved for the next slice.
	assert.Equal(t, kern.StateRunning, p.State())
}

func TestSwitchToPreemptedByIRQ(t *testing.T) {
	chip := virtchip.New(nil)
	l := chip.AddLine("io", func() {})
	table := NewTable(nil, chip, 1)
	p := table.Load("a", Program{Ops: []Op{Compute(50000)}, Loop: true})
	p.DequeueTask()

	st := chip.SysTick()
	st.Reset()
	st.SetTimer(10000)
	st.Enable(true)
	chip.ScheduleIRQ(l, 3000)

	reason, ok := p.SwitchTo()
	require.True(t, ok)
	assert.Equal(t, kern.ReturnInterrupted, reason)
	assert.Equal(t, uint64(3000), p.CPUMicros())
	assert.Equal(t, uint32(7000), st.Value())
}

func TestSwitchToExitAndFault(t *testing.T) {
	chip := virtchip.New(nil)
	table := NewTable(nil, chip, 2)

	exiter := table.Load("exit", Program{Ops: []Op{Exit()}})
	exiter.DequeueTask()
	reason, ok := exiter.SwitchTo()
	require.True(t, ok)
	assert.Equal(t, kern.ReturnSyscall, reason)
	assert.Equal(t, kern.StateStoppedRunning, exiter.State())

	faulty := table.Load("fault", Program{Ops: []Op{Fault()}})
	faulty.DequeueTask()
	reason, ok = faulty.SwitchTo()
	require.True(t, ok)
	assert.Equal(t, kern.ReturnFault, reason)
	assert.Equal(t, kern.StateFault, faulty.State())
}

func TestRunningOffTheEndStops(t *testing.T) {
	chip := virtchip.New(nil)
	table := NewTable(nil, chip, 1)
	p := table.Load("a", Program{Ops: []Op{Compute(100)}})
	p.DequeueTask()

	reason, ok := p.SwitchTo()
	require.True(t, ok)
	assert.Equal(t, kern.ReturnSyscall, reason)
	assert.Equal(t, kern.StateStoppedRunning, p.State())
}

func TestSwitchToRequiresRunning(t *testing.T) {
	chip := virtchip.New(nil)
	table := NewTable(nil, chip, 1)
	p := table.Load("a", Program{Ops: []Op{Yield()}})

	_, ok := p.SwitchTo()
	assert.False(t, ok, "unstarted process cannot be switched to")
}

func TestTaskRingOverflowDrops(t *testing.T) {
	chip := virtchip.New(nil)
	table := NewTable(nil, chip, 1)
	p := table.Load("a", Program{Ops: []Op{Yield()}})

	// One slot holds the start task.
	for i := 0; i < taskRingSize-1; i++ {
		assert.True(t, p.EnqueueTask(i))
	}
	assert.False(t, p.EnqueueTask("overflow"))
	assert.Equal(t, uint64(1), p.Snapshot().DroppedTasks)
}

func TestStopOnFaultHandler(t *testing.T) {
	chip := virtchip.New(nil)
	table := NewTable(nil, chip, 1)
	p := table.Load("a", Program{Ops: []Op{Fault()}})
	p.DequeueTask()
	p.SwitchTo()

	StopOnFault{}.HandleFault(p)
	assert.Equal(t, kern.StateStoppedFaulted, p.State())
	assert.False(t, p.Ready())
}
