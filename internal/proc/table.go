package proc

import (
	"fmt"

	"github.com/edirooss/mcukern/internal/hw/virtchip"
	"github.com/edirooss/mcukern/internal/kern"
	"go.uber.org/zap"
)

// Table is the statically sized process table. Slots are filled at board
// construction; there is no runtime loading.
type Table struct {
	log   *zap.Logger
	chip  *virtchip.Chip
	slots []*Proc
	used  int
}

// NewTable allocates a table of capacity slots. A nil logger disables
// logging.
func NewTable(log *zap.Logger, chip *virtchip.Chip, capacity int) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	if capacity <= 0 {
		panic("proc: table capacity must be positive")
	}
	return &Table{
		log:   log.Named("proc"),
		chip:  chip,
		slots: make([]*Proc, capacity),
	}
}

// Load places a workload in the next free slot and stages its start upcall.
// Loading into a full table is a board configuration error.
func (t *Table) Load(name string, prog Program) *Proc {
	if t.used >= len(t.slots) {
		panic(fmt.Sprintf("proc: table full (%d slots)", len(t.slots)))
	}
	p := &Proc{
		log:   t.log,
		chip:  t.chip,
		id:    t.used,
		name:  name,
		state: kern.StateUnstarted,
		prog:  prog,
	}
	p.tasks[0] = startTask{}
	p.taskLen = 1

	t.slots[t.used] = p
	t.used++
	t.log.Info("process loaded", zap.Int("app_id", p.id), zap.String("name", name))
	return p
}

// Get returns the slot, or nil when empty or out of range.
func (t *Table) Get(appID int) *Proc {
	if appID < 0 || appID >= len(t.slots) {
		return nil
	}
	return t.slots[appID]
}

// Procs returns the table as the kernel sees it. Empty slots stay nil.
func (t *Table) Procs() []kern.Process {
	out := make([]kern.Process, len(t.slots))
	for i, p := range t.slots {
		if p != nil {
			out[i] = p
		}
	}
	return out
}

// Snapshots captures every loaded slot for the inspection surface.
func (t *Table) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, t.used)
	for _, p := range t.slots {
		if p != nil {
			out = append(out, p.Snapshot())
		}
	}
	return out
}

// StopOnFault is the default fault handler: it halts the faulted process so
// the scheduler skips it from the next round on.
type StopOnFault struct {
	Log *zap.Logger
}

// HandleFault transitions the process to the stopped-faulted state.
func (h StopOnFault) HandleFault(p kern.Process) {
	if sp, ok := p.(*Proc); ok {
		sp.SetState(kern.StateStoppedFaulted)
	}
	if h.Log != nil {
		h.Log.Warn("process stopped after fault", zap.Int("app_id", p.AppID()))
	}
}
