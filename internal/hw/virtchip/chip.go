// Package virtchip is a deterministic virtual-time chip: interrupt lines,
// a scheduled interrupt timeline, a countdown systick and a 1 MHz alarm,
// all driven by a microsecond clock that advances only when a process
// executes or the CPU sleeps.
//
// It implements the hw capability contracts for tests and the simulator.
// Kernel-context callers are single-threaded; line assertion is additionally
// safe from other goroutines (interactive interrupt injection).
package virtchip

import (
	"sync"

	"github.com/edirooss/mcukern/internal/hw"
	"go.uber.org/zap"
)

// Line is one interrupt source. Asserting it marks the interrupt pending;
// the bottom half runs later, from ServicePendingInterrupts in the kernel
// loop.
type Line struct {
	chip *Chip
	id   int
	name string

	bottom func()

	pending uint32 // outstanding assertions not yet serviced
}

// Name returns the line's registration name.
func (l *Line) Name() string { return l.name }

// Assert marks the interrupt pending. Safe from any goroutine.
func (l *Line) Assert() {
	c := l.chip
	c.mu.Lock()
	l.pending++
	c.pendingTotal++
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Chip is the virtual chip.
type Chip struct {
	log *zap.Logger

	mu   sync.Mutex
	cond *sync.Cond

	clockUS      uint64
	lines        []*Line
	pendingTotal uint64
	tl           timeline

	systick hw.SysTick
	vtick   *SysTick // nil when the board installed the dummy
	mpu     MPU

	idleOnce sync.Once
	idleC    chan struct{}
}

// Option configures a Chip at construction.
type Option func(*Chip)

// WithDummySysTick installs the stub timer instead of the functional one.
func WithDummySysTick() Option {
	return func(c *Chip) {
		c.systick = DummySysTick{}
		c.vtick = nil
	}
}

// New constructs a virtual chip. A nil logger disables logging.
func New(log *zap.Logger, opts ...Option) *Chip {
	if log == nil {
		log = zap.NewNop()
	}
	vt := &SysTick{}
	c := &Chip{
		log:     log.Named("virtchip"),
		systick: vt,
		vtick:   vt,
		idleC:   make(chan struct{}, 1),
	}
	c.cond = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddLine registers an interrupt source with its bottom half. Board
// construction time only.
func (c *Chip) AddLine(name string, bottom func()) *Line {
	if bottom == nil {
		panic("virtchip: nil bottom half")
	}
	l := &Line{chip: c, id: len(c.lines), name: name, bottom: bottom}
	c.lines = append(c.lines, l)
	return l
}

// Lines returns the registered interrupt sources, in registration order.
func (c *Chip) Lines() []*Line {
	return c.lines
}

// ScheduleIRQ arms a one-shot firing of line at absolute virtual time atUS.
func (c *Chip) ScheduleIRQ(l *Line, atUS uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if atUS < c.clockUS {
		atUS = c.clockUS
	}
	c.tl.push(&irqEvent{line: l, atUS: atUS})
}

// SchedulePeriodicIRQ arms a repeating firing of line every periodUS,
// starting at firstUS. untilUS bounds rescheduling (0 = unbounded).
func (c *Chip) SchedulePeriodicIRQ(l *Line, firstUS, periodUS, untilUS uint64) {
	if periodUS == 0 {
		panic("virtchip: zero irq period")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tl.push(&irqEvent{line: l, atUS: firstUS, periodUS: periodUS, untilUS: untilUS})
}

// ---- hw.Chip ----------------------------------------------------------------

// ServicePendingInterrupts drains every pending interrupt, running bottom
// halves outside the chip lock (they call back into processes and the
// deferred-call queue).
func (c *Chip) ServicePendingInterrupts() {
	for {
		var l *Line
		c.mu.Lock()
		for _, cand := range c.lines {
			if cand.pending > 0 {
				cand.pending--
				c.pendingTotal--
				l = cand
				break
			}
		}
		c.mu.Unlock()
		if l == nil {
			return
		}
		l.bottom()
	}
}

// HasPendingInterrupts reports outstanding assertions.
func (c *Chip) HasPendingInterrupts() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingTotal > 0
}

// Atomic brackets the quiescence check and the entry into sleep. The
// virtual clock cannot move while kernel code runs, and Sleep re-checks
// pending work under the same lock external asserters take, which closes
// the lost-wakeup window without masking anything.
func (c *Chip) Atomic(fn func()) {
	fn()
}

// Sleep waits for the next interrupt. With a scheduled timeline it advances
// the clock straight to the next firing (idle skip); otherwise it blocks
// until an external assertion. The first time Sleep finds neither, the idle
// channel fires for observers.
func (c *Chip) Sleep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.pendingTotal == 0 {
		if at, ok := c.tl.next(); ok {
			c.advanceLocked(at - c.clockUS)
			continue
		}
		c.idleOnce.Do(func() {
			c.log.Debug("nothing scheduled and nothing pending, board idle",
				zap.Uint64("virtual_us", c.clockUS))
			select {
			case c.idleC <- struct{}{}:
			default:
			}
		})
		c.cond.Wait()
	}
}

// SysTick returns the system timer capability.
func (c *Chip) SysTick() hw.SysTick { return c.systick }

// MPU returns the memory protection capability.
func (c *Chip) MPU() hw.MPU { return &c.mpu }

// ---- execution-side surface (used by simulated processes) ------------------

// NowUS returns the virtual clock.
func (c *Chip) NowUS() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clockUS
}

// Alarm returns a 1 MHz alarm view of the virtual clock.
func (c *Chip) Alarm() hw.Alarm { return alarm{c} }

// SysTickDeadline returns the microseconds until the armed systick expiry,
// if the expiry interrupt is armed.
func (c *Chip) SysTickDeadline() (uint32, bool) {
	if c.vtick == nil {
		return 0, false
	}
	return c.vtick.armedDeadline()
}

// NextEventIn returns the microseconds until the next scheduled firing.
func (c *Chip) NextEventIn() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.tl.next()
	if !ok {
		return 0, false
	}
	if at <= c.clockUS {
		return 0, true
	}
	return at - c.clockUS, true
}

// Advance moves the virtual clock forward by us, firing due timeline events
// and consuming the systick. Called by the executing process.
func (c *Chip) Advance(us uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked(us)
}

func (c *Chip) advanceLocked(us uint64) {
	target := c.clockUS + us
	for {
		at, ok := c.tl.next()
		if !ok || at > target {
			break
		}
		ev := c.tl.pop()
		c.clockUS = at
		ev.line.pending++
		c.pendingTotal++
		if ev.periodUS > 0 {
			next := ev.atUS + ev.periodUS
			if ev.untilUS == 0 || next <= ev.untilUS {
				ev.atUS = next
				c.tl.push(ev)
			}
		}
	}
	c.clockUS = target
	if c.vtick != nil {
		c.vtick.advance(us)
	}
}

// IdleC fires once, the first time the CPU sleeps with nothing scheduled
// and nothing pending.
func (c *Chip) IdleC() <-chan struct{} { return c.idleC }

// ---- alarm ------------------------------------------------------------------

type alarm struct{ c *Chip }

// Now returns the virtual clock in microsecond ticks. Wraps at 32 bits.
func (a alarm) Now() uint32 { return uint32(a.c.NowUS()) }

// Frequency is 1 MHz: one tick per microsecond.
func (a alarm) Frequency() uint32 { return 1000000 }

// ---- mpu --------------------------------------------------------------------

// MPU tracks protection state so tests can assert the engine never leaves it
// enabled on return to kernel code.
type MPU struct {
	enabled bool
}

func (m *MPU) EnableMPU() {
	if m.enabled {
		panic("virtchip: MPU enabled twice")
	}
	m.enabled = true
}

func (m *MPU) DisableMPU() { m.enabled = false }

// Enabled reports the protection state. Test hook.
func (m *MPU) Enabled() bool { return m.enabled }
