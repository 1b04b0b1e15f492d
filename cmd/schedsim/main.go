package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/edirooss/mcukern/internal/board"
	"github.com/edirooss/mcukern/internal/defercall"
	"github.com/edirooss/mcukern/internal/hw/virtchip"
	"github.com/edirooss/mcukern/internal/kern"
	"github.com/edirooss/mcukern/internal/proc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var errBoardIdle = errors.New("board idle")

type options struct {
	policy      string
	procs       []string
	listen      string
	irqPeriodUS uint64
	runLimitUS  uint64
}

func main() {
	opts := options{}

	root := &cobra.Command{
		Use:   "schedsim",
		Short: "Run the mcukern scheduling core on a virtual board",
		Long: `schedsim composes a virtual board: a deterministic virtual-time chip, a
static table of scripted workloads, and one scheduling policy. It runs the
kernel loop until the board goes idle, then prints per-process CPU
accounting. A debug HTTP API exposes live scheduler state and lets you
inject interrupts.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	f := root.Flags()
	f.StringVar(&opts.policy, "policy", "rr", "scheduling policy: coop, rr, priority, mlfq")
	f.StringSliceVar(&opts.procs, "procs", []string{"cpu", "interactive", "cpu"}, "workloads to load, in table (priority) order")
	f.StringVar(&opts.listen, "listen", "127.0.0.1:8080", "debug API listen address (empty to disable)")
	f.Uint64Var(&opts.irqPeriodUS, "irq-period-us", 1000, "period of the tick interrupt line (0 to disable)")
	f.Uint64Var(&opts.runLimitUS, "run-limit-us", 200000, "virtual time after which all processes are stopped (0 = run until idle)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	// Create Zap logger
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("schedsim")

	// Virtual chip + process table
	chip := virtchip.New(log)
	table := proc.NewTable(log, chip, len(opts.procs))
	for _, name := range opts.procs {
		prog, err := workload(name)
		if err != nil {
			return err
		}
		table.Load(name, prog)
	}

	// Kernel over the static table
	k := kern.New(log, table.Procs(),
		kern.WithFaultHandler(proc.StopOnFault{Log: log}),
	)

	// Deferred-call queue: the tick bottom half schedules a deferred wake
	// that delivers an upcall to every waiting process. Interrupt → bottom
	// half → deferred call → upcall, the full pipeline.
	dq := defercall.NewQueue()
	wake := dq.Register(func() {
		for _, p := range table.Procs() {
			if sp, ok := p.(*proc.Proc); ok && sp.State() == kern.StateYielded {
				sp.EnqueueTask("tick")
			}
		}
	})
	defercall.SetGlobal(dq)

	if opts.irqPeriodUS > 0 {
		tick := chip.AddLine("tick", func() { wake.Set() })
		chip.SchedulePeriodicIRQ(tick, opts.irqPeriodUS, opts.irqPeriodUS, opts.runLimitUS)
	}

	// Administrative halt: past the run limit every process is stopped
	// through the external state-transition path, the board drains, and the
	// idle notification fires.
	if opts.runLimitUS > 0 {
		halt := chip.AddLine("halt", func() { stopAll(table) })
		chip.ScheduleIRQ(halt, opts.runLimitUS)
	}

	policy, err := board.Policy(opts.policy, log, k, chip.Alarm())
	if err != nil {
		return err
	}

	log.Info("board composed",
		zap.String("boot_id", k.BootID().String()),
		zap.String("policy", opts.policy),
		zap.Strings("procs", opts.procs))

	// The kernel loop never returns; it dies with the program.
	go k.Loop(chip, policy)

	g, ctx := errgroup.WithContext(context.Background())

	if opts.listen != "" {
		srv := newDebugServer(log, opts.listen, k, table, opts.policy, chip)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-chip.IdleC():
			return errBoardIdle
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errBoardIdle) && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("board idle", zap.Uint64("virtual_us", chip.NowUS()))
	printReport(os.Stdout, table)
	return nil
}

// stopAll halts every loaded process in the state-preserving variant.
func stopAll(table *proc.Table) {
	for _, p := range table.Procs() {
		sp, ok := p.(*proc.Proc)
		if !ok {
			continue
		}
		switch sp.State() {
		case kern.StateRunning, kern.StateUnstarted:
			sp.SetState(kern.StateStoppedRunning)
		case kern.StateYielded:
			sp.SetState(kern.StateStoppedYielded)
		case kern.StateFault:
			sp.SetState(kern.StateStoppedFaulted)
		}
	}
}
