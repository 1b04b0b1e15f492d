package main

import (
	"fmt"

	"github.com/edirooss/mcukern/internal/proc"
)

// Workload presets. Interactive workloads park in Yielded and are woken by
// the periodic tick's deferred call; cpu workloads never yield and exist to
// exercise preemption and MLFQ demotion.
var workloads = map[string]proc.Program{
	"cpu": {
		Ops:  []proc.Op{proc.Compute(7000)},
		Loop: true,
	},
	"interactive": {
		Ops:  []proc.Op{proc.Compute(1500), proc.Yield()},
		Loop: true,
	},
	"batch": {
		Ops: []proc.Op{proc.Compute(30000), proc.Exit()},
	},
	"faulty": {
		Ops: []proc.Op{proc.Compute(2500), proc.Fault()},
	},
}

func workload(name string) (proc.Program, error) {
	prog, ok := workloads[name]
	if !ok {
		return proc.Program{}, fmt.Errorf("unknown workload %q (have: cpu, interactive, batch, faulty)", name)
	}
	return prog, nil
}
