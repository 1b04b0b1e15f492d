package main

import (
	"io"
	"strconv"

	"github.com/edirooss/mcukern/internal/proc"
	"github.com/olekukonko/tablewriter"
)

// printReport renders per-process CPU accounting for the finished run.
func printReport(w io.Writer, table *proc.Table) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"APPID", "NAME", "STATE", "CPU (µS)", "EXPIRATIONS", "PENDING", "DROPPED"})

	for _, s := range table.Snapshots() {
		t.Append([]string{
			strconv.Itoa(s.AppID),
			s.Name,
			s.State,
			strconv.FormatUint(s.CPUMicros, 10),
			strconv.FormatUint(s.TimesliceExpirations, 10),
			strconv.Itoa(s.PendingTasks),
			strconv.FormatUint(s.DroppedTasks, 10),
		})
	}
	t.Render()
}
