package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"shelfarr/internal/daemonctl"
	"shelfarr/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and queue status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, snap)
			}
			out := cmd.OutOrStdout()
			printStatusReport(out, snap, shouldColorize(out))
			return nil
		},
	}
}

type statusWriter struct {
	out      io.Writer
	colorize bool
}

func (w statusWriter) section(title string) {
	for _, line := range renderSectionHeader(title, w.colorize) {
		fmt.Fprintln(w.out, line)
	}
}

func (w statusWriter) line(label, severity, detail string) {
	fmt.Fprintln(w.out, renderStatusLine(label, severity, detail, w.colorize))
}

func (w statusWriter) lines(lines []daemonctl.StatusLine) {
	for _, l := range lines {
		w.line(l.Label, l.Severity, l.Detail)
	}
}

func printStatusReport(out io.Writer, snap *daemonctl.Snapshot, colorize bool) {
	w := statusWriter{out: out, colorize: colorize}
	status := snap.Status

	w.section("System Status")
	w.lines(snap.SystemChecks)
	if snap.Reachable {
		w.line("PID", sevInfo, strconv.Itoa(status.PID))
		w.line("In flight", sevInfo, strconv.Itoa(status.InFlight))
		if status.LastPoll != "" {
			w.line("Last poll", sevInfo, formatDisplayTime(status.LastPoll))
		}
		if status.LastError != "" {
			w.line("Last error", sevWarn, status.LastError)
		}
		for _, check := range status.Preflight {
			if !check.Passed {
				w.line(check.Name, sevWarn, check.Detail)
			}
		}
	}
	fmt.Fprintln(out)

	w.section("Dependencies")
	for _, line := range dependencyLines(status.Dependencies, snap.DependencySummary, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	w.section("Library Paths")
	w.lines(snap.LibraryPaths)
	fmt.Fprintln(out)

	w.section("Queue Status")
	rows := buildQueueStatusRows(status.QueueStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	fmt.Fprint(out, renderTable([]column{{header: "Status"}, {header: "Count", right: true}}, rows))
}

// buildQueueStatusRows lists non-zero counts in workflow order.
func buildQueueStatusRows(stats map[string]int) [][]string {
	var rows [][]string
	for _, status := range queue.AllStatuses() {
		if count := stats[string(status)]; count > 0 {
			rows = append(rows, []string{formatStatusLabel(string(status)), strconv.Itoa(count)})
		}
	}
	return rows
}
