package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/stream"
	"github.com/flemzord/surveil/internal/tool"
)

var (
	warn    = color.New(color.FgYellow)
	failure = color.New(color.FgRed, color.Bold)
	success = color.New(color.FgGreen)
	faint   = color.New(color.Faint)
	accent  = color.New(color.FgCyan)
)

// determinationColor highlights escalations and manual reviews.
func determinationColor(d decision.Determination) *color.Color {
	switch d {
	case decision.Escalate:
		return failure
	case decision.NeedsHumanReview:
		return warn
	default:
		return success
	}
}

// printEvent renders one stream event as a single terminal line.
func printEvent(w io.Writer, ev stream.Event) {
	c := faint
	switch ev.Category {
	case stream.CategoryToolStarted, stream.CategoryToolCompleted:
		c = accent
	case stream.CategoryAnalysisComplete:
		c = success
	case stream.CategoryError:
		c = failure
	case stream.CategoryKeepAlive:
		return
	}
	fmt.Fprintf(w, "%s %s %s\n",
		faint.Sprint(ev.Timestamp.Format("15:04:05")),
		c.Sprintf("%-18s", ev.Category),
		ev.Message(),
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printDecision renders the key fields of a decision.
func printDecision(w io.Writer, d decision.Decision) {
	fmt.Fprintf(w, "\n%s  %s\n", d.AlertID, determinationColor(d.Determination).Sprint(d.Determination))
	fmt.Fprintf(w, "  genuine %d%%, false positive %d%%\n", d.GenuineConfidence, d.FalsePositiveConfidence)
	for _, f := range d.KeyFindings {
		fmt.Fprintf(w, "  - %s\n", f)
	}
	fmt.Fprintf(w, "  %s\n", d.RecommendedAction)
	if d.Fallback {
		warn.Fprintln(w, "  (fallback decision: automated finalization failed)")
	}
}

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

// printToolStats renders the tool statistics snapshot.
func printToolStats(w io.Writer, snap tool.AggregateSnapshot) {
	if len(snap.Tools) == 0 {
		return
	}
	t := newTable(w, "Tool", "Calls", "Avg latency")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	names := slices.Sorted(maps.Keys(snap.Tools))
	for _, name := range names {
		s := snap.Tools[name]
		t.AppendRow(table.Row{name, s.Calls, s.AvgLatency().Round(time.Millisecond)})
	}
	t.AppendFooter(table.Row{"tasks", snap.Tasks, ""})
	t.Render()
}
