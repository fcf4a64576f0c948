// Package render prints task progress and run summaries to a terminal.
// It is the thin presentation layer over the orchestrator's progress sink.
package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/ensemble/internal/orchestrator"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

var (
	idStyle      = lipgloss.NewStyle().Bold(true)
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Printer writes progress lines and summaries. Progress callbacks may arrive
// from any worker; writes are serialized internally.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
	// Verbose echoes every progress event instead of only status changes and
	// events with a tool in flight.
	Verbose bool

	lastStatus map[string]models.TaskStatus
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w, lastStatus: make(map[string]models.TaskStatus)}
}

// Progress renders one task progress snapshot.
func (p *Printer) Progress(tp models.TaskProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Verbose && p.lastStatus[tp.ID] == tp.Status && tp.CurrentTool == "" {
		return
	}
	p.lastStatus[tp.ID] = tp.Status

	line := idStyle.Render(displayName(tp))
	switch tp.Status {
	case models.TaskStatusRunning:
		line += " " + runningStyle.Render(string(tp.Status))
	case models.TaskStatusCompleted:
		line += " " + doneStyle.Render(string(tp.Status))
	case models.TaskStatusFailed, models.TaskStatusAborted:
		line += " " + failStyle.Render(string(tp.Status))
	default:
		line += " " + string(tp.Status)
	}

	if tp.CurrentTool != "" {
		line += " " + toolStyle.Render(tp.CurrentTool)
		if tp.CurrentToolArgs != "" {
			line += dimStyle.Render(" "+tp.CurrentToolArgs)
		}
	}
	if tp.ToolCount > 0 {
		line += dimStyle.Render(fmt.Sprintf(" [%d tools, %d turns]", tp.ToolCount, tp.Usage.Turns))
	}

	fmt.Fprintln(p.out, line)
}

// Summary renders the final mode summary with per-task outcomes.
func (p *Printer) Summary(s *orchestrator.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(p.out, "\n%s run %s: %s succeeded, %s failed",
		s.Mode, s.RunID, green(s.Succeeded), red(s.Failed))
	if s.Skipped > 0 {
		fmt.Fprintf(p.out, ", %s skipped", yellow(s.Skipped))
	}
	if s.Aborted {
		fmt.Fprintf(p.out, " %s", yellow("(aborted)"))
	}
	fmt.Fprintln(p.out)

	if s.Winner != "" {
		fmt.Fprintf(p.out, "winner: %s\n", green(s.Winner))
	}

	for _, r := range s.Results {
		switch {
		case r.Aborted:
			fmt.Fprintf(p.out, "  %s %s\n", yellow("~"), r.ID)
		case r.Failed():
			fmt.Fprintf(p.out, "  %s %s: %s\n", red("x"), r.ID, r.Error)
		default:
			fmt.Fprintf(p.out, "  %s %s (%.1fs, $%.4f)\n", green("+"), r.ID,
				float64(r.DurationMs)/1000, r.Usage.Cost)
		}
	}

	for _, skipped := range s.SkippedNodes() {
		if skipped.Cause != "" {
			fmt.Fprintf(p.out, "  %s %s skipped (upstream %s failed)\n", yellow("~"), skipped.ID, skipped.Cause)
		}
	}
}

// displayName prefers the task name over its id.
func displayName(tp models.TaskProgress) string {
	if tp.Name != "" {
		return tp.Name
	}
	return tp.ID
}
