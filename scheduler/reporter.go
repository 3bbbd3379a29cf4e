package scheduler

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	wasmharness "github.com/wippyai/wasm-harness"
)

var (
	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	timeoutStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// Reporter renders an aggregate report. Styled output is used only when
// the sink is a terminal; otherwise every line is plain and parseable.
type Reporter struct {
	w           io.Writer
	interactive bool
}

// NewReporter wraps w, probing it for terminal-ness.
func NewReporter(w io.Writer) *Reporter {
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &Reporter{w: w, interactive: interactive}
}

// Render writes per-target status lines, each target's merged event log,
// and the overall summary.
func (r *Reporter) Render(report wasmharness.AggregateReport) {
	results := make([]wasmharness.TestRunResult, len(report.Results))
	copy(results, report.Results)
	sort.Slice(results, func(i, j int) bool { return results[i].Target < results[j].Target })

	for _, res := range results {
		r.renderResult(res)
	}

	overall := report.Overall()
	if r.interactive {
		fmt.Fprintf(r.w, "\n%s\n", r.styleFor(overall).Render(
			fmt.Sprintf("overall: %s (%d targets)", overall, len(results))))
		return
	}
	fmt.Fprintf(r.w, "overall status=%s targets=%d exit=%d\n",
		overall, len(results), report.ExitCode())
}

func (r *Reporter) renderResult(res wasmharness.TestRunResult) {
	if r.interactive {
		fmt.Fprintf(r.w, "%s %s (%s, %s)\n",
			r.styleFor(res.Status).Render(statusMark(res.Status)),
			res.Target, res.Kind, res.Duration.Round(time.Millisecond))
	} else {
		fmt.Fprintf(r.w, "result target=%s kind=%s status=%s duration=%s\n",
			res.Target, res.Kind, res.Status, res.Duration)
	}

	for _, ev := range res.Events {
		switch {
		case ev.Log != nil:
			if r.interactive {
				fmt.Fprintf(r.w, "  %s\n", dimStyle.Render(ev.Log.Payload))
			} else {
				fmt.Fprintf(r.w, "log target=%s stream=%s seq=%d payload=%q\n",
					res.Target, ev.Log.Stream, ev.Log.Seq, ev.Log.Payload)
			}
		case ev.Panic != nil:
			if r.interactive {
				fmt.Fprintf(r.w, "  %s\n", failStyle.Render("panic: "+ev.Panic.Message))
			} else {
				fmt.Fprintf(r.w, "panic target=%s message=%q\n", res.Target, ev.Panic.Message)
			}
		}
	}
}

func (r *Reporter) styleFor(s wasmharness.Status) lipgloss.Style {
	switch s {
	case wasmharness.StatusPassed:
		return passStyle
	case wasmharness.StatusTimedOut:
		return timeoutStyle
	default:
		return failStyle
	}
}

func statusMark(s wasmharness.Status) string {
	switch s {
	case wasmharness.StatusPassed:
		return "PASS"
	case wasmharness.StatusFailed:
		return "FAIL"
	case wasmharness.StatusTimedOut:
		return "TIMEOUT"
	case wasmharness.StatusCrashed:
		return "CRASH"
	}
	return "?"
}
