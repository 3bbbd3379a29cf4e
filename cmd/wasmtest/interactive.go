package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/adapter"
	"github.com/wippyai/wasm-harness/scheduler"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type targetDoneMsg wasmharness.TestRunResult

type runDoneMsg wasmharness.AggregateReport

type runModel struct {
	spin    spinner.Model
	total   int
	done    []wasmharness.TestRunResult
	report  *wasmharness.AggregateReport
	results chan tea.Msg
	aborted bool
}

func newRunModel(total int, results chan tea.Msg) runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return runModel{spin: s, total: total, results: results}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.nextResult)
}

func (m runModel) nextResult() tea.Msg {
	return <-m.results
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.aborted = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case targetDoneMsg:
		m.done = append(m.done, wasmharness.TestRunResult(msg))
		return m, m.nextResult
	case runDoneMsg:
		report := wasmharness.AggregateReport(msg)
		m.report = &report
		return m, tea.Quit
	}
	return m, nil
}

func (m runModel) View() string {
	s := titleStyle.Render("wasmtest") + "\n\n"

	for _, res := range m.done {
		style := passStyle
		if res.Status != wasmharness.StatusPassed {
			style = failStyle
		}
		s += fmt.Sprintf("  %s %s (%s)\n",
			style.Render(res.Status.String()), res.Target, res.Duration.Round(time.Millisecond))
	}

	if m.report == nil {
		s += fmt.Sprintf("\n  %s running %d/%d targets\n",
			m.spin.View(), m.total-len(m.done), m.total)
		s += helpStyle.Render("\n  q to abort\n")
	}
	return s
}

func runInteractive(ctx context.Context, cfg scheduler.Config, adapters []adapter.Adapter, targets []adapter.Target) (wasmharness.AggregateReport, error) {
	results := make(chan tea.Msg, 2*len(targets)+1)

	cfg.OnResult = func(res wasmharness.TestRunResult) {
		results <- targetDoneMsg(res)
	}
	sched := scheduler.New(cfg, adapters...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		report := sched.Run(runCtx, targets)
		results <- runDoneMsg(report)
	}()

	p := tea.NewProgram(newRunModel(len(targets), results))
	final, err := p.Run()
	if err != nil {
		return wasmharness.AggregateReport{}, err
	}

	m := final.(runModel)
	if m.report != nil {
		return *m.report, nil
	}

	// Aborted: cancel the run and wait for the scheduler to drain.
	cancel()
	for msg := range results {
		if done, ok := msg.(runDoneMsg); ok {
			return wasmharness.AggregateReport(done), nil
		}
	}
	return wasmharness.AggregateReport{}, nil
}
