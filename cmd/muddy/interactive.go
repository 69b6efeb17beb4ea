package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/muddy/config"
	"github.com/wippyai/muddy/pipeline"
)

type modelState int

const (
	stateRunning modelState = iota
	stateBrowse
	stateDetail
)

// visibleRows is the height of the results list.
const visibleRows = 15

type interactiveModel struct {
	err      error
	report   *pipeline.Report
	cancel   context.CancelFunc
	input    string
	output   string
	last     string
	spinner  spinner.Model
	progress progress.Model
	done     int
	total    int
	selected int
	offset   int
	state    modelState
	quitting bool
}

type progressMsg pipeline.Event

type finishedMsg struct {
	err    error
	report *pipeline.Report
}

func newInteractiveModel(input, output string, cancel context.CancelFunc) *interactiveModel {
	return &interactiveModel{
		input:    input,
		output:   output,
		cancel:   cancel,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(labelStyle)),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		state:    stateRunning,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			if m.state == stateRunning {
				// quit once the pipeline has stopped
				m.quitting = true
				return m, nil
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
				if m.selected < m.offset {
					m.offset = m.selected
				}
			}

		case "down", "j":
			if m.state == stateBrowse && m.report != nil && m.selected < len(m.report.Classes)-1 {
				m.selected++
				if m.selected >= m.offset+visibleRows {
					m.offset = m.selected - visibleRows + 1
				}
			}

		case "enter":
			switch m.state {
			case stateBrowse:
				if m.report != nil && len(m.report.Classes) > 0 {
					m.state = stateDetail
				}
			case stateDetail:
				m.state = stateBrowse
			}

		case "esc":
			if m.state == stateDetail {
				m.state = stateBrowse
			}
		}

	case progressMsg:
		m.done = msg.Done
		m.total = msg.Total
		m.last = msg.Result.Path

	case finishedMsg:
		m.err = msg.err
		m.report = msg.report
		m.state = stateBrowse
		if m.quitting {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.state != stateRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("muddy"))
	fmt.Fprintf(&b, " %s -> %s\n\n", m.input, m.output)

	switch m.state {
	case stateRunning:
		percent := 0.0
		if m.total > 0 {
			percent = float64(m.done) / float64(m.total)
		}
		fmt.Fprintf(&b, "%s transforming %d/%d\n\n", m.spinner.View(), m.done, m.total)
		b.WriteString(m.progress.ViewAs(percent))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render(m.last))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q cancel"))

	case stateBrowse:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\nPress q to quit.")
			return b.String()
		}
		b.WriteString(renderSummary(m.report, true))
		b.WriteString("\n")
		classes := m.report.Classes
		end := min(m.offset+visibleRows, len(classes))
		for i := m.offset; i < end; i++ {
			line := m.formatClass(classes[i])
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter details • q quit"))

	case stateDetail:
		b.WriteString(describeClass(m.report.Classes[m.selected]))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter back • q quit"))
	}
	return b.String()
}

func (m *interactiveModel) formatClass(c pipeline.ClassResult) string {
	switch {
	case c.Err != "":
		return errorStyle.Render("✗ ") + c.Path
	case c.Changed():
		return okStyle.Render("✓ ") + fmt.Sprintf("%s (%d literals, %d fields)", c.Path, c.Stats.Literals, c.Stats.Fields)
	default:
		return helpStyle.Render("· " + c.Path)
	}
}

// startRun calls run in the background and sends its outcome as a
// finishedMsg. The returned channel is closed after run has returned.
func startRun(ctx context.Context, run func(context.Context) (*pipeline.Report, error), send func(tea.Msg)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		rep, err := run(ctx)
		if err != nil {
			rep = nil
		}
		send(finishedMsg{report: rep, err: err})
	}()
	return done
}

// runInteractive runs the pipeline behind a progress view and then shows
// the per-class results.
func runInteractive(ctx context.Context, cfg *config.Config, input, output string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// sends from the pipeline return once the program has exited
	uiCtx, uiCancel := context.WithCancel(context.Background())
	defer uiCancel()

	m := newInteractiveModel(input, output, cancel)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(uiCtx))

	proc, closeCodec, err := newProcessor(ctx, cfg, pipeline.WithProgress(func(e pipeline.Event) {
		p.Send(progressMsg(e))
	}))
	if err != nil {
		return err
	}
	defer closeCodec()

	done := startRun(ctx, func(ctx context.Context) (*pipeline.Report, error) {
		rep, err := proc.Run(ctx, input, output)
		if err == nil && cfg.Pipeline.Report != "" {
			err = writeReport(cfg.Pipeline.Report, rep)
		}
		return rep, err
	}, p.Send)

	_, err = p.Run()
	uiCancel()
	cancel()
	// the pipeline uses the codec until it stops
	<-done
	if err != nil {
		return err
	}
	if m.quitting && errors.Is(m.err, context.Canceled) {
		return nil
	}
	return m.err
}
