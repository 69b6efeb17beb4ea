package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/muddy/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))
)

// painter applies styles only when writing to a terminal.
type painter bool

func (p painter) render(s lipgloss.Style, text string) string {
	if !p {
		return text
	}
	return s.Render(text)
}

// renderSummary formats the totals of a run followed by its warnings and
// failures.
func renderSummary(rep *pipeline.Report, color bool) string {
	p := painter(color)
	t := rep.Totals
	var b strings.Builder

	b.WriteString(p.render(titleStyle, "muddy"))
	fmt.Fprintf(&b, " %s -> %s\n", rep.Input, rep.Output)

	row := func(label string, value int) {
		fmt.Fprintf(&b, "  %s %d\n", p.render(labelStyle, fmt.Sprintf("%-10s", label)), value)
	}
	row("classes", t.Classes)
	row("eligible", t.Eligible)
	row("changed", t.Changed)
	row("literals", t.Stats.Literals)
	row("fields", t.Stats.Fields)
	if t.Stats.Scrubbed > 0 {
		row("scrubbed", t.Stats.Scrubbed)
	}
	if t.Stats.Skipped > 0 {
		row("skipped", t.Stats.Skipped)
	}
	if t.Other > 0 {
		row("copied", t.Other)
	}

	for _, w := range rep.Warnings {
		b.WriteString(p.render(warnStyle, "warning: "+w))
		b.WriteByte('\n')
	}
	for _, c := range rep.Classes {
		if c.Err == "" {
			continue
		}
		b.WriteString(p.render(errorStyle, fmt.Sprintf("failed: %s: %s", c.Path, c.Err)))
		b.WriteByte('\n')
	}
	if t.Failed == 0 {
		b.WriteString(p.render(okStyle, "done"))
		b.WriteByte('\n')
	}
	return b.String()
}

// describeClass formats one class result for the results browser.
func describeClass(c pipeline.ClassResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", c.Path)
	if c.Name != "" {
		fmt.Fprintf(&b, "  class     %s\n", c.Name)
	}
	fmt.Fprintf(&b, "  eligible  %v\n", c.Eligible)
	fmt.Fprintf(&b, "  changed   %v\n", c.Changed())
	if c.Eligible {
		s := c.Stats
		fmt.Fprintf(&b, "  methods   %d\n", s.Methods)
		fmt.Fprintf(&b, "  literals  %d (skipped %d)\n", s.Literals, s.Skipped)
		fmt.Fprintf(&b, "  fields    %d\n", s.Fields)
		if s.ClinitCreated {
			b.WriteString("  <clinit> created\n")
		}
		if s.Restored > 0 {
			fmt.Fprintf(&b, "  restored  %d\n", s.Restored)
		}
		if s.Scrubbed > 0 {
			fmt.Fprintf(&b, "  scrubbed  %d\n", s.Scrubbed)
		}
		if c.Verified {
			b.WriteString("  verified\n")
		}
	}
	fmt.Fprintf(&b, "  xxh3      %016x -> %016x\n", c.InputHash, c.OutputHash)
	if c.Err != "" {
		fmt.Fprintf(&b, "  error     %s\n", c.Err)
	}
	return b.String()
}
