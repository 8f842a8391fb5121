// Package output renders pipeline progress for the terminal.
//
// [Printer] owns every line piperun writes for humans: stage banners, the
// echoed commands, streamed command output, skip notices and the final
// summary. Styles come from lipgloss with a renderer bound to the target
// writer, so output to files and buffers degrades to plain text.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Printer writes styled pipeline output.
type Printer struct {
	w io.Writer

	title   lipgloss.Style
	stage   lipgloss.Style
	command lipgloss.Style
	dim     lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	box     lipgloss.Style
}

// NewPrinter creates a Printer writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a Printer writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	return newPrinter(w, lipgloss.NewRenderer(w))
}

// NewPlainPrinter creates a Printer writing to w without colors, even when
// w is a terminal.
func NewPlainPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(termenv.Ascii)
	return newPrinter(w, r)
}

func newPrinter(w io.Writer, r *lipgloss.Renderer) *Printer {
	return &Printer{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#f97316")),
		stage:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#60a5fa")),
		command: r.NewStyle().Foreground(lipgloss.Color("#22c55e")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("#888888")),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#22c55e")),
		warning: r.NewStyle().Foreground(lipgloss.Color("#eab308")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444")),
		box:     r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// Writer returns the raw writer for streamed command output.
func (p *Printer) Writer() io.Writer {
	return p.w
}

func (p *Printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

// PipelineStart announces a run.
func (p *Printer) PipelineStart(runID, ref string, stages []string) {
	body := strings.Join([]string{
		p.title.Render("Pipeline " + runID),
		"Ref:    " + ref,
		"Stages: " + strings.Join(stages, " → "),
	}, "\n")
	p.println(p.box.Render(body))
}

// StageStart prints the banner of a stage.
func (p *Printer) StageStart(index, total int, name, image string) {
	line := p.stage.Render(fmt.Sprintf("[%d/%d] %s", index, total, name))
	if image != "" {
		line += " " + p.dim.Render("("+image+")")
	}
	p.println("")
	p.println(line)
}

// Heading prints a section heading.
func (p *Printer) Heading(text string) {
	p.println("")
	p.println(p.stage.Render(text))
}

// StageSkipped reports a stage that did not run.
func (p *Printer) StageSkipped(name, reason string) {
	p.println(p.dim.Render(fmt.Sprintf("○ %s skipped: %s", name, reason)))
}

// Command echoes a command before it runs.
func (p *Printer) Command(cmd string) {
	p.println(p.command.Render("$ " + cmd))
}

// StageSucceeded reports a finished stage.
func (p *Printer) StageSucceeded(name string, d time.Duration) {
	p.println(p.success.Render(fmt.Sprintf("✓ %s", name)) + " " + p.dim.Render(d.Round(time.Millisecond).String()))
}

// StageFailed reports a failed stage.
func (p *Printer) StageFailed(name string, err error) {
	p.println(p.failure.Render(fmt.Sprintf("✗ %s: %v", name, err)))
}

// Info prints a plain informational line.
func (p *Printer) Info(format string, args ...any) {
	p.println(fmt.Sprintf(format, args...))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.println(p.warning.Render("! " + fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...any) {
	p.println(p.failure.Render("✗ " + fmt.Sprintf(format, args...)))
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	p.println(p.success.Render("✓ " + fmt.Sprintf(format, args...)))
}
