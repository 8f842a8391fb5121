package output

import (
	"fmt"
	"strings"
	"time"
)

// StageLine is one row of a run summary or plan.
type StageLine struct {
	Name     string
	Phase    string
	Status   string
	Detail   string
	Duration time.Duration
}

// Summary prints the final box of a run.
func (p *Printer) Summary(runID, status string, exitCode int, total time.Duration, stages []StageLine) {
	var b strings.Builder
	if status == "success" {
		b.WriteString(p.success.Render("✓ PIPELINE PASSED"))
	} else {
		b.WriteString(p.failure.Render(fmt.Sprintf("✗ PIPELINE %s (exit %d)", strings.ToUpper(status), exitCode)))
	}
	fmt.Fprintf(&b, "\nRun: %s", runID)

	width := 0
	for _, s := range stages {
		width = max(width, len(s.Name))
	}
	for i, s := range stages {
		line := fmt.Sprintf("\n[%d] %-*s %-8s", i+1, width, s.Name, s.Status)
		if s.Duration > 0 {
			line += " " + s.Duration.Round(time.Millisecond).String()
		}
		if s.Detail != "" {
			line += "  " + s.Detail
		}
		b.WriteString(line)
	}
	fmt.Fprintf(&b, "\nTotal: %s", total.Round(time.Millisecond))
	p.println("")
	p.println(p.box.Render(b.String()))
}

// Plan prints which stages would run for a ref.
func (p *Printer) Plan(ref string, stages []StageLine) {
	p.println(p.title.Render("Plan for ref " + ref))
	width := 0
	for _, s := range stages {
		width = max(width, len(s.Name))
	}
	for i, s := range stages {
		line := fmt.Sprintf("%d. %-*s [%s] %s", i+1, width, s.Name, s.Phase, s.Status)
		if s.Detail != "" {
			line += " " + p.dim.Render("("+s.Detail+")")
		}
		p.println(line)
	}
}
