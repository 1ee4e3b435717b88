package summarizer

import (
	"fmt"
	"strings"
	"time"
)

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a new MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format implements the Formatter interface.
func (f *MarkdownFormatter) Format(s *Summary) string {
	var b strings.Builder

	b.WriteString("# Capture Summary\n\n")
	fmt.Fprintf(&b, "Generated at %s\n\n", s.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Session\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	row(&b, "Session", valueOr(s.Session.ID, "-"))
	row(&b, "State", valueOr(s.Session.State, "-"))
	if !s.Session.StartedAt.IsZero() {
		row(&b, "Started", s.Session.StartedAt.Format(time.RFC3339))
	}
	if d := s.Session.Duration(); d > 0 {
		row(&b, "Duration", d.Round(time.Millisecond).String())
	}
	if s.Session.FatalError != "" {
		row(&b, "Stopped by", s.Session.FatalError)
	}
	b.WriteString("\n")

	b.WriteString("## Settings\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	output := valueOr(s.Settings.OutputDir, "-")
	if s.Settings.DryRun {
		output = "(dry run)"
	}
	row(&b, "Output", output)
	row(&b, "Format", valueOr(s.Settings.ImageFormat, "-"))
	row(&b, "Interval", formatInterval(s.Settings.Interval))
	row(&b, "Queue capacity", fmt.Sprintf("%d", s.Settings.QueueCapacity))
	row(&b, "Max consecutive failures", fmt.Sprintf("%d", s.Settings.MaxFailures))
	b.WriteString("\n")

	if len(s.Settings.Streams) > 0 {
		b.WriteString("| Stream | Cadence | Max skew | Size | Pixel format |\n|---|---|---|---|---|\n")
		for _, st := range s.Settings.Streams {
			fmt.Fprintf(&b, "| %s | %v | %v | %dx%d | %s |\n",
				st.ID, st.Cadence, st.MaxSkew, st.Width, st.Height, st.Format)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Sets\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	row(&b, "Emitted", fmt.Sprintf("%d", s.Sets.Emitted))
	row(&b, "Partial", fmt.Sprintf("%d", s.Sets.Partial))
	row(&b, "Persisted", fmt.Sprintf("%d", s.Sets.Persisted))
	row(&b, "Files written", fmt.Sprintf("%d", s.Sets.Files))
	row(&b, "Failed", fmt.Sprintf("%d", s.Sets.Failed))
	row(&b, "Skipped by interval", fmt.Sprintf("%d", s.Sets.CadenceSkipped))
	row(&b, "Dropped (queue full)", fmt.Sprintf("%d", s.Sets.Dropped()))
	if s.Sets.LastIndex >= 0 {
		row(&b, "Last index", fmt.Sprintf("%d", s.Sets.LastIndex))
	}
	if s.Sets.LastError != "" {
		row(&b, "Last error", s.Sets.LastError)
	}
	b.WriteString("\n")

	if len(s.Streams) > 0 {
		b.WriteString("## Streams\n\n")
		b.WriteString("| Stream | Frames | Timeouts | Errors | Dropped | Absent |\n|---|---|---|---|---|---|\n")
		for _, st := range s.Streams {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d |\n",
				st.ID, st.Frames, st.Timeouts, st.Errors, st.Dropped, st.Absent)
		}
	}

	return b.String()
}

func row(b *strings.Builder, key, value string) {
	// Pipes would break the table.
	value = strings.ReplaceAll(value, "|", "\\|")
	fmt.Fprintf(b, "| %s | %s |\n", key, value)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func formatInterval(d time.Duration) string {
	if d <= 0 {
		return "as fast as available"
	}
	return d.String()
}

// Ensure MarkdownFormatter implements Formatter
var _ Formatter = (*MarkdownFormatter)(nil)
