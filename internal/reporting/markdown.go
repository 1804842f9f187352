package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Pipeline Runs %s\n\n", r.Day.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Pipelines: %d | Entries: %d | Errors: %d\n\n", len(r.Pipelines), len(r.Entries), r.TotalErrors()))

	if len(r.Entries) == 0 {
		sb.WriteString("No runs recorded.\n")
		return sb.String()
	}

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Pipeline | Entries | Errors | Warnings | Last Mode | Status | Last Message |\n")
	sb.WriteString("|----------|---------|--------|----------|-----------|--------|--------------|\n")
	for _, p := range r.Pipelines {
		status := "OK"
		if p.Failed() {
			status = "FAILED"
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %s | %s | %s |\n",
			p.Pipeline, p.Runs, p.Errors, p.Warnings, p.LastMode, status, escapeCell(p.LastMessage)))
	}
	sb.WriteString("\n")

	// Entries
	sb.WriteString("## Entries\n\n")
	for _, e := range r.Entries {
		sb.WriteString(fmt.Sprintf("- %s [%s] %s (%s): %s\n",
			e.CreatedAt.Format("15:04:05"), e.Type, e.Pipeline, e.Mode, e.Message))
		if e.Extended != "" {
			sb.WriteString(fmt.Sprintf("  - %s\n", e.Extended))
		}
	}

	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
