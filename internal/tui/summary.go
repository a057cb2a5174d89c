package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"squish/internal/pipeline"
)

type SummaryRow struct {
	Label string
	Value string
}

// SummaryRows formats a run report into the rows the summary table shows.
func SummaryRows(report pipeline.Report) []SummaryRow {
	stats := report.Stats
	rows := []SummaryRow{
		{Label: "Files processed", Value: fmt.Sprintf("%d", stats.Total)},
		{Label: "Optimized", Value: fmt.Sprintf("%d", stats.Optimized)},
		{Label: "Skipped", Value: fmt.Sprintf("%d", stats.Skipped())},
		{Label: "Failed", Value: fmt.Sprintf("%d", stats.Failed)},
		{Label: "Original size", Value: humanize.IBytes(uint64(max64(stats.OriginalBytes, 0)))},
		{Label: "Resulting size", Value: humanize.IBytes(uint64(max64(stats.ResultingBytes, 0)))},
	}
	saved := stats.SpaceSaved()
	if saved >= 0 {
		rows = append(rows, SummaryRow{
			Label: "Space saved",
			Value: fmt.Sprintf("%s (%.1f%%)", humanize.IBytes(uint64(saved)), stats.PercentSaved()),
		})
	} else {
		rows = append(rows, SummaryRow{Label: "Space saved", Value: "0 B (0.0%)"})
	}
	rows = append(rows, SummaryRow{Label: "Elapsed", Value: report.Elapsed.Round(time.Millisecond).String()})
	return rows
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
		if len(row.Value) > valueWidth {
			valueWidth = len(row.Value)
		}
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		line := fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

var (
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
)
