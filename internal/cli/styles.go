package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/haskel/foodia/internal/budget"
	"github.com/haskel/foodia/internal/recognizer"
)

var (
	colorPrimary = lipgloss.Color("86")  // Cyan
	colorSuccess = lipgloss.Color("82")  // Green
	colorWarning = lipgloss.Color("214") // Orange
	colorDanger  = lipgloss.Color("196") // Red
	colorMuted   = lipgloss.Color("245") // Light gray
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorDanger).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

// confidenceColor grades a percentage the way a reader would trust it.
func confidenceColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 70:
		return colorSuccess
	case percent >= 40:
		return colorWarning
	default:
		return colorDanger
	}
}

func statusColor(s budget.Status) lipgloss.Color {
	switch s {
	case budget.StatusValid, budget.StatusPerfect:
		return colorSuccess
	case budget.StatusLight, budget.StatusSlightlyHigh, budget.StatusTooLight:
		return colorWarning
	default:
		return colorDanger
	}
}

// bar draws a fixed-width bar for a 0-100 value.
func bar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	filled = max(0, min(width, filled))
	return lipgloss.NewStyle().Foreground(confidenceColor(percent)).Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", width-filled))
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func renderPrediction(r recognizer.Result) string {
	if !r.Success {
		return errorStyle.Render("Prediction failed: ") + r.Error
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(r.Meal))
	b.WriteString("\n")
	b.WriteString(row("Confidence", fmt.Sprintf("%.1f%%", r.Confidence)))
	b.WriteString("\n")
	b.WriteString(row("Calories", fmt.Sprintf("%.0f kcal", r.Calories)))

	if len(r.TopPredictions) > 1 {
		b.WriteString("\n\n")
		b.WriteString(mutedStyle.Render("Top predictions"))
		for i, p := range r.TopPredictions {
			fmt.Fprintf(&b, "\n%d. %-24s %s %5.1f%%", i+1, p.Meal, bar(p.Confidence, 20), p.Confidence)
		}
	}
	return boxStyle.Render(b.String())
}

func renderEvaluation(e budget.Evaluation) string {
	status := lipgloss.NewStyle().Bold(true).Foreground(statusColor(e.Status)).Render(string(e.Status))

	var b strings.Builder
	b.WriteString(row("Status", status))
	b.WriteString("\n")
	b.WriteString(row("Advice", e.Advice))
	b.WriteString("\n")
	b.WriteString(row("Remaining", fmt.Sprintf("%.0f kcal", e.RemainingBudget)))
	b.WriteString("\n")
	b.WriteString(row("Daily", fmt.Sprintf("%.1f%%", e.DailyPercentage)))
	return boxStyle.Render(b.String())
}
