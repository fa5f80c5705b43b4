// Package theme provides the Lip Gloss palette and reusable styles for the
// dashboard. It is a leaf package with no internal imports besides the
// problem severities.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

// Severity colors, following the Zabbix frontend palette.
var (
	ColorNotClassified = lipgloss.Color("#97aab3")
	ColorInformation   = lipgloss.Color("#7499ff")
	ColorWarningSev    = lipgloss.Color("#ffc859")
	ColorAverage       = lipgloss.Color("#ffa059")
	ColorHigh          = lipgloss.Color("#e97659")
	ColorDisaster      = lipgloss.Color("#e45959")
	ColorClear         = lipgloss.Color("#22c55e")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// SeverityColor returns the color for a sensor value. Zero means no
// matching problem, which is shown as clear rather than "not classified".
func SeverityColor(s problem.Severity) lipgloss.Color {
	switch s {
	case problem.NotClassified:
		return ColorClear
	case problem.Information:
		return ColorInformation
	case problem.Warning:
		return ColorWarningSev
	case problem.Average:
		return ColorAverage
	case problem.High:
		return ColorHigh
	case problem.Disaster:
		return ColorDisaster
	default:
		if s > problem.Disaster {
			return ColorDisaster
		}
		return ColorNotClassified
	}
}

// HealthColor returns the color for a coordinator health string.
func HealthColor(health string) lipgloss.Color {
	switch health {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// SeverityGlyph is a fixed-width marker drawn before each sensor.
func SeverityGlyph(s problem.Severity, available bool) string {
	switch {
	case !available:
		return "?"
	case s == problem.NotClassified:
		return "✓"
	case s >= problem.High:
		return "✗"
	default:
		return "!"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)
)
