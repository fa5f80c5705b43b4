package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Status    monitor.Status
	Sensors   int
	Alerting  int
	Width     int
	Now       func() time.Time
}

func New() Model {
	return Model{Now: time.Now}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	health := string(m.Status.Health)
	if health == "" {
		health = string(monitor.StatusPending)
	}
	healthStr := lipgloss.NewStyle().Foreground(theme.HealthColor(health)).Render(health)
	if m.Status.ConsecutiveFailures > 0 {
		healthStr += theme.StyleDimmed.Render(fmt.Sprintf(" (%d failed, %s)", m.Status.ConsecutiveFailures, m.Status.LastErrorKind))
	}

	counts := fmt.Sprintf("%d sensors  %d alerting  %d problems", m.Sensors, m.Alerting, m.Status.Events)
	if m.Status.Untagged > 0 {
		counts += fmt.Sprintf(" (%d untagged)", m.Status.Untagged)
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + healthStr + sep + counts + sep + "polled " + m.lastPoll()

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) lastPoll() string {
	if m.Status.LastUpdateTime.IsZero() {
		return "never"
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	d := now().Sub(m.Status.LastUpdateTime).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String() + " ago"
}
