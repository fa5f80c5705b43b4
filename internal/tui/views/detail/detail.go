// Package detail renders the sensor detail overlay. The body is built as
// markdown and rendered with glamour.
package detail

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
	"github.com/zabbix-problems/zabbix-problems/internal/tui/theme"
)

const panelWidth = 72

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)
)

// Model holds the state for the detail overlay.
type Model struct {
	State *sensor.State
	// Style is a glamour standard style name; empty means "dark".
	Style string
}

func New(st *sensor.State) Model {
	return Model{State: st}
}

// Markdown describes the sensor: its value, watched tags and the hosts
// behind every matched tag.
func Markdown(st sensor.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", st.Name)

	if !st.Available {
		b.WriteString("*Unavailable: no successful poll yet.*\n\n")
	} else {
		fmt.Fprintf(&b, "**Severity:** %d (%s)\n\n", st.Value, st.Value.String())
	}

	b.WriteString("## Watching\n\n")
	for _, tag := range st.Monitor {
		fmt.Fprintf(&b, "- `%s`\n", tag)
	}
	b.WriteString("\n")

	if len(st.Detail) == 0 {
		if st.Available {
			b.WriteString("No open problems match these tags.\n")
		}
		return b.String()
	}

	tags := make([]string, 0, len(st.Detail))
	for tag := range st.Detail {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fmt.Fprintf(&b, "## %s\n\n", tag)
		for _, label := range st.Detail[tag] {
			fmt.Fprintf(&b, "- %s\n", label)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// View renders the panel, or "" when no sensor is selected.
func (m Model) View() string {
	if m.State == nil {
		return ""
	}
	style := m.Style
	if style == "" {
		style = "dark"
	}

	md := Markdown(*m.State)
	body := md
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(panelWidth-6),
	)
	if err == nil {
		if out, err := r.Render(md); err == nil {
			body = strings.TrimRight(out, "\n")
		}
	}

	footer := styleFooter.Render("[r] refresh  [esc] close")
	return stylePanel.Width(panelWidth).Render(body + "\n\n" + footer)
}
