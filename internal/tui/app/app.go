package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
	"github.com/zabbix-problems/zabbix-problems/internal/tui/client"
	"github.com/zabbix-problems/zabbix-problems/internal/tui/theme"
	"github.com/zabbix-problems/zabbix-problems/internal/tui/views/detail"
	"github.com/zabbix-problems/zabbix-problems/internal/tui/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
)

// refreshDoneMsg reports the outcome of POST /api/refresh.
type refreshDoneMsg struct{ err error }

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	sensors map[sensor.Handle]sensor.State
	order   []sensor.Handle // severity desc, then name

	selectedIdx int
	overlay     Overlay
	notice      string

	statusBar status.Model

	connected bool
}

func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		sensors:   make(map[sensor.Handle]sensor.State),
		statusBar: status.New(),
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return m.ws.Listen(m.ctx)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		m.sensors = make(map[sensor.Handle]sensor.State, len(msg.Payload.Sensors))
		for _, st := range msg.Payload.Sensors {
			m.sensors[st.ID] = st
		}
		m.statusBar.Status = msg.Payload.Status
		m.rebuildOrder()
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDeltaMsg:
		for _, st := range msg.Payload.Updates {
			m.sensors[st.ID] = st
		}
		for _, id := range msg.Payload.Removed {
			delete(m.sensors, id)
		}
		m.rebuildOrder()
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSStatusMsg:
		m.statusBar.Status = msg.Payload.Status
		return m, m.ws.ReadLoop(m.ctx)

	case refreshDoneMsg:
		if msg.err != nil {
			m.notice = "refresh failed: " + msg.err.Error()
		} else {
			m.notice = "refresh requested"
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancel()
		return m, tea.Quit
	}
	if key.Matches(msg, m.keys.Refresh) {
		return m, m.refresh()
	}

	if m.overlay != OverlayNone {
		if key.Matches(msg, m.keys.Escape) {
			m.overlay = OverlayNone
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if len(m.order) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(m.order)
		}
	case key.Matches(msg, m.keys.Up):
		if len(m.order) > 0 {
			m.selectedIdx = (m.selectedIdx - 1 + len(m.order)) % len(m.order)
		}
	case key.Matches(msg, m.keys.Enter):
		if _, ok := m.Selected(); ok {
			m.overlay = OverlayDetail
		}
	}
	return m, nil
}

func (m Model) refresh() tea.Cmd {
	h := m.http
	return func() tea.Msg {
		return refreshDoneMsg{err: h.Refresh()}
	}
}

// Selected returns the highlighted sensor.
func (m Model) Selected() (sensor.State, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.order) {
		return sensor.State{}, false
	}
	st, ok := m.sensors[m.order[m.selectedIdx]]
	return st, ok
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if !m.connected {
		box := theme.StyleBorder.Padding(1, 4).Render(
			lipgloss.JoinVertical(lipgloss.Center,
				lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED"),
				theme.StyleDimmed.Render("Reconnecting to server..."),
			),
		)
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}

	if m.overlay == OverlayDetail {
		if st, ok := m.Selected(); ok {
			return lipgloss.JoinVertical(lipgloss.Left, m.statusBar.View(), detail.New(&st).View())
		}
	}

	sections := []string{m.statusBar.View(), m.renderSensors()}
	if m.notice != "" {
		sections = append(sections, theme.StyleDimmed.Render("  "+m.notice))
	}
	sections = append(sections, theme.StyleDimmed.Render("  j/k:navigate  enter:detail  r:refresh  q:quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderSensors() string {
	lines := []string{theme.StyleHeader.Render("=== SENSORS ===")}
	if len(m.order) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No sensors registered"))
	}
	for i, id := range m.order {
		prefix := "  "
		if i == m.selectedIdx {
			prefix = "> "
		}
		lines = append(lines, prefix+renderSensorLine(m.sensors[id]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSensorLine(st sensor.State) string {
	color := theme.SeverityColor(st.Value)
	glyph := lipgloss.NewStyle().Foreground(color).Render(theme.SeverityGlyph(st.Value, st.Available))
	name := fmt.Sprintf("%-24s", truncate(st.Name, 24))

	value := "unavailable"
	if st.Available {
		value = fmt.Sprintf("%d %s", st.Value, st.Value.String())
	}
	matches := 0
	for _, labels := range st.Detail {
		matches += len(labels)
	}
	return glyph + " " + name + lipgloss.NewStyle().Foreground(color).Render(value) +
		theme.StyleDimmed.Render(fmt.Sprintf("  %d matching", matches))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// rebuildOrder sorts sensors by value, worst first, keeping the selection
// on the same sensor when it still exists.
func (m *Model) rebuildOrder() {
	var selected sensor.Handle
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		selected = m.order[m.selectedIdx]
	}

	m.order = make([]sensor.Handle, 0, len(m.sensors))
	for id := range m.sensors {
		m.order = append(m.order, id)
	}
	sort.Slice(m.order, func(i, j int) bool {
		si, sj := m.sensors[m.order[i]], m.sensors[m.order[j]]
		if si.Available != sj.Available {
			return si.Available
		}
		if si.Value != sj.Value {
			return si.Value > sj.Value
		}
		if si.Name != sj.Name {
			return si.Name < sj.Name
		}
		return si.ID < sj.ID
	})

	m.selectedIdx = 0
	alerting := 0
	for i, id := range m.order {
		if id == selected {
			m.selectedIdx = i
		}
		if st := m.sensors[id]; st.Available && st.Value > 0 {
			alerting++
		}
	}
	if len(m.order) == 0 && m.overlay == OverlayDetail {
		m.overlay = OverlayNone
	}
	m.statusBar.Sensors = len(m.order)
	m.statusBar.Alerting = alerting
}
