package status

import (
	"strings"
	"testing"
	"time"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
)

func TestView(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := New()
	m.Now = func() time.Time { return now }
	m.Width = 200

	v := m.View()
	for _, want := range []string{"Connecting", "pending", "never"} {
		if !strings.Contains(v, want) {
			t.Errorf("initial view missing %q:\n%s", want, v)
		}
	}

	m.Connected = true
	m.Sensors, m.Alerting = 3, 1
	m.Status = monitor.Status{
		Health:              monitor.StatusDegraded,
		ConsecutiveFailures: 2,
		LastErrorKind:       monitor.KindConnection,
		LastUpdateTime:      now.Add(-7 * time.Second),
		Events:              4,
		Untagged:            1,
	}
	v = m.View()
	for _, want := range []string{"Connected", "degraded", "2 failed, connection", "3 sensors", "1 alerting", "4 problems", "1 untagged", "7s ago"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}
