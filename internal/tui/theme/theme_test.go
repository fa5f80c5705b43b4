package theme

import (
	"testing"

	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

func TestSeverityColor(t *testing.T) {
	if SeverityColor(problem.NotClassified) != ColorClear {
		t.Error("zero should render as clear")
	}
	if SeverityColor(problem.Disaster) != ColorDisaster {
		t.Error("disaster color")
	}
	if SeverityColor(problem.Severity(9)) != ColorDisaster {
		t.Error("out-of-range high severities should render as disaster")
	}
	if SeverityColor(problem.Severity(-1)) != ColorNotClassified {
		t.Error("negative severities should render as not classified")
	}
}

func TestSeverityGlyph(t *testing.T) {
	tests := []struct {
		sev       problem.Severity
		available bool
		want      string
	}{
		{problem.Disaster, false, "?"},
		{problem.NotClassified, true, "✓"},
		{problem.Warning, true, "!"},
		{problem.High, true, "✗"},
	}
	for _, tt := range tests {
		if got := SeverityGlyph(tt.sev, tt.available); got != tt.want {
			t.Errorf("SeverityGlyph(%d, %v) = %q, want %q", tt.sev, tt.available, got, tt.want)
		}
	}
}
