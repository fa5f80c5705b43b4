package sensor

import (
	"reflect"
	"testing"

	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

func networkIndex() *problem.Index {
	return problem.BuildIndex([]problem.Event{
		problem.NewEvent("1", "hostA", "link down", problem.Average, []string{"component:network"}),
		problem.NewEvent("2", "hostB", "packet loss", problem.Disaster, []string{"component:network"}),
		problem.NewEvent("3", "hostC", "disk full", problem.High, []string{"component:storage", "scope:capacity"}),
	})
}

func TestComputeMaxSeverityAndDetail(t *testing.T) {
	value, detail := Compute(networkIndex(), []string{"component:network"})

	if value != problem.Disaster {
		t.Errorf("value = %d, want 5", value)
	}
	want := map[string][]string{"component:network": {"hostA (3)", "hostB (5)"}}
	if !reflect.DeepEqual(detail, want) {
		t.Errorf("detail = %v, want %v", detail, want)
	}
}

func TestComputeNoMatches(t *testing.T) {
	value, detail := Compute(networkIndex(), []string{"component:db", "scope:none"})

	if value != 0 {
		t.Errorf("value = %d, want 0", value)
	}
	if len(detail) != 0 {
		t.Errorf("detail = %v, want empty", detail)
	}
}

func TestComputeAcrossTags(t *testing.T) {
	value, detail := Compute(networkIndex(), []string{"scope:capacity", "component:missing", "component:storage"})

	if value != problem.High {
		t.Errorf("value = %d, want 4", value)
	}
	if len(detail) != 2 {
		t.Fatalf("detail has %d tags, want 2: %v", len(detail), detail)
	}
	if got := detail["scope:capacity"]; len(got) != 1 || got[0] != "hostC (4)" {
		t.Errorf("scope:capacity detail = %v", got)
	}
}

func TestComputeNilIndex(t *testing.T) {
	value, detail := Compute(nil, []string{"component:network"})
	if value != 0 || len(detail) != 0 {
		t.Errorf("nil index gave value=%d detail=%v", value, detail)
	}
}

func TestStateCloneIsIndependent(t *testing.T) {
	orig := State{
		Monitor: []string{"a:b"},
		Detail:  map[string][]string{"a:b": {"h (1)"}},
	}
	c := orig.Clone()
	c.Monitor[0] = "changed"
	c.Detail["a:b"][0] = "changed"
	c.Detail["new"] = nil

	if orig.Monitor[0] != "a:b" {
		t.Error("clone shares Monitor slice")
	}
	if orig.Detail["a:b"][0] != "h (1)" {
		t.Error("clone shares Detail slices")
	}
	if _, ok := orig.Detail["new"]; ok {
		t.Error("clone shares Detail map")
	}
}
