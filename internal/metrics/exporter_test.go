package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/problem"
	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
)

func networkState(available bool) sensor.State {
	return sensor.State{
		ID:        "sensor-1",
		Name:      "network",
		UniqueID:  "[component:network]",
		Value:     problem.Disaster,
		Available: available,
		Detail:    map[string][]string{"component:network": {"hostA (3)", "hostB (5)"}},
	}
}

func successStatus(polls uint64) monitor.Status {
	return monitor.Status{
		Source:            "fake",
		Health:            monitor.StatusHealthy,
		HasData:           true,
		LastUpdateSuccess: true,
		LastSuccessTime:   time.Unix(1700000000, 0),
		LastDuration:      20 * time.Millisecond,
		Polls:             polls,
		Events:            3,
		Tags:              2,
		Untagged:          1,
	}
}

func TestExporterSuccessCycle(t *testing.T) {
	e := NewExporter()
	e.SensorsUpdated([]sensor.State{networkState(true)}, successStatus(1))

	if got := testutil.ToFloat64(e.sensorSeverity.WithLabelValues("network", "[component:network]")); got != 5 {
		t.Errorf("sensor_severity = %v, want 5", got)
	}
	if got := testutil.ToFloat64(e.sensorMatches.WithLabelValues("network", "[component:network]")); got != 2 {
		t.Errorf("sensor_matching_problems = %v, want 2", got)
	}
	if got := testutil.ToFloat64(e.untagged); got != 1 {
		t.Errorf("problems_untagged = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.problems); got != 3 {
		t.Errorf("problems = %v, want 3", got)
	}
	if got := testutil.ToFloat64(e.up); got != 1 {
		t.Errorf("up = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.lastSuccessTS); got != 1700000000 {
		t.Errorf("last_success_timestamp_seconds = %v", got)
	}
	if got := testutil.ToFloat64(e.pollsTotal.WithLabelValues("success", "")); got != 1 {
		t.Errorf("polls_total{success} = %v, want 1", got)
	}
}

func TestExporterCountsEachPollOnce(t *testing.T) {
	e := NewExporter()
	st := successStatus(1)
	e.SensorsUpdated(nil, st)
	e.SensorsUpdated(nil, st) // same cycle seen again, e.g. after a Register refresh

	if got := testutil.ToFloat64(e.pollsTotal.WithLabelValues("success", "")); got != 1 {
		t.Errorf("polls_total{success} = %v, want 1", got)
	}

	fail := st
	fail.Polls = 2
	fail.LastUpdateSuccess = false
	fail.LastErrorKind = monitor.KindConnection
	fail.ConsecutiveFailures = 1
	e.SensorsUpdated(nil, fail)

	if got := testutil.ToFloat64(e.pollsTotal.WithLabelValues("failure", monitor.KindConnection)); got != 1 {
		t.Errorf("polls_total{failure,connection} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.up); got != 0 {
		t.Errorf("up = %v after failure, want 0", got)
	}
	if got := testutil.ToFloat64(e.consecutive); got != 1 {
		t.Errorf("poll_consecutive_failures = %v", got)
	}
}

func TestExporterUnavailableSensorHasNoSeverity(t *testing.T) {
	e := NewExporter()
	e.SensorsUpdated([]sensor.State{networkState(false)}, monitor.Status{Polls: 1})

	if got := testutil.ToFloat64(e.sensorAvailable.WithLabelValues("network", "[component:network]")); got != 0 {
		t.Errorf("sensor_available = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(e.sensorSeverity); n != 0 {
		t.Errorf("sensor_severity has %d series for an unavailable sensor, want 0", n)
	}
}

func TestExporterDropsRemovedSensors(t *testing.T) {
	e := NewExporter()
	other := networkState(true)
	other.ID, other.Name, other.UniqueID = "sensor-2", "storage", "[component:storage]"
	e.SensorsUpdated([]sensor.State{networkState(true), other}, successStatus(1))
	if n := testutil.CollectAndCount(e.sensorSeverity); n != 2 {
		t.Fatalf("sensor_severity series = %d, want 2", n)
	}

	e.SensorsUpdated([]sensor.State{networkState(true)}, successStatus(2))
	if n := testutil.CollectAndCount(e.sensorSeverity); n != 1 {
		t.Errorf("sensor_severity series = %d after removal, want 1", n)
	}
}

func TestExporterHandler(t *testing.T) {
	e := NewExporter()
	e.SensorsUpdated([]sensor.State{networkState(true)}, successStatus(1))

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`zabbix_sensor_severity{sensor="network",unique_id="[component:network]"} 5`,
		`zabbix_problems_untagged 1`,
		`zabbix_polls_total{kind="",result="success"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestExporterLabelsSurviveRestart(t *testing.T) {
	idx := problem.BuildIndex([]problem.Event{
		problem.NewEvent("1", "hostA", "link down", problem.High, []string{"component:network"}),
	})

	var handles []sensor.Handle
	for run := 0; run < 2; run++ {
		s := sensor.New("network", []string{"component:network"})
		handles = append(handles, s.ID())

		e := NewExporter()
		e.SensorsUpdated([]sensor.State{s.Refresh(idx)}, successStatus(1))
		if got := testutil.ToFloat64(e.sensorSeverity.WithLabelValues("network", "[component:network]")); got != 4 {
			t.Errorf("run %d: sensor_severity = %v, want 4", run, got)
		}
		if n := testutil.CollectAndCount(e.sensorSeverity); n != 1 {
			t.Errorf("run %d: sensor_severity series = %d, want 1", run, n)
		}
	}
	if handles[0] == handles[1] {
		t.Fatal("expected distinct handles across runs")
	}
}
