package mock

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

func TestSourceIsDeterministicPerSeed(t *testing.T) {
	a := New(Options{Seed: 42})
	b := New(Options{Seed: 42})
	for i := 0; i < 20; i++ {
		ea, err := a.Fetch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		eb, _ := b.Fetch(context.Background())
		if !reflect.DeepEqual(ea, eb) {
			t.Fatalf("fetch %d diverged:\n%v\n%v", i, ea, eb)
		}
	}
}

func TestSourceRespectsMaxActive(t *testing.T) {
	s := New(Options{Seed: 7, MaxActive: 3})
	seen := false
	for i := 0; i < 50; i++ {
		events, err := s.Fetch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(events) > 3 {
			t.Fatalf("fetch %d returned %d events, cap is 3", i, len(events))
		}
		if len(events) > 0 {
			seen = true
		}
		ids := map[string]bool{}
		for _, ev := range events {
			if ids[ev.ID] {
				t.Fatalf("duplicate event id %s", ev.ID)
			}
			ids[ev.ID] = true
			if ev.Host == "" || !ev.Severity.Valid() {
				t.Errorf("implausible event %+v", ev)
			}
		}
	}
	if !seen {
		t.Error("source never raised a problem")
	}
}

func TestSourceEventsAreIndependentCopies(t *testing.T) {
	s := New(Options{Seed: 1})
	events, _ := s.Fetch(context.Background())
	if len(events) == 0 || len(events[0].Tags) == 0 {
		t.Skip("seed produced no tagged event on the first fetch")
	}
	events[0].Tags[0] = "mutated"
	again, _ := s.Fetch(context.Background())
	for _, ev := range again {
		if ev.HasTag("mutated") {
			t.Fatal("caller mutation leaked into the source")
		}
	}
}

func TestSourceFailureRate(t *testing.T) {
	s := New(Options{Seed: 3, FailureRate: 1})
	_, err := s.Fetch(context.Background())
	if !errors.Is(err, monitor.ErrConnection) {
		t.Fatalf("error = %v, want ErrConnection", err)
	}
}

func TestSourceLatencyHonoursContext(t *testing.T) {
	s := New(Options{Seed: 3, Latency: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Fetch(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Fetch ignored context cancellation")
	}
}

func TestSourceFeedsIndex(t *testing.T) {
	s := New(Options{Seed: 11, MaxActive: 8})
	var idx *problem.Index
	for i := 0; i < 10; i++ {
		events, err := s.Fetch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		idx = problem.BuildIndex(events)
	}
	if idx.EventCount() == 0 {
		t.Fatal("no events after 10 fetches")
	}
	for _, tag := range idx.Tags() {
		for _, ev := range idx.Events(tag) {
			if !ev.HasTag(tag) {
				t.Errorf("event %s filed under %q without that tag", ev.ID, tag)
			}
		}
	}
}
