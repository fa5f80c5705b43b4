package sensor

import "testing"

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	s := New("network", []string{"component:network"})
	r.Add(s)

	got, ok := r.Get(s.ID())
	if !ok || got != s {
		t.Fatal("Get after Add did not return the sensor")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if !r.Remove(s.ID()) {
		t.Error("Remove returned false for a present sensor")
	}
	if r.Remove(s.ID()) {
		t.Error("second Remove returned true")
	}
	if _, ok := r.Get(s.ID()); ok {
		t.Error("Get after Remove returned ok")
	}
}

func TestRegistryAllSortedByName(t *testing.T) {
	r := NewRegistry()
	r.Add(New("storage", []string{"component:storage"}))
	r.Add(New("app", []string{"component:app"}))
	r.Add(New("network", []string{"component:network"}))

	all := r.All()
	names := []string{all[0].Name(), all[1].Name(), all[2].Name()}
	want := []string{"app", "network", "storage"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("All() order = %v, want %v", names, want)
		}
	}
	if states := r.States(); len(states) != 3 || states[0].Name != "app" {
		t.Errorf("States() = %+v", states)
	}
}

func TestRegistryIndependentOverlappingSensors(t *testing.T) {
	r := NewRegistry()
	a := New("same", []string{"component:network"})
	b := New("same", []string{"component:network"})
	r.Add(a)
	r.Add(b)

	if r.Len() != 2 {
		t.Errorf("identical sensors collapsed: Len() = %d", r.Len())
	}
	if a.ID() == b.ID() {
		t.Error("sensors share a handle")
	}
}
