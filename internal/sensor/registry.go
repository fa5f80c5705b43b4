package sensor

import (
	"sort"
	"sync"
)

// Registry holds the set of live sensors. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sensors map[Handle]*Sensor
}

func NewRegistry() *Registry {
	return &Registry{
		sensors: make(map[Handle]*Sensor),
	}
}

func (r *Registry) Add(s *Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors[s.ID()] = s
}

// Remove drops the sensor and reports whether it was present.
func (r *Registry) Remove(id Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sensors[id]; !ok {
		return false
	}
	delete(r.sensors, id)
	return true
}

func (r *Registry) Get(id Handle) (*Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sensors[id]
	return s, ok
}

// All returns the registered sensors ordered by name, then handle.
func (r *Registry) All() []*Sensor {
	r.mu.RLock()
	result := make([]*Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		result = append(result, s)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].name != result[j].name {
			return result[i].name < result[j].name
		}
		return result[i].id < result[j].id
	})
	return result
}

// States returns a copy of every sensor's last computed state, in All order.
func (r *Registry) States() []State {
	sensors := r.All()
	states := make([]State, 0, len(sensors))
	for _, s := range sensors {
		states = append(states, s.State())
	}
	return states
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}
