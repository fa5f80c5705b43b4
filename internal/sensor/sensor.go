package sensor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

// Sensor watches a fixed set of tags and derives a max-severity value from
// each published index. A Sensor never fetches data or modifies the index
// it is given.
type Sensor struct {
	id       Handle
	name     string
	uniqueID string
	tags     []string

	mu    sync.RWMutex
	state State
}

// New creates a sensor watching tags. Duplicate tags are collapsed. The
// sensor starts unavailable with value 0.
func New(name string, tags []string) *Sensor {
	set := make(map[string]bool, len(tags))
	watched := make([]string, 0, len(tags))
	for _, t := range tags {
		if set[t] {
			continue
		}
		set[t] = true
		watched = append(watched, t)
	}
	uniqueID := fmt.Sprint(watched)
	sort.Strings(watched)

	id := Handle(uuid.NewString())
	return &Sensor{
		id:       id,
		name:     name,
		uniqueID: uniqueID,
		tags:     watched,
		state: State{
			ID:       id,
			Name:     name,
			UniqueID: uniqueID,
			Monitor:  append([]string(nil), watched...),
			Detail:   map[string][]string{},
			Severity: problem.Severity(0).String(),
		},
	}
}

func (s *Sensor) ID() Handle { return s.id }

func (s *Sensor) Name() string { return s.name }

// Tags returns a copy of the watched tags, sorted.
func (s *Sensor) Tags() []string {
	return append([]string(nil), s.tags...)
}

// Refresh recomputes the sensor against idx. A nil idx means no poll has
// succeeded yet; the sensor is then reported unavailable.
func (s *Sensor) Refresh(idx *problem.Index) State {
	value, detail := Compute(idx, s.tags)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Value = value
	s.state.Severity = value.String()
	s.state.Detail = detail
	s.state.Available = idx != nil
	s.state.UpdatedAt = time.Now()
	return s.state.Clone()
}

// State returns a copy of the last computed state.
func (s *Sensor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}
