package sensor

import (
	"time"

	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

// Handle identifies a registered sensor for the lifetime of the process.
type Handle string

// State is the observable output of a sensor after a poll cycle.
type State struct {
	ID        Handle              `json:"id"`
	Name      string              `json:"name"`
	UniqueID  string              `json:"uniqueId"`
	Monitor   []string            `json:"monitor"`
	Value     problem.Severity    `json:"value"`
	Severity  string              `json:"severity"`
	Detail    map[string][]string `json:"detail"`
	Available bool                `json:"available"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Clone returns a deep copy of the State, duplicating the slice and map
// fields so the copy can be mutated independently of the original.
func (s State) Clone() State {
	c := s
	if s.Monitor != nil {
		c.Monitor = append([]string(nil), s.Monitor...)
	}
	if s.Detail != nil {
		c.Detail = make(map[string][]string, len(s.Detail))
		for tag, labels := range s.Detail {
			c.Detail[tag] = append([]string(nil), labels...)
		}
	}
	return c
}

// Compute derives the sensor value for the watched tags from idx: the
// highest severity among events under any watched tag, or 0 when no
// watched tag is present. detail maps each matched tag to the
// "host (severity)" label of every event under it, in bucket order.
func Compute(idx *problem.Index, watched []string) (value problem.Severity, detail map[string][]string) {
	detail = make(map[string][]string)
	found := false
	for _, tag := range watched {
		events := idx.Events(tag)
		if len(events) == 0 {
			continue
		}
		labels := make([]string, 0, len(events))
		for _, e := range events {
			labels = append(labels, e.Label())
			if !found || e.Severity > value {
				value = e.Severity
				found = true
			}
		}
		detail[tag] = labels
	}
	if !found {
		value = 0
	}
	return value, detail
}
