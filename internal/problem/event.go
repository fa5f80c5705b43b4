package problem

import "fmt"

// Severity is the ordinal urgency of an event. Larger is worse. Zabbix uses
// 0 through 5 but the value is kept as reported, so callers must not assume
// it is within that range.
type Severity int

const (
	NotClassified Severity = iota
	Information
	Warning
	Average
	High
	Disaster
)

var severityNames = map[Severity]string{
	NotClassified: "not_classified",
	Information:   "information",
	Warning:       "warning",
	Average:       "average",
	High:          "high",
	Disaster:      "disaster",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Valid reports whether s falls within the range Zabbix defines.
func (s Severity) Valid() bool {
	return s >= NotClassified && s <= Disaster
}

// Event is one active problem as reported by the remote source, joined with
// its event detail. Events are values built once per fetch; the Tags slice
// is shared between every index bucket the event lands in and must be
// treated as read-only.
type Event struct {
	ID          string   `json:"id"`
	Host        string   `json:"host"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Tags        []string `json:"tags"`
}

// NewEvent builds an Event, copying tags so later changes to the caller's
// slice are not observed.
func NewEvent(id, host, description string, severity Severity, tags []string) Event {
	t := make([]string, len(tags))
	copy(t, tags)
	return Event{
		ID:          id,
		Host:        host,
		Description: description,
		Severity:    severity,
		Tags:        t,
	}
}

// HasTag reports whether the event carries tag.
func (e Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Label is the "host (severity)" form shown in sensor detail.
func (e Event) Label() string {
	return fmt.Sprintf("%s (%d)", e.Host, int(e.Severity))
}

func (e Event) String() string {
	return fmt.Sprintf("<%s, %d>", e.Host, int(e.Severity))
}
