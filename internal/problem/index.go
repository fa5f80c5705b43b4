package problem

import (
	"sort"
	"time"
)

// Index maps each tag to the events that carry it, in fetch order. An Index
// is never modified after BuildIndex returns; a new poll produces a new
// Index that replaces the old one by reference.
type Index struct {
	buckets  map[string][]Event
	events   int
	untagged int
	builtAt  time.Time
}

// BuildIndex groups events by tag. An event appears once in the bucket of
// every tag it carries. Events without tags land in no bucket and are only
// counted.
func BuildIndex(events []Event) *Index {
	idx := &Index{
		buckets: make(map[string][]Event),
		events:  len(events),
		builtAt: time.Now(),
	}
	for _, e := range events {
		if len(e.Tags) == 0 {
			idx.untagged++
			continue
		}
		for _, tag := range e.Tags {
			idx.buckets[tag] = append(idx.buckets[tag], e)
		}
	}
	return idx
}

// Events returns the bucket for tag. The returned slice is shared with the
// index and must not be modified.
func (x *Index) Events(tag string) []Event {
	if x == nil {
		return nil
	}
	return x.buckets[tag]
}

// Has reports whether any event carries tag.
func (x *Index) Has(tag string) bool {
	if x == nil {
		return false
	}
	_, ok := x.buckets[tag]
	return ok
}

// Tags returns every indexed tag, sorted.
func (x *Index) Tags() []string {
	if x == nil {
		return nil
	}
	tags := make([]string, 0, len(x.buckets))
	for t := range x.buckets {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Len is the number of distinct tags.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.buckets)
}

// EventCount is the number of events the index was built from, including
// untagged ones.
func (x *Index) EventCount() int {
	if x == nil {
		return 0
	}
	return x.events
}

// Untagged is the number of events that carried no tags and are therefore
// invisible to every sensor.
func (x *Index) Untagged() int {
	if x == nil {
		return 0
	}
	return x.untagged
}

// BuiltAt is when the index was built.
func (x *Index) BuiltAt() time.Time {
	if x == nil {
		return time.Time{}
	}
	return x.builtAt
}
