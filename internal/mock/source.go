// Package mock provides a Source that invents plausible Zabbix problems,
// for running the service and dashboard without a Zabbix server.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

type mockProblem struct {
	host        string
	description string
	severity    problem.Severity
	tags        []string
	// active for this many more fetches; 0 means resolved
	ttl int
}

// catalog is the pool problems are drawn from.
var catalog = []mockProblem{
	{host: "core-sw-01", description: "Interface Gi0/1 down", severity: problem.High, tags: []string{"component:network", "scope:availability"}},
	{host: "core-sw-02", description: "High packet loss on uplink", severity: problem.Average, tags: []string{"component:network"}},
	{host: "edge-fw-01", description: "VPN tunnel flapping", severity: problem.Warning, tags: []string{"component:network", "service:vpn"}},
	{host: "db-01", description: "Replication lag over 5m", severity: problem.High, tags: []string{"component:storage", "service:postgres"}},
	{host: "db-01", description: "Disk /var/lib/postgresql over 90%", severity: problem.Disaster, tags: []string{"component:storage"}},
	{host: "nas-01", description: "RAID array degraded", severity: problem.Disaster, tags: []string{"component:storage", "scope:availability"}},
	{host: "web-01", description: "Nginx 5xx rate above 2%", severity: problem.Average, tags: []string{"component:application", "service:nginx"}},
	{host: "web-02", description: "TLS certificate expires in 7 days", severity: problem.Information, tags: []string{"component:application", "scope:security"}},
	{host: "app-01", description: "JVM heap over 85%", severity: problem.Warning, tags: []string{"component:application"}},
	{host: "ups-01", description: "On battery power", severity: problem.Disaster, tags: []string{"component:power", "scope:availability"}},
	{host: "printer-3f", description: "Toner low", severity: problem.NotClassified, tags: nil},
}

type Options struct {
	Seed int64
	// Latency is added to every fetch.
	Latency time.Duration
	// FailureRate in [0,1] is the chance a fetch fails with a connection error.
	FailureRate float64
	// MaxActive caps the number of simultaneous problems. Zero means 5.
	MaxActive int
}

// Source rotates problems from a fixed catalog: each fetch ages the active
// set, resolves expired problems and may raise new ones.
type Source struct {
	opts Options

	mu     sync.Mutex
	rng    *rand.Rand
	active []*mockProblem
	nextID int
	ids    map[*mockProblem]string
}

var _ monitor.Source = (*Source)(nil)

func New(opts Options) *Source {
	if opts.MaxActive <= 0 {
		opts.MaxActive = 5
	}
	return &Source{
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		nextID: 1000,
		ids:    map[*mockProblem]string{},
	}
}

func (s *Source) Name() string { return "mock" }

func (s *Source) Fetch(ctx context.Context) ([]problem.Event, error) {
	if s.opts.Latency > 0 {
		timer := time.NewTimer(s.opts.Latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.FailureRate > 0 && s.rng.Float64() < s.opts.FailureRate {
		return nil, fmt.Errorf("mock: simulated outage: %w", monitor.ErrConnection)
	}

	s.step()

	events := make([]problem.Event, 0, len(s.active))
	for _, p := range s.active {
		events = append(events, problem.NewEvent(s.ids[p], p.host, p.description, p.severity, p.tags))
	}
	return events, nil
}

// step ages active problems and raises up to one new one.
func (s *Source) step() {
	kept := s.active[:0]
	for _, p := range s.active {
		p.ttl--
		if p.ttl > 0 {
			kept = append(kept, p)
		} else {
			delete(s.ids, p)
		}
	}
	s.active = kept

	if len(s.active) >= s.opts.MaxActive {
		return
	}
	if len(s.active) > 0 && s.rng.Intn(3) == 0 {
		return
	}
	tmpl := catalog[s.rng.Intn(len(catalog))]
	for _, p := range s.active {
		if p.host == tmpl.host && p.description == tmpl.description {
			return
		}
	}
	p := tmpl
	p.ttl = 3 + s.rng.Intn(8)
	s.ids[&p] = fmt.Sprintf("%d", s.nextID)
	s.nextID++
	s.active = append(s.active, &p)
}
