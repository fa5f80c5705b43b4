package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zabbix-problems/zabbix-problems/internal/problem"
	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
)

const (
	DefaultPollInterval     = 3 * time.Second
	DefaultFailureThreshold = 3
)

// Listener receives the sensor states computed for a poll cycle. It is
// called synchronously from the poll loop after every sensor has been
// refreshed, so implementations must not block. The states slice is shared
// by every listener for the cycle and must be treated as read-only.
type Listener interface {
	SensorsUpdated(states []sensor.State, status Status)
}

// Options tunes a Coordinator. Zero values select the defaults.
type Options struct {
	PollInterval     time.Duration
	FailureThreshold int
	Logger           *zap.Logger
}

// Coordinator polls a Source on a fixed interval, publishes the resulting
// tag index and refreshes every registered sensor after each cycle.
//
// The published index is replaced by pointer swap and never modified, so
// sensors and HTTP handlers can read it without locking. At most one Fetch
// runs at a time: ticks and refresh requests that arrive while a fetch is
// in flight are coalesced into it.
type Coordinator struct {
	source    Source
	interval  time.Duration
	threshold int
	log       *zap.Logger

	sensors *sensor.Registry
	index   atomic.Pointer[problem.Index]
	health  pollHealth

	// refreshMu orders sensor refreshes so a sensor never goes back to an
	// older index than the one it was last computed against.
	refreshMu sync.Mutex

	refresh   chan struct{}
	running   atomic.Bool
	fetches   atomic.Int64
	coalesced atomic.Int64

	mu        sync.Mutex // protects listeners and lifecycle fields
	listeners []Listener
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewCoordinator(src Source, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Coordinator{
		source:    src,
		interval:  opts.PollInterval,
		threshold: opts.FailureThreshold,
		log:       opts.Logger.With(zap.String("source", src.Name())),
		sensors:   sensor.NewRegistry(),
		refresh:   make(chan struct{}, 1),
	}
}

// AddListener registers l for post-poll notifications. Listeners added
// after Start only see subsequent cycles.
func (c *Coordinator) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Register creates a sensor watching tags. If a poll has already completed
// the sensor is computed immediately against the published index;
// otherwise it stays unavailable until the first cycle finishes.
func (c *Coordinator) Register(name string, tags []string) *sensor.Sensor {
	s := sensor.New(name, tags)
	c.refreshMu.Lock()
	c.sensors.Add(s)
	if c.health.hasAttempted() {
		s.Refresh(c.index.Load())
	}
	c.refreshMu.Unlock()
	c.log.Debug("sensor registered",
		zap.String("sensor", name),
		zap.String("id", string(s.ID())),
		zap.Strings("tags", s.Tags()),
	)
	return s
}

// Unregister removes the sensor and reports whether it was registered.
func (c *Coordinator) Unregister(h sensor.Handle) bool {
	ok := c.sensors.Remove(h)
	if ok {
		c.log.Debug("sensor unregistered", zap.String("id", string(h)))
	}
	return ok
}

// Sensor returns the last computed state of one sensor.
func (c *Coordinator) Sensor(h sensor.Handle) (sensor.State, bool) {
	s, ok := c.sensors.Get(h)
	if !ok {
		return sensor.State{}, false
	}
	return s.State(), true
}

// Sensors returns the last computed state of every sensor, ordered by name.
func (c *Coordinator) Sensors() []sensor.State {
	return c.sensors.States()
}

// Index returns the currently published index, or nil before the first
// successful poll. The returned index is never modified.
func (c *Coordinator) Index() *problem.Index {
	return c.index.Load()
}

func (c *Coordinator) Status() Status {
	return c.health.snapshot(c.source.Name(), c.threshold)
}

// LastUpdateSuccess reports whether the most recent poll succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	return c.Status().LastUpdateSuccess
}

// LastUpdateTime is when the most recent poll, successful or not, finished.
func (c *Coordinator) LastUpdateTime() time.Time {
	return c.Status().LastUpdateTime
}

// Fetches is the number of Source.Fetch calls made so far.
func (c *Coordinator) Fetches() int64 {
	return c.fetches.Load()
}

// Coalesced is the number of ticks and refresh requests that arrived while
// a fetch was already in flight.
func (c *Coordinator) Coalesced() int64 {
	return c.coalesced.Load()
}

// Start runs the first poll synchronously, notifies sensors and listeners,
// then starts the poll loop in the background. The first poll's error is
// returned for diagnostics; the loop keeps retrying on schedule either way.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.log.Info("coordinator starting",
		zap.Duration("poll_interval", c.interval),
		zap.Int("sensors", c.sensors.Len()),
	)

	res := c.fetch(loopCtx)
	if loopCtx.Err() == nil {
		c.publish(res)
	}

	c.running.Store(true)
	go c.loop(loopCtx)
	return res.err
}

// Stop cancels the poll loop and waits for any in-flight fetch to return.
// A result that arrives after Stop is discarded. Stop is idempotent and
// safe to call before Start.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.stopped = true
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.log.Info("coordinator stopped")
}

// RequestRefresh asks for an out-of-band poll. If a fetch is already in
// flight the request is coalesced into it. Requests before Start or after
// Stop are ignored.
func (c *Coordinator) RequestRefresh() {
	if !c.running.Load() {
		return
	}
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

type fetchResult struct {
	events   []problem.Event
	err      error
	finished time.Time
	duration time.Duration
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)
	defer c.running.Store(false)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	results := make(chan fetchResult, 1)
	inFlight := false
	trigger := func(reason string) {
		if inFlight {
			c.coalesced.Add(1)
			c.log.Debug("poll coalesced into in-flight fetch", zap.String("trigger", reason))
			return
		}
		inFlight = true
		go func() { results <- c.fetch(ctx) }()
	}

	for {
		select {
		case <-ctx.Done():
			if inFlight {
				<-results
			}
			return
		case <-ticker.C:
			trigger("tick")
		case <-c.refresh:
			trigger("refresh")
		case res := <-results:
			inFlight = false
			if ctx.Err() != nil {
				return
			}
			c.publish(res)
		}
	}
}

// fetch calls the source, converting a panic into an error so a buggy
// source cannot kill the poll loop.
func (c *Coordinator) fetch(ctx context.Context) (res fetchResult) {
	c.fetches.Add(1)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.events = nil
			res.err = fmt.Errorf("source %s panicked: %v", c.source.Name(), r)
		}
		res.finished = time.Now()
		res.duration = res.finished.Sub(start)
	}()
	res.events, res.err = c.source.Fetch(ctx)
	return res
}

// publish records the outcome, swaps in the new index on success and
// notifies sensors and listeners. On failure the previous index stays
// published.
func (c *Coordinator) publish(res fetchResult) {
	if res.err != nil {
		n := c.health.recordFailure(res.finished, res.duration, res.err)
		c.logFailure(res.err, n)
	} else {
		idx := problem.BuildIndex(res.events)
		c.index.Store(idx)
		c.health.recordSuccess(res.finished, res.duration, idx)
		c.log.Debug("poll succeeded",
			zap.Int("events", idx.EventCount()),
			zap.Int("tags", idx.Len()),
			zap.Int("untagged", idx.Untagged()),
			zap.Duration("duration", res.duration),
		)
	}
	c.notify()
}

func (c *Coordinator) logFailure(err error, consecutive int) {
	fields := []zap.Field{
		zap.String("error_kind", ErrorKind(err)),
		zap.Int("consecutive_failures", consecutive),
		zap.Error(err),
	}
	switch ErrorKind(err) {
	case KindAuthentication:
		c.log.Error("poll failed: credentials rejected", fields...)
	case KindMalformed:
		c.log.Error("poll failed: malformed response", fields...)
	default:
		c.log.Warn("poll failed", fields...)
	}
}

// notify refreshes every sensor against one index snapshot, then hands the
// resulting states to the listeners.
func (c *Coordinator) notify() {
	c.refreshMu.Lock()
	idx := c.index.Load()
	all := c.sensors.All()
	states := make([]sensor.State, 0, len(all))
	for _, s := range all {
		states = append(states, s.Refresh(idx))
	}
	c.refreshMu.Unlock()

	c.mu.Lock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if len(listeners) == 0 {
		return
	}
	status := c.Status()
	for _, l := range listeners {
		l.SensorsUpdated(states, status)
	}
}
