package monitor

import (
	"sync"
	"time"

	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

// HealthStatus summarises recent poll outcomes.
type HealthStatus string

const (
	StatusPending  HealthStatus = "pending"
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// Status is a point-in-time copy of the coordinator's poll bookkeeping.
type Status struct {
	Source              string        `json:"source"`
	Health              HealthStatus  `json:"health"`
	HasData             bool          `json:"hasData"`
	LastUpdateSuccess   bool          `json:"lastUpdateSuccess"`
	LastUpdateTime      time.Time     `json:"lastUpdateTime"`
	LastSuccessTime     time.Time     `json:"lastSuccessTime"`
	LastDuration        time.Duration `json:"lastDuration"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	LastError           string        `json:"lastError,omitempty"`
	LastErrorKind       string        `json:"lastErrorKind,omitempty"`
	Polls               uint64        `json:"polls"`
	Failures            uint64        `json:"failures"`
	Events              int           `json:"events"`
	Tags                int           `json:"tags"`
	Untagged            int           `json:"untagged"`
}

// pollHealth tracks poll outcomes. Fields are protected by mu because the
// poll loop writes them while HTTP handlers read them.
type pollHealth struct {
	mu          sync.Mutex
	attempted   bool
	hasData     bool
	lastOK      bool
	polls       uint64
	failures    uint64
	consecutive int
	lastErr     string
	lastErrKind string
	lastAttempt time.Time
	lastSuccess time.Time
	lastDur     time.Duration
	events      int
	tags        int
	untagged    int
}

func (h *pollHealth) recordSuccess(at time.Time, dur time.Duration, idx *problem.Index) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempted = true
	h.hasData = true
	h.lastOK = true
	h.polls++
	h.consecutive = 0
	h.lastAttempt = at
	h.lastSuccess = at
	h.lastDur = dur
	h.events = idx.EventCount()
	h.tags = idx.Len()
	h.untagged = idx.Untagged()
}

// recordFailure leaves the event/tag counts alone: they describe the
// index that is still published.
func (h *pollHealth) recordFailure(at time.Time, dur time.Duration, err error) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempted = true
	h.lastOK = false
	h.polls++
	h.failures++
	h.consecutive++
	h.lastAttempt = at
	h.lastDur = dur
	h.lastErr = err.Error()
	h.lastErrKind = ErrorKind(err)
	return h.consecutive
}

func (h *pollHealth) hasAttempted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempted
}

// statusLocked computes health. Caller must hold h.mu.
func (h *pollHealth) statusLocked(threshold int) HealthStatus {
	switch {
	case h.consecutive == 0 && h.hasData:
		return StatusHealthy
	case h.consecutive >= threshold || !h.hasData:
		return StatusFailed
	default:
		return StatusDegraded
	}
}

func (h *pollHealth) snapshot(source string, threshold int) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Status{
		Source:              source,
		HasData:             h.hasData,
		LastUpdateSuccess:   h.lastOK,
		LastUpdateTime:      h.lastAttempt,
		LastSuccessTime:     h.lastSuccess,
		LastDuration:        h.lastDur,
		ConsecutiveFailures: h.consecutive,
		Polls:               h.polls,
		Failures:            h.failures,
		Events:              h.events,
		Tags:                h.tags,
		Untagged:            h.untagged,
	}
	st.Health = StatusPending
	if h.attempted {
		st.Health = h.statusLocked(threshold)
	}
	if h.consecutive > 0 {
		st.LastError = h.lastErr
		st.LastErrorKind = h.lastErrKind
	}
	return st
}
