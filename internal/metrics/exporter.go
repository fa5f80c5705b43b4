// Package metrics exposes coordinator and sensor state to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
)

const namespace = "zabbix"

// Exporter is a monitor.Listener that mirrors every poll cycle into
// Prometheus metrics. It owns its registry so several exporters can live
// in one process (tests) without colliding on the default registerer.
type Exporter struct {
	registry *prometheus.Registry

	sensorSeverity  *prometheus.GaugeVec
	sensorAvailable *prometheus.GaugeVec
	sensorMatches   *prometheus.GaugeVec
	problems        prometheus.Gauge
	untagged        prometheus.Gauge
	tags            prometheus.Gauge
	up              prometheus.Gauge
	consecutive     prometheus.Gauge
	lastSuccessTS   prometheus.Gauge
	pollDuration    prometheus.Histogram
	pollsTotal      *prometheus.CounterVec

	mu       sync.Mutex
	lastPoll uint64
}

var _ monitor.Listener = (*Exporter)(nil)

func NewExporter() *Exporter {
	e := &Exporter{registry: prometheus.NewRegistry()}

	e.sensorSeverity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sensor_severity",
		Help:      "Highest severity among the problems matching the sensor's tags (0 when none)",
	}, []string{"sensor", "unique_id"})
	e.sensorAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sensor_available",
		Help:      "1 once the sensor has been computed from a successful poll",
	}, []string{"sensor", "unique_id"})
	e.sensorMatches = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sensor_matching_problems",
		Help:      "Number of problem entries contributing to the sensor, counted per matched tag",
	}, []string{"sensor", "unique_id"})
	e.problems = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "problems",
		Help:      "Open problems in the published index",
	})
	e.untagged = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "problems_untagged",
		Help:      "Open problems without tags; no sensor can see them",
	})
	e.tags = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "problem_tags",
		Help:      "Distinct tags in the published index",
	})
	e.up = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "up",
		Help:      "1 if the most recent poll succeeded",
	})
	e.consecutive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "poll_consecutive_failures",
		Help:      "Polls failed in a row",
	})
	e.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful poll",
	})
	e.pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_duration_seconds",
		Help:      "Time spent fetching problems from the source",
		Buckets:   prometheus.DefBuckets,
	})
	e.pollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "polls_total",
		Help:      "Completed polls by result and error kind",
	}, []string{"result", "kind"})

	e.registry.MustRegister(
		e.sensorSeverity, e.sensorAvailable, e.sensorMatches,
		e.problems, e.untagged, e.tags,
		e.up, e.consecutive, e.lastSuccessTS,
		e.pollDuration, e.pollsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Registry exposes the exporter's registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// SensorsUpdated implements monitor.Listener.
func (e *Exporter) SensorsUpdated(states []sensor.State, status monitor.Status) {
	e.mu.Lock()
	newPoll := status.Polls != e.lastPoll
	e.lastPoll = status.Polls
	e.mu.Unlock()

	if newPoll {
		if status.LastUpdateSuccess {
			e.pollsTotal.WithLabelValues("success", "").Inc()
			e.lastSuccessTS.Set(float64(status.LastSuccessTime.Unix()))
		} else {
			e.pollsTotal.WithLabelValues("failure", status.LastErrorKind).Inc()
		}
		e.pollDuration.Observe(status.LastDuration.Seconds())
	}

	e.up.Set(boolFloat(status.LastUpdateSuccess))
	e.consecutive.Set(float64(status.ConsecutiveFailures))
	e.problems.Set(float64(status.Events))
	e.untagged.Set(float64(status.Untagged))
	e.tags.Set(float64(status.Tags))

	// Unregistered sensors must disappear from the series.
	e.sensorSeverity.Reset()
	e.sensorAvailable.Reset()
	e.sensorMatches.Reset()
	// Handles change on every restart; UniqueID is derived from the
	// watched tags and keeps series stable.
	for _, st := range states {
		id := st.UniqueID
		e.sensorAvailable.WithLabelValues(st.Name, id).Set(boolFloat(st.Available))
		if !st.Available {
			continue
		}
		matches := 0
		for _, labels := range st.Detail {
			matches += len(labels)
		}
		e.sensorSeverity.WithLabelValues(st.Name, id).Set(float64(st.Value))
		e.sensorMatches.WithLabelValues(st.Name, id).Set(float64(matches))
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
