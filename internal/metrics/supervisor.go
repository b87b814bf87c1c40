// Package metrics provides Prometheus metrics for the process supervisor and
// the helpers it runs.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/streamproc/internal/procs"
)

var (
	launchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamproc",
		Subsystem: "supervisor",
		Name:      "launches_total",
		Help:      "Launch attempts by result",
	}, []string{"result"})

	launchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamproc",
		Subsystem: "supervisor",
		Name:      "launch_failures_total",
		Help:      "Failed launches by reason",
	}, []string{"reason"})

	stagesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamproc",
		Subsystem: "supervisor",
		Name:      "stages_started_total",
		Help:      "Processes forked, counting every pipeline stage",
	})

	exitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamproc",
		Subsystem: "supervisor",
		Name:      "exits_total",
		Help:      "Reaped processes by outcome",
	}, []string{"outcome"})

	processLifetime = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamproc",
		Subsystem: "supervisor",
		Name:      "process_lifetime_seconds",
		Help:      "Time between fork and reap",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	activeProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamproc",
		Subsystem: "supervisor",
		Name:      "active_processes",
		Help:      "Processes currently tracked by the registry",
	})
)

// Launch results.
const (
	ResultStarted = "started"
	ResultFailed  = "failed"
)

// Exit outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSignaled = "signaled"
	OutcomeUnknown  = "unknown"
)

// RecordLaunch counts a successful launch of a group with the given stages.
func RecordLaunch(stages int) {
	launchesTotal.WithLabelValues(ResultStarted).Inc()
	stagesStarted.Add(float64(stages))
}

// RecordLaunchFailure counts a failed launch, classified by err.
func RecordLaunchFailure(err error) {
	launchesTotal.WithLabelValues(ResultFailed).Inc()
	launchFailuresTotal.WithLabelValues(FailureReason(err)).Inc()
}

// FailureReason maps a launch error to a low-cardinality label.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, procs.ErrEmptyCommand), errors.Is(err, procs.ErrTooManyArgs):
		return "command"
	case errors.Is(err, procs.ErrExecFailed):
		return "exec"
	case errors.Is(err, procs.ErrResourceExhausted):
		return "resources"
	case errors.Is(err, procs.ErrClosed):
		return "closed"
	default:
		return "other"
	}
}

// RecordExit counts a reaped process and observes its lifetime.
func RecordExit(rec procs.Record, status procs.ExitStatus) {
	exitsTotal.WithLabelValues(ExitOutcome(status)).Inc()
	if !rec.StartedAt.IsZero() {
		processLifetime.Observe(time.Since(rec.StartedAt).Seconds())
	}
}

// ExitOutcome maps an exit status to a label value.
func ExitOutcome(status procs.ExitStatus) string {
	switch {
	case !status.Known():
		return OutcomeUnknown
	case status.Signaled():
		return OutcomeSignaled
	case status.Success():
		return OutcomeSuccess
	default:
		return OutcomeFailure
	}
}

// SetActiveProcesses sets the number of tracked processes.
func SetActiveProcesses(n int) {
	activeProcesses.Set(float64(n))
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
