package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	helperRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamproc",
		Subsystem: "helper",
		Name:      "running",
		Help:      "1 while the helper's process group is alive",
	}, []string{"helper"})

	helperExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamproc",
		Subsystem: "helper",
		Name:      "exits_total",
		Help:      "Helper process exits by outcome",
	}, []string{"helper", "outcome"})
)

// SetHelperRunning marks a helper as running or stopped.
func SetHelperRunning(helper string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	helperRunning.WithLabelValues(helper).Set(v)
}

// RecordHelperExit counts an exit of one of the helper's processes.
func RecordHelperExit(helper, outcome string) {
	helperExits.WithLabelValues(helper, outcome).Inc()
}

// DeleteHelperMetrics removes all metrics for a helper.
func DeleteHelperMetrics(helper string) {
	helperRunning.DeleteLabelValues(helper)
	helperExits.DeletePartialMatch(prometheus.Labels{"helper": helper})
}
