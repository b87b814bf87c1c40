package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processResidentBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamproc",
		Subsystem: "process",
		Name:      "resident_memory_bytes",
		Help:      "Resident set size of a supervised process",
	}, []string{"name", "stage"})

	processCPUSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamproc",
		Subsystem: "process",
		Name:      "cpu_seconds",
		Help:      "User and system CPU time consumed by a supervised process",
	}, []string{"name", "stage"})

	processOpenFDs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamproc",
		Subsystem: "process",
		Name:      "open_fds",
		Help:      "Open file descriptors of a supervised process",
	}, []string{"name", "stage"})
)

// SetProcessResources records one resource sample of a supervised process.
func SetProcessResources(name string, stage int, rssBytes, cpuSeconds float64, openFDs int) {
	s := strconv.Itoa(stage)
	processResidentBytes.WithLabelValues(name, s).Set(rssBytes)
	processCPUSeconds.WithLabelValues(name, s).Set(cpuSeconds)
	processOpenFDs.WithLabelValues(name, s).Set(float64(openFDs))
}

// ResetProcessResources drops every process resource series. Called before
// each sampling pass so reaped processes disappear.
func ResetProcessResources() {
	processResidentBytes.Reset()
	processCPUSeconds.Reset()
	processOpenFDs.Reset()
}
