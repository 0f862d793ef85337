package replica

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sealtrack",
			Subsystem: "replica",
			Name:      "passes_total",
			Help:      "Replication passes by direction and result.",
		},
		[]string{"direction", "result"},
	)

	docsReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sealtrack",
			Subsystem: "replica",
			Name:      "docs_read_total",
			Help:      "Documents read from the replication source.",
		},
		[]string{"direction"},
	)

	docsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sealtrack",
			Subsystem: "replica",
			Name:      "docs_written_total",
			Help:      "Documents written to the replication target.",
		},
		[]string{"direction"},
	)
)

func observe(info Info) {
	dir := string(info.Direction)
	result := "ok"
	if info.Failed() {
		result = "error"
	}
	passesTotal.WithLabelValues(dir, result).Inc()
	docsReadTotal.WithLabelValues(dir).Add(float64(info.DocsRead))
	docsWrittenTotal.WithLabelValues(dir).Add(float64(info.DocsWritten))
}
