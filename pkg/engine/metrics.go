package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SessionsStarted counts reading sessions started under a purpose.
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readgraph_sessions_started_total",
			Help: "Total number of reading sessions started",
		},
	)

	// SessionDuration observes the frozen duration of stopped sessions.
	SessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "readgraph_session_duration_seconds",
			Help:    "Duration of stopped reading sessions",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
	)

	// HighlightsTotal counts highlights created, by type.
	HighlightsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readgraph_highlights_total",
			Help: "Total number of highlights created",
		},
		[]string{"type"},
	)

	// GraphNodes tracks the node count of the open graph, by kind.
	GraphNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "readgraph_graph_nodes",
			Help: "Nodes in the open annotation graph",
		},
		[]string{"kind"},
	)

	// ImportArchivesTotal counts imported archives by result (ok, failed).
	ImportArchivesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readgraph_import_archives_total",
			Help: "Total number of archives processed by import",
		},
		[]string{"result"},
	)

	// PersistFailures counts background writes that failed, by record kind.
	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readgraph_persist_failures_total",
			Help: "Total number of failed background persistence operations",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(SessionsStarted)
	prometheus.MustRegister(SessionDuration)
	prometheus.MustRegister(HighlightsTotal)
	prometheus.MustRegister(GraphNodes)
	prometheus.MustRegister(ImportArchivesTotal)
	prometheus.MustRegister(PersistFailures)
}
