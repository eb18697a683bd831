package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "antitrigger_events_received_total",
		Help: "Raw events handed to the engine, labelled by source.",
	}, []string{"source"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "antitrigger_events_dropped_total",
		Help: "Events dropped before correlation, labelled by reason.",
	}, []string{"reason"})

	EventsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "antitrigger_events_classified_total",
		Help: "Extracted events by primary category.",
	}, []string{"category"})

	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "antitrigger_alerts_fired_total",
		Help: "Alerts decided by the engine, labelled by kind.",
	}, []string{"kind"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "antitrigger_alerts_suppressed_total",
		Help: "Alert conditions suppressed by deduplication, labelled by kind and reason.",
	}, []string{"kind", "reason"})

	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "antitrigger_persistence_errors_total",
		Help: "Durable state failures, labelled by operation.",
	}, []string{"op"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "antitrigger_notifier_deliveries_total",
		Help: "Notifier deliveries, labelled by notifier and result.",
	}, []string{"notifier", "result"})

	ActiveBurstKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "antitrigger_active_burst_keys",
		Help: "Keys currently holding burst state in memory.",
	})
)
