package match

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rival",
		Name:      "matches_active",
		Help:      "Matches currently held in the registry.",
	})

	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rival",
		Name:      "match_operations_total",
		Help:      "Engine operations by name and result code.",
	}, []string{"op", "result"})

	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rival",
		Name:      "push_deliveries_total",
		Help:      "Push messages handed to the callback hub, by target kind.",
	}, []string{"target"})

	specialEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rival",
		Name:      "special_events_total",
		Help:      "Completed special events by kind and outcome.",
	}, []string{"kind", "outcome"})

	recorderDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rival",
		Name:      "recorder_dropped_total",
		Help:      "Persistence records dropped because the queue was full.",
	})
)
