package evloop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "depflow_eventloop"

const eventsMetricName = "processed_events_total"

const resultLabel = "result"

type eventResultLabelVal string

const (
	eventResultScheduled eventResultLabelVal = "scheduled"
	eventResultSkipped   eventResultLabelVal = "skipped"
	eventResultFailed    eventResultLabelVal = "failed"
)

type metricCollector struct {
	events *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		events: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      eventsMetricName,
				Help:      "count of processed build notification events",
			},
			[]string{resultLabel},
		),
	}
}

func (m *metricCollector) EventsInc(result eventResultLabelVal) {
	m.events.WithLabelValues(string(result)).Inc()
}
