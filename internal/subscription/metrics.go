package subscription

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "depflow_subscription"

const (
	actionDurationMetricName = "action_duration_seconds"
	flowEventsMetricName     = "dependency_flow_events_total"
)

const (
	methodLabel  = "method"
	successLabel = "success"
	eventLabel   = "event"
	reasonLabel  = "reason"
)

type metricCollector struct {
	actionDuration *prometheus.HistogramVec
	flowEvents     *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		actionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      actionDurationMetricName,
				Help:      "duration of subscription actions",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{methodLabel, successLabel},
		),
		flowEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      flowEventsMetricName,
				Help:      "count of recorded dependency flow events",
			},
			[]string{eventLabel, reasonLabel},
		),
	}
}

func (m *metricCollector) ObserveAction(method string, success bool, duration time.Duration) {
	m.actionDuration.WithLabelValues(method, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func (m *metricCollector) CountFlowEvent(eventType EventType, reason string) {
	m.flowEvents.WithLabelValues(string(eventType), reason).Inc()
}
