package pullrequest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/logfields"
)

const metricNamespace = "depflow_pullrequest"

const (
	operationsMetricName = "operations_total"
	inProgressMetricName = "in_progress_count"
)

const operationLabel = "operation"

type operationLabelVal string

const (
	operationCreated operationLabelVal = "created"
	operationUpdated operationLabelVal = "updated"
	operationMerged  operationLabelVal = "merged"
	operationClosed  operationLabelVal = "closed"
)

type metricCollector struct {
	logger     *zap.Logger
	operations *prometheus.CounterVec
	inProgress prometheus.Gauge
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		operations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      operationsMetricName,
				Help:      "count of pull request operations",
			},
			[]string{operationLabel},
		),
		inProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      inProgressMetricName,
				Help:      "count of in-progress dependency update pull requests",
			},
		),
	}
}

func (m *metricCollector) OperationInc(op operationLabelVal) {
	cnt, err := m.operations.GetMetricWith(prometheus.Labels{operationLabel: string(op)})
	if err != nil {
		m.logger.Warn(
			"could not record metric",
			zap.String("metric", operationsMetricName),
			logfields.Event("recording_metric_failed"),
			zap.Error(err),
		)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) SetInProgress(cnt int) {
	m.inProgress.Set(float64(cnt))
}
