package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — счётчики обработки сообщений.
// Методы безопасны для nil-получателя: без метрик worker работает так же.
type Metrics struct {
	Deliveries      *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
	Faults          *prometheus.CounterVec
	Connects        *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// reg == nil — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_deliveries_total",
			Help: "Total messages delivered to the worker",
		}, []string{"queue"}),

		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_outcomes_total",
			Help: "Processed messages by outcome (ack, requeue, dead)",
		}, []string{"queue", "outcome"}),

		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_handler_duration_seconds",
			Help:    "Time the handler spends on one message",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
		}, []string{"queue"}),

		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_agent_faults_total",
			Help: "Broker agent faults by kind",
		}, []string{"queue", "kind"}),

		Connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_connects_total",
			Help: "Broker agent connection attempts by result",
		}, []string{"queue", "result"}),
	}

	reg.MustRegister(m.Deliveries, m.Outcomes, m.HandlerDuration, m.Faults, m.Connects)
	return m
}

// Значения метки outcome.
const (
	OutcomeAck     = "ack"
	OutcomeRequeue = "requeue"
	OutcomeDead    = "dead"
)

// ObserveDelivery учитывает полученную доставку.
func (m *Metrics) ObserveDelivery(queue string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(queue).Inc()
}

// ObserveOutcome учитывает результат обработки и её длительность.
func (m *Metrics) ObserveOutcome(queue, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(queue, outcome).Inc()
	m.HandlerDuration.WithLabelValues(queue).Observe(d.Seconds())
}

// ObserveFault учитывает ошибку agent'а.
func (m *Metrics) ObserveFault(queue, kind string) {
	if m == nil {
		return
	}
	m.Faults.WithLabelValues(queue, kind).Inc()
}

// ObserveConnect учитывает попытку подключения: result — ok или failed.
func (m *Metrics) ObserveConnect(queue, result string) {
	if m == nil {
		return
	}
	m.Connects.WithLabelValues(queue, result).Inc()
}
