// Package metrics 支付服务的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder 服务上报指标的接口，测试里用 NoopRecorder
type Recorder interface {
	RecordFeeCalculation(result string)
	RecordPayoutProcessed(driftStatus string)
	RecordDriftAlert(severity string)
	RecordGatewayCall(op string, duration time.Duration, err error)
	RecordOutboxPublish(result string)
}

type Prometheus struct {
	feeCalculations  *prometheus.CounterVec
	payoutsProcessed *prometheus.CounterVec
	driftAlerts      *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	outboxPublished  *prometheus.CounterVec
}

// NewPrometheus 创建指标并注册到 reg
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		feeCalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payprocessor",
			Name:      "fee_calculations_total",
			Help:      "Fee calculations by result.",
		}, []string{"result"}),
		payoutsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payprocessor",
			Name:      "payouts_reconciled_total",
			Help:      "Payouts reconciled by drift status.",
		}, []string{"drift_status"}),
		driftAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payprocessor",
			Name:      "drift_alerts_total",
			Help:      "Drift alerts raised by severity.",
		}, []string{"severity"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payprocessor",
			Name:      "gateway_call_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "result"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payprocessor",
			Name:      "outbox_publish_total",
			Help:      "Outbox messages published to Kafka by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(p.feeCalculations, p.payoutsProcessed, p.driftAlerts, p.gatewayLatency, p.outboxPublished)
	return p
}

func (p *Prometheus) RecordFeeCalculation(result string) {
	p.feeCalculations.WithLabelValues(result).Inc()
}

func (p *Prometheus) RecordPayoutProcessed(driftStatus string) {
	p.payoutsProcessed.WithLabelValues(driftStatus).Inc()
}

func (p *Prometheus) RecordDriftAlert(severity string) {
	p.driftAlerts.WithLabelValues(severity).Inc()
}

func (p *Prometheus) RecordGatewayCall(op string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.gatewayLatency.WithLabelValues(op, result).Observe(duration.Seconds())
}

func (p *Prometheus) RecordOutboxPublish(result string) {
	p.outboxPublished.WithLabelValues(result).Inc()
}

// NoopRecorder 丢弃所有指标
type NoopRecorder struct{}

func (NoopRecorder) RecordFeeCalculation(string)                    {}
func (NoopRecorder) RecordPayoutProcessed(string)                   {}
func (NoopRecorder) RecordDriftAlert(string)                        {}
func (NoopRecorder) RecordGatewayCall(string, time.Duration, error) {}
func (NoopRecorder) RecordOutboxPublish(string)                     {}
