package recovery

import (
	"TCCTransaction/log"
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 单个事务的恢复结果
const (
	outcomeConfirmed = "confirmed"
	outcomeCancelled = "cancelled"
	outcomeSkipped   = "skipped"
	outcomeExhausted = "exhausted"
	outcomeConflict  = "conflict"
	outcomeFailed    = "failed"
)

type recoveryMetrics struct {
	rounds       metric.Int64Counter
	transactions metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) *recoveryMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("TCCTransaction/recovery")
	m := &recoveryMetrics{}
	var err error

	m.rounds, err = meter.Int64Counter(
		"tcc.recovery.rounds",
		metric.WithDescription("Recovery rounds executed while holding the recovery lock"),
	)
	logMetricInitError("tcc.recovery.rounds", err)

	m.transactions, err = meter.Int64Counter(
		"tcc.recovery.transactions",
		metric.WithDescription("Transactions examined by recovery, by outcome"),
	)
	logMetricInitError("tcc.recovery.transactions", err)
	return m
}

func (m *recoveryMetrics) recordRound(ctx context.Context) {
	if m == nil || m.rounds == nil {
		return
	}
	m.rounds.Add(ctx, 1)
}

func (m *recoveryMetrics) recordOutcome(ctx context.Context, outcome string) {
	if m == nil || m.transactions == nil {
		return
	}
	m.transactions.Add(ctx, 1, metric.WithAttributes(attribute.String("tcc.recovery.outcome", outcome)))
}

func logMetricInitError(name string, err error) {
	if err == nil {
		return
	}
	log.Warnf("recovery: init metric %s err: %v", name, err)
}
