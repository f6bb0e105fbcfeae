package TCC

import (
	"TCCTransaction/log"
	"TCCTransaction/pkg"
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type tccMetrics struct {
	begins              metric.Int64Counter
	commits             metric.Int64Counter
	rollbacks           metric.Int64Counter
	participantFailures metric.Int64Counter
	driveDuration       metric.Int64Histogram
}

func newMetrics(mp metric.MeterProvider) *tccMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("TCCTransaction")
	m := &tccMetrics{}
	var err error

	m.begins, err = meter.Int64Counter(
		"tcc.transaction.begin",
		metric.WithDescription("Transactions begun, by role"),
	)
	logMetricInitError("tcc.transaction.begin", err)

	m.commits, err = meter.Int64Counter(
		"tcc.transaction.commit",
		metric.WithDescription("Transactions moved to CONFIRMING"),
	)
	logMetricInitError("tcc.transaction.commit", err)

	m.rollbacks, err = meter.Int64Counter(
		"tcc.transaction.rollback",
		metric.WithDescription("Transactions moved to CANCELLING"),
	)
	logMetricInitError("tcc.transaction.rollback", err)

	m.participantFailures, err = meter.Int64Counter(
		"tcc.participant.failed",
		metric.WithDescription("Failed confirm/cancel participant invocations"),
	)
	logMetricInitError("tcc.participant.failed", err)

	m.driveDuration, err = meter.Int64Histogram(
		"tcc.transaction.drive.duration_ms",
		metric.WithDescription("Time spent driving participants to confirm/cancel"),
		metric.WithUnit("ms"),
	)
	logMetricInitError("tcc.transaction.drive.duration_ms", err)

	return m
}

func (m *tccMetrics) recordBegin(ctx context.Context, role pkg.TransactionRole) {
	if m == nil || m.begins == nil {
		return
	}
	m.begins.Add(ctx, 1, metric.WithAttributes(attribute.String("tcc.role", role.String())))
}

func (m *tccMetrics) recordDecision(ctx context.Context, tx *pkg.Transaction) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tcc.role", tx.Role.String()))
	switch tx.Status() {
	case pkg.CONFIRMING:
		if m.commits != nil {
			m.commits.Add(ctx, 1, attrs)
		}
	case pkg.CANCELLING:
		if m.rollbacks != nil {
			m.rollbacks.Add(ctx, 1, attrs)
		}
	}
}

func (m *tccMetrics) recordParticipantFailure(ctx context.Context, status pkg.TransactionStatus, target string) {
	if m == nil || m.participantFailures == nil {
		return
	}
	m.participantFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tcc.status", status.String()),
		attribute.String("tcc.target", target),
	))
}

func (m *tccMetrics) recordDrive(ctx context.Context, status pkg.TransactionStatus, duration time.Duration, result string) {
	if m == nil || m.driveDuration == nil {
		return
	}
	m.driveDuration.Record(ctx, duration.Milliseconds(), metric.WithAttributes(
		attribute.String("tcc.status", status.String()),
		attribute.String("tcc.result", result),
	))
}

func logMetricInitError(name string, err error) {
	if err == nil {
		return
	}
	log.Warnf("tcc: init metric %s err: %v", name, err)
}
