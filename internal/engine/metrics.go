package engine

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/elementstore/internal/ir"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elementstore_operations_total",
		Help: "Engine operations by backend and outcome",
	}, []string{"operation", "backend", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "elementstore_operation_duration_seconds",
		Help:    "Duration of engine operations",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation", "backend"})

	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elementstore_conflicts_total",
		Help: "Saves rejected by the optimistic version check",
	}, []string{"backend"})
)

// outcome is the metric label of err.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := ir.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

func typeAttr(name string) attribute.KeyValue {
	return attribute.String("type", name)
}

// observe starts a span and a timer for op. The returned function ends
// both, counts the outcome and logs conflicts and corruption.
func (e *Engine) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	backend := e.backend.Name()
	attrs = append(attrs, attribute.String("backend", backend))
	ctx, span := e.tracer.Start(ctx, "elementstore."+op, trace.WithAttributes(attrs...))
	timer := prometheus.NewTimer(operationDuration.WithLabelValues(op, backend))

	return ctx, func(err error) {
		timer.ObserveDuration()
		operationsTotal.WithLabelValues(op, backend, outcome(err)).Inc()
		defer span.End()
		if err == nil {
			return
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch {
		case ir.IsConflict(err):
			conflictsTotal.WithLabelValues(backend).Inc()
			e.logger.Info("version conflict", "operation", op, "backend", backend, "error", err)
		case ir.IsCorruption(err):
			e.logger.Error("store corruption", "operation", op, "backend", backend, "error", err)
		}
	}
}
