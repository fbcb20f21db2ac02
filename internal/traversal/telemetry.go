package traversal

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Benny93/metrigraph/internal/graph"
)

var (
	tracer = otel.Tracer("metrigraph.traversal")
	meter  = otel.Meter("metrigraph.traversal")
)

var (
	walkLatency  metric.Float64Histogram
	walkTotal    metric.Int64Counter
	nodesVisited metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		walkLatency, err = meter.Float64Histogram(
			"traversal_walk_duration_seconds",
			metric.WithDescription("Duration of view traversals"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		walkTotal, err = meter.Int64Counter(
			"traversal_walk_total",
			metric.WithDescription("Total number of view traversals"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesVisited, err = meter.Int64Counter(
			"traversal_nodes_visited_total",
			metric.WithDescription("Total number of nodes visited across traversals"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordWalkMetrics(ctx context.Context, kind graph.EdgeKind, duration time.Duration, visited int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("edge_kind", kind.String()),
		attribute.Bool("success", success),
	)
	walkLatency.Record(ctx, duration.Seconds(), attrs)
	walkTotal.Add(ctx, 1, attrs)
	nodesVisited.Add(ctx, int64(visited), attrs)
}

func startWalkSpan(ctx context.Context, kind graph.EdgeKind, rootID uint32) (context.Context, trace.Span) {
	return tracer.Start(ctx, "traversal.Walk",
		trace.WithAttributes(
			attribute.String("traversal.edge_kind", kind.String()),
			attribute.Int64("traversal.root_id", int64(rootID)),
		),
	)
}

func setWalkSpanResult(span trace.Span, visited int, err error) {
	span.SetAttributes(attribute.Int("traversal.visited", visited))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
