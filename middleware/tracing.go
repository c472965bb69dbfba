package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/taskq/task"
)

// tracerName is the instrumentation scope name for taskq tracing.
const tracerName = "github.com/xraph/taskq"

// Tracing returns middleware that wraps task execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through.
//
// Span attributes include: taskq.task.id, taskq.task.entrypoint,
// taskq.task.name, taskq.job.id, taskq.task.level.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		ctx, span := tracer.Start(ctx, "taskq.task.execute",
			trace.WithAttributes(
				attribute.Int64("taskq.task.id", t.ID),
				attribute.String("taskq.task.entrypoint", t.Entrypoint),
				attribute.String("taskq.task.name", t.Name),
				attribute.Int64("taskq.job.id", t.JobID),
				attribute.Float64("taskq.task.level", t.Level),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
