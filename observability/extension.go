package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/taskq/ext"
	"github.com/xraph/taskq/task"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.TaskTaken     = (*MetricsExtension)(nil)
	_ ext.TaskSucceeded = (*MetricsExtension)(nil)
	_ ext.TaskFailed    = (*MetricsExtension)(nil)
	_ ext.LateReport    = (*MetricsExtension)(nil)
	_ ext.TasksSwept    = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/taskq/observability"

// MetricsExtension records system-wide lifecycle counters through an OTel
// meter. Task counters carry an entrypoint attribute.
type MetricsExtension struct {
	TaskTaken     metric.Int64Counter
	TaskSucceeded metric.Int64Counter
	TaskFailed    metric.Int64Counter
	LateReports   metric.Int64Counter
	TasksSwept    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the API returns noop instruments.
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		TaskTaken:     counter("taskq.task.taken", "Tasks leased by workers"),
		TaskSucceeded: counter("taskq.task.succeeded", "Tasks that finished successfully"),
		TaskFailed:    counter("taskq.task.failed", "Tasks that failed"),
		LateReports:   counter("taskq.task.late_reports", "Status reports for tasks no longer running"),
		TasksSwept:    counter("taskq.task.swept", "Running tasks failed by the pulse sweep"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnTaskTaken implements ext.TaskTaken.
func (m *MetricsExtension) OnTaskTaken(ctx context.Context, t *task.Task) error {
	m.TaskTaken.Add(ctx, 1, entrypoint(t))
	return nil
}

// OnTaskSucceeded implements ext.TaskSucceeded.
func (m *MetricsExtension) OnTaskSucceeded(ctx context.Context, t *task.Task, _ time.Duration) error {
	m.TaskSucceeded.Add(ctx, 1, entrypoint(t))
	return nil
}

// OnTaskFailed implements ext.TaskFailed.
func (m *MetricsExtension) OnTaskFailed(ctx context.Context, t *task.Task, _ error) error {
	m.TaskFailed.Add(ctx, 1, entrypoint(t))
	return nil
}

// OnLateReport implements ext.LateReport.
func (m *MetricsExtension) OnLateReport(ctx context.Context, t *task.Task, _ task.Status) error {
	m.LateReports.Add(ctx, 1, entrypoint(t))
	return nil
}

// OnTasksSwept implements ext.TasksSwept.
func (m *MetricsExtension) OnTasksSwept(ctx context.Context, count int64) error {
	m.TasksSwept.Add(ctx, count)
	return nil
}

func entrypoint(t *task.Task) metric.AddOption {
	return metric.WithAttributes(attribute.String("entrypoint", t.Entrypoint))
}
