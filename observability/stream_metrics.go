package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StreamMetrics holds the instruments recorded by an ordered parallel stream.
// A nil *StreamMetrics records nothing.
type StreamMetrics struct {
	fragmentsCreated metric.Int64Counter
	fragmentsDrained metric.Int64Counter
	fragmentsOpen    metric.Int64UpDownCounter
	itemsFlushed     metric.Int64Counter
	bytesFlushed     metric.Int64Counter
	yields           metric.Int64Counter
	streamErrors     metric.Int64Counter
	permitsHeld      metric.Int64UpDownCounter
	admissionReject  metric.Int64Counter
	admissionWait    metric.Float64Histogram

	attrs metric.MeasurementOption
}

// NewStreamMetrics creates stream instruments on the given meter. attrs are
// attached to every measurement; keep them low-cardinality.
func NewStreamMetrics(meter metric.Meter, attrs ...attribute.KeyValue) (*StreamMetrics, error) {
	m := &StreamMetrics{attrs: metric.WithAttributes(attrs...)}
	var err error

	if m.fragmentsCreated, err = meter.Int64Counter("stream.fragments.created",
		metric.WithDescription("Fragments admitted into the stream"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.fragments.created counter: %w", err)
	}
	if m.fragmentsDrained, err = meter.Int64Counter("stream.fragments.drained",
		metric.WithDescription("Fragments fully drained into the output"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.fragments.drained counter: %w", err)
	}
	if m.fragmentsOpen, err = meter.Int64UpDownCounter("stream.fragments.open",
		metric.WithDescription("Fragments created but not yet drained"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.fragments.open gauge: %w", err)
	}
	if m.itemsFlushed, err = meter.Int64Counter("stream.items.flushed",
		metric.WithDescription("Items forwarded to the output"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.items.flushed counter: %w", err)
	}
	if m.bytesFlushed, err = meter.Int64Counter("stream.bytes.flushed",
		metric.WithDescription("Accumulated item size forwarded to the output"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.bytes.flushed counter: %w", err)
	}
	if m.yields, err = meter.Int64Counter("stream.flush.yields",
		metric.WithDescription("Times the flush loop yielded for fairness"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.flush.yields counter: %w", err)
	}
	if m.streamErrors, err = meter.Int64Counter("stream.errors",
		metric.WithDescription("Terminal conditions delivered to the output"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.errors counter: %w", err)
	}
	if m.permitsHeld, err = meter.Int64UpDownCounter("stream.permits.held",
		metric.WithDescription("Admission permits currently held"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.permits.held gauge: %w", err)
	}
	if m.admissionReject, err = meter.Int64Counter("stream.admission.rejected",
		metric.WithDescription("Admission attempts refused or abandoned"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.admission.rejected counter: %w", err)
	}
	if m.admissionWait, err = meter.Float64Histogram("stream.admission.wait",
		metric.WithDescription("Time spent waiting for fragment admission"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.admission.wait histogram: %w", err)
	}

	return m, nil
}

// RecordFragmentCreated records a fragment taking its place in the queue.
func (m *StreamMetrics) RecordFragmentCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.fragmentsCreated.Add(ctx, 1, m.attrs)
	m.fragmentsOpen.Add(ctx, 1, m.attrs)
}

// RecordPermitAcquired records a granted admission permit and how long the
// caller waited for it.
func (m *StreamMetrics) RecordPermitAcquired(ctx context.Context, waited time.Duration) {
	if m == nil {
		return
	}
	m.permitsHeld.Add(ctx, 1, m.attrs)
	m.admissionWait.Record(ctx, waited.Seconds(), m.attrs)
}

// RecordPermitReleased records a permit returned to the gate.
func (m *StreamMetrics) RecordPermitReleased(ctx context.Context) {
	if m == nil {
		return
	}
	m.permitsHeld.Add(ctx, -1, m.attrs)
}

// RecordAdmissionRejected records a failed admission, tagged by error code.
func (m *StreamMetrics) RecordAdmissionRejected(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.admissionReject.Add(ctx, 1, m.attrs, metric.WithAttributes(attribute.String(AttrErrorKind, kind)))
}

// RecordFragmentDrained records a fragment leaving the flush loop.
func (m *StreamMetrics) RecordFragmentDrained(ctx context.Context) {
	if m == nil {
		return
	}
	m.fragmentsDrained.Add(ctx, 1, m.attrs)
	m.fragmentsOpen.Add(ctx, -1, m.attrs)
}

// RecordItemFlushed records one item forwarded to the output.
func (m *StreamMetrics) RecordItemFlushed(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.itemsFlushed.Add(ctx, 1, m.attrs)
	if size > 0 {
		m.bytesFlushed.Add(ctx, int64(size), m.attrs)
	}
}

// RecordYield records a fairness yield.
func (m *StreamMetrics) RecordYield(ctx context.Context) {
	if m == nil {
		return
	}
	m.yields.Add(ctx, 1, m.attrs)
}

// RecordStreamError records a terminal condition other than end of stream.
func (m *StreamMetrics) RecordStreamError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.streamErrors.Add(ctx, 1, m.attrs, metric.WithAttributes(attribute.String(AttrErrorKind, kind)))
}
