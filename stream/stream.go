package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/parstream/admission"
	"github.com/kbukum/parstream/channel"
	"github.com/kbukum/parstream/errors"
	"github.com/kbukum/parstream/logger"
	"github.com/kbukum/parstream/observability"
	"github.com/kbukum/parstream/validation"
)

// Stream multiplexes many concurrently written fragments into one output
// channel. Items reach the output in fragment creation order, and within a
// fragment in send order, regardless of which producer finishes first.
//
// A fragment that is never finished or errored stalls the output at its
// position forever. Liveness of producers is the caller's obligation.
type Stream[T Item] struct {
	id     string
	ctx    context.Context
	output *channel.Channel[T]
	gate   *admission.Gate
	queue  *channel.Channel[*Fragment[T]]

	// seqMu serializes sequence assignment with the queue append so that
	// queue order is creation order.
	seqMu   sync.Mutex
	nextSeq uint64

	latched atomic.Bool

	threshold int64
	yielder   Yielder
	log       *logger.Logger
	metrics   *observability.StreamMetrics

	done chan struct{}
	err  error

	created atomic.Int64
	drained atomic.Int64
	items   atomic.Int64
	yields  atomic.Int64
}

// Stats is a point-in-time view of a stream.
type Stats struct {
	// OpenFragments is the number of fragments holding a permit.
	OpenFragments int64
	// WeightInUse is the aggregate weight of held permits.
	WeightInUse int64
	// FragmentsCreated counts every admitted fragment.
	FragmentsCreated int64
	// FragmentsDrained counts fragments the flush loop completed.
	FragmentsDrained int64
	// ItemsFlushed counts items forwarded to the output.
	ItemsFlushed int64
	// Yields counts fairness yields.
	Yields int64
}

// New creates a stream writing into output and starts its flush loop. At most
// concurrencyLimit admission permits are held at once and their weights sum
// to at most bufferLimit. The bound counts held permits, not open fragments:
// a fragment that called Release early stays open without holding one. Cancelling ctx kills the flush loop and forwards the
// context error to output.
func New[T Item](ctx context.Context, output *channel.Channel[T], concurrencyLimit, bufferLimit int64, opts ...Option) (*Stream[T], error) {
	if output == nil {
		return nil, errors.InvalidInput("output", "output channel must not be nil")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := validation.New().
		Positive("concurrency_limit", concurrencyLimit).
		Positive("buffer_limit", bufferLimit).
		NonNegative("fairness_threshold", o.threshold).
		Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if o.log == nil {
		o.log = logger.Get("stream")
	}

	s := &Stream[T]{
		id:     id,
		ctx:    ctx,
		output: output,
		gate:      newGate(ctx, "stream-"+id, concurrencyLimit, bufferLimit, o.metrics),
		queue:     channel.New[*Fragment[T]](),
		threshold: o.threshold,
		yielder:   o.yielder,
		log:       o.log.WithStream(id),
		metrics:   o.metrics,
		done:      make(chan struct{}),
	}

	s.log.Debug("stream started", logger.Fields(
		"concurrency_limit", concurrencyLimit,
		"buffer_limit", bufferLimit,
		"fairness_threshold", o.threshold,
	))

	go s.flush()
	return s, nil
}

// newGate builds the admission gate with its hooks feeding metrics.
func newGate(ctx context.Context, name string, concurrencyLimit, bufferLimit int64, m *observability.StreamMetrics) *admission.Gate {
	return admission.New(admission.Config{
		Name:             name,
		ConcurrencyLimit: concurrencyLimit,
		BufferLimit:      bufferLimit,
		OnAcquire: func(_ string, _ int64, waited time.Duration) {
			m.RecordPermitAcquired(ctx, waited)
		},
		OnRelease: func(string, int64) {
			m.RecordPermitReleased(ctx)
		},
		OnReject: func(_ string, err error) {
			m.RecordAdmissionRejected(ctx, rejectKind(err))
		},
	})
}

func rejectKind(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return string(appErr.Code)
	}
	return "unknown"
}

// NewFromConfig creates a stream from cfg after applying defaults.
func NewFromConfig[T Item](ctx context.Context, output *channel.Channel[T], cfg Config, opts ...Option) (*Stream[T], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append([]Option{WithFairnessThreshold(cfg.Threshold())}, opts...)
	return New(ctx, output, cfg.ConcurrencyLimit, cfg.BufferLimit, opts...)
}

// ID returns the stream's unique id.
func (s *Stream[T]) ID() string { return s.id }

// CreateFragment blocks until the stream admits a new fragment or ctx is
// done. The returned fragment's items are delivered after those of every
// fragment created before it. On error no capacity is held.
func (s *Stream[T]) CreateFragment(ctx context.Context, opts ...FragmentOption) (*Fragment[T], error) {
	fo := applyFragmentOptions(opts)

	ctx, span := observability.StartSpan(ctx, observability.SpanCreateFragment, trace.WithAttributes(
		attribute.String(observability.AttrStreamID, s.id),
		attribute.Int64(observability.AttrWeight, fo.weight),
	))
	defer span.End()

	permit, err := s.gate.Acquire(ctx, fo.weight)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}

	f := s.enqueue(permit, fo.weight)
	span.SetAttributes(attribute.Int64(observability.AttrFragmentSeq, int64(f.seq)))
	return f, nil
}

// TryCreateFragment admits a fragment only if capacity is free right now.
func (s *Stream[T]) TryCreateFragment(opts ...FragmentOption) (*Fragment[T], bool) {
	fo := applyFragmentOptions(opts)
	permit, ok := s.gate.TryAcquire(fo.weight)
	if !ok {
		return nil, false
	}
	return s.enqueue(permit, fo.weight), true
}

// enqueue assigns the next position and appends the fragment to the queue.
// permit may be nil for a terminal fragment still waiting for admission.
func (s *Stream[T]) enqueue(permit *admission.Permit, weight int64) *Fragment[T] {
	s.seqMu.Lock()
	f := newFragment(s, s.nextSeq, permit)
	s.nextSeq++
	// The queue is never terminated, so Send cannot fail.
	_ = s.queue.Send(f)
	s.seqMu.Unlock()

	s.created.Add(1)
	s.metrics.RecordFragmentCreated(s.ctx)
	s.log.Debug("fragment created", logger.Fields(
		logger.FieldFragment, f.seq,
		logger.FieldWeight, weight,
	))
	return f
}

// SendError terminates the stream with err. The condition takes its place in
// line like a fragment created now: the consumer sees it only after every
// earlier fragment has drained, and never after a fragment created once
// SendError returned. Only the first call to SendError or Finish
// has any effect. A nil err is ignored.
func (s *Stream[T]) SendError(err error) {
	if err == nil {
		return
	}
	if !s.latch("send_error") {
		return
	}
	s.log.Warn("stream error latched", logger.Fields(logger.FieldError, err.Error()))
	s.terminate(err)
}

// Finish ends the stream cleanly. The consumer receives channel.ErrEndOfStream
// after every fragment created before the call has drained. Only the first
// call to SendError or Finish has any effect.
func (s *Stream[T]) Finish() {
	if !s.latch("finish") {
		return
	}
	s.log.Debug("stream finish latched")
	s.terminate(channel.ErrEndOfStream)
}

func (s *Stream[T]) latch(op string) bool {
	if s.latched.CompareAndSwap(false, true) {
		return true
	}
	s.log.Debug("terminal condition already latched", logger.Fields(logger.FieldOperation, op))
	return false
}

// terminate delivers cond through a fragment of its own. The fragment's
// position is taken before terminate returns; only the wait for its permit
// runs in the background when the gate is full.
func (s *Stream[T]) terminate(cond error) {
	const weight = 1
	if permit, ok := s.gate.TryAcquire(weight); ok {
		s.enqueue(permit, weight).SendError(cond)
		return
	}

	f := s.enqueue(nil, weight)
	go func() {
		permit, err := s.gate.Acquire(s.ctx, weight)
		if err != nil {
			s.log.WithError(err).Warn("terminal fragment not admitted")
		} else {
			f.permit = permit
		}
		f.SendError(cond)
	}()
}

// Done is closed when the flush loop exits.
func (s *Stream[T]) Done() <-chan struct{} { return s.done }

// Err returns the condition that stopped the flush loop, or nil if it is
// still running or ended with end of stream.
func (s *Stream[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Stats returns current counters.
func (s *Stream[T]) Stats() Stats {
	return Stats{
		OpenFragments:    s.gate.InUse(),
		WeightInUse:      s.gate.WeightInUse(),
		FragmentsCreated: s.created.Load(),
		FragmentsDrained: s.drained.Load(),
		ItemsFlushed:     s.items.Load(),
		Yields:           s.yields.Load(),
	}
}
