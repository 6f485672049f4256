package stream

import (
	"github.com/kbukum/parstream/logger"
	"github.com/kbukum/parstream/observability"
)

// DefaultFairnessThreshold is the number of bytes the flush loop forwards
// back to back before it yields.
const DefaultFairnessThreshold int64 = 1_000_000

type options struct {
	log       *logger.Logger
	metrics   *observability.StreamMetrics
	threshold int64
	yielder   Yielder
}

func defaultOptions() options {
	return options{
		threshold: DefaultFairnessThreshold,
		yielder:   Gosched,
	}
}

// Option configures a Stream.
type Option func(*options)

// WithLogger sets the stream logger. Defaults to the "stream" logger from the
// logger registry.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records stream metrics into m.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithFairnessThreshold sets how many bytes the flush loop may forward
// without a real wait before it yields. Zero yields before every item that
// follows an item of positive size.
func WithFairnessThreshold(bytes int64) Option {
	return func(o *options) { o.threshold = bytes }
}

// WithYielder replaces the yield primitive used by the flush loop.
func WithYielder(y Yielder) Option {
	return func(o *options) {
		if y != nil {
			o.yielder = y
		}
	}
}

type fragmentOptions struct {
	weight int64
}

// FragmentOption configures a single fragment.
type FragmentOption func(*fragmentOptions)

// WithWeight charges n units against the stream's buffer limit for the
// lifetime of the fragment's permit. The default is 1.
func WithWeight(n int64) FragmentOption {
	return func(o *fragmentOptions) { o.weight = n }
}

func applyFragmentOptions(opts []FragmentOption) fragmentOptions {
	fo := fragmentOptions{weight: 1}
	for _, opt := range opts {
		opt(&fo)
	}
	return fo
}
