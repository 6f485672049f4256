package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/parstream/channel"
	"github.com/kbukum/parstream/logger"
	"github.com/kbukum/parstream/observability"
	"github.com/kbukum/parstream/stream"
)

// element carries a mapped value through a stream. Values that implement
// stream.Item keep their declared size; everything else counts as one.
type element[O any] struct{ v O }

func (e element[O]) Size() int {
	if it, ok := any(e.v).(stream.Item); ok {
		return it.Size()
	}
	return 1
}

// OrderedMap applies fn to values concurrently, with at most n calls in
// flight, and yields results in input order. Each input becomes one
// fragment of a stream, so a slow early value holds back faster later ones
// but never blocks them from running.
//
// The first failure, whether from the source or from fn, ends the pipeline
// after every result that precedes it in input order. Admission bounds calls
// in flight, not finished results: results the consumer has not pulled yet
// are buffered.
func OrderedMap[I, O any](p *Pipeline[I], n int, fn func(context.Context, I) (O, error), opts ...stream.Option) *Pipeline[O] {
	if n <= 0 {
		n = 1
	}
	return &Pipeline[O]{
		create: func(ctx context.Context) Iterator[O] {
			runCtx, cancel := context.WithCancel(ctx)
			out := channel.New[element[O]]()
			sopts := append([]stream.Option{stream.WithLogger(logger.Get("pipeline"))}, opts...)
			s, err := stream.New(runCtx, out, int64(n), int64(n), sopts...)
			if err != nil {
				cancel()
				return &errIter[O]{err: err}
			}

			source := p.create(runCtx)
			go feed(runCtx, s, source, fn)

			return &channelIter[element[O], O]{
				ch:     out,
				unwrap: func(e element[O]) O { return e.v },
				closer: func() error {
					cancel()
					return source.Close()
				},
			}
		},
	}
}

// feed pulls the source and starts one worker per value. It stops at the
// first failure or once the stream's flush loop has exited.
func feed[I, O any](ctx context.Context, s *stream.Stream[element[O]], source Iterator[I], fn func(context.Context, I) (O, error)) {
	ctx, span := observability.StartSpan(ctx, observability.SpanOrderedMap)
	span.SetAttributes(attribute.String(observability.AttrStreamID, s.ID()))
	defer span.End()

	var g errgroup.Group
	for {
		select {
		case <-s.Done():
			_ = g.Wait()
			return
		default:
		}

		v, ok, err := source.Next(ctx)
		if err != nil {
			s.SendError(err)
			break
		}
		if !ok {
			break
		}

		f, err := s.CreateFragment(ctx)
		if err != nil {
			s.SendError(err)
			break
		}
		g.Go(func() error {
			o, err := fn(ctx, v)
			if err != nil {
				f.SendError(err)
				return err
			}
			f.Send(element[O]{v: o})
			f.Finish()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		observability.SetSpanError(span, err)
	}
	s.Finish()
}
