package stream

import (
	stderrors "errors"

	"github.com/kbukum/parstream/channel"
	"github.com/kbukum/parstream/logger"
)

// errEndOfFragment terminates a finished fragment's channel. It never
// leaves the flush loop.
var errEndOfFragment = stderrors.New("end of fragment")

// fairness tracks bytes forwarded since the flush loop last really waited.
type fairness struct {
	budget    int64
	threshold int64
	yielder   Yielder
	yields    func()
}

// before is called ahead of every pop. A pop that would wait resets the
// budget; a pop that would not wait yields first once the budget is spent.
func (f *fairness) before(ready bool) {
	if !ready {
		f.budget = 0
		return
	}
	if f.budget > f.threshold {
		f.yielder.Yield()
		f.budget = 0
		f.yields()
	}
}

func (f *fairness) charge(size int) {
	if size > 0 {
		f.budget += int64(size)
	}
}

// flush is the flush loop: it drains fragments in creation order into the
// output until a condition other than end of fragment stops it.
func (s *Stream[T]) flush() {
	defer close(s.done)

	fair := &fairness{
		threshold: s.threshold,
		yielder:   s.yielder,
		yields: func() {
			s.yields.Add(1)
			s.metrics.RecordYield(s.ctx)
		},
	}

	cond := s.run(fair)
	s.die(cond)
}

func (s *Stream[T]) run(fair *fairness) error {
	for {
		fair.before(s.queue.Ready())
		f, err := s.queue.Next(s.ctx)
		if err != nil {
			return err
		}
		if err := s.drain(f, fair); err != nil {
			return err
		}
	}
}

func (s *Stream[T]) drain(f *Fragment[T], fair *fairness) error {
	var items int64
	for {
		fair.before(f.ch.Ready())
		v, err := f.ch.Next(s.ctx)
		if stderrors.Is(err, errEndOfFragment) {
			// Implicit reclamation; a no-op after Finish.
			f.Release()
			s.drained.Add(1)
			s.metrics.RecordFragmentDrained(s.ctx)
			s.log.Debug("fragment drained", logger.Fields(
				logger.FieldFragment, f.seq,
				logger.FieldItems, items,
			))
			return nil
		}
		if err != nil {
			return err
		}

		size := v.Size()
		fair.charge(size)
		if err := s.output.Send(v); err != nil {
			return err
		}
		items++
		s.items.Add(1)
		s.metrics.RecordItemFlushed(s.ctx, size)
	}
}

// die forwards cond to the output and records why the loop stopped.
func (s *Stream[T]) die(cond error) {
	if stderrors.Is(cond, channel.ErrEndOfStream) {
		_ = s.output.SendError(channel.ErrEndOfStream)
		s.log.Info("stream finished", logger.Fields(
			logger.FieldItems, s.items.Load(),
			"fragments", s.drained.Load(),
		))
		return
	}

	s.err = cond
	kind := "fragment"
	switch {
	case s.ctx.Err() != nil && stderrors.Is(cond, s.ctx.Err()):
		kind = "context"
	case stderrors.Is(cond, channel.ErrClosed):
		kind = "output"
	}
	_ = s.output.SendError(cond)
	s.metrics.RecordStreamError(s.ctx, kind)
	s.log.Error("stream terminated", logger.Fields(
		logger.FieldError, cond.Error(),
		"kind", kind,
		logger.FieldItems, s.items.Load(),
	))
}
