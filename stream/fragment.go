package stream

import (
	"sync/atomic"

	"github.com/kbukum/parstream/admission"
	"github.com/kbukum/parstream/channel"
	"github.com/kbukum/parstream/errors"
	"github.com/kbukum/parstream/logger"
)

// State is a fragment's termination state.
type State int32

const (
	// Open fragments accept items.
	Open State = iota
	// Finished fragments completed normally.
	Finished
	// Errored fragments were terminated with a condition.
	Errored
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Finished:
		return "finished"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Fragment is one producer's ordered sub-stream. It is owned by the producer
// that created it until Finish or SendError; the flush loop only reads its
// channel. Calling Send, Finish or SendError on a terminated fragment panics
// with a FRAGMENT_CLOSED *errors.AppError.
type Fragment[T Item] struct {
	stream *Stream[T]
	seq    uint64
	ch     *channel.Channel[T]
	permit *admission.Permit
	state  atomic.Int32
}

func newFragment[T Item](s *Stream[T], seq uint64, permit *admission.Permit) *Fragment[T] {
	return &Fragment[T]{
		stream: s,
		seq:    seq,
		ch:     channel.New[T](),
		permit: permit,
	}
}

// Seq returns the fragment's creation position, starting at 0.
func (f *Fragment[T]) Seq() uint64 { return f.seq }

// State returns the current termination state.
func (f *Fragment[T]) State() State { return State(f.state.Load()) }

// Send appends v to the fragment. It never blocks.
func (f *Fragment[T]) Send(v T) {
	if f.State() != Open {
		panic(errors.FragmentClosed("send", f.seq))
	}
	// Only a terminated channel refuses, and termination goes through f.
	_ = f.ch.Send(v)
}

// Finish completes the fragment. The permit is released before end of
// fragment is signalled, so a waiting CreateFragment can proceed before the
// flush loop reaches this fragment.
func (f *Fragment[T]) Finish() {
	f.transition(Finished, "finish")
	f.Release()
	_ = f.ch.SendError(errEndOfFragment)
	f.stream.log.Debug("fragment finished", logger.Fields(logger.FieldFragment, f.seq))
}

// SendError terminates the fragment with err, which the flush loop forwards
// to the output as the stream's terminal condition. The permit is released
// first. A nil err is the same as Finish.
func (f *Fragment[T]) SendError(err error) {
	if err == nil {
		f.Finish()
		return
	}
	f.transition(Errored, "send_error")
	f.Release()
	_ = f.ch.SendError(err)
	f.stream.log.Debug("fragment errored", logger.Fields(
		logger.FieldFragment, f.seq,
		logger.FieldError, err.Error(),
	))
}

// Release returns the fragment's admission capacity without terminating it.
// It is safe to call any number of times; the flush loop calls it again once
// the fragment is drained. It reports whether this call released.
//
// After an early Release the fragment stays open and may keep sending, but
// it no longer counts against the stream's concurrency or buffer limit.
func (f *Fragment[T]) Release() bool {
	if f.permit == nil {
		return false
	}
	return f.permit.Release()
}

func (f *Fragment[T]) transition(to State, op string) {
	if !f.state.CompareAndSwap(int32(Open), int32(to)) {
		panic(errors.FragmentClosed(op, f.seq))
	}
}
